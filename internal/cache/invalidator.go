package cache

import (
	"context"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/oriys/letletme/internal/logging"
)

// InvalidationChannel carries invalidation signals from the ingestion
// pipeline. The payload is "<service>" to drop a whole service hash or
// "<service>:<endpoint>" to drop one field.
const InvalidationChannel = "letletme:cache:invalidate"

// Invalidator applies invalidation signals received over Redis Pub/Sub to
// a Store.
type Invalidator struct {
	store  Store
	client redis.UniversalClient
	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

// NewInvalidator creates an invalidator listening on client and evicting
// from store.
func NewInvalidator(store Store, client redis.UniversalClient) *Invalidator {
	return &Invalidator{store: store, client: client}
}

// Start listens for signals. It blocks until ctx is cancelled or Close is
// called.
func (iv *Invalidator) Start(ctx context.Context) {
	subCtx, cancel := context.WithCancel(ctx)
	iv.mu.Lock()
	if iv.closed {
		iv.mu.Unlock()
		cancel()
		return
	}
	iv.cancel = cancel
	iv.mu.Unlock()

	pubsub := iv.client.Subscribe(subCtx, InvalidationChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			iv.Apply(subCtx, msg.Payload)
		}
	}
}

// Apply handles one signal payload. Payloads naming no known service are
// logged and ignored.
func (iv *Invalidator) Apply(ctx context.Context, payload string) {
	name, endpoint, hasEndpoint := strings.Cut(strings.TrimSpace(payload), ":")
	s, ok := ParseService(name)
	if !ok {
		logging.Op().Warn("ignoring invalidation for unknown service", "payload", payload)
		return
	}
	if hasEndpoint && endpoint != "" {
		Delete(ctx, iv.store, s, endpoint)
		return
	}
	ClearService(ctx, iv.store, s)
}

// Publish sends an invalidation signal. An empty endpoint targets the
// whole service.
func (iv *Invalidator) Publish(ctx context.Context, s Service, endpoint string) error {
	payload := s.String()
	if endpoint != "" {
		payload += ":" + endpoint
	}
	return iv.client.Publish(ctx, InvalidationChannel, payload).Err()
}

// Close stops the listener.
func (iv *Invalidator) Close() error {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	if iv.closed {
		return nil
	}
	iv.closed = true
	if iv.cancel != nil {
		iv.cancel()
	}
	return nil
}
