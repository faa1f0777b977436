package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/oriys/letletme/internal/metrics"
	"github.com/oriys/letletme/internal/observability"
)

// Producer computes a value on a cache miss.
type Producer[T any] func(ctx context.Context) (T, error)

type wrapOptions struct {
	ttl          time.Duration
	singleFlight bool
}

// WrapOption configures Wrap and WrapKey.
type WrapOption func(*wrapOptions)

// WithTTL sets the expiry used when the service hash has none yet.
func WithTTL(d time.Duration) WrapOption {
	return func(o *wrapOptions) { o.ttl = d }
}

// WithSingleFlight coalesces concurrent misses on the same endpoint within
// this process into one producer call. Without it every caller that misses
// runs the producer. The shared call is not cancelled when the caller that
// started it goes away.
func WithSingleFlight(enabled bool) WrapOption {
	return func(o *wrapOptions) { o.singleFlight = enabled }
}

type cached[T any] struct {
	store   Store
	service Service
	ttl     time.Duration
	group   *singleflight.Group
}

func newCached[T any](st Store, s Service, opts []WrapOption) *cached[T] {
	var o wrapOptions
	for _, opt := range opts {
		opt(&o)
	}
	c := &cached[T]{store: st, service: s, ttl: o.ttl}
	if o.singleFlight {
		c.group = &singleflight.Group{}
	}
	return c
}

// Wrap returns a read-through accessor for one endpoint. A hit returns the
// cached value without calling produce. On a miss produce runs, a non-null
// result is stored and then returned. Cache failures never surface; errors
// from produce are returned unmodified and nothing is stored.
func Wrap[T any](st Store, s Service, endpoint string, produce Producer[T], opts ...WrapOption) Producer[T] {
	c := newCached[T](st, s, opts)
	return func(ctx context.Context) (T, error) {
		return c.get(ctx, endpoint, produce)
	}
}

// WrapKey is Wrap for endpoints parameterised by an argument; endpoint maps
// the argument to the hash field.
func WrapKey[K any, T any](st Store, s Service, endpoint func(K) string, produce func(context.Context, K) (T, error), opts ...WrapOption) func(context.Context, K) (T, error) {
	c := newCached[T](st, s, opts)
	return func(ctx context.Context, k K) (T, error) {
		return c.get(ctx, endpoint(k), func(ctx context.Context) (T, error) {
			return produce(ctx, k)
		})
	}
}

func (c *cached[T]) get(ctx context.Context, endpoint string, produce Producer[T]) (T, error) {
	if v, ok := Get[T](ctx, c.store, c.service, endpoint); ok {
		return v, nil
	}
	if c.group == nil {
		return c.fill(ctx, endpoint, produce)
	}

	// The shared fill outlives any single caller; each caller still stops
	// waiting when its own context ends.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(endpoint, func() (any, error) {
		return c.fill(shared, endpoint, produce)
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		t, _ := res.Val.(T)
		return t, nil
	}
}

func (c *cached[T]) fill(ctx context.Context, endpoint string, produce Producer[T]) (T, error) {
	ctx, span := observability.StartSpan(ctx, "cache.produce",
		observability.AttrCacheService.String(c.service.String()),
		observability.AttrCacheEndpoint.String(endpoint),
	)
	defer span.End()

	start := time.Now()
	v, err := produce(ctx)
	metrics.ObserveProducer(c.service.String(), time.Since(start), err)
	if err != nil {
		observability.SetSpanError(span, err)
		return v, err
	}

	Set(ctx, c.store, c.service, endpoint, v, c.ttl)
	observability.SetSpanOK(span)
	return v, nil
}
