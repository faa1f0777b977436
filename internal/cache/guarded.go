package cache

import (
	"context"
	"errors"
	"time"

	"github.com/oriys/letletme/internal/circuitbreaker"
)

// ErrCircuitOpen is returned by a GuardedStore while its breaker rejects
// calls. The fail-open helpers treat it as a bypass, not a failure.
var ErrCircuitOpen = errors.New("cache: circuit open")

// GuardedStore puts a circuit breaker in front of another Store.
type GuardedStore struct {
	inner   Store
	breaker *circuitbreaker.Breaker
}

// NewGuardedStore wraps inner with breaker.
func NewGuardedStore(inner Store, breaker *circuitbreaker.Breaker) *GuardedStore {
	return &GuardedStore{inner: inner, breaker: breaker}
}

// Breaker returns the breaker guarding the store.
func (g *GuardedStore) Breaker() *circuitbreaker.Breaker { return g.breaker }

// Unwrap returns the guarded store.
func (g *GuardedStore) Unwrap() Store { return g.inner }

func (g *GuardedStore) Load(ctx context.Context, s Service, endpoint string) ([]byte, error) {
	if !g.breaker.Allow() {
		return nil, &OpError{Op: "get", Service: s, Endpoint: endpoint, Err: ErrCircuitOpen}
	}
	v, err := g.inner.Load(ctx, s, endpoint)
	g.record(ctx, err)
	return v, err
}

func (g *GuardedStore) Save(ctx context.Context, s Service, endpoint string, value []byte, ttl time.Duration) error {
	if !g.breaker.Allow() {
		return &OpError{Op: "set", Service: s, Endpoint: endpoint, Err: ErrCircuitOpen}
	}
	err := g.inner.Save(ctx, s, endpoint, value, ttl)
	g.record(ctx, err)
	return err
}

func (g *GuardedStore) Remove(ctx context.Context, s Service, endpoint string) error {
	if !g.breaker.Allow() {
		return &OpError{Op: "delete", Service: s, Endpoint: endpoint, Err: ErrCircuitOpen}
	}
	err := g.inner.Remove(ctx, s, endpoint)
	g.record(ctx, err)
	return err
}

func (g *GuardedStore) Purge(ctx context.Context, s Service) error {
	if !g.breaker.Allow() {
		return &OpError{Op: "clear", Service: s, Err: ErrCircuitOpen}
	}
	err := g.inner.Purge(ctx, s)
	g.record(ctx, err)
	return err
}

// Ping bypasses the breaker so health checks always see the backend.
func (g *GuardedStore) Ping(ctx context.Context) error {
	if p, ok := g.inner.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close closes the guarded store if it can be closed.
func (g *GuardedStore) Close() error {
	if c, ok := g.inner.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func (g *GuardedStore) record(ctx context.Context, err error) {
	switch {
	case err == nil, errors.Is(err, ErrNotFound):
		g.breaker.RecordSuccess()
	case ctx.Err() != nil:
		// caller gave up; says nothing about the backend
	default:
		g.breaker.RecordFailure()
	}
}
