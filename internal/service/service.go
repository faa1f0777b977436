// Package service holds the read paths behind the API. Each public method
// is a producer wrapped by the cache package, keyed by a cache.Service and
// an endpoint name.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/oriys/letletme/internal/cache"
)

// DataReader is the read-only view of the data Redis.
type DataReader interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	SMembers(ctx context.Context, key string) ([]string, error)
}

// Options are shared by every service constructor.
type Options struct {
	// Season like "2526"; empty derives it from Now on every read, so a
	// long-running server follows the August rollover.
	Season string
	// SingleFlight coalesces concurrent cache misses per endpoint.
	SingleFlight bool
	// Now defaults to time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// seasonFunc returns the fixed season, or one derived from Now per call.
func (o Options) seasonFunc() func() string {
	if o.Season != "" {
		season := o.Season
		return func() string { return season }
	}
	now := o.Now
	return func() string { return CurrentSeason(now()) }
}

func (o Options) wrapOptions() []cache.WrapOption {
	return []cache.WrapOption{cache.WithSingleFlight(o.SingleFlight)}
}

// CurrentSeason returns the season code for t, e.g. "2526" for the season
// starting August 2025. Seasons roll over on 1 August.
func CurrentSeason(t time.Time) string {
	start := t.Year()
	if t.Month() < time.August {
		start--
	}
	return fmt.Sprintf("%02d%02d", start%100, (start+1)%100)
}
