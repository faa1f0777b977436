package cache

import (
	"strings"
	"sync"
	"time"
)

// DefaultTTL applies to services without an explicit entry.
const DefaultTTL = time.Hour

var defaultServiceTTL = map[Service]time.Duration{
	Live:       time.Minute,
	Event:      5 * time.Minute,
	Fixture:    5 * time.Minute,
	Summary:    10 * time.Minute,
	Player:     time.Hour,
	League:     time.Hour,
	Entry:      time.Hour,
	Tournament: time.Hour,
	Team:       24 * time.Hour,
}

// Config is the cache policy for one request path.
type Config struct {
	Service Service
	TTL     time.Duration
}

// Policy resolves service TTLs and memoizes path lookups. A Policy is
// created once at startup and lives for the whole process.
type Policy struct {
	defaultTTL time.Duration
	ttl        map[Service]time.Duration

	// service segment -> Config. Entries are recomputed to equal values
	// on a race, so no locking beyond sync.Map is needed.
	paths sync.Map
}

// NewPolicy builds a policy from the built-in table. overrides is keyed by
// service name; unknown names are ignored. defaultTTL <= 0 keeps DefaultTTL.
func NewPolicy(defaultTTL time.Duration, overrides map[string]time.Duration) *Policy {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	p := &Policy{
		defaultTTL: defaultTTL,
		ttl:        make(map[Service]time.Duration, len(defaultServiceTTL)+len(overrides)),
	}
	for s, d := range defaultServiceTTL {
		p.ttl[s] = d
	}
	for name, d := range overrides {
		s, ok := ParseService(name)
		if !ok || d <= 0 {
			continue
		}
		p.ttl[s] = d
	}
	return p
}

// DefaultPolicy returns a policy with the built-in table only.
func DefaultPolicy() *Policy {
	return NewPolicy(0, nil)
}

// TTL returns the expiry window for a service hash.
func (p *Policy) TTL(s Service) time.Duration {
	if d, ok := p.ttl[s]; ok {
		return d
	}
	return p.defaultTTL
}

// ConfigForPath derives the cache config from a request path shaped like
// /<version>/<service>/<rest...>. Paths that do not name a known service
// map to DefaultService; this never fails. Only the service segment
// decides the result, so the memo is keyed on it and holds at most one
// entry per spelling of a known service, however many distinct ids appear
// in <rest>. Unknown segments are not memoized.
func (p *Policy) ConfigForPath(path string) Config {
	seg := serviceSegment(path)
	if v, ok := p.paths.Load(seg); ok {
		return v.(Config)
	}
	s, ok := ParseService(seg)
	cfg := Config{Service: s, TTL: p.TTL(s)}
	if ok {
		p.paths.Store(seg, cfg)
	}
	return cfg
}

// serviceSegment returns the lower-cased third "/"-separated segment of
// path, or "" when there is none.
func serviceSegment(path string) string {
	segments := strings.SplitN(path, "/", 4)
	if len(segments) < 3 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(segments[2]))
}
