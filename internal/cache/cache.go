// Package cache memoizes computed API responses in Redis.
//
// Every logical service (events, fixtures, entries, ...) owns one Redis hash
// named "cache:<service>"; each cached endpoint is a field of that hash
// holding a JSON document. The whole hash shares a single expiry window that
// is established by the first write after the hash was created and is never
// refreshed by later writes.
//
// The cache is best-effort. HashStore exposes result-returning primitives
// (Load, Save, Remove, Purge), while Get, Set, Delete, ClearService and Wrap
// swallow and log every cache failure so that an unavailable Redis degrades
// to "always call the producer", never to a failed request.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// HashKeyPrefix prefixes every service hash.
const HashKeyPrefix = "cache:"

var (
	// ErrNotFound is returned by Load when the field does not exist.
	ErrNotFound = errors.New("cache: key not found")

	// ErrCorrupt marks a stored value that could not be decoded.
	ErrCorrupt = errors.New("cache: corrupt entry")
)

// Service is a logical group of cacheable endpoints sharing one hash and
// one TTL policy. The set is closed.
type Service int

const (
	System Service = iota
	Event
	Fixture
	Team
	Player
	League
	Entry
	Summary
	Tournament
	Live
)

// DefaultService receives paths and names that resolve to no known service.
const DefaultService = System

var serviceNames = [...]string{
	System:     "system",
	Event:      "event",
	Fixture:    "fixture",
	Team:       "team",
	Player:     "player",
	League:     "league",
	Entry:      "entry",
	Summary:    "summary",
	Tournament: "tournament",
	Live:       "live",
}

// Services lists every service in declaration order.
func Services() []Service {
	out := make([]Service, len(serviceNames))
	for i := range serviceNames {
		out[i] = Service(i)
	}
	return out
}

func (s Service) String() string {
	if s < 0 || int(s) >= len(serviceNames) {
		return fmt.Sprintf("service(%d)", int(s))
	}
	return serviceNames[s]
}

// Valid reports whether s is one of the declared services.
func (s Service) Valid() bool {
	return s >= 0 && int(s) < len(serviceNames)
}

// ParseService resolves a case-insensitive service name. Plural forms
// ("events", "entries") are accepted.
func ParseService(name string) (Service, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultService, false
	}
	for i, n := range serviceNames {
		if n == name {
			return Service(i), true
		}
	}
	for _, singular := range singularForms(name) {
		for i, n := range serviceNames {
			if n == singular {
				return Service(i), true
			}
		}
	}
	return DefaultService, false
}

func singularForms(name string) []string {
	var out []string
	if stem, ok := strings.CutSuffix(name, "ies"); ok {
		out = append(out, stem+"y")
	}
	if stem, ok := strings.CutSuffix(name, "s"); ok {
		out = append(out, stem)
	}
	return out
}

// HashKey returns the Redis hash holding every cached endpoint of s.
func HashKey(s Service) string {
	return HashKeyPrefix + s.String()
}

// Store is the result-returning cache surface used by the fail-open
// helpers. HashStore is the Redis implementation.
type Store interface {
	// Load returns the raw value of the endpoint field, or ErrNotFound.
	Load(ctx context.Context, s Service, endpoint string) ([]byte, error)

	// Save writes the field and assigns the hash expiry if it has none.
	// ttl <= 0 means the service TTL.
	Save(ctx context.Context, s Service, endpoint string, value []byte, ttl time.Duration) error

	// Remove deletes a single field. Removing a missing field is not an error.
	Remove(ctx context.Context, s Service, endpoint string) error

	// Purge deletes the whole service hash.
	Purge(ctx context.Context, s Service) error
}

// OpError describes a failed cache operation.
type OpError struct {
	Op       string // get, set, delete, clear
	Service  Service
	Endpoint string
	Err      error
}

func (e *OpError) Error() string {
	if e.Endpoint == "" {
		return fmt.Sprintf("cache %s %s: %v", e.Op, HashKey(e.Service), e.Err)
	}
	return fmt.Sprintf("cache %s %s[%s]: %v", e.Op, HashKey(e.Service), e.Endpoint, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }
