package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oriys/letletme/internal/cache"
)

// ErrDeadlinesNotFound is returned when the season has no usable deadlines.
var ErrDeadlinesNotFound = errors.New("event deadlines not found")

// Cached endpoints of the event service.
const (
	EndpointCurrentWithDeadline = "current-with-deadline"
	EndpointAverageScores       = "average-scores"
)

// EventDeadline is one gameweek and its transfer deadline.
type EventDeadline struct {
	Event    int       `json:"event"`
	Deadline time.Time `json:"deadline"`
}

// CurrentEvent is the running gameweek and the next deadline to watch.
type CurrentEvent struct {
	Event        int       `json:"event"`
	NextDeadline time.Time `json:"nextDeadline"`
}

// DetermineCurrentEventAndDeadline picks the current event from an
// unordered set of deadlines:
//   - all deadlines passed: the last event, with its own deadline
//   - none passed yet: the first event, with its own deadline
//   - otherwise: the event before the first future deadline, with that
//     future deadline
func DetermineCurrentEventAndDeadline(now time.Time, deadlines []EventDeadline) (CurrentEvent, error) {
	if len(deadlines) == 0 {
		return CurrentEvent{}, ErrDeadlinesNotFound
	}

	sorted := make([]EventDeadline, len(deadlines))
	copy(sorted, deadlines)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Deadline.Equal(sorted[j].Deadline) {
			return sorted[i].Event < sorted[j].Event
		}
		return sorted[i].Deadline.Before(sorted[j].Deadline)
	})

	next := -1
	for i, d := range sorted {
		if d.Deadline.After(now) {
			next = i
			break
		}
	}

	switch next {
	case -1:
		last := sorted[len(sorted)-1]
		return CurrentEvent{Event: last.Event, NextDeadline: last.Deadline}, nil
	case 0:
		return CurrentEvent{Event: sorted[0].Event, NextDeadline: sorted[0].Deadline}, nil
	default:
		return CurrentEvent{Event: sorted[next-1].Event, NextDeadline: sorted[next].Deadline}, nil
	}
}

// ParseDeadlines converts the raw deadlines hash (event id -> RFC 3339
// timestamp or unix seconds). Unparseable entries are skipped.
func ParseDeadlines(raw map[string]string) []EventDeadline {
	out := make([]EventDeadline, 0, len(raw))
	for k, v := range raw {
		event, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			continue
		}
		deadline, ok := parseDeadline(v)
		if !ok {
			continue
		}
		out = append(out, EventDeadline{Event: event, Deadline: deadline})
	}
	return out
}

func parseDeadline(v string) (time.Time, bool) {
	v = strings.Trim(strings.TrimSpace(v), `"`)
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), true
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), true
	}
	return time.Time{}, false
}

type overallResult struct {
	AverageEntryScore *float64 `json:"averageEntryScore"`
}

// ParseAverageScores extracts event id -> average entry score from the raw
// overall-result hash. Entries that are not JSON, lack the score or have a
// non-numeric event id are skipped.
func ParseAverageScores(raw map[string]string) map[int]float64 {
	out := make(map[int]float64, len(raw))
	for k, v := range raw {
		event, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			continue
		}
		var r overallResult
		if err := json.Unmarshal([]byte(v), &r); err != nil || r.AverageEntryScore == nil {
			continue
		}
		out[event] = *r.AverageEntryScore
	}
	return out
}

// DeadlinesKey is the data Redis hash of event deadlines for a season.
func DeadlinesKey(season string) string { return "event:deadlines:" + season }

// OverallResultKey is the data Redis hash of per-event results for a season.
func OverallResultKey(season string) string { return "event:overall-result:" + season }

// EventService serves gameweek-level data.
type EventService struct {
	data   DataReader
	season func() string
	now    func() time.Time

	current       cache.Producer[CurrentEvent]
	averageScores cache.Producer[map[int]float64]
}

// NewEventService wires the event read paths through the cache.
func NewEventService(data DataReader, st cache.Store, opts Options) *EventService {
	opts = opts.withDefaults()
	s := &EventService{data: data, season: opts.seasonFunc(), now: opts.Now}
	s.current = cache.Wrap(st, cache.Event, EndpointCurrentWithDeadline, s.loadCurrent, opts.wrapOptions()...)
	s.averageScores = cache.Wrap(st, cache.Event, EndpointAverageScores, s.loadAverageScores, opts.wrapOptions()...)
	return s
}

// Season returns the season the service reads now.
func (s *EventService) Season() string { return s.season() }

// CurrentWithDeadline returns the current event and the next deadline.
func (s *EventService) CurrentWithDeadline(ctx context.Context) (CurrentEvent, error) {
	return s.current(ctx)
}

// AverageScores returns event id -> average entry score.
func (s *EventService) AverageScores(ctx context.Context) (map[int]float64, error) {
	return s.averageScores(ctx)
}

func (s *EventService) loadCurrent(ctx context.Context) (CurrentEvent, error) {
	raw, err := s.data.HGetAll(ctx, DeadlinesKey(s.season()))
	if err != nil {
		return CurrentEvent{}, fmt.Errorf("load deadlines: %w", err)
	}
	return DetermineCurrentEventAndDeadline(s.now(), ParseDeadlines(raw))
}

func (s *EventService) loadAverageScores(ctx context.Context) (map[int]float64, error) {
	raw, err := s.data.HGetAll(ctx, OverallResultKey(s.season()))
	if err != nil {
		return nil, fmt.Errorf("load overall results: %w", err)
	}
	return ParseAverageScores(raw), nil
}
