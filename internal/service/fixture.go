package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/oriys/letletme/internal/cache"
)

// ErrInvalidEvent is returned for event ids outside 1..MaxEvent.
var ErrInvalidEvent = errors.New("invalid event")

// MaxEvent is the number of gameweeks in a season.
const MaxEvent = 38

// Fixture is one match of a gameweek with team names resolved.
type Fixture struct {
	ID          int        `json:"id"`
	Event       int        `json:"event"`
	KickoffTime *time.Time `json:"kickoffTime,omitempty"`
	TeamH       int        `json:"teamH"`
	TeamHName   string     `json:"teamHName"`
	TeamHScore  *int       `json:"teamHScore,omitempty"`
	TeamA       int        `json:"teamA"`
	TeamAName   string     `json:"teamAName"`
	TeamAScore  *int       `json:"teamAScore,omitempty"`
	Started     bool       `json:"started"`
	Finished    bool       `json:"finished"`
}

// FixturesKey is the data Redis set of fixture records for one gameweek.
func FixturesKey(season string, event int) string {
	return fmt.Sprintf("fixture:event:%s:%d", season, event)
}

// TeamNamesKey is the data Redis hash of team id -> name.
func TeamNamesKey(season string) string { return "team:name:" + season }

// FixtureEndpoint is the cache field holding one gameweek's fixtures.
func FixtureEndpoint(event int) string { return "fixtures:" + strconv.Itoa(event) }

// AssembleFixtures decodes raw fixture records, resolves team names and
// orders them by kickoff then id. Fixtures without a kickoff sort last.
// Records that are not valid JSON are skipped.
func AssembleFixtures(members []string, teamNames map[string]string) []Fixture {
	out := make([]Fixture, 0, len(members))
	for _, m := range members {
		var f Fixture
		if err := json.Unmarshal([]byte(m), &f); err != nil {
			continue
		}
		f.TeamHName = teamNames[strconv.Itoa(f.TeamH)]
		f.TeamAName = teamNames[strconv.Itoa(f.TeamA)]
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ki, kj := out[i].KickoffTime, out[j].KickoffTime
		switch {
		case ki == nil && kj == nil:
			return out[i].ID < out[j].ID
		case ki == nil:
			return false
		case kj == nil:
			return true
		case !ki.Equal(*kj):
			return ki.Before(*kj)
		default:
			return out[i].ID < out[j].ID
		}
	})
	return out
}

// FixtureService serves per-gameweek fixtures.
type FixtureService struct {
	data   DataReader
	season func() string

	fixtures func(context.Context, int) ([]Fixture, error)
}

// NewFixtureService wires the fixture read path through the cache.
func NewFixtureService(data DataReader, st cache.Store, opts Options) *FixtureService {
	opts = opts.withDefaults()
	s := &FixtureService{data: data, season: opts.seasonFunc()}
	s.fixtures = cache.WrapKey(st, cache.Fixture, FixtureEndpoint, s.loadFixtures, opts.wrapOptions()...)
	return s
}

// Fixtures returns the fixtures of a gameweek.
func (s *FixtureService) Fixtures(ctx context.Context, event int) ([]Fixture, error) {
	if event < 1 || event > MaxEvent {
		return nil, fmt.Errorf("%w: %d", ErrInvalidEvent, event)
	}
	return s.fixtures(ctx, event)
}

func (s *FixtureService) loadFixtures(ctx context.Context, event int) ([]Fixture, error) {
	season := s.season()
	members, err := s.data.SMembers(ctx, FixturesKey(season, event))
	if err != nil {
		return nil, fmt.Errorf("load fixtures: %w", err)
	}
	names, err := s.data.HGetAll(ctx, TeamNamesKey(season))
	if err != nil {
		return nil, fmt.Errorf("load team names: %w", err)
	}
	return AssembleFixtures(members, names), nil
}
