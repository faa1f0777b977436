package service

import "testing"

func TestAssembleFixtures(t *testing.T) {
	members := []string{
		`{"id":5,"event":1,"teamH":1,"teamA":2}`,
		`{"id":3,"event":1,"kickoffTime":"2025-08-16T14:00:00Z","teamH":3,"teamA":4,"teamHScore":2,"teamAScore":0,"finished":true}`,
		`{"id":2,"event":1,"kickoffTime":"2025-08-16T14:00:00Z","teamH":5,"teamA":6}`,
		`{"id":1,"event":1,"kickoffTime":"2025-08-15T19:00:00Z","teamH":7,"teamA":8}`,
		`broken`,
	}
	names := map[string]string{"3": "Burnley", "4": "Chelsea"}

	got := AssembleFixtures(members, names)
	if len(got) != 4 {
		t.Fatalf("expected 4 fixtures, got %d", len(got))
	}
	wantOrder := []int{1, 2, 3, 5}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Fatalf("position %d: got id %d, want %d", i, got[i].ID, id)
		}
	}

	f := got[2]
	if f.TeamHName != "Burnley" || f.TeamAName != "Chelsea" {
		t.Fatalf("names not resolved: %+v", f)
	}
	if f.TeamHScore == nil || *f.TeamHScore != 2 || !f.Finished {
		t.Fatalf("scores not decoded: %+v", f)
	}
	if got[0].TeamHName != "" {
		t.Fatalf("unknown team should have empty name, got %q", got[0].TeamHName)
	}
}

func TestFixtureEndpoint(t *testing.T) {
	if got := FixtureEndpoint(12); got != "fixtures:12" {
		t.Fatalf("FixtureEndpoint(12) = %q", got)
	}
	if got := FixturesKey("2526", 12); got != "fixture:event:2526:12" {
		t.Fatalf("FixturesKey = %q", got)
	}
}
