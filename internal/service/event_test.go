package service

import (
	"errors"
	"testing"
	"time"
)

func deadline(day int) time.Time {
	return time.Date(2025, time.August, day, 17, 30, 0, 0, time.UTC)
}

func TestDetermineCurrentEventAndDeadline(t *testing.T) {
	deadlines := []EventDeadline{
		{Event: 3, Deadline: deadline(29)},
		{Event: 1, Deadline: deadline(15)},
		{Event: 2, Deadline: deadline(22)},
	}

	tests := []struct {
		name      string
		now       time.Time
		wantEvent int
		wantNext  time.Time
	}{
		{"before season", deadline(1), 1, deadline(15)},
		{"exactly at first deadline", deadline(15), 1, deadline(22)},
		{"mid season", deadline(23), 2, deadline(29)},
		{"season over", deadline(30), 3, deadline(29)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetermineCurrentEventAndDeadline(tt.now, deadlines)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Event != tt.wantEvent || !got.NextDeadline.Equal(tt.wantNext) {
				t.Fatalf("got %+v, want event %d next %s", got, tt.wantEvent, tt.wantNext)
			}
		})
	}

	if deadlines[0].Event != 3 {
		t.Fatal("input slice must not be reordered")
	}
}

func TestDetermineCurrentEventAndDeadline_Empty(t *testing.T) {
	_, err := DetermineCurrentEventAndDeadline(time.Now(), nil)
	if !errors.Is(err, ErrDeadlinesNotFound) {
		t.Fatalf("expected ErrDeadlinesNotFound, got %v", err)
	}
}

func TestParseDeadlines(t *testing.T) {
	got := ParseDeadlines(map[string]string{
		"1":    "2025-08-15T17:30:00Z",
		"2":    `"2025-08-22T18:30:00+01:00"`,
		"3":    "1756488600",
		"four": "2025-09-05T17:30:00Z",
		"5":    "soon",
	})
	if len(got) != 3 {
		t.Fatalf("expected 3 deadlines, got %+v", got)
	}
	byEvent := map[int]time.Time{}
	for _, d := range got {
		byEvent[d.Event] = d.Deadline
	}
	if !byEvent[2].Equal(deadline(22)) {
		t.Fatalf("offset timestamp not normalised: %s", byEvent[2])
	}
	if !byEvent[3].Equal(time.Unix(1756488600, 0)) {
		t.Fatalf("unix timestamp not parsed: %s", byEvent[3])
	}
}

func TestParseAverageScores(t *testing.T) {
	got := ParseAverageScores(map[string]string{
		"1": `{"averageEntryScore": 54}`,
		"2": `{"averageEntryScore": 0}`,
		"3": `{"highestScore": 99}`,
		"4": `<html>`,
		"x": `{"averageEntryScore": 12}`,
	})
	if len(got) != 2 {
		t.Fatalf("expected 2 scores, got %v", got)
	}
	if got[1] != 54 {
		t.Fatalf("event 1 = %v", got[1])
	}
	if v, ok := got[2]; !ok || v != 0 {
		t.Fatalf("zero average must be kept, got %v, %v", v, ok)
	}
}

func TestParseAverageScores_Empty(t *testing.T) {
	if got := ParseAverageScores(nil); len(got) != 0 {
		t.Fatalf("expected empty map, got %v", got)
	}
}
