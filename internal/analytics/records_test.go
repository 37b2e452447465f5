package analytics

import (
	"testing"
	"time"

	"guessduel/internal/images"
	"guessduel/internal/match"
	"guessduel/internal/scoring"
)

func round(d1, d2 float64, rt1, rt2 time.Duration) match.RoundResult {
	return match.RoundResult{
		SessionID: "ABC123",
		Image:     images.Image{ID: "img-1", URL: "u/1", Answer: scoring.Coordinate{X: 0.5, Y: 0.5}},
		PlayedAt:  time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		Players: [2]match.RoundPlayer{
			{Conn: "p1", Distance: d1, Points: scoring.ScoreDistance(d1), ResponseTime: rt1},
			{Conn: "p2", Distance: d2, Points: scoring.ScoreDistance(d2), ResponseTime: rt2},
		},
	}
}

func TestMonthKey(t *testing.T) {
	got := MonthKey(time.Date(2026, 11, 30, 23, 0, 0, 0, time.UTC))
	if got != "2026-11" {
		t.Errorf("MonthKey() = %q, want %q", got, "2026-11")
	}
}

func TestCandidates_BothCorrect(t *testing.T) {
	recs := Candidates(round(0.01, 0.04, 2*time.Second, 3*time.Second))
	if len(recs) != 8 {
		t.Fatalf("got %d candidates, want 8", len(recs))
	}
	for _, r := range recs {
		if r.Scope == ScopeMonthly && r.Month != "2026-03" {
			t.Errorf("monthly record month = %q, want %q", r.Month, "2026-03")
		}
		if r.Scope == ScopeAllTime && r.Month != "" {
			t.Errorf("all-time record month = %q, want empty", r.Month)
		}
		if r.ImageID != "img-1" || r.SessionID != "ABC123" {
			t.Errorf("unexpected record identity: %+v", r)
		}
	}
}

func TestCandidates_IncorrectGuessOnlyAccuracy(t *testing.T) {
	recs := Candidates(round(0.3, 0.01, time.Second, time.Second))
	var p1 []Record
	for _, r := range recs {
		if r.PlayerID == "p1" {
			p1 = append(p1, r)
		}
	}
	if len(p1) != 2 {
		t.Fatalf("p1 candidates = %d, want 2", len(p1))
	}
	for _, r := range p1 {
		if r.Kind != KindMostAccurate {
			t.Errorf("p1 kind = %q, want %q", r.Kind, KindMostAccurate)
		}
	}
}

func TestCandidates_UnknownResponseTime(t *testing.T) {
	recs := Candidates(round(0.0, 0.0, 0, 0))
	for _, r := range recs {
		if r.Kind == KindFastestCorrect {
			t.Fatalf("fastest-correct without response time: %+v", r)
		}
	}
}
