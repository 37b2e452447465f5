package analytics

import (
	"time"

	"guessduel/internal/match"
	"guessduel/internal/scoring"
)

type Kind string

const (
	KindMostAccurate   Kind = "most_accurate"
	KindFastestCorrect Kind = "fastest_correct"
)

type Scope string

const (
	ScopeAllTime Scope = "all_time"
	ScopeMonthly Scope = "monthly"
)

// Record is one candidate for an image's achievement board. Month is empty
// for all-time records.
type Record struct {
	ImageID      string
	Kind         Kind
	Scope        Scope
	Month        string
	PlayerID     string
	SessionID    string
	Distance     float64
	Score        int
	ResponseTime time.Duration
	SetAt        time.Time
}

func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Candidates returns the records every guess of a finalized round competes for.
// Fastest-correct candidates need a correct guess and a known response time.
func Candidates(rr match.RoundResult) []Record {
	month := MonthKey(rr.PlayedAt)
	var out []Record
	for _, p := range rr.Players {
		base := Record{
			ImageID:      rr.Image.ID,
			PlayerID:     p.Conn,
			SessionID:    rr.SessionID,
			Distance:     p.Distance,
			Score:        p.Points,
			ResponseTime: p.ResponseTime,
			SetAt:        rr.PlayedAt,
		}
		kinds := []Kind{KindMostAccurate}
		if scoring.IsCorrect(p.Distance) && p.ResponseTime > 0 {
			kinds = append(kinds, KindFastestCorrect)
		}
		for _, k := range kinds {
			allTime, monthly := base, base
			allTime.Kind, allTime.Scope = k, ScopeAllTime
			monthly.Kind, monthly.Scope, monthly.Month = k, ScopeMonthly, month
			out = append(out, allTime, monthly)
		}
	}
	return out
}
