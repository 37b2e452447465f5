package rooms

import (
	"time"

	"guessduel/internal/match"
)

// Room is one registry entry: a live match and its pending close timer.
type Room struct {
	Code      string
	Match     *match.Match
	CreatedAt time.Time

	closeTimer *time.Timer
}
