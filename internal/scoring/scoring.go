package scoring

import (
	"math"
	"time"
)

const (
	MaxPoints = 1000
	// pointsPerUnit is how many points a guess loses per unit of normalized distance.
	pointsPerUnit = 2000

	MaxTimeBonus       = 500
	TimePressureWindow = 15 * time.Second

	// CorrectDistance is the largest normalized distance still counted as a correct guess.
	CorrectDistance = 0.05
)

// Coordinate is a normalized position on the shared campus map.
// Values outside [0,1] are accepted as-is.
type Coordinate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func Distance(a, b Coordinate) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Score returns max(0, round(1000 - dist*2000)).
func Score(guess, answer Coordinate) int {
	return ScoreDistance(Distance(guess, answer))
}

func ScoreDistance(dist float64) int {
	points := int(math.Round(MaxPoints - dist*pointsPerUnit))
	if points < 0 {
		return 0
	}
	return points
}

// TimeBonus rewards the first submitter with the full bonus. A later submitter's
// bonus decays linearly to zero over TimePressureWindow after the opponent submitted.
// A zero opponentAt means the opponent has not submitted.
func TimeBonus(submittedAt, opponentAt time.Time) int {
	if opponentAt.IsZero() || submittedAt.Before(opponentAt) {
		return MaxTimeBonus
	}
	delay := submittedAt.Sub(opponentAt)
	ratio := 1 - float64(delay)/float64(TimePressureWindow)
	if ratio < 0 {
		ratio = 0
	}
	return int(math.Round(MaxTimeBonus * ratio))
}

func IsCorrect(dist float64) bool {
	return dist <= CorrectDistance
}
