package images

import (
	"context"
	"errors"
	"math/rand/v2"

	"guessduel/internal/scoring"
)

var ErrNoApprovedImages = errors.New("no approved images available")

const StatusApproved = "approved"

// Image is one approved location photo and the map position it was taken at.
type Image struct {
	ID     string
	URL    string
	Answer scoring.Coordinate
}

// Provider selects approved images. RandomApproved picks uniformly by skipping a
// random number of approved rows, ignoring any whose URL is in exclude.
type Provider interface {
	CountApproved(ctx context.Context) (int, error)
	RandomApproved(ctx context.Context, exclude []string) (Image, error)
}

func randomSkip(n int) int {
	return rand.IntN(n)
}
