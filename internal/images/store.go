package images

import (
	"context"
	"fmt"

	"guessduel/internal/db"
	"guessduel/internal/scoring"
)

// Store is the database-backed Provider.
type Store struct {
	db   *db.DB
	skip func(n int) int
}

func NewStore(database *db.DB) *Store {
	return &Store{db: database, skip: randomSkip}
}

func (s *Store) CountApproved(ctx context.Context) (int, error) {
	return s.db.CountApprovedImages(ctx, nil)
}

func (s *Store) RandomApproved(ctx context.Context, exclude []string) (Image, error) {
	n, err := s.db.CountApprovedImages(ctx, exclude)
	if err != nil {
		return Image{}, err
	}
	if n == 0 {
		return Image{}, ErrNoApprovedImages
	}
	row, err := s.db.ApprovedImageAt(ctx, exclude, s.skip(n))
	if err != nil {
		return Image{}, fmt.Errorf("picking random image: %w", err)
	}
	return Image{ID: row.ID, URL: row.URL, Answer: scoring.Coordinate{X: row.X, Y: row.Y}}, nil
}
