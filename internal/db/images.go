package db

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
)

type ImageRow struct {
	ID       string  `db:"id"`
	URL      string  `db:"image_url"`
	X        float64 `db:"x_coordinate"`
	Y        float64 `db:"y_coordinate"`
	Building string  `db:"building"`
	Status   string  `db:"status"`
}

type ImageStats struct {
	ID                string     `db:"id"`
	TotalPlays        int        `db:"total_plays"`
	TotalDistance     float64    `db:"total_distance"`
	BestGuessDistance *float64   `db:"best_guess_distance"`
	LastPlayedAt      *time.Time `db:"last_played_at"`
}

// ImagePlay is the per-round statistics update for one image.
type ImagePlay struct {
	ImageID   string
	Distances []float64
	PlayedAt  time.Time
}

func (d *DB) InsertImage(ctx context.Context, img ImageRow) (string, error) {
	var id string
	err := d.conn.QueryRowxContext(ctx, `
		INSERT INTO images (image_url, x_coordinate, y_coordinate, building, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, img.URL, img.X, img.Y, img.Building, img.Status).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("inserting image: %w", err)
	}
	return id, nil
}

// CountApprovedImages counts approved images whose URL is not in exclude.
func (d *DB) CountApprovedImages(ctx context.Context, exclude []string) (int, error) {
	var n int
	err := d.conn.GetContext(ctx, &n, `
		SELECT count(*) FROM images
		WHERE status = 'approved' AND NOT (image_url = ANY($1))
	`, pq.Array(nonNil(exclude)))
	if err != nil {
		return 0, fmt.Errorf("counting approved images: %w", err)
	}
	return n, nil
}

// ApprovedImageAt returns the approved image at offset in a stable ordering,
// skipping URLs in exclude.
func (d *DB) ApprovedImageAt(ctx context.Context, exclude []string, offset int) (ImageRow, error) {
	var row ImageRow
	err := d.conn.GetContext(ctx, &row, `
		SELECT id, image_url, x_coordinate, y_coordinate, building, status
		FROM images
		WHERE status = 'approved' AND NOT (image_url = ANY($1))
		ORDER BY id
		OFFSET $2 LIMIT 1
	`, pq.Array(nonNil(exclude)), offset)
	if err != nil {
		return ImageRow{}, fmt.Errorf("selecting approved image: %w", err)
	}
	return row, nil
}

func (d *DB) RecordImagePlay(ctx context.Context, play ImagePlay) error {
	if len(play.Distances) == 0 {
		return nil
	}
	var total float64
	best := play.Distances[0]
	for _, dist := range play.Distances {
		total += dist
		if dist < best {
			best = dist
		}
	}
	_, err := d.conn.ExecContext(ctx, `
		UPDATE images SET
			total_plays = total_plays + $2,
			total_distance = total_distance + $3,
			best_guess_distance = LEAST(COALESCE(best_guess_distance, $4), $4),
			last_played_at = $5
		WHERE id = $1
	`, play.ImageID, len(play.Distances), total, best, play.PlayedAt)
	if err != nil {
		return fmt.Errorf("recording image play: %w", err)
	}
	return nil
}

func (d *DB) GetImageStats(ctx context.Context, imageID string) (*ImageStats, error) {
	var s ImageStats
	err := d.conn.GetContext(ctx, &s, `
		SELECT id, total_plays, total_distance, best_guess_distance, last_played_at
		FROM images WHERE id = $1
	`, imageID)
	if err != nil {
		return nil, fmt.Errorf("getting image stats: %w", err)
	}
	return &s, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
