package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type RecordRow struct {
	ImageID    string    `db:"image_id"`
	Kind       string    `db:"kind"`
	Scope      string    `db:"scope"`
	Month      string    `db:"month"`
	PlayerID   string    `db:"player_id"`
	SessionID  string    `db:"session_id"`
	Distance   float64   `db:"distance"`
	Score      int       `db:"score"`
	ResponseMs int64     `db:"response_ms"`
	SetAt      time.Time `db:"set_at"`
}

// UpsertRecord stores r when no record exists for its (image, kind, scope),
// when r beats the stored one, or when the stored one belongs to another month.
// It reports whether r was written.
func (d *DB) UpsertRecord(ctx context.Context, r RecordRow) (bool, error) {
	var written bool
	err := d.conn.QueryRowxContext(ctx, `
		INSERT INTO image_records
			(image_id, kind, scope, month, player_id, session_id, distance, score, response_ms, set_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (image_id, kind, scope) DO UPDATE SET
			month = EXCLUDED.month,
			player_id = EXCLUDED.player_id,
			session_id = EXCLUDED.session_id,
			distance = EXCLUDED.distance,
			score = EXCLUDED.score,
			response_ms = EXCLUDED.response_ms,
			set_at = EXCLUDED.set_at
		WHERE image_records.month <> EXCLUDED.month
			OR (image_records.kind = 'most_accurate' AND EXCLUDED.distance < image_records.distance)
			OR (image_records.kind = 'fastest_correct' AND EXCLUDED.response_ms < image_records.response_ms)
		RETURNING true
	`, r.ImageID, r.Kind, r.Scope, r.Month, r.PlayerID, r.SessionID, r.Distance, r.Score, r.ResponseMs, r.SetAt).Scan(&written)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("upserting record: %w", err)
	}
	return written, nil
}

func (d *DB) ListImageRecords(ctx context.Context, imageID string) ([]RecordRow, error) {
	var rows []RecordRow
	err := d.conn.SelectContext(ctx, &rows, `
		SELECT image_id, kind, scope, month, player_id, session_id, distance, score, response_ms, set_at
		FROM image_records WHERE image_id = $1
		ORDER BY kind, scope
	`, imageID)
	if err != nil {
		return nil, fmt.Errorf("listing image records: %w", err)
	}
	return rows, nil
}
