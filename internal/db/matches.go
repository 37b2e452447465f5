package db

import (
	"context"
	"fmt"
	"time"
)

type MatchRecord struct {
	SessionID     string
	Modifier      string
	TimedMode     bool
	Player1Points int
	Player2Points int
	WinnerSlot    *int
	Tie           bool
	CompletedAt   time.Time
	Rounds        []RoundRecord
}

type RoundRecord struct {
	MatchID       string  `db:"match_id"`
	RoundIndex    int     `db:"round_index"`
	ImageID       string  `db:"image_id"`
	AnswerX       float64 `db:"answer_x"`
	AnswerY       float64 `db:"answer_y"`
	Player1X      float64 `db:"player1_x"`
	Player1Y      float64 `db:"player1_y"`
	Player2X      float64 `db:"player2_x"`
	Player2Y      float64 `db:"player2_y"`
	Player1Points int     `db:"player1_points"`
	Player2Points int     `db:"player2_points"`
}

// SaveMatch writes a finished match and its rounds in one transaction.
func (d *DB) SaveMatch(ctx context.Context, m MatchRecord) (string, error) {
	tx, err := d.conn.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowxContext(ctx, `
		INSERT INTO matches (session_id, modifier, timed_mode, player1_points, player2_points, winner_slot, tie, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, m.SessionID, m.Modifier, m.TimedMode, m.Player1Points, m.Player2Points, m.WinnerSlot, m.Tie, m.CompletedAt).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("inserting match: %w", err)
	}

	for _, r := range m.Rounds {
		r.MatchID = id
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO match_rounds (match_id, round_index, image_id, answer_x, answer_y,
				player1_x, player1_y, player2_x, player2_y, player1_points, player2_points)
			VALUES (:match_id, :round_index, :image_id, :answer_x, :answer_y,
				:player1_x, :player1_y, :player2_x, :player2_y, :player1_points, :player2_points)
		`, r); err != nil {
			return "", fmt.Errorf("inserting round %d: %w", r.RoundIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing match: %w", err)
	}
	return id, nil
}

func (d *DB) CountMatches(ctx context.Context, sessionID string) (int, error) {
	var n int
	if err := d.conn.GetContext(ctx, &n, `SELECT count(*) FROM matches WHERE session_id = $1`, sessionID); err != nil {
		return 0, fmt.Errorf("counting matches: %w", err)
	}
	return n, nil
}
