package analytics

import (
	"context"
	"time"

	"go.uber.org/zap"

	"guessduel/internal/db"
	"guessduel/internal/match"
)

const (
	bufferSize    = 1000
	batchSize     = 50
	flushInterval = 500 * time.Millisecond
	writeTimeout  = 5 * time.Second
)

// Store is the persistence the recorder writes to. *db.DB implements it.
type Store interface {
	RecordImagePlay(ctx context.Context, play db.ImagePlay) error
	UpsertRecord(ctx context.Context, r db.RecordRow) (bool, error)
	SaveMatch(ctx context.Context, m db.MatchRecord) (string, error)
}

// Game is a finished match as handed to the recorder.
type Game struct {
	SessionID   string
	Modifier    string
	TimedMode   bool
	Over        match.GameOver
	CompletedAt time.Time
}

type job struct {
	round *match.RoundResult
	game  *Game
}

// Recorder writes round statistics, achievement records and match history
// in batches off the request path. Submissions never block.
type Recorder struct {
	store Store
	in    chan job
	log   *zap.Logger
	done  chan struct{}
}

func NewRecorder(store Store, logger *zap.Logger) *Recorder {
	return &Recorder{
		store: store,
		in:    make(chan job, bufferSize),
		log:   logger,
		done:  make(chan struct{}),
	}
}

// SubmitRound queues a finalized round. It reports false when the buffer is full.
func (r *Recorder) SubmitRound(rr match.RoundResult) bool {
	return r.submit(job{round: &rr})
}

// SubmitGame queues a finished match.
func (r *Recorder) SubmitGame(g Game) bool {
	return r.submit(job{game: &g})
}

func (r *Recorder) submit(j job) bool {
	select {
	case r.in <- j:
		return true
	default:
		r.log.Warn("recorder buffer full, dropping write")
		return false
	}
}

// Run drains submissions until ctx is cancelled, then flushes what is left.
func (r *Recorder) Run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]job, 0, batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		r.write(batch)
		batch = batch[:0]
	}

	for {
		select {
		case j := <-r.in:
			batch = append(batch, j)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case j := <-r.in:
					batch = append(batch, j)
				default:
					flush()
					return
				}
			}
		}
	}
}

// Wait blocks until Run has returned.
func (r *Recorder) Wait() {
	<-r.done
}

func (r *Recorder) write(batch []job) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	for _, j := range batch {
		switch {
		case j.round != nil:
			r.writeRound(ctx, *j.round)
		case j.game != nil:
			r.writeGame(ctx, *j.game)
		}
	}
}

func (r *Recorder) writeRound(ctx context.Context, rr match.RoundResult) {
	play := db.ImagePlay{ImageID: rr.Image.ID, PlayedAt: rr.PlayedAt}
	for _, p := range rr.Players {
		play.Distances = append(play.Distances, p.Distance)
	}
	if err := r.store.RecordImagePlay(ctx, play); err != nil {
		r.log.Error("recording image play", zap.String("image", rr.Image.ID), zap.Error(err))
	}

	for _, c := range Candidates(rr) {
		written, err := r.store.UpsertRecord(ctx, toRow(c))
		if err != nil {
			r.log.Error("upserting record", zap.String("image", c.ImageID), zap.String("kind", string(c.Kind)), zap.Error(err))
			continue
		}
		if written {
			r.log.Info("new record",
				zap.String("image", c.ImageID),
				zap.String("kind", string(c.Kind)),
				zap.String("scope", string(c.Scope)),
				zap.String("player", c.PlayerID))
		}
	}
}

func (r *Recorder) writeGame(ctx context.Context, g Game) {
	rec := db.MatchRecord{
		SessionID:     g.SessionID,
		Modifier:      g.Modifier,
		TimedMode:     g.TimedMode,
		Player1Points: g.Over.Player1Points,
		Player2Points: g.Over.Player2Points,
		Tie:           g.Over.Tie,
		CompletedAt:   g.CompletedAt,
	}
	if !g.Over.Tie {
		slot := int(g.Over.WinnerSlot)
		rec.WinnerSlot = &slot
	}
	for _, rr := range g.Over.Rounds {
		p1, p2 := rr.Players[0], rr.Players[1]
		rec.Rounds = append(rec.Rounds, db.RoundRecord{
			RoundIndex:    rr.Index,
			ImageID:       rr.Image.ID,
			AnswerX:       rr.Image.Answer.X,
			AnswerY:       rr.Image.Answer.Y,
			Player1X:      p1.Guess.X,
			Player1Y:      p1.Guess.Y,
			Player2X:      p2.Guess.X,
			Player2Y:      p2.Guess.Y,
			Player1Points: p1.Points,
			Player2Points: p2.Points,
		})
	}
	if _, err := r.store.SaveMatch(ctx, rec); err != nil {
		r.log.Error("saving match", zap.String("session", g.SessionID), zap.Error(err))
	}
}

func toRow(c Record) db.RecordRow {
	return db.RecordRow{
		ImageID:    c.ImageID,
		Kind:       string(c.Kind),
		Scope:      string(c.Scope),
		Month:      c.Month,
		PlayerID:   c.PlayerID,
		SessionID:  c.SessionID,
		Distance:   c.Distance,
		Score:      c.Score,
		ResponseMs: c.ResponseTime.Milliseconds(),
		SetAt:      c.SetAt,
	}
}
