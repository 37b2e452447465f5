package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"guessduel/internal/db"
	"guessduel/internal/match"
)

type fakeStore struct {
	mu      sync.Mutex
	plays   []db.ImagePlay
	records []db.RecordRow
	matches []db.MatchRecord
	failAll bool
}

func (f *fakeStore) RecordImagePlay(_ context.Context, play db.ImagePlay) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errors.New("boom")
	}
	f.plays = append(f.plays, play)
	return nil
}

func (f *fakeStore) UpsertRecord(_ context.Context, r db.RecordRow) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return false, errors.New("boom")
	}
	f.records = append(f.records, r)
	return true, nil
}

func (f *fakeStore) SaveMatch(_ context.Context, m db.MatchRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return "", errors.New("boom")
	}
	f.matches = append(f.matches, m)
	return "id-1", nil
}

func runRecorder(t *testing.T, store Store) (*Recorder, context.CancelFunc) {
	t.Helper()
	r := NewRecorder(store, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	return r, cancel
}

func TestRecorder_WritesRoundOnShutdown(t *testing.T) {
	store := &fakeStore{}
	r, cancel := runRecorder(t, store)

	require.True(t, r.SubmitRound(round(0.01, 0.2, time.Second, 2*time.Second)))
	cancel()
	r.Wait()

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.plays, 1)
	assert.Equal(t, "img-1", store.plays[0].ImageID)
	assert.Equal(t, []float64{0.01, 0.2}, store.plays[0].Distances)
	// p1: accuracy + fastest (x2 scopes), p2: accuracy only (x2 scopes)
	assert.Len(t, store.records, 6)
	for _, rec := range store.records {
		if rec.Kind == string(KindFastestCorrect) {
			assert.Equal(t, int64(1000), rec.ResponseMs)
		}
	}
}

func TestRecorder_FlushesOnTicker(t *testing.T) {
	store := &fakeStore{}
	r, cancel := runRecorder(t, store)
	defer cancel()

	r.SubmitRound(round(0.3, 0.3, 0, 0))

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.plays) == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRecorder_SavesGame(t *testing.T) {
	store := &fakeStore{}
	r, cancel := runRecorder(t, store)

	rr := round(0.0, 0.1, time.Second, time.Second)
	r.SubmitGame(Game{
		SessionID: "ABC123",
		Modifier:  "timed",
		TimedMode: true,
		Over: match.GameOver{
			Winner: "p1", WinnerSlot: match.Player1,
			Player1Points: 1000, Player2Points: 800,
			Rounds: []match.RoundResult{rr},
		},
		CompletedAt: rr.PlayedAt,
	})
	r.SubmitGame(Game{SessionID: "TIE000", Over: match.GameOver{Tie: true}})
	cancel()
	r.Wait()

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.matches, 2)
	won := store.matches[0]
	require.NotNil(t, won.WinnerSlot)
	assert.Equal(t, 1, *won.WinnerSlot)
	assert.True(t, won.TimedMode)
	require.Len(t, won.Rounds, 1)
	assert.Equal(t, 1000, won.Rounds[0].Player1Points)
	assert.Equal(t, 0.5, won.Rounds[0].AnswerX)

	tie := store.matches[1]
	assert.Nil(t, tie.WinnerSlot)
	assert.True(t, tie.Tie)
}

func TestRecorder_StoreErrorsAreSwallowed(t *testing.T) {
	store := &fakeStore{failAll: true}
	r, cancel := runRecorder(t, store)

	r.SubmitRound(round(0.0, 0.0, time.Second, time.Second))
	r.SubmitGame(Game{SessionID: "X"})
	cancel()
	r.Wait()
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	r := NewRecorder(&fakeStore{}, zap.NewNop())
	for i := 0; i < bufferSize; i++ {
		require.True(t, r.SubmitGame(Game{}))
	}
	assert.False(t, r.SubmitGame(Game{}), "submission beyond the buffer should be dropped")
}
