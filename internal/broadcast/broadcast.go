package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"guessduel/internal/events"
)

const EventPlayerStats = "playerStats"

// Snapshot is the aggregate lobby count pushed to every connection.
type Snapshot struct {
	InQueue int `json:"inQueue"`
	InMatch int `json:"inMatch"`
}

// Sender is the part of the connection hub the broadcaster writes through.
type Sender interface {
	Broadcast(event string, data any)
}

type Broadcaster struct {
	source func() Snapshot
	out    Sender
	log    *zap.Logger
}

// NewBroadcaster pushes a fresh snapshot to everyone each time bus signals a
// change, until ctx is cancelled.
func NewBroadcaster(ctx context.Context, bus *events.Bus, source func() Snapshot, out Sender, logger *zap.Logger) *Broadcaster {
	b := &Broadcaster{source: source, out: out, log: logger}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-bus.StatsChanged:
				b.BroadcastNow()
			}
		}
	}()
	return b
}

func (b *Broadcaster) Current() Snapshot {
	return b.source()
}

func (b *Broadcaster) BroadcastNow() {
	snap := b.source()
	b.log.Debug("broadcasting stats", zap.Int("in_queue", snap.InQueue), zap.Int("in_match", snap.InMatch))
	b.out.Broadcast(EventPlayerStats, snap)
}

// Schedule registers a periodic broadcast on sched. A zero interval disables it.
func (b *Broadcaster) Schedule(sched gocron.Scheduler, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	_, err := sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(b.BroadcastNow),
	)
	if err != nil {
		return fmt.Errorf("scheduling stats broadcast: %w", err)
	}
	return nil
}
