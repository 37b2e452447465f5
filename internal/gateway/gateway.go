package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"guessduel/internal/analytics"
	"guessduel/internal/broadcast"
	"guessduel/internal/events"
	"guessduel/internal/images"
	"guessduel/internal/match"
	"guessduel/internal/matchmaking"
	"guessduel/internal/metrics"
	"guessduel/internal/rooms"
	"guessduel/internal/wshub"
)

// Hub is the connection side of the gateway. *wshub.Hub implements it.
type Hub interface {
	Send(id, event string, data any) bool
	IsLive(id string) bool
	Join(channel, id string)
	Leave(channel, id string)
	BroadcastChannel(channel, event string, data any)
	Count() int
}

// Recorder receives finalized rounds and finished games. *analytics.Recorder implements it.
type Recorder interface {
	SubmitRound(rr match.RoundResult) bool
	SubmitGame(g analytics.Game) bool
}

type Config struct {
	Hub      Hub
	Queue    *matchmaking.Queue
	Rooms    *rooms.Store
	Images   images.Provider
	Bus      *events.Bus
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	Recorder Recorder

	RevealDelay      time.Duration
	RoomCloseTimeout time.Duration
	TimeBonus        bool
}

type handlerFunc func(ctx context.Context, conn string, data json.RawMessage) error

// Gateway routes inbound events to the queue, the registry and the matches,
// and emits the resulting outbound events.
type Gateway struct {
	cfg      Config
	hub      Hub
	queue    *matchmaking.Queue
	rooms    *rooms.Store
	log      *zap.Logger
	handlers map[string]handlerFunc

	// base context for work started by timers
	ctx context.Context

	timersMu sync.Mutex
	timers   map[string]*time.Timer
}

func New(ctx context.Context, cfg Config) *Gateway {
	g := &Gateway{
		cfg:    cfg,
		hub:    cfg.Hub,
		queue:  cfg.Queue,
		rooms:  cfg.Rooms,
		log:    cfg.Logger,
		ctx:    ctx,
		timers: make(map[string]*time.Timer),
	}
	g.handlers = map[string]handlerFunc{
		EventJoinQueue:          g.joinQueue,
		EventLeaveQueue:         g.leaveQueue,
		EventJoinedGame:         g.joinedGame,
		EventPlayerReady:        g.playerReady,
		EventSubmitGuess:        g.submitGuess,
		EventRequestRematch:     g.requestRematch,
		EventSpectateMatch:      g.spectateMatch,
		EventStopSpectating:     g.stopSpectating,
		EventRequestPlayerStats: g.requestPlayerStats,
	}
	g.rooms.OnRemove(func(r *rooms.Room) {
		g.cancelAdvance(r.Code)
		g.log.Info("room removed", zap.String("session", r.Code))
		g.refreshStats()
	})
	return g
}

// Dispatch handles one inbound frame. Failures are logged and never escape.
func (g *Gateway) Dispatch(ctx context.Context, conn string, raw []byte) {
	var env wshub.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		g.log.Warn("malformed frame", zap.String("conn", conn), zap.Error(err))
		return
	}
	h, ok := g.handlers[env.Event]
	if !ok {
		g.cfg.Metrics.Events.WithLabelValues("unknown").Inc()
		g.log.Debug("unknown event", zap.String("conn", conn), zap.String("event", env.Event))
		return
	}
	g.cfg.Metrics.Events.WithLabelValues(env.Event).Inc()

	defer g.guard(env.Event, conn)
	g.log.Debug("dispatch", zap.String("conn", conn), zap.String("event", env.Event))
	if err := h(ctx, conn, env.Data); err != nil {
		g.log.Warn("event dropped", zap.String("conn", conn), zap.String("event", env.Event), zap.Error(err))
	}
}

func (g *Gateway) guard(event, conn string) {
	if r := recover(); r != nil {
		g.log.Error("handler panic", zap.String("event", event), zap.String("conn", conn), zap.Any("panic", r))
	}
}

// Connect greets a new connection with the current stats.
func (g *Gateway) Connect(conn string) {
	g.cfg.Metrics.Connections.Set(float64(g.hub.Count()))
	g.hub.Send(conn, EventPlayerStats, g.Snapshot())
}

// Disconnect cleans up after a connection has left the hub.
func (g *Gateway) Disconnect(conn string) {
	defer g.guard("disconnect", conn)
	g.cfg.Metrics.Connections.Set(float64(g.hub.Count()))

	g.queue.Dequeue(conn)
	for _, room := range g.rooms.List() {
		room.Match.RemoveSpectator(conn)
		dep, ok := room.Match.Depart(conn)
		if !ok {
			continue
		}
		g.log.Info("player disconnected",
			zap.String("session", room.Code),
			zap.String("conn", conn),
			zap.Bool("notify_partner", dep.NotifyPartner))
		if dep.NotifyPartner {
			g.hub.Send(dep.PartnerConn, EventOpponentDisconnected, nil)
		}
	}
	g.refreshStats()
}

// Snapshot counts waiting connections and players in live matches.
func (g *Gateway) Snapshot() broadcast.Snapshot {
	return broadcast.Snapshot{
		InQueue: g.queue.Len(),
		InMatch: g.rooms.Count() * 2,
	}
}

func (g *Gateway) refreshStats() {
	g.cfg.Metrics.QueueDepth.Set(float64(g.queue.Len()))
	g.cfg.Metrics.ActiveMatches.Set(float64(g.rooms.Count()))
	g.cfg.Bus.NotifyStats()
}

func (g *Gateway) live(conn string) bool {
	return g.hub.IsLive(conn)
}

// scheduleAdvance resolves the session's round after the reveal delay,
// replacing any pending advance for the same session.
func (g *Gateway) scheduleAdvance(session string) {
	g.timersMu.Lock()
	defer g.timersMu.Unlock()
	if t, ok := g.timers[session]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(g.cfg.RevealDelay, func() {
		g.timersMu.Lock()
		if g.timers[session] == t {
			delete(g.timers, session)
		}
		g.timersMu.Unlock()
		g.advance(session)
	})
	g.timers[session] = t
}

func (g *Gateway) cancelAdvance(session string) {
	g.timersMu.Lock()
	defer g.timersMu.Unlock()
	if t, ok := g.timers[session]; ok {
		t.Stop()
		delete(g.timers, session)
	}
}

// Close stops every pending round advance.
func (g *Gateway) Close() {
	g.timersMu.Lock()
	defer g.timersMu.Unlock()
	for session, t := range g.timers {
		t.Stop()
		delete(g.timers, session)
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	return nil
}
