package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"guessduel/internal/analytics"
	"guessduel/internal/match"
	"guessduel/internal/matchmaking"
	"guessduel/internal/metrics"
	"guessduel/internal/rooms"
	"guessduel/internal/scoring"
)

func (g *Gateway) joinQueue(ctx context.Context, conn string, data json.RawMessage) error {
	var req joinQueueRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if !g.queue.Enqueue(conn, req.Modifier) {
		g.log.Debug("already queued", zap.String("conn", conn))
		return nil
	}
	g.log.Info("joined queue", zap.String("conn", conn), zap.String("modifier", req.Modifier))

	paired := false
	for _, p := range g.queue.TryPairAll() {
		if p.First.Conn == conn || p.Second.Conn == conn {
			paired = true
		}
		g.startMatch(ctx, p)
	}
	if !paired {
		g.hub.Send(conn, EventQueueJoined, queueJoined{Message: msgWaiting})
	}
	g.refreshStats()
	return nil
}

func (g *Gateway) leaveQueue(_ context.Context, conn string, _ json.RawMessage) error {
	if g.queue.Dequeue(conn) {
		g.log.Info("left queue", zap.String("conn", conn))
		g.refreshStats()
	}
	return nil
}

func (g *Gateway) startMatch(ctx context.Context, p matchmaking.Pair) {
	room, err := g.rooms.Create(ctx, p.First.Conn, p.Second.Conn, match.Options{
		Images:    g.cfg.Images,
		Modifier:  p.Modifier(),
		TimedMode: p.Modifier() == matchmaking.ModifierTimed,
		TimeBonus: g.cfg.TimeBonus,
	})
	if err != nil {
		g.log.Error("creating match",
			zap.String("player1", p.First.Conn),
			zap.String("player2", p.Second.Conn),
			zap.Error(err))
		return
	}
	g.cfg.Metrics.MatchesCreated.Inc()
	g.log.Info("paired players",
		zap.String("session", room.Code),
		zap.String("player1", p.First.Conn),
		zap.String("player2", p.Second.Conn),
		zap.String("modifier", p.Modifier()))

	g.hub.Send(p.First.Conn, EventQueueMatched, queueMatched{SessionID: room.Code, PartnerID: p.Second.Conn})
	g.hub.Send(p.Second.Conn, EventQueueMatched, queueMatched{SessionID: room.Code, PartnerID: p.First.Conn})
}

func (g *Gateway) logRecovery(session string, res match.Resolution, conn string) {
	if res.Recovered() {
		g.log.Info("player reconnected",
			zap.String("session", session),
			zap.Int("slot", int(res.Slot)),
			zap.String("old_conn", res.ReplacedConn),
			zap.String("conn", conn))
	}
}

func (g *Gateway) joinedGame(_ context.Context, conn string, data json.RawMessage) error {
	var req sessionRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	room, err := g.rooms.Get(req.SessionID)
	if err != nil {
		return err
	}
	res, err := room.Match.MarkActive(conn, g.live)
	if err != nil {
		return fmt.Errorf("joinedGame (claimed socket %q): %w", req.SocketID, err)
	}
	g.logRecovery(room.Code, res, conn)
	return nil
}

func (g *Gateway) playerReady(_ context.Context, conn string, data json.RawMessage) error {
	var req sessionRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	room, err := g.rooms.Get(req.SessionID)
	if err != nil {
		return err
	}
	res, err := room.Match.MarkReady(conn, g.live)
	if err != nil {
		return err
	}
	g.logRecovery(room.Code, res.Resolution, conn)

	if res.Started {
		g.log.Info("match started", zap.String("session", room.Code))
		for _, v := range res.Views {
			g.hub.Send(v.ID, EventRoundStart, v)
		}
		return nil
	}
	g.hub.Send(res.PartnerConn, EventPartnerReady, partnerReady{Ready: true})
	if res.PartnerAlreadyReady {
		g.hub.Send(res.Conn, EventPartnerReady, partnerReady{Ready: true})
	}
	return nil
}

func (g *Gateway) submitGuess(_ context.Context, conn string, data json.RawMessage) error {
	var req guessRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	room, err := g.rooms.Get(req.SessionID)
	if err != nil {
		return err
	}
	res, err := room.Match.SubmitGuess(conn, scoring.Coordinate{X: req.X, Y: req.Y}, g.live)
	switch {
	case errors.Is(err, match.ErrAlreadyGuessed), errors.Is(err, match.ErrRoundClosed), errors.Is(err, match.ErrNotStarted):
		g.log.Debug("guess ignored", zap.String("session", room.Code), zap.String("conn", conn), zap.Error(err))
		return nil
	case err != nil:
		return err
	}
	g.logRecovery(room.Code, res.Resolution, conn)

	own := points{Points: res.Provisional}
	if res.TimeBonus > 0 {
		bonus := res.TimeBonus
		own.TimeBonus = &bonus
	}
	g.hub.Send(res.Conn, EventPlayerPoints, own)
	g.hub.Send(res.PartnerConn, EventPartnerPoints, points{Points: res.Provisional})

	var submitted partnerSubmitted
	if res.TimedMode {
		at := res.SubmittedAt.UnixMilli()
		submitted.SubmittedAt = &at
	}
	g.hub.Send(res.PartnerConn, EventPartnerSubmitted, submitted)
	g.hub.BroadcastChannel(spectateChannel(room.Code), EventSpectatorUpdate, res.Spectator)

	if !res.RoundOver {
		return nil
	}
	g.cfg.Metrics.RoundsCompleted.Inc()
	for _, v := range res.Reveals {
		g.hub.Send(v.ID, EventRoundOver, v)
	}
	g.hub.BroadcastChannel(spectateChannel(room.Code), EventSpectatorRoundOver, res.Spectator)
	if g.cfg.Recorder != nil {
		g.cfg.Recorder.SubmitRound(res.Round)
	}
	g.scheduleAdvance(room.Code)
	return nil
}

// advance runs when the reveal delay of a finished round has elapsed.
func (g *Gateway) advance(session string) {
	defer g.guard("advance", session)

	room, err := g.rooms.Get(session)
	if err != nil {
		g.log.Debug("advance for closed room", zap.String("session", session))
		return
	}
	res, err := room.Match.Advance(g.ctx)
	switch {
	case errors.Is(err, match.ErrRoundClosed), errors.Is(err, match.ErrRoundOpen):
		g.log.Debug("nothing to advance", zap.String("session", session), zap.Error(err))
		return
	case err != nil:
		g.log.Error("round advance stalled", zap.String("session", session), zap.Error(err))
		return
	}

	if res.GameOver != nil {
		g.finish(room, *res.GameOver)
		return
	}
	for _, v := range res.Views {
		g.hub.Send(v.ID, EventRoundStart, v)
	}
	g.hub.BroadcastChannel(spectateChannel(session), EventSpectatorRoundStart, res.Spectator)
}

func (g *Gateway) finish(room *rooms.Room, over match.GameOver) {
	outcome := metrics.OutcomeWin
	if over.Tie {
		outcome = metrics.OutcomeTie
	}
	g.cfg.Metrics.GamesFinished.WithLabelValues(outcome).Inc()
	g.log.Info("game over",
		zap.String("session", room.Code),
		zap.String("winner", over.Winner),
		zap.Bool("tie", over.Tie),
		zap.Int("player1_points", over.Player1Points),
		zap.Int("player2_points", over.Player2Points))

	msg := gameOver{Winner: over.Winner, Tie: over.Tie}
	for _, c := range over.Conns {
		g.hub.Send(c, EventGameOver, msg)
	}
	if g.cfg.Recorder != nil {
		g.cfg.Recorder.SubmitGame(analytics.Game{
			SessionID:   room.Code,
			Modifier:    room.Match.Modifier(),
			TimedMode:   room.Match.TimedMode(),
			Over:        over,
			CompletedAt: time.Now(),
		})
	}
	g.rooms.ScheduleClose(room.Code, g.cfg.RoomCloseTimeout)
}

func (g *Gateway) requestRematch(ctx context.Context, conn string, data json.RawMessage) error {
	var req sessionRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	room, err := g.rooms.Get(req.SessionID)
	if err != nil {
		return err
	}
	res, err := room.Match.RequestRematch(ctx, conn)
	if errors.Is(err, match.ErrIdentityMismatch) {
		return err
	}
	for _, c := range res.Conns {
		g.hub.Send(c, EventRematchStatus, res.Status)
	}
	if err != nil {
		g.log.Error("rematch reset failed", zap.String("session", room.Code), zap.Error(err))
		return nil
	}
	if !res.Reset {
		return nil
	}

	g.cancelAdvance(room.Code)
	g.rooms.CancelClose(room.Code)
	g.rooms.Touch(room.Code)
	g.log.Info("rematch starting", zap.String("session", room.Code))
	for _, c := range res.Conns {
		g.hub.Send(c, EventRematchStarting, nil)
	}
	for _, v := range res.Views {
		g.hub.Send(v.ID, EventRoundStart, v)
	}
	g.hub.BroadcastChannel(spectateChannel(room.Code), EventSpectatorRoundStart, res.Spectator)
	return nil
}

func (g *Gateway) requestPlayerStats(_ context.Context, conn string, _ json.RawMessage) error {
	g.hub.Send(conn, EventPlayerStats, g.Snapshot())
	return nil
}
