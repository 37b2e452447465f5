package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"go.uber.org/zap"

	"guessduel/internal/match"
	"guessduel/internal/rooms"
)

func (g *Gateway) spectateMatch(_ context.Context, conn string, data json.RawMessage) error {
	var req sessionRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	view, err := g.Spectate(conn, req.SessionID)
	switch {
	case errors.Is(err, rooms.ErrNotFound):
		g.hub.Send(conn, EventSpectateMatchResult, spectateResult{Error: msgSessionNotFound})
		return nil
	case errors.Is(err, match.ErrNotStarted):
		g.hub.Send(conn, EventSpectateMatchResult, spectateResult{Error: msgNotStarted})
		return nil
	case err != nil:
		return err
	}
	g.hub.Send(conn, EventSpectateMatchResult, spectateResult{Success: true, GameState: &view})
	return nil
}

// Spectate registers conn as an observer of session and subscribes it to the
// session's spectator channel.
func (g *Gateway) Spectate(conn, session string) (match.SpectatorView, error) {
	room, err := g.rooms.Get(session)
	if err != nil {
		return match.SpectatorView{}, err
	}
	view, err := room.Match.AddSpectator(conn)
	if err != nil {
		return match.SpectatorView{}, err
	}
	g.hub.Join(spectateChannel(room.Code), conn)
	g.log.Info("spectator joined", zap.String("session", room.Code), zap.String("conn", conn))
	return view, nil
}

func (g *Gateway) stopSpectating(_ context.Context, conn string, data json.RawMessage) error {
	var req sessionRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	g.hub.Leave(spectateChannel(req.SessionID), conn)
	if room, err := g.rooms.Get(req.SessionID); err == nil {
		room.Match.RemoveSpectator(conn)
	}
	return nil
}

// ListActiveMatches summarizes every started match that has not finished its rounds.
func (g *Gateway) ListActiveMatches() []match.Summary {
	out := []match.Summary{}
	for _, room := range g.rooms.List() {
		if room.Match.Active() {
			out = append(out, room.Match.Summary())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}
