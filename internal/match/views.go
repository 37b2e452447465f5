package match

import "guessduel/internal/scoring"

// PlayerView is one player's projection of the match. The answer and the
// partner's guess are only filled in once the round is revealed.
type PlayerView struct {
	SessionID          string              `json:"sessionId"`
	ID                 string              `json:"id"`
	PartnerID          string              `json:"partnerId"`
	CurrentRoundIndex  int                 `json:"currentRoundIndex"`
	Points             int                 `json:"points"`
	PartnerPoints      int                 `json:"partnerPoints"`
	ImageURL           string              `json:"imageUrl"`
	Guess              *scoring.Coordinate `json:"guess"`
	Status             Status              `json:"status"`
	PartnerStatus      Status              `json:"partnerStatus"`
	TimedMode          bool                `json:"timedMode"`
	RoundStartTime     *int64              `json:"roundStartTime,omitempty"`
	OpponentSubmitTime *int64              `json:"opponentSubmitTime,omitempty"`
	Answer             *scoring.Coordinate `json:"answer,omitempty"`
	PartnerGuess       *scoring.Coordinate `json:"partnerGuess,omitempty"`
}

// SpectatorView exposes both guesses and the answer at all times.
type SpectatorView struct {
	SessionID         string              `json:"sessionId"`
	Player1ID         string              `json:"player1Id"`
	Player2ID         string              `json:"player2Id"`
	CurrentRoundIndex int                 `json:"currentRoundIndex"`
	Player1Points     int                 `json:"player1Points"`
	Player2Points     int                 `json:"player2Points"`
	ImageURL          string              `json:"imageUrl"`
	Player1Status     Status              `json:"player1Status"`
	Player2Status     Status              `json:"player2Status"`
	Player1Guess      *scoring.Coordinate `json:"player1Guess"`
	Player2Guess      *scoring.Coordinate `json:"player2Guess"`
	Answer            scoring.Coordinate  `json:"answer"`
}

type Summary struct {
	SessionID         string `json:"sessionId"`
	Player1ID         string `json:"player1Id"`
	Player2ID         string `json:"player2Id"`
	CurrentRoundIndex int    `json:"currentRoundIndex"`
	Started           bool   `json:"started"`
}

func (m *Match) PlayerView(s Slot, reveal bool) PlayerView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playerView(s, reveal)
}

func (m *Match) playerView(s Slot, reveal bool) PlayerView {
	me := m.players[s.index()]
	partner := m.players[s.Other().index()]
	v := PlayerView{
		SessionID:         m.id,
		ID:                me.conn,
		PartnerID:         partner.conn,
		CurrentRoundIndex: m.round,
		Points:            me.points,
		PartnerPoints:     partner.points,
		ImageURL:          m.image.URL,
		Guess:             copyCoord(me.guess),
		Status:            me.status,
		PartnerStatus:     partner.status,
		TimedMode:         m.opts.TimedMode,
	}
	if m.opts.TimedMode {
		v.RoundStartTime = millis(m.roundStart.UnixMilli())
		if !partner.submittedAt.IsZero() {
			v.OpponentSubmitTime = millis(partner.submittedAt.UnixMilli())
		}
	}
	if reveal {
		answer := m.image.Answer
		v.Answer = &answer
		v.PartnerGuess = copyCoord(partner.guess)
	}
	return v
}

func (m *Match) SpectatorView() SpectatorView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spectatorView()
}

func (m *Match) spectatorView() SpectatorView {
	p1, p2 := m.players[0], m.players[1]
	return SpectatorView{
		SessionID:         m.id,
		Player1ID:         p1.conn,
		Player2ID:         p2.conn,
		CurrentRoundIndex: m.round,
		Player1Points:     p1.points,
		Player2Points:     p2.points,
		ImageURL:          m.image.URL,
		Player1Status:     p1.status,
		Player2Status:     p2.status,
		Player1Guess:      copyCoord(p1.guess),
		Player2Guess:      copyCoord(p2.guess),
		Answer:            m.image.Answer,
	}
}

func (m *Match) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Summary{
		SessionID:         m.id,
		Player1ID:         m.players[0].conn,
		Player2ID:         m.players[1].conn,
		CurrentRoundIndex: m.round,
		Started:           m.started,
	}
}

// Active reports whether the match belongs in the spectate picker.
func (m *Match) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started && m.round < Rounds
}

func copyCoord(c *scoring.Coordinate) *scoring.Coordinate {
	if c == nil {
		return nil
	}
	v := *c
	return &v
}

func millis(v int64) *int64 { return &v }
