package match

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"guessduel/internal/images"
	"guessduel/internal/scoring"
)

type Status string

const (
	StatusWaiting  = Status("waiting")
	StatusReady    = Status("ready")
	StatusActive   = Status("active")
	StatusInactive = Status("inactive")
)

// Phase is the whole-match state, derived from started, the round index and conclusion.
type Phase string

const (
	PhasePending    = Phase("pending")
	PhaseInProgress = Phase("in_progress")
	PhaseFinalRound = Phase("final_round")
	PhaseConcluded  = Phase("concluded")
)

const (
	Rounds     = 5
	FinalRound = Rounds - 1

	maxPickAttempts = 20
)

// Slot is a logical player position. It stays fixed while the connection behind it changes.
type Slot int

const (
	NoSlot  Slot = 0
	Player1 Slot = 1
	Player2 Slot = 2
)

func (s Slot) Other() Slot {
	if s == Player1 {
		return Player2
	}
	return Player1
}

func (s Slot) index() int { return int(s) - 1 }

var (
	ErrIdentityMismatch = errors.New("connection does not belong to this match")
	ErrNotStarted       = errors.New("match has not started")
	ErrAlreadyGuessed   = errors.New("guess already submitted this round")
	ErrRoundClosed      = errors.New("round already resolved")
	ErrRoundOpen        = errors.New("round still waiting for guesses")
	ErrNoFreshImage     = errors.New("could not pick a new image")
)

// LiveFunc reports whether a connection handle still has a live channel.
type LiveFunc func(conn string) bool

type Options struct {
	Images    images.Provider
	Modifier  string
	TimedMode bool
	// TimeBonus adds the first-submitter bonus to timed-mode scores.
	TimeBonus bool
	Now       func() time.Time
}

type player struct {
	conn        string
	status      Status
	points      int
	guess       *scoring.Coordinate
	submittedAt time.Time
	rematch     bool
}

// Match is one duel between two slots. All methods are safe for concurrent use;
// operations on the same match are serialized, including image fetches.
type Match struct {
	mu   sync.Mutex
	id   string
	opts Options

	players    [2]player
	round      int
	image      images.Image
	previous   []string
	started    bool
	concluded  bool
	roundStart time.Time
	createdAt  time.Time
	history    []RoundResult
	spectators map[string]struct{}
}

// New creates a match between two connections and loads its first image.
func New(ctx context.Context, id, conn1, conn2 string, opts Options) (*Match, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	img, err := opts.Images.RandomApproved(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("loading first image: %w", err)
	}
	now := opts.Now()
	return &Match{
		id:   id,
		opts: opts,
		players: [2]player{
			{conn: conn1, status: StatusWaiting},
			{conn: conn2, status: StatusWaiting},
		},
		image:      img,
		roundStart: now,
		createdAt:  now,
		spectators: make(map[string]struct{}),
	}, nil
}

func (m *Match) ID() string { return m.id }

func (m *Match) Modifier() string { return m.opts.Modifier }

func (m *Match) TimedMode() bool { return m.opts.TimedMode }

func (m *Match) CreatedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createdAt
}

func (m *Match) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

func (m *Match) Round() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.round
}

func (m *Match) Concluded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.concluded
}

func (m *Match) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case !m.started:
		return PhasePending
	case m.concluded:
		return PhaseConcluded
	case m.round >= FinalRound:
		return PhaseFinalRound
	default:
		return PhaseInProgress
	}
}

func (m *Match) Points() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.players[0].points, m.players[1].points
}

func (m *Match) Conn(s Slot) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.players[s.index()].conn
}

func (m *Match) Status(s Slot) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.players[s.index()].status
}

func (m *Match) slotOf(conn string) Slot {
	for i := range m.players {
		if m.players[i].conn == conn {
			return Slot(i + 1)
		}
	}
	return NoSlot
}

// Resolution is the outcome of mapping an inbound connection to a slot.
type Resolution struct {
	Slot Slot
	// ReplacedConn is the stale handle overwritten by reconnection recovery, if any.
	ReplacedConn string
}

func (r Resolution) Recovered() bool { return r.ReplacedConn != "" }

// resolve maps conn to a slot. A conn matching neither slot takes over the first
// slot whose stored handle is no longer live and whose player is not READY.
func (m *Match) resolve(conn string, live LiveFunc) (Resolution, error) {
	if s := m.slotOf(conn); s != NoSlot {
		return Resolution{Slot: s}, nil
	}
	for i := range m.players {
		p := &m.players[i]
		if live(p.conn) || p.status == StatusReady {
			continue
		}
		old := p.conn
		p.conn = conn
		return Resolution{Slot: Slot(i + 1), ReplacedConn: old}, nil
	}
	return Resolution{}, fmt.Errorf("%w: got %s, want %s or %s",
		ErrIdentityMismatch, conn, m.players[0].conn, m.players[1].conn)
}

// MarkActive records that the player behind conn has loaded the game view.
func (m *Match) MarkActive(conn string, live LiveFunc) (Resolution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, err := m.resolve(conn, live)
	if err != nil {
		return res, err
	}
	m.players[res.Slot.index()].status = StatusActive
	return res, nil
}

type ReadyResult struct {
	Resolution
	Conn        string
	PartnerConn string
	// Started is set on the call that moved the match out of PENDING.
	Started bool
	Views   [2]PlayerView
	// PartnerAlreadyReady means the caller should also be told its partner is ready.
	PartnerAlreadyReady bool
}

func (m *Match) MarkReady(conn string, live LiveFunc) (ReadyResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, err := m.resolve(conn, live)
	if err != nil {
		return ReadyResult{}, err
	}
	me := &m.players[res.Slot.index()]
	partner := &m.players[res.Slot.Other().index()]
	me.status = StatusReady

	out := ReadyResult{Resolution: res, Conn: me.conn, PartnerConn: partner.conn}
	if partner.status == StatusReady && !m.started {
		m.started = true
		m.roundStart = m.opts.Now()
		out.Started = true
		out.Views = [2]PlayerView{m.playerView(Player1, false), m.playerView(Player2, false)}
		return out, nil
	}
	out.PartnerAlreadyReady = partner.status == StatusReady
	return out, nil
}

// RoundPlayer is one player's part of a finalized round.
type RoundPlayer struct {
	Conn         string
	Guess        scoring.Coordinate
	Distance     float64
	Points       int
	ResponseTime time.Duration
}

// RoundResult describes a finalized round.
type RoundResult struct {
	SessionID string
	Index     int
	Image     images.Image
	Players   [2]RoundPlayer
	PlayedAt  time.Time
}

type GuessResult struct {
	Resolution
	Conn        string
	PartnerConn string
	// Provisional is the submitter's running total including this guess.
	Provisional int
	TimeBonus   int
	TimedMode   bool
	SubmittedAt time.Time

	// RoundOver is set once both guesses are in and points are final.
	RoundOver bool
	Final     bool
	Reveals   [2]PlayerView
	Round     RoundResult

	Spectator SpectatorView
}

func (m *Match) SubmitGuess(conn string, guess scoring.Coordinate, live LiveFunc) (GuessResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, err := m.resolve(conn, live)
	if err != nil {
		return GuessResult{}, err
	}
	switch {
	case !m.started:
		return GuessResult{}, ErrNotStarted
	case m.concluded, m.bothGuessed():
		return GuessResult{}, ErrRoundClosed
	}

	me := &m.players[res.Slot.index()]
	partner := &m.players[res.Slot.Other().index()]
	if me.guess != nil {
		return GuessResult{}, ErrAlreadyGuessed
	}

	now := m.opts.Now()
	g := guess
	me.guess = &g
	me.submittedAt = now

	bonus := 0
	if m.opts.TimedMode && m.opts.TimeBonus {
		bonus = scoring.TimeBonus(now, partner.submittedAt)
	}
	out := GuessResult{
		Resolution:  res,
		Conn:        me.conn,
		PartnerConn: partner.conn,
		Provisional: me.points + scoring.Score(guess, m.image.Answer) + bonus,
		TimeBonus:   bonus,
		TimedMode:   m.opts.TimedMode,
		SubmittedAt: now,
	}

	if m.bothGuessed() {
		out.Round = m.finalizeRound(now)
		out.RoundOver = true
		out.Final = m.round >= FinalRound
		out.Reveals = [2]PlayerView{m.playerView(Player1, true), m.playerView(Player2, true)}
	}
	out.Spectator = m.spectatorView()
	return out, nil
}

func (m *Match) bothGuessed() bool {
	return m.players[0].guess != nil && m.players[1].guess != nil
}

func (m *Match) finalizeRound(now time.Time) RoundResult {
	rr := RoundResult{SessionID: m.id, Index: m.round, Image: m.image, PlayedAt: now}
	for i := range m.players {
		p := &m.players[i]
		other := &m.players[1-i]
		dist := scoring.Distance(*p.guess, m.image.Answer)
		pts := scoring.ScoreDistance(dist)
		if m.opts.TimedMode && m.opts.TimeBonus {
			pts += scoring.TimeBonus(p.submittedAt, other.submittedAt)
		}
		p.points += pts

		var rt time.Duration
		if !m.roundStart.IsZero() {
			rt = p.submittedAt.Sub(m.roundStart)
		}
		rr.Players[i] = RoundPlayer{Conn: p.conn, Guess: *p.guess, Distance: dist, Points: pts, ResponseTime: rt}
	}
	m.history = append(m.history, rr)
	return rr
}

// GameOver is the terminal outcome. Winner is empty on a tie.
type GameOver struct {
	Winner        string
	Tie           bool
	WinnerSlot    Slot
	Conns         [2]string
	Player1Points int
	Player2Points int
	Rounds        []RoundResult
}

type AdvanceResult struct {
	GameOver  *GameOver
	Views     [2]PlayerView
	Spectator SpectatorView
}

// Advance resolves a finished round: the final round concludes the match,
// any other round moves to the next image.
func (m *Match) Advance(ctx context.Context) (AdvanceResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.concluded {
		return AdvanceResult{}, ErrRoundClosed
	}
	if !m.bothGuessed() {
		return AdvanceResult{}, ErrRoundOpen
	}

	if m.round >= FinalRound {
		g := m.conclude()
		return AdvanceResult{GameOver: &g}, nil
	}

	if err := m.nextRound(ctx); err != nil {
		return AdvanceResult{}, err
	}
	return AdvanceResult{
		Views:     [2]PlayerView{m.playerView(Player1, false), m.playerView(Player2, false)},
		Spectator: m.spectatorView(),
	}, nil
}

func (m *Match) conclude() GameOver {
	m.concluded = true
	p1, p2 := m.players[0], m.players[1]
	g := GameOver{
		Conns:         [2]string{p1.conn, p2.conn},
		Player1Points: p1.points,
		Player2Points: p2.points,
		Rounds:        slices.Clone(m.history),
	}
	switch {
	case p1.points > p2.points:
		g.Winner, g.WinnerSlot = p1.conn, Player1
	case p2.points > p1.points:
		g.Winner, g.WinnerSlot = p2.conn, Player2
	default:
		g.Tie = true
	}
	return g
}

// nextRound records the current image as seen, then picks a fresh one. On failure the
// round index does not move.
func (m *Match) nextRound(ctx context.Context) error {
	if !slices.Contains(m.previous, m.image.URL) {
		m.previous = append(m.previous, m.image.URL)
	}
	img, err := m.pickFresh(ctx)
	if err != nil {
		return err
	}
	m.round++
	m.image = img
	m.clearRound()
	return nil
}

func (m *Match) clearRound() {
	for i := range m.players {
		m.players[i].guess = nil
		m.players[i].submittedAt = time.Time{}
	}
	m.roundStart = m.opts.Now()
}

func (m *Match) pickFresh(ctx context.Context) (images.Image, error) {
	total, err := m.opts.Images.CountApproved(ctx)
	if err != nil {
		return images.Image{}, fmt.Errorf("counting approved images: %w", err)
	}
	if total == 0 {
		return images.Image{}, images.ErrNoApprovedImages
	}
	if len(m.previous) >= total {
		m.previous = m.previous[:0]
	}

	var (
		last    images.Image
		haveAny bool
		lastErr error
	)
	for range maxPickAttempts {
		img, err := m.opts.Images.RandomApproved(ctx, m.previous)
		if errors.Is(err, images.ErrNoApprovedImages) {
			if len(m.previous) == 0 {
				return images.Image{}, err
			}
			// Every remaining image was already seen; start a new cycle.
			m.previous = m.previous[:0]
			continue
		}
		if err != nil {
			lastErr = err
			continue
		}
		if slices.Contains(m.previous, img.URL) {
			last, haveAny = img, true
			continue
		}
		return img, nil
	}
	// A repeat beats stalling the match.
	if haveAny {
		return last, nil
	}
	if lastErr != nil {
		return images.Image{}, fmt.Errorf("%w: %w", ErrNoFreshImage, lastErr)
	}
	return images.Image{}, ErrNoFreshImage
}

// RematchStatus is sent to both players after every rematch request.
type RematchStatus struct {
	Player1Requested bool `json:"player1Requested"`
	Player2Requested bool `json:"player2Requested"`
}

type RematchResult struct {
	Slot   Slot
	Status RematchStatus
	Conns  [2]string
	// Reset is set when both players asked and the match restarted at round 0.
	Reset     bool
	Views     [2]PlayerView
	Spectator SpectatorView
}

func (m *Match) RequestRematch(ctx context.Context, conn string) (RematchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.slotOf(conn)
	if s == NoSlot {
		return RematchResult{}, fmt.Errorf("%w: got %s", ErrIdentityMismatch, conn)
	}
	m.players[s.index()].rematch = true

	out := RematchResult{
		Slot:   s,
		Status: m.rematchStatus(),
		Conns:  [2]string{m.players[0].conn, m.players[1].conn},
	}
	if !m.players[0].rematch || !m.players[1].rematch {
		return out, nil
	}

	if err := m.resetForRematch(ctx); err != nil {
		return out, fmt.Errorf("resetting for rematch: %w", err)
	}
	out.Reset = true
	out.Views = [2]PlayerView{m.playerView(Player1, false), m.playerView(Player2, false)}
	out.Spectator = m.spectatorView()
	return out, nil
}

func (m *Match) resetForRematch(ctx context.Context) error {
	img, err := m.opts.Images.RandomApproved(ctx, nil)
	if err != nil {
		return err
	}
	m.image = img
	m.previous = m.previous[:0]
	m.round = 0
	m.concluded = false
	m.history = nil
	for i := range m.players {
		p := &m.players[i]
		p.points = 0
		p.rematch = false
		p.status = StatusWaiting
	}
	m.clearRound()
	return nil
}

func (m *Match) rematchStatus() RematchStatus {
	return RematchStatus{Player1Requested: m.players[0].rematch, Player2Requested: m.players[1].rematch}
}

func (m *Match) RematchPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.players[0].rematch || m.players[1].rematch
}

// Departure describes a player connection leaving the match.
type Departure struct {
	Slot        Slot
	PartnerConn string
	// NotifyPartner is set while a rematch is being negotiated or once the final round is reached.
	NotifyPartner bool
}

// Depart reports what a disconnect of conn means for this match. It returns
// false when conn is not one of the players.
func (m *Match) Depart(conn string) (Departure, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.slotOf(conn)
	if s == NoSlot {
		return Departure{}, false
	}
	rematching := m.players[0].rematch || m.players[1].rematch
	return Departure{
		Slot:          s,
		PartnerConn:   m.players[s.Other().index()].conn,
		NotifyPartner: rematching || m.round >= FinalRound,
	}, true
}

func (m *Match) AddSpectator(conn string) (SpectatorView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return SpectatorView{}, ErrNotStarted
	}
	m.spectators[conn] = struct{}{}
	return m.spectatorView(), nil
}

func (m *Match) RemoveSpectator(conn string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.spectators, conn)
}

func (m *Match) Spectators() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.spectators))
	for c := range m.spectators {
		out = append(out, c)
	}
	return out
}
