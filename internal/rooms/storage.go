package rooms

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"guessduel/internal/match"
)

var ErrNotFound = errors.New("game session not found")

// Store is the session registry: session id -> Room. It is the only owner of live matches.
type Store struct {
	mu       sync.Mutex
	rooms    map[string]*Room
	log      *zap.Logger
	onRemove func(*Room)
	now      func() time.Time
}

func NewStore(logger *zap.Logger) *Store {
	return &Store{
		rooms: make(map[string]*Room),
		log:   logger,
		now:   time.Now,
	}
}

// OnRemove registers a hook called after a room leaves the registry.
func (s *Store) OnRemove(fn func(*Room)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRemove = fn
}

// Create reserves a unique session id and builds the match for two connections.
// The registry lock is not held while the first image is fetched.
func (s *Store) Create(ctx context.Context, conn1, conn2 string, opts match.Options) (*Room, error) {
	code, err := s.reserve()
	if err != nil {
		return nil, err
	}

	m, err := match.New(ctx, code, conn1, conn2, opts)
	if err != nil {
		s.mu.Lock()
		delete(s.rooms, code)
		s.mu.Unlock()
		return nil, fmt.Errorf("creating match: %w", err)
	}

	room := &Room{Code: code, Match: m, CreatedAt: s.now()}
	s.mu.Lock()
	s.rooms[code] = room
	s.mu.Unlock()
	return room, nil
}

func (s *Store) reserve() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Try up to 10 times to generate a unique code
	for range 10 {
		code, err := GenerateCode()
		if err != nil {
			return "", fmt.Errorf("generating session id: %w", err)
		}
		if _, exists := s.rooms[code]; exists {
			continue
		}
		s.rooms[code] = nil
		return code, nil
	}
	return "", fmt.Errorf("failed to generate unique session id after 10 attempts")
}

func (s *Store) Get(code string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room := s.rooms[code]
	if room == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	return room, nil
}

// Delete removes a room and cancels its close timer. It reports whether the room existed.
func (s *Store) Delete(code string) bool {
	s.mu.Lock()
	room := s.rooms[code]
	if room == nil {
		s.mu.Unlock()
		return false
	}
	delete(s.rooms, code)
	if room.closeTimer != nil {
		room.closeTimer.Stop()
	}
	hook := s.onRemove
	s.mu.Unlock()

	if hook != nil {
		hook(room)
	}
	return true
}

func (s *Store) List() []*Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		if r != nil {
			list = append(list, r)
		}
	}
	return list
}

func (s *Store) Count() int {
	return len(s.List())
}

// ScheduleClose removes the room after d unless CancelClose is called first.
// A second call replaces the pending timer.
func (s *Store) ScheduleClose(code string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room := s.rooms[code]
	if room == nil {
		return
	}
	if room.closeTimer != nil {
		room.closeTimer.Stop()
	}
	room.closeTimer = time.AfterFunc(d, func() {
		if s.Delete(code) {
			s.log.Info("closed room", zap.String("session", code))
		}
	})
}

func (s *Store) CancelClose(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room := s.rooms[code]
	if room == nil || room.closeTimer == nil {
		return
	}
	room.closeTimer.Stop()
	room.closeTimer = nil
}

// Touch restarts a room's age, used when a rematch begins a new game.
func (s *Store) Touch(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room := s.rooms[code]; room != nil {
		room.CreatedAt = s.now()
	}
}

// SweepStale removes rooms older than ttl and returns how many were removed.
func (s *Store) SweepStale(ttl time.Duration) int {
	s.mu.Lock()
	now := s.now()
	var stale []string
	for code, room := range s.rooms {
		if room != nil && now.Sub(room.CreatedAt) > ttl {
			stale = append(stale, code)
		}
	}
	s.mu.Unlock()
	removed := 0
	for _, code := range stale {
		if s.Delete(code) {
			removed++
		}
	}
	if removed > 0 {
		s.log.Info("swept stale rooms", zap.Int("count", removed))
	}
	return removed
}
