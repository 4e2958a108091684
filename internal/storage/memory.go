package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/scythe504/zombie-mafia-backend/internal"
)

// MemoryStore keeps games in process. Games are cloned on the way in and out
// so callers never share a pointer with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	games  map[int64]*internal.Game
	phases map[int64]internal.Phase
	timers map[int64]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		games:  make(map[int64]*internal.Game),
		phases: make(map[int64]internal.Phase),
		timers: make(map[int64]int),
	}
}

func (s *MemoryStore) SaveGame(_ context.Context, roomID int64, g *internal.Game) error {
	if g == nil {
		return fmt.Errorf("%w: nil game for room %d", internal.ErrStore, roomID)
	}
	s.mu.Lock()
	s.games[roomID] = g.Clone()
	s.mu.Unlock()
	return nil
}

// SaveStep stores the game, phase and timer under one lock.
func (s *MemoryStore) SaveStep(_ context.Context, roomID int64, g *internal.Game, phase internal.Phase, seconds int) error {
	if g == nil {
		return fmt.Errorf("%w: nil game for room %d", internal.ErrStore, roomID)
	}
	s.mu.Lock()
	s.games[roomID] = g.Clone()
	s.phases[roomID] = phase
	s.timers[roomID] = seconds
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) LoadGame(_ context.Context, roomID int64) (*internal.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: room %d", internal.ErrGameNotFound, roomID)
	}
	return g.Clone(), nil
}

func (s *MemoryStore) DeleteGame(_ context.Context, roomID int64) error {
	s.mu.Lock()
	delete(s.games, roomID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) SavePhase(_ context.Context, roomID int64, phase internal.Phase) error {
	s.mu.Lock()
	s.phases[roomID] = phase
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetPhase(_ context.Context, roomID int64) (internal.Phase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	phase, ok := s.phases[roomID]
	if !ok {
		return "", fmt.Errorf("%w: room %d", internal.ErrPhaseNotFound, roomID)
	}
	return phase, nil
}

func (s *MemoryStore) SaveTimer(_ context.Context, roomID int64, seconds int) error {
	s.mu.Lock()
	s.timers[roomID] = seconds
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetTimer(_ context.Context, roomID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.timers[roomID]
	if !ok {
		return 0, fmt.Errorf("%w: room %d", internal.ErrTimerNotFound, roomID)
	}
	return t, nil
}

func (s *MemoryStore) DecrementTimer(_ context.Context, roomID int64, by int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[roomID]
	if !ok {
		return 0, fmt.Errorf("%w: room %d", internal.ErrTimerNotFound, roomID)
	}
	t -= by
	s.timers[roomID] = t
	return t, nil
}

// DeleteSeq drops the phase and timer pair.
func (s *MemoryStore) DeleteSeq(_ context.Context, roomID int64) error {
	s.mu.Lock()
	delete(s.phases, roomID)
	delete(s.timers, roomID)
	s.mu.Unlock()
	return nil
}
