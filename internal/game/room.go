package game

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// =============================================================================
// ROOM LOCKS
// =============================================================================

// roomLocks hands out one mutex per room. Every read-modify-write against a
// room's stored state runs under that room's mutex; rooms never share one.
// A room keeps its mutex for the life of the process, even after its game
// is deleted: a caller may already hold the old pointer.
type roomLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newRoomLocks() *roomLocks {
	return &roomLocks{locks: make(map[int64]*sync.Mutex)}
}

// getOrCreate retrieves the room's mutex, creating it on first use.
func (r *roomLocks) getOrCreate(roomID int64) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, exists := r.locks[roomID]; exists {
		return l
	}
	l := &sync.Mutex{}
	r.locks[roomID] = l
	log.Debug().Int64("room", roomID).Msg("[roomLocks] created room lock")
	return l
}

// with runs fn while holding the room's mutex.
func (r *roomLocks) with(roomID int64, fn func() error) error {
	l := r.getOrCreate(roomID)
	l.Lock()
	defer l.Unlock()
	return fn()
}
