package lobby

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/scythe504/zombie-mafia-backend/internal"
	"github.com/scythe504/zombie-mafia-backend/internal/utils"
)

type Publisher interface {
	Publish(topic string, payload string) error
}

// StartFunc is called once every participant of a room is ready.
type StartFunc func(ctx context.Context, roomID int64) error

type room struct {
	id           int64
	participants []internal.Participant
	ready        map[int64]bool
	option       internal.GameOption
	started      bool
}

// Lobby is the in-memory room directory. A member sits in at most one room.
type Lobby struct {
	mu         sync.Mutex
	rooms      map[int64]*room
	memberRoom map[int64]int64

	publisher  Publisher
	option     internal.GameOption
	minPlayers int
	onAllReady StartFunc
}

func New(publisher Publisher, option internal.GameOption, minPlayers int) *Lobby {
	return &Lobby{
		rooms:      make(map[int64]*room),
		memberRoom: make(map[int64]int64),
		publisher:  publisher,
		option:     option,
		minPlayers: minPlayers,
	}
}

// OnAllReady sets what happens when a room is fully ready.
func (l *Lobby) OnAllReady(fn StartFunc) {
	l.mu.Lock()
	l.onAllReady = fn
	l.mu.Unlock()
}

// =============================================================================
// LOBBY ACTIONS
// =============================================================================

// Join puts memberID into roomID, creating the room on first join.
func (l *Lobby) Join(ctx context.Context, roomID, memberID int64, nickname string) error {
	l.mu.Lock()
	if current, ok := l.memberRoom[memberID]; ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: member %d is in room %d", internal.ErrAlreadyInRoom, memberID, current)
	}
	r, ok := l.rooms[roomID]
	if !ok {
		r = &room{id: roomID, ready: make(map[int64]bool), option: l.option}
		l.rooms[roomID] = r
	}
	if r.started {
		l.mu.Unlock()
		return internal.ErrGameAlreadyStarted
	}
	r.participants = append(r.participants, internal.Participant{MemberID: memberID, Nickname: nickname})
	l.memberRoom[memberID] = roomID
	update := r.snapshot()
	l.mu.Unlock()

	log.Info().Int64("room", roomID).Int64("member", memberID).Msg("[Join] member joined")
	l.broadcast(update)
	return nil
}

// Ready marks memberID ready. When the room is full of ready members and
// large enough, the start callback runs and started is true.
func (l *Lobby) Ready(ctx context.Context, roomID, memberID int64) (started bool, err error) {
	l.mu.Lock()
	r, ok := l.rooms[roomID]
	if !ok {
		l.mu.Unlock()
		return false, fmt.Errorf("%w: %d", internal.ErrRoomNotFound, roomID)
	}
	if !r.has(memberID) {
		l.mu.Unlock()
		return false, fmt.Errorf("%w: %d", internal.ErrPlayerNotFound, memberID)
	}
	if r.started {
		l.mu.Unlock()
		return false, internal.ErrGameAlreadyStarted
	}
	if r.ready[memberID] {
		l.mu.Unlock()
		return false, internal.ErrAlreadyReady
	}
	r.ready[memberID] = true

	allReady := len(r.ready) == len(r.participants) && len(r.participants) >= l.minPlayers
	if allReady {
		r.started = true
	}
	update := r.snapshot()
	start := l.onAllReady
	l.mu.Unlock()

	l.broadcast(update)
	if !allReady || start == nil {
		return false, nil
	}

	log.Info().Int64("room", roomID).Int("players", len(update.Participants)).Msg("[Ready] everyone ready, starting game")
	if err := start(ctx, roomID); err != nil {
		l.mu.Lock()
		r.started = false
		l.mu.Unlock()
		return false, err
	}
	return true, nil
}

// Leave takes memberID out of roomID. The last member out closes the room.
func (l *Lobby) Leave(ctx context.Context, roomID, memberID int64) error {
	l.mu.Lock()
	r, ok := l.rooms[roomID]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: %d", internal.ErrRoomNotFound, roomID)
	}
	i := slices.IndexFunc(r.participants, func(p internal.Participant) bool { return p.MemberID == memberID })
	if i < 0 {
		l.mu.Unlock()
		return fmt.Errorf("%w: %d", internal.ErrPlayerNotFound, memberID)
	}
	r.participants = slices.Delete(r.participants, i, i+1)
	delete(r.ready, memberID)
	delete(l.memberRoom, memberID)
	empty := len(r.participants) == 0
	if empty {
		delete(l.rooms, roomID)
	}
	update := r.snapshot()
	l.mu.Unlock()

	log.Info().Int64("room", roomID).Int64("member", memberID).Bool("closed", empty).Msg("[Leave] member left")
	if !empty {
		l.broadcast(update)
	}
	return nil
}

// Reset puts a room back in the lobby state after its game is deleted.
func (l *Lobby) Reset(roomID int64) {
	l.mu.Lock()
	r, ok := l.rooms[roomID]
	if ok {
		r.started = false
		clear(r.ready)
	}
	l.mu.Unlock()

	if ok {
		log.Info().Int64("room", roomID).Msg("[Reset] room back in lobby")
	}
}

// =============================================================================
// ROOM DIRECTORY
// =============================================================================

func (l *Lobby) Participants(_ context.Context, roomID int64) ([]internal.Participant, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", internal.ErrRoomNotFound, roomID)
	}
	return slices.Clone(r.participants), nil
}

func (l *Lobby) GameOption(_ context.Context, roomID int64) (internal.GameOption, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.rooms[roomID]
	if !ok {
		return internal.GameOption{}, fmt.Errorf("%w: %d", internal.ErrRoomNotFound, roomID)
	}
	return r.option, nil
}

func (r *room) has(memberID int64) bool {
	return slices.ContainsFunc(r.participants, func(p internal.Participant) bool { return p.MemberID == memberID })
}

func (r *room) snapshot() internal.LobbyUpdateData {
	return internal.LobbyUpdateData{
		RoomID:       r.id,
		Participants: slices.Clone(r.participants),
		ReadyCount:   len(r.ready),
	}
}

func (l *Lobby) broadcast(update internal.LobbyUpdateData) {
	payload, err := json.Marshal(internal.Message[internal.LobbyUpdateData]{
		Type: internal.MsgLobbyUpdate,
		Data: update,
	})
	if err != nil {
		log.Error().Err(err).Int64("room", update.RoomID).Msg("[lobby] failed to marshal update")
		return
	}
	if err := l.publisher.Publish(utils.SystemTopic(update.RoomID), string(payload)); err != nil {
		log.Warn().Err(err).Int64("room", update.RoomID).Msg("[lobby] failed to publish update")
	}
}
