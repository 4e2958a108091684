package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scythe504/zombie-mafia-backend/internal"
	"github.com/scythe504/zombie-mafia-backend/internal/utils"
)

// =============================================================================
// GAME LIFECYCLE
// =============================================================================

// Manager is the entry point for everything outside the core. It owns the
// per-room locks and the scheduler; build one per process.
type Manager struct {
	dir       RoomDirectory
	store     Store
	publisher Publisher
	voice     VoiceProvisioner
	locks     *roomLocks
	scheduler *Scheduler

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewManager wires the core. A nil rng is seeded from the clock.
func NewManager(dir RoomDirectory, store Store, publisher Publisher, voice VoiceProvisioner, rng *rand.Rand) *Manager {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	locks := newRoomLocks()
	return &Manager{
		dir:       dir,
		store:     store,
		publisher: publisher,
		voice:     voice,
		locks:     locks,
		scheduler: NewScheduler(store, publisher, locks),
		rng:       rng,
	}
}

// SetTicker replaces the scheduler's tick source. Call it before starting
// any game.
func (m *Manager) SetTicker(fn TickerFunc) {
	m.scheduler.newTicker = fn
}

func (m *Manager) Scheduler() *Scheduler {
	return m.scheduler
}

// StartGame builds the room's game from its lobby, deals roles, sets the
// opening phase and starts the tick loop. Voice provisioning happens last
// and never fails the start.
func (m *Manager) StartGame(ctx context.Context, roomID int64) (*internal.Game, error) {
	var started *internal.Game
	var step Step

	err := m.locks.with(roomID, func() error {
		if _, err := m.store.LoadGame(ctx, roomID); err == nil {
			return internal.ErrGameAlreadyStarted
		} else if !errors.Is(err, internal.ErrGameNotFound) {
			return err
		}

		participants, err := m.dir.Participants(ctx, roomID)
		if err != nil {
			return err
		}
		option, err := m.dir.GameOption(ctx, roomID)
		if err != nil {
			return err
		}
		if err := option.Validate(); err != nil {
			return err
		}

		g := internal.NewGame(roomID, option)
		for _, p := range participants {
			g.AddPlayer(p.MemberID, p.Nickname)
		}

		m.rngMu.Lock()
		roles, err := AssignRoles(g.MemberIDs(), option, m.rng)
		m.rngMu.Unlock()
		if err != nil {
			return err
		}
		if err := g.ApplyRoles(roles); err != nil {
			return err
		}
		if err := g.CheckInvariants(); err != nil {
			return err
		}

		step = InitialStep(option)
		applyEffect(g, step.Effect)
		g.StartedAt = time.Now()

		if err := m.store.SaveStep(ctx, roomID, g, step.To, step.Seconds); err != nil {
			return err
		}
		started = g
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Int64("room", roomID).Msg("[StartGame] could not start game")
		return nil, err
	}

	publish(m.publisher, systemTopic(roomID), internal.Message[internal.GameStartedData]{
		Type: internal.MsgGameStarted,
		Data: internal.GameStartedData{
			RoomID:  roomID,
			Phase:   step.To,
			Time:    step.Seconds,
			Players: started.PublicPlayers(),
		},
	})
	publish(m.publisher, systemTopic(roomID), permissionsMessage(started, step.To))

	sch := m.scheduler.start(roomID)

	// A DeleteGame that ran after the records were written but before the
	// loop existed had nothing to stop.
	if !m.stillExists(ctx, roomID) {
		m.scheduler.stopOwn(roomID, sch)
		log.Warn().Int64("room", roomID).Msg("[StartGame] game deleted while starting, loop stopped")
		return nil, fmt.Errorf("%w: room %d deleted while starting", internal.ErrGameNotFound, roomID)
	}
	m.provisionVoice(ctx, started)

	log.Info().Int64("room", roomID).Int("players", len(started.Players)).
		Int("zombies", started.Zombie).Int("mutants", started.Mutant).Msg("[StartGame] game started")
	return started, nil
}

// stillExists reports whether the room still has a game. Only a confirmed
// missing record counts as deleted.
func (m *Manager) stillExists(ctx context.Context, roomID int64) bool {
	err := m.locks.with(roomID, func() error {
		_, err := m.store.LoadGame(ctx, roomID)
		return err
	})
	return !errors.Is(err, internal.ErrGameNotFound)
}

func (m *Manager) provisionVoice(ctx context.Context, g *internal.Game) {
	sessionID, err := m.voice.CreateSession(ctx, g.RoomID)
	if err != nil {
		log.Warn().Err(err).Int64("room", g.RoomID).Msg("[provisionVoice] could not create voice session")
		return
	}
	for _, memberID := range g.MemberIDs() {
		token, err := m.voice.IssueToken(ctx, g.RoomID, memberID)
		if err != nil {
			log.Warn().Err(err).Int64("room", g.RoomID).Int64("member", memberID).
				Msg("[provisionVoice] could not issue voice token")
			continue
		}
		publish(m.publisher, utils.MemberTopic(g.RoomID, memberID), internal.Message[internal.VoiceTokenData]{
			Type: internal.MsgVoiceToken,
			Data: internal.VoiceTokenData{SessionID: sessionID, Token: token},
		})
	}
}

// DeleteGame stops the room's loop and removes every record of its game.
// Deleting a room without a game succeeds.
func (m *Manager) DeleteGame(ctx context.Context, roomID int64) error {
	if err := m.voice.CloseSession(ctx, roomID); err != nil {
		log.Warn().Err(err).Int64("room", roomID).Msg("[DeleteGame] could not close voice session")
	}

	existed := false
	var running *schedule
	err := m.locks.with(roomID, func() error {
		if _, err := m.store.LoadGame(ctx, roomID); err == nil {
			existed = true
		}
		if err := m.store.DeleteGame(ctx, roomID); err != nil {
			return err
		}
		if err := m.store.DeleteSeq(ctx, roomID); err != nil {
			return err
		}
		// Any loop started from here on belongs to a StartGame that will
		// find the records gone.
		running = m.scheduler.current(roomID)
		return nil
	})
	if err != nil {
		return err
	}
	m.scheduler.stopOwn(roomID, running)

	if existed {
		publish(m.publisher, systemTopic(roomID), internal.Message[internal.GameDeletedData]{
			Type: internal.MsgGameDeleted,
			Data: internal.GameDeletedData{RoomID: roomID},
		})
	}
	log.Info().Int64("room", roomID).Bool("existed", existed).Msg("[DeleteGame] game deleted")
	return nil
}

// SkipDiscussion shortens the discussion by seconds, as long as at least
// SkipFloorSeconds remain afterwards.
func (m *Manager) SkipDiscussion(ctx context.Context, roomID int64, seconds int) (int, error) {
	if seconds <= 0 {
		return 0, fmt.Errorf("%w: %d seconds", internal.ErrInvalidSkip, seconds)
	}

	var remaining int
	err := m.locks.with(roomID, func() error {
		g, err := m.store.LoadGame(ctx, roomID)
		if err != nil {
			return err
		}
		if g.Status.IsTerminal() {
			return internal.ErrGameOver
		}
		phase, err := m.store.GetPhase(ctx, roomID)
		if err != nil {
			return err
		}
		if phase != internal.PhaseDayDiscussion {
			return internal.ErrNotDiscussionPhase
		}
		timer, err := m.store.GetTimer(ctx, roomID)
		if err != nil {
			return err
		}
		if timer-seconds < internal.SkipFloorSeconds {
			return fmt.Errorf("%w: %d left, skipping %d", internal.ErrGameTimeOver, timer, seconds)
		}
		remaining, err = m.store.DecrementTimer(ctx, roomID, seconds)
		return err
	})
	if err != nil {
		return 0, err
	}
	log.Info().Int64("room", roomID).Int("skipped", seconds).Int("remaining", remaining).
		Msg("[SkipDiscussion] discussion shortened")
	return remaining, nil
}

// State is the public view of the room's game.
func (m *Manager) State(ctx context.Context, roomID int64) (internal.GameStateData, error) {
	var state internal.GameStateData
	err := m.locks.with(roomID, func() error {
		g, err := m.store.LoadGame(ctx, roomID)
		if err != nil {
			return err
		}
		phase, err := m.store.GetPhase(ctx, roomID)
		if err != nil && !errors.Is(err, internal.ErrPhaseNotFound) {
			return err
		}
		timer, err := m.store.GetTimer(ctx, roomID)
		if err != nil && !errors.Is(err, internal.ErrTimerNotFound) {
			return err
		}
		state = internal.GameStateData{
			RoomID:  roomID,
			Status:  g.Status,
			Phase:   phase,
			Time:    timer,
			Day:     g.Day,
			Alive:   g.Alive,
			Dead:    g.Dead,
			Nominee: g.Nominee,
			Players: g.PublicPlayers(),
		}
		return nil
	})
	return state, err
}

// Player is memberID's own view, role included.
func (m *Manager) Player(ctx context.Context, roomID, memberID int64) (internal.PlayerViewData, error) {
	var view internal.PlayerViewData
	err := m.locks.with(roomID, func() error {
		g, err := m.store.LoadGame(ctx, roomID)
		if err != nil {
			return err
		}
		p, err := g.Player(memberID)
		if err != nil {
			return err
		}
		view = internal.PlayerViewData{
			MemberID: p.MemberID,
			Nickname: p.Nickname,
			Role:     p.Role,
			Alive:    p.Alive,
			CanVote:  p.CanVote,
			Channels: p.ChannelList(),
		}
		if p.Role == internal.RolePlagueDoctor {
			view.HealCharges = g.HealCharges
		}
		return nil
	})
	return view, err
}

// Shutdown stops every running tick loop. Stored games are kept.
func (m *Manager) Shutdown() {
	m.scheduler.StopAll()
	log.Info().Msg("[Shutdown] all tick loops stopped")
}
