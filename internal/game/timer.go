package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scythe504/zombie-mafia-backend/internal"
)

// =============================================================================
// TIMER MANAGEMENT
// =============================================================================

// TickerFunc creates the tick source for a room and returns its stop func.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

type schedule struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler runs one 1-second tick loop per active room. It is the only
// owner of the running loops; nothing else keeps a room's timer.
type Scheduler struct {
	store     Store
	publisher Publisher
	locks     *roomLocks
	newTicker TickerFunc

	mu        sync.Mutex
	schedules map[int64]*schedule
}

func NewScheduler(store Store, publisher Publisher, locks *roomLocks) *Scheduler {
	return &Scheduler{
		store:     store,
		publisher: publisher,
		locks:     locks,
		newTicker: realTicker,
		schedules: make(map[int64]*schedule),
	}
}

// Start launches the room's tick loop, replacing any loop already running.
// It must not be called while holding the room lock.
func (s *Scheduler) Start(roomID int64) {
	s.start(roomID)
}

func (s *Scheduler) start(roomID int64) *schedule {
	ctx, cancel := context.WithCancel(context.Background())
	sch := &schedule{ctx: ctx, cancel: cancel, done: make(chan struct{})}

	// Swap in one step so concurrent starts never leave an unlisted loop.
	s.mu.Lock()
	prev := s.schedules[roomID]
	s.schedules[roomID] = sch
	s.mu.Unlock()
	if prev != nil {
		prev.cancel()
		<-prev.done
	}

	tickC, stopTicker := s.newTicker(internal.TickInterval)
	log.Info().Int64("room", roomID).Msg("[Scheduler.Start] tick loop started")

	go func() {
		defer close(sch.done)
		defer stopTicker()

		for {
			select {
			case <-ctx.Done():
				log.Debug().Int64("room", roomID).Msg("[Scheduler] tick loop cancelled")
				return

			case <-tickC:
				finished, err := s.Tick(ctx, roomID)
				switch {
				case errors.Is(err, internal.ErrUnknownPhase):
					log.Error().Err(err).Int64("room", roomID).
						Msg("[Scheduler] corrupted phase record, stopping room schedule; reset the phase to recover")
					s.release(roomID, sch)
					return
				case errors.Is(err, internal.ErrGameNotFound), errors.Is(err, internal.ErrPhaseNotFound):
					log.Info().Err(err).Int64("room", roomID).Msg("[Scheduler] room has no game, tick loop exiting")
					s.release(roomID, sch)
					return
				case err != nil:
					log.Warn().Err(err).Int64("room", roomID).Msg("[Scheduler] tick failed, retrying next second")
				case finished:
					log.Info().Int64("room", roomID).Msg("[Scheduler] game finished, tick loop exiting")
					s.release(roomID, sch)
					return
				}
			}
		}
	}()
	return sch
}

// Stop cancels the room's loop and waits for it to exit. Stopping a room
// without a loop is a no-op. It must not be called while holding the room
// lock.
func (s *Scheduler) Stop(roomID int64) bool {
	s.mu.Lock()
	sch, exists := s.schedules[roomID]
	if exists {
		delete(s.schedules, roomID)
	}
	s.mu.Unlock()

	if !exists {
		return false
	}
	sch.cancel()
	<-sch.done
	log.Info().Int64("room", roomID).Msg("[Scheduler.Stop] tick loop stopped")
	return true
}

func (s *Scheduler) current(roomID int64) *schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedules[roomID]
}

// stopOwn stops sch, leaving the room alone if a later Start replaced it.
func (s *Scheduler) stopOwn(roomID int64, sch *schedule) {
	if sch == nil {
		return
	}
	s.mu.Lock()
	if current, ok := s.schedules[roomID]; ok && current == sch {
		delete(s.schedules, roomID)
	}
	s.mu.Unlock()
	sch.cancel()
	<-sch.done
}

func (s *Scheduler) StopAll() {
	s.mu.Lock()
	ids := make([]int64, 0, len(s.schedules))
	for id := range s.schedules {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.Stop(id)
	}
}

func (s *Scheduler) Running(roomID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.schedules[roomID]
	return exists
}

// release drops the room's entry from inside its own loop, but only if the
// entry still belongs to that loop.
func (s *Scheduler) release(roomID int64, sch *schedule) {
	s.mu.Lock()
	if current, ok := s.schedules[roomID]; ok && current == sch {
		delete(s.schedules, roomID)
	}
	s.mu.Unlock()
	sch.cancel()
}

// Tick runs one tick for the room: advance the phase when the countdown has
// run out, otherwise count down one second, then publish the {time, phase}
// snapshot. finished reports that the game has reached a win state.
func (s *Scheduler) Tick(ctx context.Context, roomID int64) (finished bool, err error) {
	err = s.locks.with(roomID, func() error {
		// A tick dispatched just before cancellation must not touch state.
		if ctx.Err() != nil {
			return nil
		}

		phase, err := s.store.GetPhase(ctx, roomID)
		if err != nil {
			return err
		}
		if _, err := internal.ParsePhase(string(phase)); err != nil {
			return err
		}

		g, err := s.store.LoadGame(ctx, roomID)
		if err != nil {
			return err
		}
		if g.Status.IsTerminal() {
			finished = true
			return nil
		}

		remaining, err := s.store.GetTimer(ctx, roomID)
		timerMissing := errors.Is(err, internal.ErrTimerNotFound)
		if err != nil && !timerMissing {
			return err
		}

		if timerMissing || remaining <= 0 {
			step, done, err := s.advance(ctx, g, phase)
			if err != nil {
				return err
			}
			if done {
				finished = true
				return nil
			}
			phase, remaining = step.To, step.Seconds
		} else {
			remaining, err = s.store.DecrementTimer(ctx, roomID, 1)
			if err != nil {
				return err
			}
		}

		publish(s.publisher, systemTopic(roomID), internal.Message[internal.TimerUpdateData]{
			Type: internal.MsgTimerUpdate,
			Data: internal.TimerUpdateData{Time: remaining, Phase: phase},
		})
		return nil
	})
	return finished, err
}
