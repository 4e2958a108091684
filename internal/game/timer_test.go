package game

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scythe504/zombie-mafia-backend/internal"
)

func tickN(t *testing.T, s *Scheduler, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		finished, err := s.Tick(context.Background(), 1)
		require.NoError(t, err, "tick %d", i+1)
		require.False(t, finished, "tick %d", i+1)
	}
}

func TestTick_CycleWithoutVotes(t *testing.T) {
	f := newFixture(t, 5, internal.DefaultGameOption())
	f.seed(t, internal.PhaseDayDiscussion, 60, false)
	s := f.manager.Scheduler()

	tickN(t, s, 60)
	_, phase, timer := f.load(t)
	assert.Equal(t, internal.PhaseDayDiscussion, phase)
	assert.Equal(t, 0, timer)

	tickN(t, s, 1)
	_, phase, timer = f.load(t)
	assert.Equal(t, internal.PhaseDayVote, phase, "61st tick advances")
	assert.Equal(t, 60, timer)

	// Nobody votes: straight to night.
	tickN(t, s, 61)
	g, phase, timer := f.load(t)
	assert.Equal(t, internal.PhaseNightAction, phase)
	assert.Equal(t, internal.DefaultGameOption().NightSeconds, timer)
	assert.Equal(t, []string{internal.ChannelZombie}, g.Players[1].ChannelList())
	assert.Empty(t, g.Players[4].ChannelList())

	results := f.publisher.ofType(internal.MsgVoteResult)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Raw, `"target":-1`)
	require.Len(t, f.publisher.ofType(internal.MsgPermissions), 1)

	tickN(t, s, internal.DefaultGameOption().NightSeconds+1)
	g, phase, timer = f.load(t)
	assert.Equal(t, internal.PhaseDayDiscussion, phase)
	assert.Equal(t, internal.DefaultGameOption().DiscussionSeconds, timer)
	assert.Equal(t, 2, g.Day)
	assert.Equal(t, []string{internal.ChannelAll}, g.Players[1].ChannelList())
	assert.Len(t, f.publisher.ofType(internal.MsgNightResult), 1)

	// Every tick published a snapshot.
	total := 60 + 1 + 61 + internal.DefaultGameOption().NightSeconds + 1
	updates := f.publisher.ofType(internal.MsgTimerUpdate)
	require.Len(t, updates, total)
	for _, u := range updates {
		assert.Equal(t, "game-1-system", u.Topic)
	}

	var last internal.Message[internal.TimerUpdateData]
	require.NoError(t, json.Unmarshal([]byte(updates[len(updates)-1].Raw), &last))
	assert.Equal(t, internal.PhaseDayDiscussion, last.Data.Phase)
	assert.Equal(t, internal.DefaultGameOption().DiscussionSeconds, last.Data.Time)
}

func TestTick_VoteThenExecution(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5, internal.DefaultGameOption())
	g := f.seed(t, internal.PhaseDayVote, 0, false)
	s := f.manager.Scheduler()

	for _, voter := range []int64{1, 2, 3} {
		require.NoError(t, g.Vote(voter, 4))
	}
	require.NoError(t, g.Vote(5, 1))
	require.NoError(t, f.store.SaveGame(ctx, 1, g))

	tickN(t, s, 1)
	g, phase, timer := f.load(t)
	assert.Equal(t, internal.PhaseDayFinalStatement, phase)
	assert.Equal(t, internal.FinalStatementSeconds, timer)
	assert.Equal(t, int64(4), g.Nominee)
	assert.Empty(t, g.Votes, "votes cleared for the final vote")

	require.NoError(t, f.store.SaveTimer(ctx, 1, 0))
	tickN(t, s, 1)
	_, phase, timer = f.load(t)
	assert.Equal(t, internal.PhaseDayFinalVote, phase)
	assert.Equal(t, internal.FinalVoteSeconds, timer)

	require.NoError(t, f.manager.Vote(ctx, 1, 2, 4))
	require.NoError(t, f.manager.Vote(ctx, 1, 3, 4))
	require.NoError(t, f.store.SaveTimer(ctx, 1, 0))
	tickN(t, s, 1)

	g, phase, _ = f.load(t)
	assert.Equal(t, internal.PhaseNightAction, phase)
	assert.False(t, g.Players[4].Alive)
	assert.Equal(t, internal.NoTarget, g.Nominee)
	assert.Equal(t, internal.StatusPlaying, g.Status)
	assert.NoError(t, g.CheckInvariants())
	assert.Len(t, f.publisher.ofType(internal.MsgPlayerExecuted), 1)
}

func TestTick_FinalVoteAgainstSomeoneElse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5, internal.DefaultGameOption())
	g := f.seed(t, internal.PhaseDayFinalVote, 0, false)
	g.Nominee = 4
	require.NoError(t, g.Vote(1, 5))
	require.NoError(t, g.Vote(2, 5))
	require.NoError(t, f.store.SaveGame(ctx, 1, g))

	tickN(t, f.manager.Scheduler(), 1)
	g, phase, _ := f.load(t)
	assert.Equal(t, internal.PhaseNightAction, phase)
	assert.True(t, g.Players[4].Alive)
	assert.True(t, g.Players[5].Alive, "only the nominee can be executed")
	assert.Empty(t, f.publisher.ofType(internal.MsgPlayerExecuted))
}

func TestTick_ExecutingTheZombieEndsTheGame(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5, internal.DefaultGameOption())
	g := f.seed(t, internal.PhaseDayFinalVote, 0, false)
	g.Nominee = 1
	require.NoError(t, g.Vote(2, 1))
	require.NoError(t, f.store.SaveGame(ctx, 1, g))

	finished, err := f.manager.Scheduler().Tick(ctx, 1)
	require.NoError(t, err)
	assert.True(t, finished)

	g, phase, _ := f.load(t)
	assert.Equal(t, internal.StatusCitizenWin, g.Status)
	assert.Equal(t, internal.PhaseDayFinalVote, phase, "phase is left where the game ended")
	require.Len(t, f.publisher.ofType(internal.MsgGameOver), 1)

	// Later ticks see the finished game and change nothing.
	finished, err = f.manager.Scheduler().Tick(ctx, 1)
	require.NoError(t, err)
	assert.True(t, finished)
	assert.Len(t, f.publisher.ofType(internal.MsgGameOver), 1)
}

func TestTick_NightInfectionGivesZombieWin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5, internal.DefaultGameOption())
	g := f.seed(t, internal.PhaseNightAction, 0, false)
	for _, id := range []int64{2, 3} {
		_, err := g.Kill(id)
		require.NoError(t, err)
	}
	require.NoError(t, g.SetInfectionTarget(4))
	require.NoError(t, f.store.SaveGame(ctx, 1, g))

	finished, err := f.manager.Scheduler().Tick(ctx, 1)
	require.NoError(t, err)
	assert.True(t, finished)

	g, _, _ = f.load(t)
	assert.Equal(t, internal.StatusZombieWin, g.Status)
	assert.Equal(t, 1, g.Zombie)
	assert.Equal(t, 1, g.Citizen)
	assert.NoError(t, g.CheckInvariants())
	require.Len(t, f.publisher.ofType(internal.MsgNightResult), 1)
	require.Len(t, f.publisher.ofType(internal.MsgGameOver), 1)
}

func TestTick_NightHealSaves(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5, internal.DefaultGameOption())
	g := f.seed(t, internal.PhaseNightAction, 0, false)
	require.NoError(t, g.SetInfectionTarget(4))
	require.NoError(t, g.Heal(4))
	require.NoError(t, f.store.SaveGame(ctx, 1, g))

	tickN(t, f.manager.Scheduler(), 1)
	g, phase, _ := f.load(t)
	assert.Equal(t, internal.PhaseDayDiscussion, phase)
	assert.True(t, g.Players[4].Alive)
	assert.Equal(t, internal.NoTarget, g.HealTarget)
	assert.Equal(t, internal.NoTarget, g.InfectionTarget)

	results := f.publisher.ofType(internal.MsgNightResult)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Raw, `"healed":4`)
}

func TestTick_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown phase", func(t *testing.T) {
		f := newFixture(t, 5, internal.DefaultGameOption())
		f.seed(t, internal.PhaseDayDiscussion, 10, false)
		require.NoError(t, f.store.SavePhase(ctx, 1, internal.Phase("DAY_SIESTA")))

		_, err := f.manager.Scheduler().Tick(ctx, 1)
		assert.ErrorIs(t, err, internal.ErrUnknownPhase)

		timer, err := f.store.GetTimer(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 10, timer, "nothing changed")
		assert.Empty(t, f.publisher.ofType(internal.MsgTimerUpdate))
	})

	t.Run("missing game", func(t *testing.T) {
		f := newFixture(t, 5, internal.DefaultGameOption())
		require.NoError(t, f.store.SavePhase(ctx, 1, internal.PhaseDayVote))

		_, err := f.manager.Scheduler().Tick(ctx, 1)
		assert.ErrorIs(t, err, internal.ErrGameNotFound)
	})

	t.Run("missing phase", func(t *testing.T) {
		f := newFixture(t, 5, internal.DefaultGameOption())
		_, err := f.manager.Scheduler().Tick(ctx, 1)
		assert.ErrorIs(t, err, internal.ErrPhaseNotFound)
	})

	t.Run("missing timer advances", func(t *testing.T) {
		f := newFixture(t, 5, internal.DefaultGameOption())
		f.seed(t, internal.PhaseDayDiscussion, 10, false)
		require.NoError(t, f.store.DeleteSeq(ctx, 1))
		require.NoError(t, f.store.SavePhase(ctx, 1, internal.PhaseDayDiscussion))

		tickN(t, f.manager.Scheduler(), 1)
		_, phase, timer := f.load(t)
		assert.Equal(t, internal.PhaseDayVote, phase)
		assert.Equal(t, internal.DayVoteSeconds, timer)
	})

	t.Run("negative timer advances", func(t *testing.T) {
		f := newFixture(t, 5, internal.DefaultGameOption())
		f.seed(t, internal.PhaseDayFinalStatement, -3, false)

		tickN(t, f.manager.Scheduler(), 1)
		_, phase, _ := f.load(t)
		assert.Equal(t, internal.PhaseDayFinalVote, phase)
	})

	t.Run("cancelled tick is discarded", func(t *testing.T) {
		f := newFixture(t, 5, internal.DefaultGameOption())
		f.seed(t, internal.PhaseDayDiscussion, 10, false)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		finished, err := f.manager.Scheduler().Tick(cancelled, 1)
		require.NoError(t, err)
		assert.False(t, finished)

		_, _, timer := f.load(t)
		assert.Equal(t, 10, timer)
	})
}

func TestScheduler_StartStop(t *testing.T) {
	f := newFixture(t, 5, internal.DefaultGameOption())
	f.seed(t, internal.PhaseDayDiscussion, 5, false)
	ticker := newManualTicker()
	f.manager.SetTicker(ticker.fn)
	s := f.manager.Scheduler()

	s.Start(1)
	assert.True(t, s.Running(1))

	ticker.c <- time.Now()
	ticker.c <- time.Now()
	require.Eventually(t, func() bool {
		_, _, timer := f.load(t)
		return timer == 3
	}, 2*time.Second, 5*time.Millisecond)

	assert.True(t, s.Stop(1))
	assert.False(t, s.Running(1))
	assert.False(t, s.Stop(1), "stopping twice is a no-op")

	select {
	case <-ticker.stopped:
	case <-time.After(time.Second):
		t.Fatal("ticker not stopped")
	}

	// Nobody reads the channel anymore.
	select {
	case ticker.c <- time.Now():
		t.Fatal("tick delivered after stop")
	case <-time.After(50 * time.Millisecond):
	}
	_, _, timer := f.load(t)
	assert.Equal(t, 3, timer)
}

func TestScheduler_LoopReleasesOnUnknownPhase(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5, internal.DefaultGameOption())
	f.seed(t, internal.PhaseDayDiscussion, 5, false)
	require.NoError(t, f.store.SavePhase(ctx, 1, internal.Phase("BROKEN")))
	ticker := newManualTicker()
	f.manager.SetTicker(ticker.fn)
	s := f.manager.Scheduler()

	s.Start(1)
	ticker.c <- time.Now()
	require.Eventually(t, func() bool { return !s.Running(1) }, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_LoopReleasesOnGameOver(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5, internal.DefaultGameOption())
	g := f.seed(t, internal.PhaseDayFinalVote, 0, false)
	g.Nominee = 1
	require.NoError(t, g.Vote(2, 1))
	require.NoError(t, f.store.SaveGame(ctx, 1, g))
	ticker := newManualTicker()
	f.manager.SetTicker(ticker.fn)
	s := f.manager.Scheduler()

	s.Start(1)
	ticker.c <- time.Now()
	require.Eventually(t, func() bool { return !s.Running(1) }, 2*time.Second, 5*time.Millisecond)

	g, _, _ = f.load(t)
	assert.Equal(t, internal.StatusCitizenWin, g.Status)
}

func TestScheduler_RoomsAreIndependent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5, internal.DefaultGameOption())
	f.seed(t, internal.PhaseDayDiscussion, 5, false)
	s := f.manager.Scheduler()

	_, err := s.Tick(ctx, 2)
	assert.Error(t, err, "room 2 has nothing stored")

	tickN(t, s, 1)
	_, _, timer := f.load(t)
	assert.Equal(t, 4, timer)
}

func TestScheduler_ConcurrentVotesAndTicks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5, internal.DefaultGameOption())
	f.seed(t, internal.PhaseDayVote, 1000, false)
	s := f.manager.Scheduler()

	var wg sync.WaitGroup
	for voter := int64(1); voter <= 5; voter++ {
		wg.Add(1)
		go func(voter int64) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				target := int64(i%5) + 1
				assert.NoError(t, f.manager.Vote(ctx, 1, voter, target))
			}
		}(voter)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_, err := s.Tick(ctx, 1)
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	g, phase, timer := f.load(t)
	assert.Equal(t, internal.PhaseDayVote, phase)
	assert.Equal(t, 900, timer)
	assert.Len(t, g.Votes, 5)
	assert.NoError(t, g.CheckInvariants())
}

func TestTick_FailedWriteIsRetriedFromTheSameState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5, internal.DefaultGameOption())
	g := f.seed(t, internal.PhaseDayVote, 0, false)
	for _, voter := range []int64{1, 2, 3} {
		require.NoError(t, g.Vote(voter, 4))
	}
	require.NoError(t, f.store.SaveGame(ctx, 1, g))

	flaky := &flakyStore{MemoryStore: f.store, failSteps: 1}
	manager := NewManager(directoryWith(1, 5, internal.DefaultGameOption()), flaky, f.publisher, quietVoice(), nil)
	manager.SetTicker(stillTicker)
	s := manager.Scheduler()

	_, err := s.Tick(ctx, 1)
	require.ErrorIs(t, err, errStoreDown)

	g, phase, timer := f.load(t)
	assert.Equal(t, internal.PhaseDayVote, phase)
	assert.Equal(t, 0, timer)
	assert.Equal(t, internal.NoTarget, g.Nominee)
	assert.Len(t, g.Votes, 3, "votes survive the failed tick")
	assert.Empty(t, f.publisher.ofType(internal.MsgVoteResult), "nothing published for a tick that did not land")

	finished, err := s.Tick(ctx, 1)
	require.NoError(t, err)
	assert.False(t, finished)

	g, phase, timer = f.load(t)
	assert.Equal(t, internal.PhaseDayFinalStatement, phase)
	assert.Equal(t, internal.FinalStatementSeconds, timer)
	assert.Equal(t, int64(4), g.Nominee)
	require.Len(t, f.publisher.ofType(internal.MsgVoteResult), 1)
}

func TestTick_FailedNightWriteDoesNotSkipADay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5, internal.DefaultGameOption())
	g := f.seed(t, internal.PhaseNightAction, 0, false)
	require.NoError(t, g.SetInfectionTarget(4))
	require.NoError(t, f.store.SaveGame(ctx, 1, g))

	flaky := &flakyStore{MemoryStore: f.store, failSteps: 2}
	manager := NewManager(directoryWith(1, 5, internal.DefaultGameOption()), flaky, f.publisher, quietVoice(), nil)
	manager.SetTicker(stillTicker)
	s := manager.Scheduler()

	for i := 0; i < 2; i++ {
		_, err := s.Tick(ctx, 1)
		require.ErrorIs(t, err, errStoreDown)
	}
	tickN(t, s, 1)

	g, phase, timer := f.load(t)
	assert.Equal(t, internal.PhaseDayDiscussion, phase)
	assert.Equal(t, internal.DefaultGameOption().DiscussionSeconds, timer)
	assert.Equal(t, 2, g.Day)
	assert.False(t, g.Players[4].Alive)
	assert.NoError(t, g.CheckInvariants())
}
