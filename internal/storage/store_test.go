package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scythe504/zombie-mafia-backend/internal"
)

type gameStore interface {
	SaveGame(ctx context.Context, roomID int64, g *internal.Game) error
	LoadGame(ctx context.Context, roomID int64) (*internal.Game, error)
	DeleteGame(ctx context.Context, roomID int64) error
	SavePhase(ctx context.Context, roomID int64, phase internal.Phase) error
	GetPhase(ctx context.Context, roomID int64) (internal.Phase, error)
	SaveTimer(ctx context.Context, roomID int64, seconds int) error
	GetTimer(ctx context.Context, roomID int64) (int, error)
	DecrementTimer(ctx context.Context, roomID int64, by int) (int, error)
	DeleteSeq(ctx context.Context, roomID int64) error
	SaveStep(ctx context.Context, roomID int64, g *internal.Game, phase internal.Phase, seconds int) error
}

func sampleGame(roomID int64) *internal.Game {
	g := internal.NewGame(roomID, internal.DefaultGameOption())
	for id := int64(1); id <= 5; id++ {
		g.AddPlayer(id, "player")
	}
	_ = g.ApplyRoles(map[int64]internal.Role{
		1: internal.RoleZombie,
		2: internal.RolePolice,
		3: internal.RolePlagueDoctor,
		4: internal.RoleCitizen,
		5: internal.RoleCitizen,
	})
	_ = g.Vote(2, 1)
	return g
}

// testStore runs the behaviour every store must share.
func testStore(t *testing.T, s gameStore, roomID int64) {
	ctx := context.Background()

	t.Run("LoadGame_NotFound", func(t *testing.T) {
		_, err := s.LoadGame(ctx, roomID)
		assert.ErrorIs(t, err, internal.ErrGameNotFound)
	})

	t.Run("SaveGame_LoadGame", func(t *testing.T) {
		g := sampleGame(roomID)
		require.NoError(t, s.SaveGame(ctx, roomID, g))

		loaded, err := s.LoadGame(ctx, roomID)
		require.NoError(t, err)
		assert.Equal(t, internal.StatusPlaying, loaded.Status)
		assert.Len(t, loaded.Players, 5)
		assert.Equal(t, internal.RoleZombie, loaded.Players[1].Role)
		assert.Equal(t, int64(1), loaded.Votes[2])
		assert.Equal(t, internal.NoTarget, loaded.HealTarget)
		assert.NoError(t, loaded.CheckInvariants())
	})

	t.Run("SaveGame_Overwrites", func(t *testing.T) {
		g, err := s.LoadGame(ctx, roomID)
		require.NoError(t, err)
		_, err = g.Kill(4)
		require.NoError(t, err)
		require.NoError(t, s.SaveGame(ctx, roomID, g))

		loaded, err := s.LoadGame(ctx, roomID)
		require.NoError(t, err)
		assert.False(t, loaded.Players[4].Alive)
		assert.Equal(t, 1, loaded.Dead)
	})

	t.Run("Phase_NotFound", func(t *testing.T) {
		_, err := s.GetPhase(ctx, roomID)
		assert.ErrorIs(t, err, internal.ErrPhaseNotFound)
		_, err = s.GetTimer(ctx, roomID)
		assert.ErrorIs(t, err, internal.ErrTimerNotFound)
		_, err = s.DecrementTimer(ctx, roomID, 1)
		assert.ErrorIs(t, err, internal.ErrTimerNotFound)
	})

	t.Run("Phase_Timer", func(t *testing.T) {
		require.NoError(t, s.SavePhase(ctx, roomID, internal.PhaseDayVote))
		require.NoError(t, s.SaveTimer(ctx, roomID, 60))

		phase, err := s.GetPhase(ctx, roomID)
		require.NoError(t, err)
		assert.Equal(t, internal.PhaseDayVote, phase)

		left, err := s.DecrementTimer(ctx, roomID, 15)
		require.NoError(t, err)
		assert.Equal(t, 45, left)

		left, err = s.GetTimer(ctx, roomID)
		require.NoError(t, err)
		assert.Equal(t, 45, left)
	})

	t.Run("Timer_CanGoNegative", func(t *testing.T) {
		require.NoError(t, s.SaveTimer(ctx, roomID, 0))
		left, err := s.DecrementTimer(ctx, roomID, 1)
		require.NoError(t, err)
		assert.Equal(t, -1, left)
	})

	t.Run("SaveStep", func(t *testing.T) {
		g, err := s.LoadGame(ctx, roomID)
		require.NoError(t, err)
		g.Nominee = 4
		g.ClearVotes()
		require.NoError(t, s.SaveStep(ctx, roomID, g, internal.PhaseDayFinalStatement, 30))

		loaded, err := s.LoadGame(ctx, roomID)
		require.NoError(t, err)
		assert.Equal(t, int64(4), loaded.Nominee)
		assert.Empty(t, loaded.Votes)
		phase, err := s.GetPhase(ctx, roomID)
		require.NoError(t, err)
		assert.Equal(t, internal.PhaseDayFinalStatement, phase)
		timer, err := s.GetTimer(ctx, roomID)
		require.NoError(t, err)
		assert.Equal(t, 30, timer)
	})

	t.Run("SaveStep_NilGame", func(t *testing.T) {
		err := s.SaveStep(ctx, roomID, nil, internal.PhaseDayVote, 60)
		assert.ErrorIs(t, err, internal.ErrStore)

		timer, err := s.GetTimer(ctx, roomID)
		require.NoError(t, err)
		assert.Equal(t, 30, timer, "nothing written")
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, s.DeleteGame(ctx, roomID))
		require.NoError(t, s.DeleteSeq(ctx, roomID))

		_, err := s.LoadGame(ctx, roomID)
		assert.ErrorIs(t, err, internal.ErrGameNotFound)
		_, err = s.GetPhase(ctx, roomID)
		assert.ErrorIs(t, err, internal.ErrPhaseNotFound)

		// Deleting twice is fine.
		assert.NoError(t, s.DeleteGame(ctx, roomID))
		assert.NoError(t, s.DeleteSeq(ctx, roomID))
	})
}
