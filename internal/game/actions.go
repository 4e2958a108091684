package game

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/scythe504/zombie-mafia-backend/internal"
)

// =============================================================================
// PLAYER ACTIONS
// =============================================================================

// mutate loads the room's game and phase under the room lock, runs fn and
// saves the game if fn succeeded.
func (m *Manager) mutate(ctx context.Context, roomID int64, fn func(g *internal.Game, phase internal.Phase) error) error {
	return m.locks.with(roomID, func() error {
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
		if err := fn(g, phase); err != nil {
			return err
		}
		return m.store.SaveGame(ctx, roomID, g)
	})
}

// Vote records voterID's ballot for the current day or final vote.
// internal.NoTarget abstains.
func (m *Manager) Vote(ctx context.Context, roomID, voterID, targetID int64) error {
	err := m.mutate(ctx, roomID, func(g *internal.Game, phase internal.Phase) error {
		if phase != internal.PhaseDayVote && phase != internal.PhaseDayFinalVote {
			return fmt.Errorf("%w: phase is %s", internal.ErrVotingClosed, phase)
		}
		if err := ValidateVote(g, voterID, targetID); err != nil {
			return err
		}
		return g.Vote(voterID, targetID)
	})
	if err != nil {
		return err
	}
	log.Debug().Int64("room", roomID).Int64("voter", voterID).Int64("target", targetID).Msg("[Vote] vote recorded")
	return nil
}

// Heal queues the plague doctor's heal for tonight and spends a charge. One
// heal per night.
func (m *Manager) Heal(ctx context.Context, roomID, doctorID, targetID int64) error {
	return m.mutate(ctx, roomID, func(g *internal.Game, phase internal.Phase) error {
		if err := checkNightActor(g, phase, doctorID, internal.RolePlagueDoctor); err != nil {
			return err
		}
		if g.HealTarget != internal.NoTarget {
			return internal.ErrAlreadyHealed
		}
		if g.HealCharges <= 0 {
			return internal.ErrNoHealCharges
		}
		if err := validateTarget(g, targetID); err != nil {
			return err
		}
		if err := g.Heal(targetID); err != nil {
			return err
		}
		log.Debug().Int64("room", roomID).Int64("target", targetID).Int("charges", g.HealCharges).Msg("[Heal] heal queued")
		return nil
	})
}

// Investigate returns ZOMBIE or CITIZEN for targetID.
func (m *Manager) Investigate(ctx context.Context, roomID, policeID, targetID int64) (internal.Role, error) {
	var result internal.Role
	err := m.mutate(ctx, roomID, func(g *internal.Game, phase internal.Phase) error {
		if phase != internal.PhaseNightAction {
			return internal.ErrNotNightPhase
		}
		role, err := Investigate(g, policeID, targetID)
		if err != nil {
			return err
		}
		result = role
		return nil
	})
	if err != nil {
		return "", err
	}
	log.Debug().Int64("room", roomID).Int64("target", targetID).Str("result", string(result)).Msg("[Investigate] target revealed")
	return result, nil
}

// Infect sets the zombies' target for tonight. The last living zombie to
// act decides.
func (m *Manager) Infect(ctx context.Context, roomID, zombieID, targetID int64) error {
	return m.mutate(ctx, roomID, func(g *internal.Game, phase internal.Phase) error {
		if err := checkNightActor(g, phase, zombieID, internal.RoleZombie); err != nil {
			return err
		}
		if err := validateTarget(g, targetID); err != nil {
			return err
		}
		if g.Players[targetID].Role == internal.RoleZombie {
			return fmt.Errorf("%w: %d is a zombie", internal.ErrInvalidTarget, targetID)
		}
		return g.SetInfectionTarget(targetID)
	})
}

// MutantAttack sets the mutant's target for tonight.
func (m *Manager) MutantAttack(ctx context.Context, roomID, mutantID, targetID int64) error {
	return m.mutate(ctx, roomID, func(g *internal.Game, phase internal.Phase) error {
		if err := checkNightActor(g, phase, mutantID, internal.RoleMutant); err != nil {
			return err
		}
		if targetID == mutantID {
			return fmt.Errorf("%w: cannot attack yourself", internal.ErrInvalidTarget)
		}
		if err := validateTarget(g, targetID); err != nil {
			return err
		}
		return g.SetMutantTarget(targetID)
	})
}

func checkNightActor(g *internal.Game, phase internal.Phase, actorID int64, role internal.Role) error {
	if phase != internal.PhaseNightAction {
		return internal.ErrNotNightPhase
	}
	actor, err := g.Player(actorID)
	if err != nil {
		return err
	}
	if actor.Role != role {
		return fmt.Errorf("%w: %d is not %s", internal.ErrRoleMismatch, actorID, role)
	}
	if !actor.Alive {
		return internal.ErrDeadCannotAct
	}
	return nil
}
