package game

import (
	"fmt"
	"slices"

	"github.com/scythe504/zombie-mafia-backend/internal"
)

// NightResult lists who was saved and who died when a night is resolved.
type NightResult struct {
	Healed int64
	Killed []int64
}

// Tally counts votes per target. Abstentions are not counted.
func Tally(g *internal.Game) map[int64]int {
	tally := make(map[int64]int)
	for _, target := range g.Votes {
		if target == internal.NoTarget {
			continue
		}
		tally[target]++
	}
	return tally
}

// VoteResult returns the target holding the strict maximum of votes. A tie
// for the maximum, or no votes at all, is an abstention: ties never
// eliminate anybody.
func VoteResult(g *internal.Game) int64 {
	best, bestCount, tied := internal.NoTarget, 0, false
	for target, count := range Tally(g) {
		switch {
		case count > bestCount:
			best, bestCount, tied = target, count, false
		case count == bestCount:
			tied = true
		}
	}
	if tied {
		return internal.NoTarget
	}
	return best
}

// ProcessNightResolution applies the zombie and mutant targets through
// Game.Kill, the only place night deaths happen, then clears the pending
// night actions.
func ProcessNightResolution(g *internal.Game) (NightResult, error) {
	result := NightResult{Healed: internal.NoTarget, Killed: make([]int64, 0, 2)}

	targets := make([]int64, 0, 2)
	for _, t := range []int64{g.InfectionTarget, g.MutantTarget} {
		if t != internal.NoTarget && !slices.Contains(targets, t) {
			targets = append(targets, t)
		}
	}
	slices.Sort(targets)

	for _, target := range targets {
		p, err := g.Player(target)
		if err != nil {
			return result, err
		}
		if !p.Alive {
			continue
		}
		prevented, err := g.Kill(target)
		if err != nil {
			return result, err
		}
		if prevented {
			result.Healed = target
			continue
		}
		result.Killed = append(result.Killed, target)
	}

	g.ResetNightActions()
	return result, nil
}

// Investigate reveals only whether targetID is a zombie. An exposed zombie
// loses the right to vote for the rest of the game.
func Investigate(g *internal.Game, policeID, targetID int64) (internal.Role, error) {
	police, err := g.Player(policeID)
	if err != nil {
		return "", err
	}
	if police.Role != internal.RolePolice {
		return "", fmt.Errorf("%w: %d is not police", internal.ErrRoleMismatch, policeID)
	}
	if !police.Alive {
		return "", internal.ErrDeadCannotAct
	}
	if g.Investigated {
		return "", internal.ErrAlreadyInvestigated
	}
	target, err := g.Player(targetID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", internal.ErrInvalidTarget, err)
	}
	if !target.Alive {
		return "", fmt.Errorf("%w: %d is dead", internal.ErrInvalidTarget, targetID)
	}

	g.Investigated = true
	if target.Role == internal.RoleZombie {
		target.CanVote = false
		return internal.RoleZombie, nil
	}
	return internal.RoleCitizen, nil
}

// ValidateVote checks that voterID may vote for targetID. NoTarget is always
// an acceptable abstention.
func ValidateVote(g *internal.Game, voterID, targetID int64) error {
	voter, err := g.Player(voterID)
	if err != nil {
		return err
	}
	switch {
	case !voter.Alive:
		return internal.ErrDeadCannotVote
	case voter.Role == internal.RoleMutant:
		return internal.ErrMutantCannotVote
	case !voter.CanVote:
		return internal.ErrPoliceCannotVote
	}
	if targetID == internal.NoTarget {
		return nil
	}
	return validateTarget(g, targetID)
}

// IsGameOver evaluates the win conditions. Zombie and mutant wins are
// checked before the citizen win.
func IsGameOver(g *internal.Game) internal.GameStatus {
	switch {
	case g.Mutant == 0 && g.Zombie > 0 && g.Zombie >= g.Citizen:
		return internal.StatusZombieWin
	case g.Mutant == 1 && g.Citizen+g.Zombie <= g.Mutant:
		return internal.StatusMutantWin
	case g.Zombie == 0 && g.Mutant == 0:
		return internal.StatusCitizenWin
	}
	return internal.StatusPlaying
}

func validateTarget(g *internal.Game, targetID int64) error {
	target, err := g.Player(targetID)
	if err != nil {
		return fmt.Errorf("%w: %w", internal.ErrInvalidTarget, err)
	}
	if !target.Alive {
		return fmt.Errorf("%w: %d is dead", internal.ErrInvalidTarget, targetID)
	}
	return nil
}
