package game

import (
	"fmt"
	"math/rand"
	"slices"

	"github.com/scythe504/zombie-mafia-backend/internal"
)

// =============================================================================
// ROLE ASSIGNMENT
// =============================================================================

// AssignRoles deals one role per player. The pool holds option.ZombieCount
// zombies, one police, one plague doctor, a mutant on a coin flip when the
// option allows one, and citizens for the rest. Players receive roles in
// ascending member id order after the pool is shuffled.
func AssignRoles(playerIDs []int64, option internal.GameOption, rng *rand.Rand) (map[int64]internal.Role, error) {
	pool := make([]internal.Role, 0, len(playerIDs))
	for range option.ZombieCount {
		pool = append(pool, internal.RoleZombie)
	}
	if option.MutantCount > 0 && rng.Intn(2) == 0 {
		pool = append(pool, internal.RoleMutant)
	}
	pool = append(pool, internal.RolePolice, internal.RolePlagueDoctor)

	if len(pool) > len(playerIDs) {
		return nil, fmt.Errorf("%w: %d special roles for %d players",
			internal.ErrInsufficientPlayers, len(pool), len(playerIDs))
	}
	for len(pool) < len(playerIDs) {
		pool = append(pool, internal.RoleCitizen)
	}

	rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	ids := append([]int64(nil), playerIDs...)
	slices.Sort(ids)

	roles := make(map[int64]internal.Role, len(ids))
	for i, id := range ids {
		roles[id] = pool[i]
	}
	return roles, nil
}
