package internal

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/rs/zerolog/log"
)

// Game is the authoritative state of one room's match. The counters are a
// cached view of Players and every mutator keeps both in step.
type Game struct {
	RoomID  int64             `json:"room_id"`
	Option  GameOption        `json:"option"`
	Players map[int64]*Player `json:"players"`
	Votes   map[int64]int64   `json:"votes"`
	Status  GameStatus        `json:"status"`

	Alive   int `json:"alive"`
	Dead    int `json:"dead"`
	Citizen int `json:"citizen"`
	Zombie  int `json:"zombie"`
	Mutant  int `json:"mutant"`

	HealTarget      int64 `json:"heal_target"`
	HealCharges     int   `json:"heal_charges"`
	InfectionTarget int64 `json:"infection_target"`
	MutantTarget    int64 `json:"mutant_target"`
	Investigated    bool  `json:"investigated"`

	// Nominee is the day-vote winner giving the final statement.
	Nominee int64 `json:"nominee"`
	Day     int   `json:"day"`

	StartedAt time.Time `json:"started_at"`
}

func NewGame(roomID int64, option GameOption) *Game {
	return &Game{
		RoomID:          roomID,
		Option:          option,
		Players:         make(map[int64]*Player),
		Votes:           make(map[int64]int64),
		Status:          StatusWaiting,
		HealTarget:      NoTarget,
		HealCharges:     option.HealCharges,
		InfectionTarget: NoTarget,
		MutantTarget:    NoTarget,
		Nominee:         NoTarget,
		Day:             1,
	}
}

// AddPlayer inserts a CITIZEN. Adding a known member is a logged no-op.
func (g *Game) AddPlayer(memberID int64, nickname string) bool {
	if _, exists := g.Players[memberID]; exists {
		log.Debug().Int64("room", g.RoomID).Int64("member", memberID).
			Msg("[AddPlayer] player already present, ignoring")
		return false
	}
	g.Players[memberID] = NewPlayer(memberID, nickname)
	g.Alive++
	g.Citizen++
	return true
}

// MemberIDs returns player ids in ascending order, the fixed order roles are
// dealt in.
func (g *Game) MemberIDs() []int64 {
	ids := slices.Collect(maps.Keys(g.Players))
	slices.Sort(ids)
	return ids
}

// ApplyRoles hands out the realized role pool and moves the game to PLAYING.
func (g *Game) ApplyRoles(roles map[int64]Role) error {
	if g.Status != StatusWaiting {
		return ErrGameAlreadyStarted
	}
	if len(roles) != len(g.Players) {
		return fmt.Errorf("%w: %d roles for %d players", ErrInvariantViolation, len(roles), len(g.Players))
	}
	for id := range roles {
		if _, ok := g.Players[id]; !ok {
			return fmt.Errorf("%w: %d", ErrPlayerNotFound, id)
		}
	}

	for id, role := range roles {
		p := g.Players[id]
		p.Role = role
		p.CanVote = role != RoleMutant
	}
	g.recount()
	g.Status = StatusPlaying
	return nil
}

func (g *Game) Player(memberID int64) (*Player, error) {
	p, ok := g.Players[memberID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrPlayerNotFound, memberID)
	}
	return p, nil
}

// Vote records or overwrites voterID's choice. Eligibility is checked by the
// resolver before calling this.
func (g *Game) Vote(voterID, targetID int64) error {
	if g.Status.IsTerminal() {
		return ErrGameOver
	}
	g.Votes[voterID] = targetID
	return nil
}

func (g *Game) ClearVotes() {
	clear(g.Votes)
}

// Kill marks targetID dead unless it is the pending heal target, in which
// case the heal is consumed and prevented is true.
func (g *Game) Kill(targetID int64) (prevented bool, err error) {
	if g.Status.IsTerminal() {
		return false, ErrGameOver
	}
	p, err := g.Player(targetID)
	if err != nil {
		return false, err
	}
	if !p.Alive {
		return false, fmt.Errorf("%w: %d", ErrPlayerAlreadyDead, targetID)
	}
	if g.HealTarget == targetID {
		g.HealTarget = NoTarget
		return true, nil
	}

	p.Alive = false
	p.setChannels(ChannelDead)
	g.Alive--
	g.Dead++
	switch p.Role.Faction() {
	case RoleZombie:
		g.Zombie--
	case RoleMutant:
		g.Mutant--
	default:
		g.Citizen--
	}
	return false, nil
}

// Heal sets the pending heal target and spends a charge when one is left.
func (g *Game) Heal(targetID int64) error {
	if g.Status.IsTerminal() {
		return ErrGameOver
	}
	if _, err := g.Player(targetID); err != nil {
		return err
	}
	g.HealTarget = targetID
	if g.HealCharges > 0 {
		g.HealCharges--
	}
	return nil
}

func (g *Game) SetInfectionTarget(targetID int64) error {
	if g.Status.IsTerminal() {
		return ErrGameOver
	}
	if _, err := g.Player(targetID); err != nil {
		return err
	}
	g.InfectionTarget = targetID
	return nil
}

func (g *Game) SetMutantTarget(targetID int64) error {
	if g.Status.IsTerminal() {
		return ErrGameOver
	}
	if _, err := g.Player(targetID); err != nil {
		return err
	}
	g.MutantTarget = targetID
	return nil
}

func (g *Game) ResetNightActions() {
	g.HealTarget = NoTarget
	g.InfectionTarget = NoTarget
	g.MutantTarget = NoTarget
	g.Investigated = false
}

// Finish sets a terminal status. It is a no-op once the game has ended.
func (g *Game) Finish(status GameStatus) {
	if g.Status.IsTerminal() || !status.IsTerminal() {
		return
	}
	g.Status = status
}

// RestrictToNight leaves only the zombie channel open, and only to living
// zombies. The mutant hunts alone and gets no night channel; its target goes
// through MutantAttack.
func (g *Game) RestrictToNight() {
	for _, p := range g.Players {
		switch {
		case !p.Alive:
			p.setChannels(ChannelDead)
		case p.Role == RoleZombie:
			p.setChannels(ChannelZombie)
		default:
			p.setChannels()
		}
	}
}

func (g *Game) RestoreSurvivors() {
	for _, p := range g.Players {
		if p.Alive {
			p.setChannels(ChannelAll)
		} else {
			p.setChannels(ChannelDead)
		}
	}
}

// CheckInvariants recomputes the counters from Players and compares.
func (g *Game) CheckInvariants() error {
	var alive, dead, citizen, zombie, mutant int
	for _, p := range g.Players {
		if !p.Alive {
			dead++
			continue
		}
		alive++
		switch p.Role.Faction() {
		case RoleZombie:
			zombie++
		case RoleMutant:
			mutant++
		default:
			citizen++
		}
	}
	switch {
	case g.Alive != alive || g.Dead != dead:
		return fmt.Errorf("%w: alive/dead %d/%d, players say %d/%d", ErrInvariantViolation, g.Alive, g.Dead, alive, dead)
	case g.Alive+g.Dead != len(g.Players):
		return fmt.Errorf("%w: alive+dead=%d for %d players", ErrInvariantViolation, g.Alive+g.Dead, len(g.Players))
	case g.Citizen != citizen || g.Zombie != zombie || g.Mutant != mutant:
		return fmt.Errorf("%w: citizen/zombie/mutant %d/%d/%d, players say %d/%d/%d",
			ErrInvariantViolation, g.Citizen, g.Zombie, g.Mutant, citizen, zombie, mutant)
	}
	return nil
}

func (g *Game) Clone() *Game {
	cp := *g
	cp.Players = make(map[int64]*Player, len(g.Players))
	for id, p := range g.Players {
		cp.Players[id] = p.Clone()
	}
	cp.Votes = maps.Clone(g.Votes)
	if cp.Votes == nil {
		cp.Votes = make(map[int64]int64)
	}
	return &cp
}

// PublicPlayers lists snapshots in member id order.
func (g *Game) PublicPlayers() []PlayerSnapshot {
	players := make([]PlayerSnapshot, 0, len(g.Players))
	for _, id := range g.MemberIDs() {
		players = append(players, g.Players[id].ToPublicPlayer())
	}
	return players
}

func (g *Game) recount() {
	g.Alive, g.Dead, g.Citizen, g.Zombie, g.Mutant = 0, 0, 0, 0, 0
	for _, p := range g.Players {
		if !p.Alive {
			g.Dead++
			continue
		}
		g.Alive++
		switch p.Role.Faction() {
		case RoleZombie:
			g.Zombie++
		case RoleMutant:
			g.Mutant++
		default:
			g.Citizen++
		}
	}
}
