package internal

import (
	"fmt"
	"time"
)

const (
	DayVoteSeconds        = 60
	FinalStatementSeconds = 30
	FinalVoteSeconds      = 20

	// SkipFloorSeconds is the least discussion time a skip may leave behind.
	SkipFloorSeconds = 15

	TickInterval = 1 * time.Second

	// NoTarget marks an abstention in votes and an empty night target.
	NoTarget int64 = -1
)

type Role string

const (
	RoleCitizen      Role = "CITIZEN"
	RoleZombie       Role = "ZOMBIE"
	RoleMutant       Role = "MUTANT"
	RolePolice       Role = "POLICE"
	RolePlagueDoctor Role = "PLAGUE_DOCTOR"
)

// Faction reports which win counter a role belongs to.
func (r Role) Faction() Role {
	switch r {
	case RoleZombie, RoleMutant:
		return r
	default:
		return RoleCitizen
	}
}

type Phase string

const (
	PhaseDayDiscussion     Phase = "DAY_DISCUSSION"
	PhaseDayVote           Phase = "DAY_VOTE"
	PhaseDayFinalStatement Phase = "DAY_FINAL_STATEMENT"
	PhaseDayFinalVote      Phase = "DAY_FINAL_VOTE"
	PhaseNightAction       Phase = "NIGHT_ACTION"
)

func ParsePhase(s string) (Phase, error) {
	switch p := Phase(s); p {
	case PhaseDayDiscussion, PhaseDayVote, PhaseDayFinalStatement, PhaseDayFinalVote, PhaseNightAction:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPhase, s)
}

type GameStatus string

const (
	StatusWaiting    GameStatus = "WAITING"
	StatusPlaying    GameStatus = "PLAYING"
	StatusCitizenWin GameStatus = "CITIZEN_WIN"
	StatusZombieWin  GameStatus = "ZOMBIE_WIN"
	StatusMutantWin  GameStatus = "MUTANT_WIN"
)

func (s GameStatus) IsTerminal() bool {
	return s == StatusCitizenWin || s == StatusZombieWin || s == StatusMutantWin
}

// Channel names used for chat/voice routing.
const (
	ChannelAll    = "all"
	ChannelZombie = "zombie"
	ChannelDead   = "dead"
)

// GameOption is copied from the room configuration when the game starts and
// never changes afterwards.
type GameOption struct {
	ZombieCount       int `json:"zombie_count"`
	MutantCount       int `json:"mutant_count"`
	HealCharges       int `json:"heal_charges"`
	NightSeconds      int `json:"night_seconds"`
	DiscussionSeconds int `json:"discussion_seconds"`
}

func DefaultGameOption() GameOption {
	return GameOption{
		ZombieCount:       1,
		MutantCount:       1,
		HealCharges:       2,
		NightSeconds:      30,
		DiscussionSeconds: 60,
	}
}

func (o GameOption) Validate() error {
	switch {
	case o.ZombieCount < 1:
		return fmt.Errorf("%w: zombie count must be at least 1", ErrInvalidOption)
	case o.MutantCount < 0 || o.MutantCount > 1:
		return fmt.Errorf("%w: mutant count must be 0 or 1", ErrInvalidOption)
	case o.HealCharges < 0:
		return fmt.Errorf("%w: heal charges cannot be negative", ErrInvalidOption)
	case o.NightSeconds <= 0 || o.DiscussionSeconds <= 0:
		return fmt.Errorf("%w: phase durations must be positive", ErrInvalidOption)
	}
	return nil
}

// Participant is a lobby member handed over when a game starts.
type Participant struct {
	MemberID int64  `json:"member_id"`
	Nickname string `json:"nickname"`
}

type Response struct {
	StatusCode    int   `json:"status_code"`
	RespStartTime int64 `json:"resp_time_start_ms"`
	RespEndTime   int64 `json:"resp_time_end_ms"`
	NetRespTime   int64 `json:"net_resp_time_ms"`
	Data          any   `json:"data"`
}
