package internal

import (
	"maps"
	"slices"
)

type Player struct {
	MemberID int64  `json:"member_id"`
	Nickname string `json:"nickname"`
	Role     Role   `json:"role"`
	Alive    bool   `json:"alive"`

	// CanVote turns false for a MUTANT from the start and for a ZOMBIE
	// exposed by a police investigation.
	CanVote bool `json:"can_vote"`

	Channels map[string]bool `json:"channels"`
}

// PlayerSnapshot is what other players are allowed to see.
type PlayerSnapshot struct {
	MemberID int64  `json:"member_id"`
	Nickname string `json:"nickname"`
	Alive    bool   `json:"alive"`
	Role     Role   `json:"role,omitempty"`
}

func NewPlayer(memberID int64, nickname string) *Player {
	return &Player{
		MemberID: memberID,
		Nickname: nickname,
		Role:     RoleCitizen,
		Alive:    true,
		CanVote:  true,
		Channels: map[string]bool{ChannelAll: true},
	}
}

func (p *Player) Clone() *Player {
	cp := *p
	cp.Channels = maps.Clone(p.Channels)
	if cp.Channels == nil {
		cp.Channels = make(map[string]bool)
	}
	return &cp
}

// ChannelList returns the subscribed channels in a stable order.
func (p *Player) ChannelList() []string {
	channels := make([]string, 0, len(p.Channels))
	for ch, on := range p.Channels {
		if on {
			channels = append(channels, ch)
		}
	}
	slices.Sort(channels)
	return channels
}

// ToPublicPlayer hides the role of living players.
func (p *Player) ToPublicPlayer() PlayerSnapshot {
	snap := PlayerSnapshot{
		MemberID: p.MemberID,
		Nickname: p.Nickname,
		Alive:    p.Alive,
	}
	if !p.Alive {
		snap.Role = p.Role
	}
	return snap
}

func (p *Player) setChannels(channels ...string) {
	p.Channels = make(map[string]bool, len(channels))
	for _, ch := range channels {
		p.Channels[ch] = true
	}
}
