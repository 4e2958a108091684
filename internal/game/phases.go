package game

import (
	"fmt"

	"github.com/scythe504/zombie-mafia-backend/internal"
)

// Effect is the side effect a transition has on channel permissions.
type Effect int

const (
	EffectNone Effect = iota
	// EffectRestrictToNight leaves only the eliminating faction's channel open.
	EffectRestrictToNight
	// EffectRestoreSurvivors clears votes and reopens the day channel.
	EffectRestoreSurvivors
)

type condition int

const (
	onExpire condition = iota
	onAbstention
	onTarget
)

type transition struct {
	from   internal.Phase
	when   condition
	to     internal.Phase
	timer  func(internal.GameOption) int
	effect Effect
}

// Step is the outcome of a phase transition.
type Step struct {
	To      internal.Phase
	Seconds int
	Effect  Effect
}

func fixed(seconds int) func(internal.GameOption) int {
	return func(internal.GameOption) int { return seconds }
}

func nightSeconds(o internal.GameOption) int      { return o.NightSeconds }
func discussionSeconds(o internal.GameOption) int { return o.DiscussionSeconds }

var transitions = []transition{
	{internal.PhaseDayDiscussion, onExpire, internal.PhaseDayVote, fixed(internal.DayVoteSeconds), EffectNone},
	{internal.PhaseDayVote, onAbstention, internal.PhaseNightAction, nightSeconds, EffectRestrictToNight},
	{internal.PhaseDayVote, onTarget, internal.PhaseDayFinalStatement, fixed(internal.FinalStatementSeconds), EffectNone},
	{internal.PhaseDayFinalStatement, onExpire, internal.PhaseDayFinalVote, fixed(internal.FinalVoteSeconds), EffectNone},
	{internal.PhaseDayFinalVote, onExpire, internal.PhaseNightAction, nightSeconds, EffectRestrictToNight},
	{internal.PhaseNightAction, onExpire, internal.PhaseDayDiscussion, discussionSeconds, EffectRestoreSurvivors},
}

// Transition looks up the next phase. voteTarget only matters when leaving
// DAY_VOTE, where NoTarget sends the room straight to night.
func Transition(from internal.Phase, voteTarget int64, option internal.GameOption) (Step, error) {
	when := onExpire
	if from == internal.PhaseDayVote {
		when = onTarget
		if voteTarget == internal.NoTarget {
			when = onAbstention
		}
	}
	for _, t := range transitions {
		if t.from == from && t.when == when {
			return Step{To: t.to, Seconds: t.timer(option), Effect: t.effect}, nil
		}
	}
	return Step{}, fmt.Errorf("%w: %q", internal.ErrUnknownPhase, from)
}

// InitialStep is where every game begins.
func InitialStep(option internal.GameOption) Step {
	return Step{To: internal.PhaseDayDiscussion, Seconds: option.DiscussionSeconds, Effect: EffectRestoreSurvivors}
}
