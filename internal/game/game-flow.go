package game

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/scythe504/zombie-mafia-backend/internal"
	"github.com/scythe504/zombie-mafia-backend/internal/utils"
)

// =============================================================================
// GAME FLOW - PHASE ADVANCEMENT
// =============================================================================

// advance resolves the phase that just ran out, moves the room to the next
// phase and persists everything. done is true when the resolution ended the
// game; the phase record is then left as it was. g is only ever persisted
// together with the next phase and timer, so a failed write leaves the room
// exactly as the tick found it and the next tick resolves the same state.
// Caller holds the room lock.
func (s *Scheduler) advance(ctx context.Context, g *internal.Game, from internal.Phase) (step Step, done bool, err error) {
	roomID := g.RoomID
	outbox := make([]any, 0, 3)
	voteTarget := internal.NoTarget

	switch from {
	case internal.PhaseDayVote:
		voteTarget = VoteResult(g)
		outbox = append(outbox, internal.Message[internal.VoteResultData]{
			Type: internal.MsgVoteResult,
			Data: internal.VoteResultData{Target: voteTarget, Tally: Tally(g)},
		})
		g.Nominee = voteTarget
		g.ClearVotes()
		log.Info().Int64("room", roomID).Int64("nominee", voteTarget).Msg("[advance] day vote resolved")

	case internal.PhaseDayFinalVote:
		target := VoteResult(g)
		outbox = append(outbox, internal.Message[internal.VoteResultData]{
			Type: internal.MsgVoteResult,
			Data: internal.VoteResultData{Target: target, Tally: Tally(g), Final: true},
		})
		if target != internal.NoTarget && target == g.Nominee {
			if _, err := g.Kill(target); err != nil {
				return Step{}, false, fmt.Errorf("execute %d: %w", target, err)
			}
			outbox = append(outbox, internal.Message[internal.ExecutionData]{
				Type: internal.MsgPlayerExecuted,
				Data: internal.ExecutionData{Target: target, Role: g.Players[target].Role},
			})
			log.Info().Int64("room", roomID).Int64("member", target).Msg("[advance] nominee executed")
		}
		g.Nominee = internal.NoTarget
		g.ClearVotes()

	case internal.PhaseNightAction:
		result, err := ProcessNightResolution(g)
		if err != nil {
			return Step{}, false, fmt.Errorf("night resolution: %w", err)
		}
		outbox = append(outbox, internal.Message[internal.NightResultData]{
			Type: internal.MsgNightResult,
			Data: internal.NightResultData{Healed: result.Healed, Killed: result.Killed, Day: g.Day},
		})
		g.Day++
		log.Info().Int64("room", roomID).Ints64("killed", result.Killed).Int64("healed", result.Healed).
			Msg("[advance] night resolved")
	}

	if status := IsGameOver(g); status.IsTerminal() {
		g.Finish(status)
		if err := s.store.SaveGame(ctx, roomID, g); err != nil {
			return Step{}, false, err
		}
		outbox = append(outbox, gameOverMessage(g))
		s.flush(roomID, outbox)
		log.Info().Int64("room", roomID).Str("status", string(status)).Msg("[advance] game over")
		return Step{}, true, nil
	}

	step, err = Transition(from, voteTarget, g.Option)
	if err != nil {
		return Step{}, false, err
	}
	applyEffect(g, step.Effect)
	if step.Effect != EffectNone {
		outbox = append(outbox, permissionsMessage(g, step.To))
	}

	if err := s.store.SaveStep(ctx, roomID, g, step.To, step.Seconds); err != nil {
		return Step{}, false, err
	}

	s.flush(roomID, outbox)
	log.Info().Int64("room", roomID).Str("from", string(from)).Str("to", string(step.To)).
		Int("timer", step.Seconds).Msg("[advance] phase changed")
	return step, false, nil
}

func (s *Scheduler) flush(roomID int64, outbox []any) {
	for _, msg := range outbox {
		publish(s.publisher, systemTopic(roomID), msg)
	}
}

func applyEffect(g *internal.Game, effect Effect) {
	switch effect {
	case EffectRestrictToNight:
		g.RestrictToNight()
	case EffectRestoreSurvivors:
		g.ClearVotes()
		g.RestoreSurvivors()
	}
}

func permissionsMessage(g *internal.Game, phase internal.Phase) internal.Message[internal.PermissionsData] {
	channels := make(map[int64][]string, len(g.Players))
	for id, p := range g.Players {
		channels[id] = p.ChannelList()
	}
	return internal.Message[internal.PermissionsData]{
		Type: internal.MsgPermissions,
		Data: internal.PermissionsData{Phase: phase, Channels: channels},
	}
}

func gameOverMessage(g *internal.Game) internal.Message[internal.GameOverData] {
	roles := make(map[int64]internal.Role, len(g.Players))
	for id, p := range g.Players {
		roles[id] = p.Role
	}
	return internal.Message[internal.GameOverData]{
		Type: internal.MsgGameOver,
		Data: internal.GameOverData{Status: g.Status, Players: g.PublicPlayers(), Roles: roles},
	}
}

func systemTopic(roomID int64) string {
	return utils.SystemTopic(roomID)
}

// publish is fire-and-forget: a failed publish is logged and the game goes on.
func publish(p Publisher, topic string, msg any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("[publish] failed to marshal message")
		return
	}
	if err := p.Publish(topic, string(payload)); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("[publish] failed to publish message")
	}
}
