package game

import (
	"context"

	"github.com/scythe504/zombie-mafia-backend/internal"
)

// RoomDirectory is the lobby side of a room: who is in it and how it is
// configured.
type RoomDirectory interface {
	Participants(ctx context.Context, roomID int64) ([]internal.Participant, error)
	GameOption(ctx context.Context, roomID int64) (internal.GameOption, error)
}

// Store persists games and the phase/timer pair per room. Missing records
// are reported with internal.ErrGameNotFound, ErrPhaseNotFound and
// ErrTimerNotFound.
type Store interface {
	SaveGame(ctx context.Context, roomID int64, g *internal.Game) error
	LoadGame(ctx context.Context, roomID int64) (*internal.Game, error)
	DeleteGame(ctx context.Context, roomID int64) error

	SavePhase(ctx context.Context, roomID int64, phase internal.Phase) error
	GetPhase(ctx context.Context, roomID int64) (internal.Phase, error)
	SaveTimer(ctx context.Context, roomID int64, seconds int) error
	GetTimer(ctx context.Context, roomID int64) (int, error)
	DecrementTimer(ctx context.Context, roomID int64, by int) (int, error)
	DeleteSeq(ctx context.Context, roomID int64) error

	// SaveStep writes the game, phase and timer together: either all
	// three land or none does.
	SaveStep(ctx context.Context, roomID int64, g *internal.Game, phase internal.Phase, seconds int) error
}

type Publisher interface {
	Publish(topic string, payload string) error
}

// VoiceProvisioner hands out voice sessions. Every call is best-effort.
type VoiceProvisioner interface {
	CreateSession(ctx context.Context, roomID int64) (string, error)
	IssueToken(ctx context.Context, roomID, memberID int64) (string, error)
	CloseSession(ctx context.Context, roomID int64) error
}
