package internal

import "errors"

// Validation errors: the action is rejected and the game is unchanged.
var (
	ErrInsufficientPlayers = errors.New("insufficient-players")
	ErrInvalidOption       = errors.New("invalid-game-option")
	ErrAlreadyReady        = errors.New("already-ready")
	ErrAlreadyInRoom       = errors.New("already-in-room")
	ErrGameAlreadyStarted  = errors.New("game-already-started")
	ErrGameTimeOver        = errors.New("game-time-over")
	ErrInvalidSkip         = errors.New("invalid-skip")
	ErrNotDiscussionPhase  = errors.New("not-discussion-phase")
	ErrVotingClosed        = errors.New("voting-closed")
	ErrNotNightPhase       = errors.New("not-night-phase")
	ErrDeadCannotVote      = errors.New("dead-cannot-vote")
	ErrPoliceCannotVote    = errors.New("marked-by-police-cannot-vote")
	ErrMutantCannotVote    = errors.New("mutant-cannot-vote")
	ErrDeadCannotAct       = errors.New("dead-cannot-act")
	ErrRoleMismatch        = errors.New("role-mismatch")
	ErrInvalidTarget       = errors.New("invalid-target")
	ErrNoHealCharges       = errors.New("no-heal-charges")
	ErrAlreadyInvestigated = errors.New("already-investigated")
	ErrAlreadyHealed       = errors.New("already-healed")
	ErrPlayerAlreadyDead   = errors.New("player-already-dead")
	ErrGameOver            = errors.New("game-over")
)

// Not-found errors.
var (
	ErrRoomNotFound   = errors.New("room-not-found")
	ErrGameNotFound   = errors.New("game-not-found")
	ErrPhaseNotFound  = errors.New("phase-not-found")
	ErrTimerNotFound  = errors.New("timer-not-found")
	ErrPlayerNotFound = errors.New("player-not-found")
)

// Internal errors.
var (
	ErrUnknownPhase       = errors.New("unknown-phase")
	ErrInvariantViolation = errors.New("invariant-violation")
	ErrStore              = errors.New("store-error")
)
