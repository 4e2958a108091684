package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scythe504/zombie-mafia-backend/internal"
)

const schema = `
CREATE TABLE IF NOT EXISTS games (
	room_id    BIGINT PRIMARY KEY,
	status     TEXT NOT NULL,
	state      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS room_phases (
	room_id    BIGINT PRIMARY KEY,
	phase      TEXT,
	timer      INTEGER,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PostgresStore keeps the game as a JSONB document and the phase/timer pair
// in its own row, so a restarted process picks up where it left off.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, wrapErr(err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the tables if they are missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return wrapErr(err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

const (
	upsertGame = `
		INSERT INTO games (room_id, status, state) VALUES ($1, $2, $3)
		ON CONFLICT (room_id) DO UPDATE SET status = EXCLUDED.status, state = EXCLUDED.state, updated_at = now()`

	upsertStep = `
		INSERT INTO room_phases (room_id, phase, timer) VALUES ($1, $2, $3)
		ON CONFLICT (room_id) DO UPDATE SET phase = EXCLUDED.phase, timer = EXCLUDED.timer, updated_at = now()`
)

func encodeGame(roomID int64, g *internal.Game) ([]byte, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: nil game for room %d", internal.ErrStore, roomID)
	}
	state, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", internal.ErrStore, err)
	}
	return state, nil
}

func (s *PostgresStore) SaveGame(ctx context.Context, roomID int64, g *internal.Game) error {
	state, err := encodeGame(roomID, g)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, upsertGame, roomID, string(g.Status), state)
	return wrapErr(err)
}

// SaveStep writes the game and its phase/timer pair in one transaction.
func (s *PostgresStore) SaveStep(ctx context.Context, roomID int64, g *internal.Game, phase internal.Phase, seconds int) error {
	state, err := encodeGame(roomID, g)
	if err != nil {
		return err
	}
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertGame, roomID, string(g.Status), state); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, upsertStep, roomID, string(phase), seconds)
		return err
	})
	return wrapErr(err)
}

func (s *PostgresStore) LoadGame(ctx context.Context, roomID int64) (*internal.Game, error) {
	var state []byte
	err := s.pool.QueryRow(ctx, `SELECT state FROM games WHERE room_id = $1`, roomID).Scan(&state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: room %d", internal.ErrGameNotFound, roomID)
		}
		return nil, wrapErr(err)
	}

	g := &internal.Game{}
	if err := json.Unmarshal(state, g); err != nil {
		return nil, fmt.Errorf("%w: decode game %d: %w", internal.ErrStore, roomID, err)
	}
	if g.Votes == nil {
		g.Votes = make(map[int64]int64)
	}
	if g.Players == nil {
		g.Players = make(map[int64]*internal.Player)
	}
	return g, nil
}

func (s *PostgresStore) DeleteGame(ctx context.Context, roomID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM games WHERE room_id = $1`, roomID)
	return wrapErr(err)
}

func (s *PostgresStore) SavePhase(ctx context.Context, roomID int64, phase internal.Phase) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO room_phases (room_id, phase) VALUES ($1, $2)
		ON CONFLICT (room_id) DO UPDATE SET phase = EXCLUDED.phase, updated_at = now()`,
		roomID, string(phase))
	return wrapErr(err)
}

// GetPhase returns the stored value as is; validating it is the caller's
// job.
func (s *PostgresStore) GetPhase(ctx context.Context, roomID int64) (internal.Phase, error) {
	var phase *string
	err := s.pool.QueryRow(ctx, `SELECT phase FROM room_phases WHERE room_id = $1`, roomID).Scan(&phase)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: room %d", internal.ErrPhaseNotFound, roomID)
		}
		return "", wrapErr(err)
	}
	if phase == nil {
		return "", fmt.Errorf("%w: room %d", internal.ErrPhaseNotFound, roomID)
	}
	return internal.Phase(*phase), nil
}

func (s *PostgresStore) SaveTimer(ctx context.Context, roomID int64, seconds int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO room_phases (room_id, timer) VALUES ($1, $2)
		ON CONFLICT (room_id) DO UPDATE SET timer = EXCLUDED.timer, updated_at = now()`,
		roomID, seconds)
	return wrapErr(err)
}

func (s *PostgresStore) GetTimer(ctx context.Context, roomID int64) (int, error) {
	var timer *int32
	err := s.pool.QueryRow(ctx, `SELECT timer FROM room_phases WHERE room_id = $1`, roomID).Scan(&timer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: room %d", internal.ErrTimerNotFound, roomID)
		}
		return 0, wrapErr(err)
	}
	if timer == nil {
		return 0, fmt.Errorf("%w: room %d", internal.ErrTimerNotFound, roomID)
	}
	return int(*timer), nil
}

func (s *PostgresStore) DecrementTimer(ctx context.Context, roomID int64, by int) (int, error) {
	var timer int32
	err := s.pool.QueryRow(ctx, `
		UPDATE room_phases SET timer = timer - $2, updated_at = now()
		WHERE room_id = $1 AND timer IS NOT NULL
		RETURNING timer`, roomID, by).Scan(&timer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: room %d", internal.ErrTimerNotFound, roomID)
		}
		return 0, wrapErr(err)
	}
	return int(timer), nil
}

func (s *PostgresStore) DeleteSeq(ctx context.Context, roomID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM room_phases WHERE room_id = $1`, roomID)
	return wrapErr(err)
}

// wrapErr tags database failures with internal.ErrStore. Context errors pass
// through untouched.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%w: %s (%s): %w", internal.ErrStore, pgErr.Message, pgErr.Code, err)
	}
	return fmt.Errorf("%w: %w", internal.ErrStore, err)
}
