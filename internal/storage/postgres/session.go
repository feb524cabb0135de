package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pixelvale/gamesync/internal/game/model"
)

// ErrSessionNotFound is returned when a session lookup yields no results.
var ErrSessionNotFound = errors.New("game session not found")

// SessionRepository provides game session persistence operations.
//
// The open-session invariant (at most one session per player with
// completed = false) is enforced twice: Start looks up an existing open
// session before inserting, and the game_sessions table carries a partial
// unique index on (player_id) WHERE NOT completed as a backstop.
type SessionRepository struct {
	db *pgxpool.Pool
}

// NewSessionRepository creates a SessionRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewSessionRepository(db *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, player_id, level_id, score, completed, start_time, end_time, game_data`

// Start returns the player's open session, creating one for the given
// level when none exists.
//
// Precondition: playerID and levelID must reference existing rows.
// Postcondition: Returns an open session. A second Start for the same
// player returns the already-open session unchanged.
func (r *SessionRepository) Start(ctx context.Context, playerID, levelID int64) (*model.GameSession, error) {
	existing, err := r.FindOpen(ctx, playerID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}

	var s model.GameSession
	err = r.db.QueryRow(ctx, `
		INSERT INTO game_sessions (player_id, level_id)
		VALUES ($1, $2)
		RETURNING `+sessionColumns,
		playerID, levelID,
	).Scan(
		&s.ID, &s.PlayerID, &s.LevelID, &s.Score, &s.Completed,
		&s.StartTime, &s.EndTime, &s.GameData,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			// Lost a race with a concurrent Start; the open session wins.
			return r.FindOpen(ctx, playerID)
		}
		return nil, fmt.Errorf("inserting game session: %w", err)
	}
	return &s, nil
}

// FindOpen retrieves the player's open (completed = false) session.
//
// Precondition: playerID must be > 0.
// Postcondition: Returns the GameSession or ErrSessionNotFound.
func (r *SessionRepository) FindOpen(ctx context.Context, playerID int64) (*model.GameSession, error) {
	var s model.GameSession
	err := r.db.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM game_sessions WHERE player_id = $1 AND NOT completed`,
		playerID,
	).Scan(
		&s.ID, &s.PlayerID, &s.LevelID, &s.Score, &s.Completed,
		&s.StartTime, &s.EndTime, &s.GameData,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("querying open session: %w", err)
	}
	return &s, nil
}

// GetByID retrieves a session by its primary key.
//
// Precondition: id must be > 0.
// Postcondition: Returns the GameSession or ErrSessionNotFound.
func (r *SessionRepository) GetByID(ctx context.Context, id int64) (*model.GameSession, error) {
	var s model.GameSession
	err := r.db.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM game_sessions WHERE id = $1`,
		id,
	).Scan(
		&s.ID, &s.PlayerID, &s.LevelID, &s.Score, &s.Completed,
		&s.StartTime, &s.EndTime, &s.GameData,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return &s, nil
}

// MergeState merges a partial game-state document into the session's
// game_data, last-write-wins per key, and overwrites score when score is
// non-nil. The merge happens in a single UPDATE via the jsonb || operator,
// so applying the same partial state twice yields identical rows.
//
// Precondition: sessionID must reference an open session; partial must be non-nil.
// Postcondition: Returns nil on success, ErrSessionNotFound if no open row matched.
func (r *SessionRepository) MergeState(ctx context.Context, sessionID int64, partial map[string]any, score *int) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE game_sessions
		SET game_data = game_data || $2::jsonb,
		    score = COALESCE($3, score)
		WHERE id = $1 AND NOT completed`,
		sessionID, partial, score,
	)
	if err != nil {
		return fmt.Errorf("merging session state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Complete closes the session and rolls its score into the player's
// lifetime statistics in a single transaction.
//
// Precondition: sessionID must reference an open session.
// Postcondition: The session has completed = true and end_time set; the
// player's games_played, total_score, and best_score reflect the result.
// Returns ErrSessionNotFound if the session is absent or already closed.
func (r *SessionRepository) Complete(ctx context.Context, sessionID int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var playerID int64
	var score int
	err = tx.QueryRow(ctx, `
		UPDATE game_sessions
		SET completed = TRUE, end_time = NOW()
		WHERE id = $1 AND NOT completed
		RETURNING player_id, score`,
		sessionID,
	).Scan(&playerID, &score)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("completing session: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE players
		SET games_played = games_played + 1,
		    total_score = total_score + $2,
		    best_score = GREATEST(best_score, $2)
		WHERE id = $1`,
		playerID, score,
	)
	if err != nil {
		return fmt.Errorf("updating player statistics: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	// pgx wraps PostgreSQL errors; check for SQLSTATE 23505 (unique_violation)
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
