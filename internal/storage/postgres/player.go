package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pixelvale/gamesync/internal/game/model"
)

// ErrPlayerNotFound is returned when a player lookup yields no results.
var ErrPlayerNotFound = errors.New("player not found")

// ErrUsernameTaken is returned when creating a player with a username already in use.
var ErrUsernameTaken = errors.New("username already taken")

// PlayerRepository provides player profile persistence operations.
type PlayerRepository struct {
	db *pgxpool.Pool
}

// NewPlayerRepository creates a PlayerRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewPlayerRepository(db *pgxpool.Pool) *PlayerRepository {
	return &PlayerRepository{db: db}
}

// Create inserts a new player profile and returns it with ID and timestamps set.
//
// Precondition: username must be non-empty.
// Postcondition: Returns the created player with ID set, or ErrUsernameTaken on duplicate.
func (r *PlayerRepository) Create(ctx context.Context, username string) (*model.Player, error) {
	var p model.Player
	err := r.db.QueryRow(ctx, `
		INSERT INTO players (username)
		VALUES ($1)
		RETURNING id, username, total_score, games_played, best_score, current_level, created_at`,
		username,
	).Scan(
		&p.ID, &p.Username, &p.TotalScore, &p.GamesPlayed,
		&p.BestScore, &p.CurrentLevel, &p.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("inserting player: %w", err)
	}
	return &p, nil
}

// GetByUsername retrieves a player profile by username.
//
// Precondition: username must be non-empty.
// Postcondition: Returns the Player or ErrPlayerNotFound.
func (r *PlayerRepository) GetByUsername(ctx context.Context, username string) (*model.Player, error) {
	var p model.Player
	err := r.db.QueryRow(ctx, `
		SELECT id, username, total_score, games_played, best_score, current_level, created_at
		FROM players WHERE username = $1`,
		username,
	).Scan(
		&p.ID, &p.Username, &p.TotalScore, &p.GamesPlayed,
		&p.BestScore, &p.CurrentLevel, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlayerNotFound
		}
		return nil, fmt.Errorf("querying player: %w", err)
	}
	return &p, nil
}

// GetByID retrieves a player profile by its primary key.
//
// Precondition: id must be > 0.
// Postcondition: Returns the Player or ErrPlayerNotFound.
func (r *PlayerRepository) GetByID(ctx context.Context, id int64) (*model.Player, error) {
	var p model.Player
	err := r.db.QueryRow(ctx, `
		SELECT id, username, total_score, games_played, best_score, current_level, created_at
		FROM players WHERE id = $1`,
		id,
	).Scan(
		&p.ID, &p.Username, &p.TotalScore, &p.GamesPlayed,
		&p.BestScore, &p.CurrentLevel, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlayerNotFound
		}
		return nil, fmt.Errorf("querying player: %w", err)
	}
	return &p, nil
}

// Leaderboard returns the top players ordered by best score descending.
//
// Precondition: limit must be > 0.
// Postcondition: Returns a slice (may be empty) or a non-nil error.
func (r *PlayerRepository) Leaderboard(ctx context.Context, limit int) ([]*model.Player, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, username, total_score, games_played, best_score, current_level, created_at
		FROM players ORDER BY best_score DESC, username ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}
	defer rows.Close()

	players := make([]*model.Player, 0)
	for rows.Next() {
		var p model.Player
		if err := rows.Scan(
			&p.ID, &p.Username, &p.TotalScore, &p.GamesPlayed,
			&p.BestScore, &p.CurrentLevel, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning player row: %w", err)
		}
		players = append(players, &p)
	}
	return players, rows.Err()
}
