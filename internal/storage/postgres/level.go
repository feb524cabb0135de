package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pixelvale/gamesync/internal/game/model"
)

// ErrLevelNotFound is returned when a level lookup yields no results.
var ErrLevelNotFound = errors.New("level not found")

// LevelRepository provides game level persistence operations.
type LevelRepository struct {
	db *pgxpool.Pool
}

// NewLevelRepository creates a LevelRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewLevelRepository(db *pgxpool.Pool) *LevelRepository {
	return &LevelRepository{db: db}
}

// Create inserts a new level and returns it with ID and timestamps set.
//
// Precondition: lvl.Name must be non-empty; lvl.Difficulty must be >= 1.
// Postcondition: Returns the created level with ID set, or a non-nil error.
func (r *LevelRepository) Create(ctx context.Context, lvl *model.GameLevel) (*model.GameLevel, error) {
	var out model.GameLevel
	err := r.db.QueryRow(ctx, `
		INSERT INTO game_levels (name, level_data, difficulty)
		VALUES ($1, $2, $3)
		RETURNING id, name, level_data, difficulty, created_at`,
		lvl.Name, lvl.LevelData, lvl.Difficulty,
	).Scan(&out.ID, &out.Name, &out.LevelData, &out.Difficulty, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting level: %w", err)
	}
	return &out, nil
}

// GetByID retrieves a level by its primary key.
//
// Precondition: id must be > 0.
// Postcondition: Returns the GameLevel or ErrLevelNotFound.
func (r *LevelRepository) GetByID(ctx context.Context, id int64) (*model.GameLevel, error) {
	var lvl model.GameLevel
	err := r.db.QueryRow(ctx, `
		SELECT id, name, level_data, difficulty, created_at
		FROM game_levels WHERE id = $1`,
		id,
	).Scan(&lvl.ID, &lvl.Name, &lvl.LevelData, &lvl.Difficulty, &lvl.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLevelNotFound
		}
		return nil, fmt.Errorf("querying level: %w", err)
	}
	return &lvl, nil
}

// Easiest retrieves the lowest-difficulty level. It backs the default
// when a create_room message omits level_id.
//
// Postcondition: Returns the GameLevel or ErrLevelNotFound when no levels exist.
func (r *LevelRepository) Easiest(ctx context.Context) (*model.GameLevel, error) {
	var lvl model.GameLevel
	err := r.db.QueryRow(ctx, `
		SELECT id, name, level_data, difficulty, created_at
		FROM game_levels ORDER BY difficulty ASC, name ASC LIMIT 1`,
	).Scan(&lvl.ID, &lvl.Name, &lvl.LevelData, &lvl.Difficulty, &lvl.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLevelNotFound
		}
		return nil, fmt.Errorf("querying easiest level: %w", err)
	}
	return &lvl, nil
}

// List returns all levels ordered by difficulty then name.
//
// Postcondition: Returns a slice (may be empty) or a non-nil error.
func (r *LevelRepository) List(ctx context.Context) ([]*model.GameLevel, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, level_data, difficulty, created_at
		FROM game_levels ORDER BY difficulty ASC, name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing levels: %w", err)
	}
	defer rows.Close()

	levels := make([]*model.GameLevel, 0)
	for rows.Next() {
		var lvl model.GameLevel
		if err := rows.Scan(&lvl.ID, &lvl.Name, &lvl.LevelData, &lvl.Difficulty, &lvl.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning level row: %w", err)
		}
		levels = append(levels, &lvl)
	}
	return levels, rows.Err()
}
