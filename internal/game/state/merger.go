// Package state merges client-reported game state into persisted game
// sessions. Updates are best-effort telemetry: unknown players and
// missing sessions are expected and skipped, and persistence faults are
// reported to the caller but never block event fan-out.
package state

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pixelvale/gamesync/internal/game/events"
	"github.com/pixelvale/gamesync/internal/game/model"
	"github.com/pixelvale/gamesync/internal/storage/postgres"
)

// PlayerFinder resolves usernames to player profiles.
// Lookups for unknown players return postgres.ErrPlayerNotFound.
type PlayerFinder interface {
	GetByUsername(ctx context.Context, username string) (*model.Player, error)
}

// SessionStore locates and mutates open game sessions.
// Lookups with no open session return postgres.ErrSessionNotFound.
type SessionStore interface {
	FindOpen(ctx context.Context, playerID int64) (*model.GameSession, error)
	MergeState(ctx context.Context, sessionID int64, partial map[string]any, score *int) error
}

// Merger applies game_state updates to the reporting player's open session.
type Merger struct {
	players  PlayerFinder
	sessions SessionStore
	logger   *zap.Logger
}

// NewMerger creates a Merger with the given dependencies.
//
// Precondition: players, sessions, and logger must be non-nil.
func NewMerger(players PlayerFinder, sessions SessionStore, logger *zap.Logger) *Merger {
	return &Merger{
		players:  players,
		sessions: sessions,
		logger:   logger,
	}
}

// Apply merges the reported partial state into the player's open session:
// last-write-wins per game_data key, and the score overwritten when the
// report carries one. The write completes before Apply returns, so a
// caller broadcasting afterwards never fans out state that silently
// failed to persist without at least an error in hand.
//
// Unknown players and players without an open session are skipped and
// return nil; sessions are never created here — only an explicit session
// start does that. Applying the same report twice yields the same
// persisted state.
//
// Postcondition: Returns nil on success or skip, or a non-nil error for
// persistence faults (which callers log and otherwise swallow).
func (m *Merger) Apply(ctx context.Context, username string, report *events.GameState) error {
	if report.State == nil {
		return nil
	}

	player, err := m.players.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, postgres.ErrPlayerNotFound) {
			m.logger.Debug("discarding game state for unknown player",
				zap.String("username", username),
			)
			return nil
		}
		return fmt.Errorf("resolving player %q: %w", username, err)
	}

	session, err := m.sessions.FindOpen(ctx, player.ID)
	if err != nil {
		if errors.Is(err, postgres.ErrSessionNotFound) {
			m.logger.Debug("discarding game state without open session",
				zap.String("username", username),
				zap.Int64("player_id", player.ID),
			)
			return nil
		}
		return fmt.Errorf("finding open session for player %d: %w", player.ID, err)
	}

	var score *int
	if s, ok := report.Score(); ok {
		score = &s
	}

	if err := m.sessions.MergeState(ctx, session.ID, report.State, score); err != nil {
		return fmt.Errorf("merging state into session %d: %w", session.ID, err)
	}

	return nil
}
