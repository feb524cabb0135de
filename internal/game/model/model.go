// Package model defines the persisted domain types for the coordination
// server: player profiles, game levels, and game sessions.
package model

import "time"

// Player is a registered player profile with lifetime statistics.
type Player struct {
	ID           int64
	Username     string
	TotalScore   int
	GamesPlayed  int
	BestScore    int
	CurrentLevel int
	CreatedAt    time.Time
}

// GameLevel is a playable level definition. LevelData is an opaque
// serialized map consumed by the client.
type GameLevel struct {
	ID         int64
	Name       string
	LevelData  string
	Difficulty int
	CreatedAt  time.Time
}

// GameSession is one playthrough of a level by a player.
// At most one session per player may be open (Completed == false);
// the storage layer enforces this with a partial unique index and a
// lookup-before-create in SessionRepository.Start.
type GameSession struct {
	ID        int64
	PlayerID  int64
	LevelID   int64
	Score     int
	Completed bool
	StartTime time.Time
	EndTime   *time.Time
	GameData  map[string]any
}

// Open reports whether the session is still in progress.
func (s *GameSession) Open() bool {
	return !s.Completed
}
