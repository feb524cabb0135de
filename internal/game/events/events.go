// Package events defines the JSON wire protocol for the game and lobby
// endpoints: inbound client messages and outbound broadcast events, both
// tagged by a top-level "type" field.
package events

import (
	"encoding/json"
	"fmt"
)

// AnonymousName is the display name used for unauthenticated connections.
const AnonymousName = "anonymous"

// Inbound message tags.
const (
	TypePlayerMove  = "player_move"
	TypeGameState   = "game_state"
	TypeChatMessage = "chat_message"
	TypeCreateRoom  = "create_room"
	TypeJoinRoom    = "join_room"
	TypeGetRooms    = "get_rooms"
)

// Outbound event tags.
const (
	TypePlayerUpdate = "player_update"
	TypeGameUpdate   = "game_update"
	TypeRoomCreated  = "room_created"
	TypePlayerJoined = "player_joined"
	TypeActiveGames  = "active_games"
)

// Envelope carries only the type tag, used to classify an inbound frame
// before the payload is decoded.
type Envelope struct {
	Type string `json:"type"`
}

// PlayerMove reports a player's position and animation state.
// Position is relayed verbatim; the server does not interpret it.
type PlayerMove struct {
	PlayerID  string          `json:"player_id"`
	Position  json.RawMessage `json:"position"`
	Animation string          `json:"animation"`
}

// GameState reports a partial game-state document to merge into the
// player's open session. Score, when present inside State, overwrites the
// persisted score.
type GameState struct {
	State     map[string]any  `json:"game_state"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// Score extracts the "score" key from the state document.
//
// Postcondition: Returns (score, true) when present and numeric, (0, false) otherwise.
func (g *GameState) Score() (int, bool) {
	v, ok := g.State["score"]
	if !ok {
		return 0, false
	}
	// JSON numbers decode as float64.
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// ChatMessage is an inbound chat line.
type ChatMessage struct {
	Message   string          `json:"message"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// CreateRoom announces a new game room to the lobby. LevelID and
// MaxPlayers are optional; absent values fall back to the
// lowest-difficulty level and the configured default player cap.
type CreateRoom struct {
	RoomName   string `json:"room_name"`
	LevelID    *int64 `json:"level_id"`
	MaxPlayers *int   `json:"max_players"`
}

// JoinRoom announces that a player is joining a game room.
type JoinRoom struct {
	RoomName string `json:"room_name"`
}

// PlayerUpdate is the broadcast form of a player_move.
type PlayerUpdate struct {
	Type      string          `json:"type"`
	PlayerID  string          `json:"player_id"`
	Position  json.RawMessage `json:"position"`
	Animation string          `json:"animation"`
}

// GameUpdate is the broadcast form of a game_state.
type GameUpdate struct {
	Type      string          `json:"type"`
	State     map[string]any  `json:"game_state"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// ChatBroadcast is the broadcast form of a chat_message, stamped with the
// sender's display name.
type ChatBroadcast struct {
	Type      string          `json:"type"`
	Message   string          `json:"message"`
	Username  string          `json:"username"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// RoomCreated announces a new game room to lobby members.
type RoomCreated struct {
	Type       string `json:"type"`
	RoomName   string `json:"room_name"`
	LevelID    int64  `json:"level_id"`
	MaxPlayers int    `json:"max_players"`
	Creator    string `json:"creator"`
}

// PlayerJoined announces a player joining a game room to lobby members.
type PlayerJoined struct {
	Type     string `json:"type"`
	RoomName string `json:"room_name"`
	Player   string `json:"player"`
}

// GameInfo describes one joinable game room in an active_games listing.
type GameInfo struct {
	RoomName   string `json:"room_name"`
	Level      string `json:"level"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"max_players"`
}

// ActiveGames lists the currently joinable game rooms.
type ActiveGames struct {
	Type  string     `json:"type"`
	Games []GameInfo `json:"games"`
}

// Classify extracts the type tag from a raw inbound frame.
//
// Postcondition: Returns the tag string, or an error for frames that are
// not JSON objects with a string "type" field.
func Classify(frame []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return "", fmt.Errorf("parsing message envelope: %w", err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("message has no type tag")
	}
	return env.Type, nil
}

// Marshal encodes an outbound event for broadcast.
//
// Precondition: ev must be one of the outbound event structs with its Type set.
// Postcondition: Returns the JSON encoding or a non-nil error.
func Marshal(ev any) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encoding event: %w", err)
	}
	return data, nil
}
