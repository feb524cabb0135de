package handlers

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/pixelvale/gamesync/internal/game/events"
	"github.com/pixelvale/gamesync/internal/game/rooms"
	"github.com/pixelvale/gamesync/internal/game/state"
)

// GameHandler routes messages on a gameplay connection: player movement,
// game-state reports, and chat. All resulting events are broadcast to
// every member of the sender's room, sender included.
type GameHandler struct {
	registry *rooms.Registry
	merger   *state.Merger
	logger   *zap.Logger
}

// NewGameHandler creates a GameHandler with the given dependencies.
//
// Precondition: registry, merger, and logger must be non-nil.
func NewGameHandler(registry *rooms.Registry, merger *state.Merger, logger *zap.Logger) *GameHandler {
	return &GameHandler{
		registry: registry,
		merger:   merger,
		logger:   logger,
	}
}

// HandleConnect is a no-op for gameplay connections; the transport has
// already joined the client to its room.
func (h *GameHandler) HandleConnect(ctx context.Context, c Client) {}

// HandleMessage classifies and dispatches one inbound frame.
func (h *GameHandler) HandleMessage(ctx context.Context, c Client, frame []byte) {
	tag, err := events.Classify(frame)
	if err != nil {
		h.logger.Debug("dropping unclassifiable frame",
			zap.String("member", c.ID()),
			zap.Error(err),
		)
		return
	}

	switch tag {
	case events.TypePlayerMove:
		h.handlePlayerMove(c, frame)
	case events.TypeGameState:
		h.handleGameState(ctx, c, frame)
	case events.TypeChatMessage:
		h.handleChat(c, frame)
	default:
		// Unknown tags are dropped without surfacing an error to the sender.
	}
}

func (h *GameHandler) handlePlayerMove(c Client, frame []byte) {
	var msg events.PlayerMove
	if err := json.Unmarshal(frame, &msg); err != nil {
		h.logger.Debug("dropping malformed player_move", zap.Error(err))
		return
	}

	h.broadcast(c, events.PlayerUpdate{
		Type:      events.TypePlayerUpdate,
		PlayerID:  msg.PlayerID,
		Position:  msg.Position,
		Animation: msg.Animation,
	})
}

func (h *GameHandler) handleGameState(ctx context.Context, c Client, frame []byte) {
	var msg events.GameState
	if err := json.Unmarshal(frame, &msg); err != nil {
		h.logger.Debug("dropping malformed game_state", zap.Error(err))
		return
	}

	// Persist before fan-out. Anonymous reports are relayed but never
	// persisted; persistence faults are logged and swallowed.
	if id := c.Identity(); id.Authenticated {
		if err := h.merger.Apply(ctx, id.Username, &msg); err != nil {
			h.logger.Warn("failed to persist game state",
				zap.String("username", id.Username),
				zap.String("room", c.RoomID()),
				zap.Error(err),
			)
		}
	}

	h.broadcast(c, events.GameUpdate{
		Type:      events.TypeGameUpdate,
		State:     msg.State,
		Timestamp: msg.Timestamp,
	})
}

func (h *GameHandler) handleChat(c Client, frame []byte) {
	var msg events.ChatMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		h.logger.Debug("dropping malformed chat_message", zap.Error(err))
		return
	}

	h.broadcast(c, events.ChatBroadcast{
		Type:      events.TypeChatMessage,
		Message:   msg.Message,
		Username:  c.Identity().DisplayName(),
		Timestamp: msg.Timestamp,
	})
}

func (h *GameHandler) broadcast(c Client, ev any) {
	data, err := events.Marshal(ev)
	if err != nil {
		h.logger.Error("encoding broadcast event", zap.Error(err))
		return
	}
	h.registry.Broadcast(c.RoomID(), data)
}
