package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pixelvale/gamesync/internal/game/events"
	"github.com/pixelvale/gamesync/internal/game/model"
	"github.com/pixelvale/gamesync/internal/game/rooms"
	"github.com/pixelvale/gamesync/internal/storage/postgres"
)

// LevelCatalog resolves level references for room announcements.
// Lookups for missing levels return postgres.ErrLevelNotFound.
type LevelCatalog interface {
	GetByID(ctx context.Context, id int64) (*model.GameLevel, error)
	Easiest(ctx context.Context) (*model.GameLevel, error)
}

// LobbyHandler routes messages on lobby connections: room creation and
// join announcements, and active-game discovery.
//
// create_room and join_room are announcement-only. Neither mutates game
// room membership; the gameplay connection performs the actual registry
// join when it connects to the game endpoint. create_room does record
// discovery metadata so that get_rooms listings reflect announced rooms.
type LobbyHandler struct {
	registry          *rooms.Registry
	levels            LevelCatalog
	lobbyRoom         string
	defaultMaxPlayers int
	logger            *zap.Logger
}

// NewLobbyHandler creates a LobbyHandler with the given dependencies.
//
// Precondition: registry, levels, and logger must be non-nil;
// lobbyRoom must be non-empty; defaultMaxPlayers must be >= 1.
func NewLobbyHandler(registry *rooms.Registry, levels LevelCatalog, lobbyRoom string, defaultMaxPlayers int, logger *zap.Logger) *LobbyHandler {
	return &LobbyHandler{
		registry:          registry,
		levels:            levels,
		lobbyRoom:         lobbyRoom,
		defaultMaxPlayers: defaultMaxPlayers,
		logger:            logger,
	}
}

// HandleConnect pushes the current active-games listing to the newly
// connected lobby client.
func (h *LobbyHandler) HandleConnect(ctx context.Context, c Client) {
	h.sendActiveGames(c)
}

// HandleMessage classifies and dispatches one inbound frame.
func (h *LobbyHandler) HandleMessage(ctx context.Context, c Client, frame []byte) {
	tag, err := events.Classify(frame)
	if err != nil {
		h.logger.Debug("dropping unclassifiable frame",
			zap.String("member", c.ID()),
			zap.Error(err),
		)
		return
	}

	switch tag {
	case events.TypeCreateRoom:
		h.handleCreateRoom(ctx, c, frame)
	case events.TypeJoinRoom:
		h.handleJoinRoom(c, frame)
	case events.TypeGetRooms:
		h.sendActiveGames(c)
	default:
		// Unknown tags are dropped without surfacing an error to the sender.
	}
}

func (h *LobbyHandler) handleCreateRoom(ctx context.Context, c Client, frame []byte) {
	var msg events.CreateRoom
	if err := json.Unmarshal(frame, &msg); err != nil {
		h.logger.Debug("dropping malformed create_room", zap.Error(err))
		return
	}
	if msg.RoomName == "" {
		h.logger.Debug("dropping create_room without room_name",
			zap.String("member", c.ID()),
		)
		return
	}

	maxPlayers := h.defaultMaxPlayers
	if msg.MaxPlayers != nil {
		maxPlayers = *msg.MaxPlayers
	}

	levelID, levelName := h.resolveLevel(ctx, msg.LevelID)
	creator := c.Identity().DisplayName()

	h.registry.Announce(msg.RoomName, rooms.Metadata{
		LevelID:    levelID,
		LevelName:  levelName,
		MaxPlayers: maxPlayers,
		Creator:    creator,
	})

	h.broadcastToLobby(events.RoomCreated{
		Type:       events.TypeRoomCreated,
		RoomName:   msg.RoomName,
		LevelID:    levelID,
		MaxPlayers: maxPlayers,
		Creator:    creator,
	})

	h.logger.Info("room announced",
		zap.String("room", msg.RoomName),
		zap.Int64("level_id", levelID),
		zap.Int("max_players", maxPlayers),
		zap.String("creator", creator),
	)
}

func (h *LobbyHandler) handleJoinRoom(c Client, frame []byte) {
	var msg events.JoinRoom
	if err := json.Unmarshal(frame, &msg); err != nil {
		h.logger.Debug("dropping malformed join_room", zap.Error(err))
		return
	}
	if msg.RoomName == "" {
		return
	}

	h.broadcastToLobby(events.PlayerJoined{
		Type:     events.TypePlayerJoined,
		RoomName: msg.RoomName,
		Player:   c.Identity().DisplayName(),
	})
}

func (h *LobbyHandler) sendActiveGames(c Client) {
	games := h.registry.ActiveGames(h.lobbyRoom)
	listing := events.ActiveGames{
		Type:  events.TypeActiveGames,
		Games: make([]events.GameInfo, 0, len(games)),
	}
	for _, g := range games {
		listing.Games = append(listing.Games, events.GameInfo{
			RoomName:   g.Name,
			Level:      g.Meta.LevelName,
			Players:    g.Players,
			MaxPlayers: g.Meta.MaxPlayers,
		})
	}

	data, err := events.Marshal(listing)
	if err != nil {
		h.logger.Error("encoding active games listing", zap.Error(err))
		return
	}
	if err := c.Send(data); err != nil {
		h.logger.Debug("dropping active games listing",
			zap.String("member", c.ID()),
			zap.Error(err),
		)
	}
}

// resolveLevel maps an optional level reference to a concrete level,
// falling back to the lowest-difficulty level when absent. Catalog
// faults degrade to a synthetic display name so the announcement still
// goes out.
func (h *LobbyHandler) resolveLevel(ctx context.Context, ref *int64) (int64, string) {
	if ref != nil {
		lvl, err := h.levels.GetByID(ctx, *ref)
		if err != nil {
			if !errors.Is(err, postgres.ErrLevelNotFound) {
				h.logger.Warn("resolving level", zap.Int64("level_id", *ref), zap.Error(err))
			}
			return *ref, fmt.Sprintf("Level %d", *ref)
		}
		return lvl.ID, lvl.Name
	}

	lvl, err := h.levels.Easiest(ctx)
	if err != nil {
		if !errors.Is(err, postgres.ErrLevelNotFound) {
			h.logger.Warn("resolving default level", zap.Error(err))
		}
		return 1, "Level 1"
	}
	return lvl.ID, lvl.Name
}

func (h *LobbyHandler) broadcastToLobby(ev any) {
	data, err := events.Marshal(ev)
	if err != nil {
		h.logger.Error("encoding lobby event", zap.Error(err))
		return
	}
	h.registry.Broadcast(h.lobbyRoom, data)
}
