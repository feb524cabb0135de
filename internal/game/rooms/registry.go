// Package rooms provides the room registry: named sets of connections
// that receive each other's broadcast events, plus the metadata that
// backs lobby room discovery.
package rooms

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Member is a connection registered in a room. The registry references
// members; it never owns them — connection lifetime belongs to the
// transport layer.
type Member interface {
	// ID uniquely identifies the connection within the registry.
	ID() string
	// Send enqueues an outbound frame. It must not block; a full or
	// closed connection returns an error.
	Send(data []byte) error
}

// Metadata describes an announced game room for lobby discovery.
type Metadata struct {
	LevelID    int64
	LevelName  string
	MaxPlayers int
	Creator    string
}

// Game is one entry in an active-games snapshot.
type Game struct {
	Name    string
	Players int
	Meta    Metadata
}

type room struct {
	members map[string]Member
	meta    *Metadata
}

// Registry maps room names to member sets. All methods are safe for
// concurrent use; join, leave, and the membership snapshot taken by
// Broadcast are serialized by a single mutex, so a broadcast observes a
// consistent membership at call time.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*room
	logger *zap.Logger
}

// NewRegistry creates an empty room registry.
//
// Precondition: logger must be non-nil.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		rooms:  make(map[string]*room),
		logger: logger,
	}
}

// Join adds the member to the named room, creating the room if absent.
// A member joining a room it already occupies is a no-op.
//
// Precondition: roomID must be non-empty; m must be non-nil.
func (r *Registry) Join(roomID string, m Member) {
	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &room{members: make(map[string]Member)}
		r.rooms[roomID] = rm
	}
	rm.members[m.ID()] = m
	count := len(rm.members)
	r.mu.Unlock()

	r.logger.Debug("member joined room",
		zap.String("room", roomID),
		zap.String("member", m.ID()),
		zap.Int("members", count),
	)
}

// Leave removes the member from the named room. When the last member
// leaves, the room and its metadata are removed. Leaving a room the
// member does not occupy is a silent no-op.
//
// Precondition: roomID must be non-empty; m must be non-nil.
func (r *Registry) Leave(roomID string, m Member) {
	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(rm.members, m.ID())
	count := len(rm.members)
	if count == 0 {
		delete(r.rooms, roomID)
	}
	r.mu.Unlock()

	r.logger.Debug("member left room",
		zap.String("room", roomID),
		zap.String("member", m.ID()),
		zap.Int("members", count),
	)
}

// Announce records discovery metadata for a game room so that lobby
// listings can include it before anyone has joined. Announcing does not
// create membership; that happens on the first Join.
//
// Precondition: roomID must be non-empty.
func (r *Registry) Announce(roomID string, meta Metadata) {
	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &room{members: make(map[string]Member)}
		r.rooms[roomID] = rm
	}
	rm.meta = &meta
	r.mu.Unlock()
}

// Broadcast delivers the frame to every current member of the room and
// returns the number of deliveries attempted. Membership is snapshotted
// under the registry lock; sends happen outside it. Broadcasting to an
// absent or empty room is a silent no-op. Send failures are treated by
// the transport layer as a disconnect, so they are only logged here.
//
// Precondition: roomID must be non-empty; frame must be non-nil.
func (r *Registry) Broadcast(roomID string, frame []byte) int {
	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	if !ok {
		r.mu.RUnlock()
		return 0
	}
	snapshot := make([]Member, 0, len(rm.members))
	for _, m := range rm.members {
		snapshot = append(snapshot, m)
	}
	r.mu.RUnlock()

	for _, m := range snapshot {
		if err := m.Send(frame); err != nil {
			r.logger.Debug("dropping frame for member",
				zap.String("room", roomID),
				zap.String("member", m.ID()),
				zap.Error(err),
			)
		}
	}
	return len(snapshot)
}

// Members returns the number of members currently in the room.
func (r *Registry) Members(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[roomID]
	if !ok {
		return 0
	}
	return len(rm.members)
}

// ActiveGames returns a snapshot of announced game rooms with current
// player counts, sorted by room name. The lobby room is excluded.
//
// Postcondition: Returns a slice (may be empty); rooms without announced
// metadata (for example the lobby or ad hoc rooms) are omitted.
func (r *Registry) ActiveGames(lobbyRoom string) []Game {
	r.mu.RLock()
	games := make([]Game, 0, len(r.rooms))
	for name, rm := range r.rooms {
		if name == lobbyRoom || rm.meta == nil {
			continue
		}
		games = append(games, Game{
			Name:    name,
			Players: len(rm.members),
			Meta:    *rm.meta,
		})
	}
	r.mu.RUnlock()

	sort.Slice(games, func(i, j int) bool { return games[i].Name < games[j].Name })
	return games
}

// RoomCount returns the number of rooms currently tracked.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
