// Package handlers implements message routing for the game and lobby
// endpoints. Each endpoint has one handler that classifies inbound
// frames by their type tag and fans the resulting event out through the
// room registry. Unknown tags are dropped silently; a malformed payload
// drops the frame, never the connection.
package handlers

import (
	"context"

	"github.com/pixelvale/gamesync/internal/game/events"
	"github.com/pixelvale/gamesync/internal/game/rooms"
)

// Identity is the authenticated identity attached to a connection, or
// the anonymous marker when the connection carries none.
type Identity struct {
	Username      string
	Authenticated bool
}

// Anonymous is the identity of an unauthenticated connection.
var Anonymous = Identity{}

// DisplayName returns the name used in outbound creator/username/player
// fields: the authenticated username, or the anonymous placeholder.
func (i Identity) DisplayName() string {
	if !i.Authenticated || i.Username == "" {
		return events.AnonymousName
	}
	return i.Username
}

// Client is the handler-side view of a connection: registry membership
// plus identity and current room.
type Client interface {
	rooms.Member
	Identity() Identity
	RoomID() string
}

// SessionHandler processes the lifetime of one connected client on an
// endpoint. The transport calls HandleConnect once after the client has
// joined its room, then HandleMessage for every inbound frame.
type SessionHandler interface {
	HandleConnect(ctx context.Context, c Client)
	HandleMessage(ctx context.Context, c Client, frame []byte)
}
