package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pixelvale/gamesync/internal/config"
	"github.com/pixelvale/gamesync/internal/game/handlers"
	"github.com/pixelvale/gamesync/internal/game/rooms"
)

// ErrSendBufferFull is returned by Send when the client's outbound
// buffer is saturated. The registry logs it; the write pump closes the
// connection shortly after, so a slow consumer never stalls a broadcast.
var ErrSendBufferFull = errors.New("ws: send buffer full")

// ErrClientClosed is returned by Send after the client has shut down.
var ErrClientClosed = errors.New("ws: client closed")

// Client is one upgraded WebSocket connection bound to a room. It
// implements handlers.Client: the read pump feeds inbound frames to a
// SessionHandler, and Send enqueues outbound frames for the write pump.
type Client struct {
	id       string
	identity handlers.Identity
	roomID   string

	conn   *websocket.Conn
	cfg    config.GameConfig
	logger *zap.Logger

	send chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// NewClient wraps an upgraded connection. The client does nothing until
// Run is called.
//
// Precondition: conn and logger must be non-nil; roomID must be non-empty.
func NewClient(conn *websocket.Conn, roomID string, identity handlers.Identity, cfg config.GameConfig, logger *zap.Logger) *Client {
	return &Client{
		id:       uuid.NewString(),
		identity: identity,
		roomID:   roomID,
		conn:     conn,
		cfg:      cfg,
		logger:   logger,
		send:     make(chan []byte, cfg.SendBuffer),
		closed:   make(chan struct{}),
	}
}

// ID returns the connection's registry identifier.
func (c *Client) ID() string { return c.id }

// Identity returns the identity attached at upgrade time.
func (c *Client) Identity() handlers.Identity { return c.identity }

// RoomID returns the room this connection is bound to.
func (c *Client) RoomID() string { return c.roomID }

// Send enqueues an outbound frame without blocking.
//
// Postcondition: Returns nil when the frame was buffered,
// ErrSendBufferFull when the buffer is saturated, or ErrClientClosed
// after shutdown. A full buffer also triggers connection close.
func (c *Client) Send(data []byte) error {
	select {
	case <-c.closed:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.closed:
		return ErrClientClosed
	default:
		// A consumer that cannot drain its buffer is disconnected
		// rather than allowed to backpressure the whole room.
		c.shutdown()
		return ErrSendBufferFull
	}
}

// Run drives the connection: it joins the room, invokes the handler's
// connect hook, and pumps frames in both directions until the peer
// disconnects, the context is cancelled, or the send buffer overflows.
//
// Postcondition: The client has left the room and the underlying
// connection is closed when Run returns.
func (c *Client) Run(ctx context.Context, registry *rooms.Registry, handler handlers.SessionHandler) {
	start := time.Now()
	registry.Join(c.roomID, c)
	defer func() {
		registry.Leave(c.roomID, c)
		c.shutdown()
		c.conn.Close()
		c.logger.Info("session ended",
			zap.String("member", c.id),
			zap.String("room", c.roomID),
			zap.String("username", c.identity.DisplayName()),
			zap.Duration("duration", time.Since(start)),
		)
	}()

	handler.HandleConnect(ctx, c)

	go c.writePump()
	c.readPump(ctx, handler)
}

// shutdown marks the client closed, waking the write pump. Safe to call
// more than once.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// readPump reads inbound frames and dispatches them to the handler
// until the peer disconnects. Pong handling keeps the read deadline
// rolling; a silent peer times out after the pong window.
func (c *Client) readPump(ctx context.Context, handler handlers.SessionHandler) {
	defer c.shutdown()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		default:
		}

		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Debug("read failed",
					zap.String("member", c.id),
					zap.Error(err),
				)
			}
			return
		}

		handler.HandleMessage(ctx, c, frame)
	}
}

// writePump drains the send buffer to the peer and keeps the connection
// alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.shutdown()
				return
			}

		case <-c.closed:
			// Drain whatever was buffered before the close, then say
			// goodbye to the peer.
			for {
				select {
				case frame := <-c.send:
					c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
					if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
						return
					}
				default:
					c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
					c.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}
		}
	}
}
