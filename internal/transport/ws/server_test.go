package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pixelvale/gamesync/internal/config"
	"github.com/pixelvale/gamesync/internal/game/handlers"
	"github.com/pixelvale/gamesync/internal/game/rooms"
)

// echoHandler broadcasts every inbound frame back to the sender's room
// and records connect notifications.
type echoHandler struct {
	registry *rooms.Registry

	mu         sync.Mutex
	connects   []handlers.Identity
	frames     [][]byte
	connectMsg []byte
}

func (h *echoHandler) HandleConnect(_ context.Context, c handlers.Client) {
	h.mu.Lock()
	h.connects = append(h.connects, c.Identity())
	h.mu.Unlock()
	if h.connectMsg != nil {
		c.Send(h.connectMsg)
	}
}

func (h *echoHandler) HandleMessage(_ context.Context, c handlers.Client, frame []byte) {
	h.mu.Lock()
	h.frames = append(h.frames, frame)
	h.mu.Unlock()
	h.registry.Broadcast(c.RoomID(), frame)
}

func (h *echoHandler) connected() []handlers.Identity {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]handlers.Identity(nil), h.connects...)
}

func testGameConfig() config.GameConfig {
	return config.GameConfig{
		LobbyRoom:         "game_lobby",
		DefaultMaxPlayers: 2,
		SendBuffer:        16,
		WriteWait:         2 * time.Second,
		PongWait:          10 * time.Second,
		MaxMessageSize:    4096,
	}
}

func newTestServer(t *testing.T) (*Server, *echoHandler, *rooms.Registry, *httptest.Server) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	registry := rooms.NewRegistry(logger)
	handler := &echoHandler{registry: registry}

	srv := NewServer(
		config.ServerConfig{Host: "127.0.0.1", Port: 0, ShutdownTimeout: time.Second},
		testGameConfig(),
		registry,
		handler,
		handler,
		logger,
	)

	ts := httptest.NewServer(srv.httpSrv.Handler)
	t.Cleanup(ts.Close)
	return srv, handler, registry, ts
}

func dial(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForMembers(t *testing.T, registry *rooms.Registry, room string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if registry.Members(room) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, want, registry.Members(room))
}

func TestServer_GameEndpointEcho(t *testing.T) {
	_, handler, registry, ts := newTestServer(t)

	first := dial(t, ts, "/ws/game/arena?username=alice")
	second := dial(t, ts, "/ws/game/arena")
	waitForMembers(t, registry, "arena", 2)

	require.NoError(t, first.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"chat_message","message":"hi"}`)))

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, frame, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"chat_message","message":"hi"}`, string(frame))
	}

	assert.ElementsMatch(t, []handlers.Identity{
		{Username: "alice", Authenticated: true},
		handlers.Anonymous,
	}, handler.connected())
}

func TestServer_DisconnectLeavesRoom(t *testing.T) {
	_, _, registry, ts := newTestServer(t)

	conn := dial(t, ts, "/ws/game/arena")
	waitForMembers(t, registry, "arena", 1)

	conn.Close()
	waitForMembers(t, registry, "arena", 0)
	assert.Equal(t, 0, registry.RoomCount())
}

func TestServer_LobbyEndpointUsesLobbyRoom(t *testing.T) {
	_, handler, registry, ts := newTestServer(t)
	handler.connectMsg = []byte(`{"type":"active_games","games":[]}`)

	conn := dial(t, ts, "/ws/lobby?username=bob")
	waitForMembers(t, registry, "game_lobby", 1)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"active_games","games":[]}`, string(frame))
}

func TestServer_HealthEndpoint(t *testing.T) {
	_, _, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClient_SendAfterCloseFails(t *testing.T) {
	logger := zaptest.NewLogger(t)

	client := NewClient(nil, "arena", handlers.Anonymous, testGameConfig(), logger)
	client.shutdown()
	assert.ErrorIs(t, client.Send([]byte("x")), ErrClientClosed)
}

func TestClient_SendBufferOverflow(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := testGameConfig()
	cfg.SendBuffer = 2

	client := NewClient(nil, "arena", handlers.Anonymous, cfg, logger)
	require.NoError(t, client.Send([]byte("a")))
	require.NoError(t, client.Send([]byte("b")))
	assert.ErrorIs(t, client.Send([]byte("c")), ErrSendBufferFull)
	// Overflow closes the client.
	assert.ErrorIs(t, client.Send([]byte("d")), ErrClientClosed)
}
