package handlers

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pixelvale/gamesync/internal/game/model"
	"github.com/pixelvale/gamesync/internal/game/rooms"
	"github.com/pixelvale/gamesync/internal/game/state"
	"github.com/pixelvale/gamesync/internal/storage/postgres"
)

// fakeClient implements Client and records received frames.
type fakeClient struct {
	id       string
	identity Identity
	room     string

	mu     sync.Mutex
	frames []string
}

func newFakeClient(id, room string, identity Identity) *fakeClient {
	return &fakeClient{id: id, room: room, identity: identity}
}

func (f *fakeClient) ID() string         { return f.id }
func (f *fakeClient) Identity() Identity { return f.identity }
func (f *fakeClient) RoomID() string     { return f.room }

func (f *fakeClient) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, string(data))
	return nil
}

func (f *fakeClient) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.frames...)
}

type fakePlayers struct {
	byName map[string]*model.Player
}

func (f *fakePlayers) GetByUsername(_ context.Context, username string) (*model.Player, error) {
	p, ok := f.byName[username]
	if !ok {
		return nil, postgres.ErrPlayerNotFound
	}
	return p, nil
}

type fakeSessions struct {
	open     map[int64]*model.GameSession
	mergeErr error
	merged   int
}

func (f *fakeSessions) FindOpen(_ context.Context, playerID int64) (*model.GameSession, error) {
	s, ok := f.open[playerID]
	if !ok {
		return nil, postgres.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeSessions) MergeState(_ context.Context, sessionID int64, partial map[string]any, score *int) error {
	if f.mergeErr != nil {
		return f.mergeErr
	}
	f.merged++
	for _, s := range f.open {
		if s.ID != sessionID {
			continue
		}
		if s.GameData == nil {
			s.GameData = make(map[string]any)
		}
		for k, v := range partial {
			s.GameData[k] = v
		}
		if score != nil {
			s.Score = *score
		}
	}
	return nil
}

func newGameFixture(t *testing.T, sessions *fakeSessions) (*GameHandler, *rooms.Registry) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	registry := rooms.NewRegistry(logger)
	players := &fakePlayers{byName: map[string]*model.Player{
		"alice": {ID: 7, Username: "alice"},
	}}
	merger := state.NewMerger(players, sessions, logger)
	return NewGameHandler(registry, merger, logger), registry
}

func TestGameHandler_PlayerMoveBroadcastToRoom(t *testing.T) {
	h, registry := newGameFixture(t, &fakeSessions{})

	sender := newFakeClient("c1", "g1", Anonymous)
	peer := newFakeClient("c2", "g1", Anonymous)
	outsider := newFakeClient("c3", "g2", Anonymous)
	registry.Join("g1", sender)
	registry.Join("g1", peer)
	registry.Join("g2", outsider)

	h.HandleMessage(context.Background(), sender,
		[]byte(`{"type":"player_move","player_id":"p1","position":{"x":3,"y":7},"animation":"RUN_LEFT"}`))

	want := `{"type":"player_update","player_id":"p1","position":{"x":3,"y":7},"animation":"RUN_LEFT"}`
	require.Len(t, sender.received(), 1)
	require.Len(t, peer.received(), 1)
	assert.JSONEq(t, want, sender.received()[0])
	assert.JSONEq(t, want, peer.received()[0])
	assert.Empty(t, outsider.received())
}

func TestGameHandler_ChatFromAnonymous(t *testing.T) {
	h, registry := newGameFixture(t, &fakeSessions{})

	sender := newFakeClient("c1", "g1", Anonymous)
	peer := newFakeClient("c2", "g1", Anonymous)
	registry.Join("g1", sender)
	registry.Join("g1", peer)

	h.HandleMessage(context.Background(), sender,
		[]byte(`{"type":"chat_message","message":"hi","timestamp":100}`))

	want := `{"type":"chat_message","message":"hi","username":"anonymous","timestamp":100}`
	require.Len(t, peer.received(), 1)
	assert.JSONEq(t, want, peer.received()[0])
	require.Len(t, sender.received(), 1)
	assert.JSONEq(t, want, sender.received()[0])
}

func TestGameHandler_ChatFromAuthenticated(t *testing.T) {
	h, registry := newGameFixture(t, &fakeSessions{})

	sender := newFakeClient("c1", "g1", Identity{Username: "alice", Authenticated: true})
	registry.Join("g1", sender)

	h.HandleMessage(context.Background(), sender,
		[]byte(`{"type":"chat_message","message":"hello","timestamp":5}`))

	require.Len(t, sender.received(), 1)
	assert.JSONEq(t,
		`{"type":"chat_message","message":"hello","username":"alice","timestamp":5}`,
		sender.received()[0])
}

func TestGameHandler_GameStatePersistsThenBroadcasts(t *testing.T) {
	sessions := &fakeSessions{open: map[int64]*model.GameSession{
		7: {ID: 42, PlayerID: 7, GameData: map[string]any{}},
	}}
	h, registry := newGameFixture(t, sessions)

	sender := newFakeClient("c1", "g1", Identity{Username: "alice", Authenticated: true})
	registry.Join("g1", sender)

	h.HandleMessage(context.Background(), sender,
		[]byte(`{"type":"game_state","game_state":{"score":300,"coins":12},"timestamp":42}`))

	assert.Equal(t, 1, sessions.merged)
	assert.Equal(t, 300, sessions.open[7].Score)

	require.Len(t, sender.received(), 1)
	assert.JSONEq(t,
		`{"type":"game_update","game_state":{"score":300,"coins":12},"timestamp":42}`,
		sender.received()[0])
}

func TestGameHandler_AnonymousGameStateNotPersisted(t *testing.T) {
	sessions := &fakeSessions{open: map[int64]*model.GameSession{
		7: {ID: 42, PlayerID: 7},
	}}
	h, registry := newGameFixture(t, sessions)

	sender := newFakeClient("c1", "g1", Anonymous)
	registry.Join("g1", sender)

	h.HandleMessage(context.Background(), sender,
		[]byte(`{"type":"game_state","game_state":{"score":300},"timestamp":1}`))

	assert.Equal(t, 0, sessions.merged)
	// The update is still relayed.
	require.Len(t, sender.received(), 1)
}

func TestGameHandler_PersistenceFaultDoesNotBlockBroadcast(t *testing.T) {
	sessions := &fakeSessions{
		open:     map[int64]*model.GameSession{7: {ID: 42, PlayerID: 7}},
		mergeErr: errors.New("connection reset"),
	}
	h, registry := newGameFixture(t, sessions)

	sender := newFakeClient("c1", "g1", Identity{Username: "alice", Authenticated: true})
	registry.Join("g1", sender)

	h.HandleMessage(context.Background(), sender,
		[]byte(`{"type":"game_state","game_state":{"score":1},"timestamp":1}`))

	require.Len(t, sender.received(), 1)
}

func TestGameHandler_UnknownTagDropped(t *testing.T) {
	h, registry := newGameFixture(t, &fakeSessions{})
	sender := newFakeClient("c1", "g1", Anonymous)
	registry.Join("g1", sender)

	h.HandleMessage(context.Background(), sender, []byte(`{"type":"teleport","x":1}`))
	assert.Empty(t, sender.received())
}

func TestGameHandler_MalformedFrameDropped(t *testing.T) {
	h, registry := newGameFixture(t, &fakeSessions{})
	sender := newFakeClient("c1", "g1", Anonymous)
	registry.Join("g1", sender)

	h.HandleMessage(context.Background(), sender, []byte(`{"type":`))
	h.HandleMessage(context.Background(), sender, []byte(`not json at all`))
	assert.Empty(t, sender.received())
}

func TestIdentity_DisplayName(t *testing.T) {
	assert.Equal(t, "anonymous", Anonymous.DisplayName())
	assert.Equal(t, "anonymous", Identity{Username: "alice"}.DisplayName())
	assert.Equal(t, "alice", Identity{Username: "alice", Authenticated: true}.DisplayName())
}
