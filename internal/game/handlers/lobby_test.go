package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pixelvale/gamesync/internal/game/model"
	"github.com/pixelvale/gamesync/internal/game/rooms"
	"github.com/pixelvale/gamesync/internal/storage/postgres"
)

type fakeCatalog struct {
	levels  map[int64]*model.GameLevel
	easiest *model.GameLevel
	fault   error
}

func (f *fakeCatalog) GetByID(_ context.Context, id int64) (*model.GameLevel, error) {
	if f.fault != nil {
		return nil, f.fault
	}
	lvl, ok := f.levels[id]
	if !ok {
		return nil, postgres.ErrLevelNotFound
	}
	return lvl, nil
}

func (f *fakeCatalog) Easiest(_ context.Context) (*model.GameLevel, error) {
	if f.fault != nil {
		return nil, f.fault
	}
	if f.easiest == nil {
		return nil, postgres.ErrLevelNotFound
	}
	return f.easiest, nil
}

const testLobby = "game_lobby"

func newLobbyFixture(t *testing.T, catalog *fakeCatalog) (*LobbyHandler, *rooms.Registry) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	registry := rooms.NewRegistry(logger)
	return NewLobbyHandler(registry, catalog, testLobby, 2, logger), registry
}

func TestLobbyHandler_CreateRoomBroadcast(t *testing.T) {
	catalog := &fakeCatalog{levels: map[int64]*model.GameLevel{
		3: {ID: 3, Name: "Cavern", Difficulty: 2},
	}}
	h, registry := newLobbyFixture(t, catalog)

	alice := newFakeClient("c1", testLobby, Identity{Username: "alice", Authenticated: true})
	bob := newFakeClient("c2", testLobby, Anonymous)
	registry.Join(testLobby, alice)
	registry.Join(testLobby, bob)

	h.HandleMessage(context.Background(), alice,
		[]byte(`{"type":"create_room","room_name":"R1","level_id":3,"max_players":4}`))

	want := `{"type":"room_created","room_name":"R1","level_id":3,"max_players":4,"creator":"alice"}`
	require.Len(t, alice.received(), 1)
	require.Len(t, bob.received(), 1)
	assert.JSONEq(t, want, alice.received()[0])
	assert.JSONEq(t, want, bob.received()[0])
}

func TestLobbyHandler_CreateRoomDefaults(t *testing.T) {
	catalog := &fakeCatalog{easiest: &model.GameLevel{ID: 1, Name: "Meadow", Difficulty: 1}}
	h, registry := newLobbyFixture(t, catalog)

	alice := newFakeClient("c1", testLobby, Identity{Username: "alice", Authenticated: true})
	registry.Join(testLobby, alice)

	h.HandleMessage(context.Background(), alice,
		[]byte(`{"type":"create_room","room_name":"R2"}`))

	require.Len(t, alice.received(), 1)
	assert.JSONEq(t,
		`{"type":"room_created","room_name":"R2","level_id":1,"max_players":2,"creator":"alice"}`,
		alice.received()[0])

	games := registry.ActiveGames(testLobby)
	require.Len(t, games, 1)
	assert.Equal(t, "Meadow", games[0].Meta.LevelName)
	assert.Equal(t, 2, games[0].Meta.MaxPlayers)
}

func TestLobbyHandler_CreateRoomAnonymousCreator(t *testing.T) {
	h, registry := newLobbyFixture(t, &fakeCatalog{easiest: &model.GameLevel{ID: 1, Name: "Meadow"}})

	guest := newFakeClient("c1", testLobby, Anonymous)
	registry.Join(testLobby, guest)

	h.HandleMessage(context.Background(), guest,
		[]byte(`{"type":"create_room","room_name":"R3","max_players":8}`))

	require.Len(t, guest.received(), 1)
	assert.JSONEq(t,
		`{"type":"room_created","room_name":"R3","level_id":1,"max_players":8,"creator":"anonymous"}`,
		guest.received()[0])
}

func TestLobbyHandler_CreateRoomWithoutNameDropped(t *testing.T) {
	h, registry := newLobbyFixture(t, &fakeCatalog{})

	alice := newFakeClient("c1", testLobby, Identity{Username: "alice", Authenticated: true})
	registry.Join(testLobby, alice)

	h.HandleMessage(context.Background(), alice, []byte(`{"type":"create_room"}`))

	assert.Empty(t, alice.received())
	assert.Empty(t, registry.ActiveGames(testLobby))
}

func TestLobbyHandler_CreateRoomCatalogFaultDegrades(t *testing.T) {
	catalog := &fakeCatalog{fault: context.DeadlineExceeded}
	h, registry := newLobbyFixture(t, catalog)

	alice := newFakeClient("c1", testLobby, Identity{Username: "alice", Authenticated: true})
	registry.Join(testLobby, alice)

	h.HandleMessage(context.Background(), alice,
		[]byte(`{"type":"create_room","room_name":"R4","level_id":9}`))

	// The announcement still goes out with a synthetic level name.
	require.Len(t, alice.received(), 1)
	assert.JSONEq(t,
		`{"type":"room_created","room_name":"R4","level_id":9,"max_players":2,"creator":"alice"}`,
		alice.received()[0])

	games := registry.ActiveGames(testLobby)
	require.Len(t, games, 1)
	assert.Equal(t, "Level 9", games[0].Meta.LevelName)
}

func TestLobbyHandler_JoinRoomAnnouncementOnly(t *testing.T) {
	h, registry := newLobbyFixture(t, &fakeCatalog{})

	alice := newFakeClient("c1", testLobby, Identity{Username: "alice", Authenticated: true})
	bob := newFakeClient("c2", testLobby, Anonymous)
	registry.Join(testLobby, alice)
	registry.Join(testLobby, bob)

	h.HandleMessage(context.Background(), bob,
		[]byte(`{"type":"join_room","room_name":"R1"}`))

	want := `{"type":"player_joined","room_name":"R1","player":"anonymous"}`
	require.Len(t, alice.received(), 1)
	assert.JSONEq(t, want, alice.received()[0])

	// Announcing the join does not add the announcer to the game room.
	assert.Equal(t, 0, registry.Members("R1"))
}

func TestLobbyHandler_GetRoomsSentOnlyToRequester(t *testing.T) {
	catalog := &fakeCatalog{levels: map[int64]*model.GameLevel{
		3: {ID: 3, Name: "Cavern"},
	}}
	h, registry := newLobbyFixture(t, catalog)

	alice := newFakeClient("c1", testLobby, Identity{Username: "alice", Authenticated: true})
	bob := newFakeClient("c2", testLobby, Anonymous)
	registry.Join(testLobby, alice)
	registry.Join(testLobby, bob)

	h.HandleMessage(context.Background(), alice,
		[]byte(`{"type":"create_room","room_name":"R1","level_id":3,"max_players":4}`))
	player := newFakeClient("c3", "R1", Anonymous)
	registry.Join("R1", player)

	bobBefore := len(bob.received())
	h.HandleMessage(context.Background(), alice, []byte(`{"type":"get_rooms"}`))

	frames := alice.received()
	require.Len(t, frames, 2)
	assert.JSONEq(t,
		`{"type":"active_games","games":[{"room_name":"R1","level":"Cavern","players":1,"max_players":4}]}`,
		frames[1])
	assert.Len(t, bob.received(), bobBefore)
}

func TestLobbyHandler_ConnectPushesActiveGames(t *testing.T) {
	h, registry := newLobbyFixture(t, &fakeCatalog{})

	registry.Announce("R1", rooms.Metadata{LevelID: 1, LevelName: "Meadow", MaxPlayers: 2, Creator: "alice"})

	joiner := newFakeClient("c1", testLobby, Anonymous)
	registry.Join(testLobby, joiner)
	h.HandleConnect(context.Background(), joiner)

	require.Len(t, joiner.received(), 1)
	assert.JSONEq(t,
		`{"type":"active_games","games":[{"room_name":"R1","level":"Meadow","players":0,"max_players":2}]}`,
		joiner.received()[0])
}

func TestLobbyHandler_EmptyListing(t *testing.T) {
	h, registry := newLobbyFixture(t, &fakeCatalog{})

	joiner := newFakeClient("c1", testLobby, Anonymous)
	registry.Join(testLobby, joiner)
	h.HandleMessage(context.Background(), joiner, []byte(`{"type":"get_rooms"}`))

	require.Len(t, joiner.received(), 1)
	assert.JSONEq(t, `{"type":"active_games","games":[]}`, joiner.received()[0])
}
