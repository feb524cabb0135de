// Package main provides the coordination server binary: WebSocket game
// and lobby endpoints backed by PostgreSQL session persistence.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/pixelvale/gamesync/internal/config"
	"github.com/pixelvale/gamesync/internal/game/handlers"
	"github.com/pixelvale/gamesync/internal/game/rooms"
	"github.com/pixelvale/gamesync/internal/game/state"
	"github.com/pixelvale/gamesync/internal/observability"
	"github.com/pixelvale/gamesync/internal/server"
	"github.com/pixelvale/gamesync/internal/storage/postgres"
	"github.com/pixelvale/gamesync/internal/transport/ws"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting coordination server",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("lobby_room", cfg.Game.LobbyRoom),
	)

	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(dbStart)),
	)

	players := postgres.NewPlayerRepository(pool.DB())
	levels := postgres.NewLevelRepository(pool.DB())
	sessions := postgres.NewSessionRepository(pool.DB())

	registry := rooms.NewRegistry(logger)
	merger := state.NewMerger(players, sessions, logger)

	gameHandler := handlers.NewGameHandler(registry, merger, logger)
	lobbyHandler := handlers.NewLobbyHandler(registry, levels, cfg.Game.LobbyRoom, cfg.Game.DefaultMaxPlayers, logger)

	wsServer := ws.NewServer(cfg.Server, cfg.Game, registry, gameHandler, lobbyHandler, logger)

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("websocket", wsServer)
	lifecycle.Add("postgres", &server.FuncService{
		StartFn: func() error {
			for {
				time.Sleep(30 * time.Second)
				if err := pool.Health(ctx, 5*time.Second); err != nil {
					logger.Warn("database health check failed", zap.Error(err))
				}
			}
		},
		StopFn: func() {
			pool.Close()
		},
	})

	logger.Info("coordination server initialized",
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
