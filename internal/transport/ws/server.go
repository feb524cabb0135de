// Package ws exposes the WebSocket endpoints: one per game room and one
// for the lobby. Each accepted connection becomes a registry member and
// is driven by a session handler until it disconnects.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pixelvale/gamesync/internal/config"
	"github.com/pixelvale/gamesync/internal/game/handlers"
	"github.com/pixelvale/gamesync/internal/game/rooms"
)

// Server accepts WebSocket upgrades on the game and lobby endpoints and
// hands each connection to its session handler. It implements the
// lifecycle Service interface.
type Server struct {
	cfg      config.ServerConfig
	game     config.GameConfig
	registry *rooms.Registry
	gameH    handlers.SessionHandler
	lobbyH   handlers.SessionHandler
	logger   *zap.Logger

	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

// NewServer creates a WebSocket server for the given handlers.
//
// Precondition: registry, gameHandler, lobbyHandler, and logger must be
// non-nil.
func NewServer(cfg config.ServerConfig, game config.GameConfig, registry *rooms.Registry, gameHandler, lobbyHandler handlers.SessionHandler, logger *zap.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		game:     game,
		registry: registry,
		gameH:    gameHandler,
		lobbyH:   lobbyHandler,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect from the game's own origin in
			// production; origin enforcement belongs to the proxy in
			// front of this service.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/game/{room}", s.serveGame)
	mux.HandleFunc("GET /ws/lobby", s.serveLobby)
	mux.HandleFunc("GET /healthz", s.serveHealth)

	s.httpSrv = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadTimeout,
	}
	return s
}

// Start runs the HTTP listener. It blocks until Stop is called or the
// listener fails.
func (s *Server) Start() error {
	s.logger.Info("websocket server listening", zap.String("addr", s.cfg.Addr()))
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving on %s: %w", s.cfg.Addr(), err)
	}
	return nil
}

// Stop gracefully shuts down the listener, bounded by the configured
// shutdown timeout. Upgraded WebSocket connections are hijacked from
// the HTTP server; they close as their clients disconnect.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Warn("shutting down websocket server", zap.Error(err))
	}
}

func (s *Server) serveGame(w http.ResponseWriter, r *http.Request) {
	room := r.PathValue("room")
	if room == "" {
		http.Error(w, "missing room name", http.StatusBadRequest)
		return
	}
	s.accept(w, r, room, s.gameH)
}

func (s *Server) serveLobby(w http.ResponseWriter, r *http.Request) {
	s.accept(w, r, s.game.LobbyRoom, s.lobbyH)
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

// accept upgrades the request and runs the client until it disconnects.
func (s *Server) accept(w http.ResponseWriter, r *http.Request, room string, handler handlers.SessionHandler) {
	start := time.Now()
	identity := identityFrom(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.logger.Debug("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	s.logger.Info("client connected",
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("room", room),
		zap.String("username", identity.DisplayName()),
		zap.Duration("upgrade", time.Since(start)),
	)

	client := NewClient(conn, room, identity, s.game, s.logger)
	client.Run(r.Context(), s.registry, handler)
}

// identityFrom derives the connection identity from the request. A
// username query parameter marks the connection authenticated; its
// absence yields the anonymous identity.
func identityFrom(r *http.Request) handlers.Identity {
	username := r.URL.Query().Get("username")
	if username == "" {
		return handlers.Anonymous
	}
	return handlers.Identity{Username: username, Authenticated: true}
}
