// ABOUTME: Orchestrator wiring backplane, store, broker, registry, hub, and HTTP
// ABOUTME: Manages start-up order and graceful shutdown of all components

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/wanderhub/wanderhub-chat/internal/auth"
	"github.com/wanderhub/wanderhub-chat/internal/backplane"
	"github.com/wanderhub/wanderhub-chat/internal/broker"
	"github.com/wanderhub/wanderhub-chat/internal/chat"
	"github.com/wanderhub/wanderhub-chat/internal/config"
	"github.com/wanderhub/wanderhub-chat/internal/sequence"
	"github.com/wanderhub/wanderhub-chat/internal/session"
	"github.com/wanderhub/wanderhub-chat/internal/store"
	"github.com/wanderhub/wanderhub-chat/internal/transport"
	"github.com/wanderhub/wanderhub-chat/internal/txn"
)

// Server orchestrates the chat subsystem components. Construction wires
// everything; Run owns the lifecycle.
type Server struct {
	config     *config.Config
	logger     *slog.Logger
	bp         *backplane.Redis
	st         *store.SQLiteStore
	broker     *broker.Broker
	registry   *session.Registry
	hub        *transport.Hub
	chat       *chat.Service
	httpServer *http.Server
	startedAt  time.Time
}

// New connects the backplane and store and wires the component graph. The
// broker's pattern subscription is not established until Run.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	bp, err := backplane.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		return nil, err
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path, logger)
	if err != nil {
		bp.Close()
		return nil, err
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		st.Close()
		bp.Close()
		return nil, err
	}

	brk := broker.New(bp, broker.Options{
		DedupTTL:   cfg.Broker.DedupTTL,
		IndexSize:  cfg.Broker.IndexSize,
		WindowSpan: cfg.Broker.DedupWindow,
	}, logger)

	registry := session.NewRegistry(brk, bp, cfg.Instance.ID, logger)
	hub := transport.NewHub(registry, logger)
	brk.SetForwarder(hub)

	alloc := sequence.NewAllocator(bp, logger)
	mgr := txn.NewManager(st.DB(), logger)
	svc := chat.NewService(st, alloc, brk, mgr, logger)
	registry.AttachBroadcaster(svc)

	s := &Server{
		config:   cfg,
		logger:   logger.With("component", "server"),
		bp:       bp,
		st:       st,
		broker:   brk,
		registry: registry,
		hub:      hub,
		chat:     svc,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/ready", s.handleReady)
	mux.Handle("/ws/chat", transport.NewHandler(verifier, registry, hub, svc, logger))

	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Run starts the broker and HTTP server and blocks until the context is
// canceled or a server fails. Returns nil on graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	if err := s.broker.Start(ctx); err != nil {
		return err
	}
	s.startedAt = time.Now()

	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down")
		return s.shutdown()
	case err := <-errCh:
		s.shutdown()
		return err
	}
}

// shutdown stops components in reverse dependency order: HTTP first so no
// new sessions arrive, then the broker's subscription, then the clients.
func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP shutdown", "error", err)
	}

	if err := s.broker.Close(); err != nil {
		s.logger.Warn("broker close", "error", err)
	}

	if err := s.bp.Close(); err != nil {
		s.logger.Warn("backplane close", "error", err)
	}

	if err := s.st.Close(); err != nil {
		s.logger.Warn("store close", "error", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleReady reports readiness with broker and session counts.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	stats := s.broker.Stats()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":         "ready",
		"instance_id":    s.config.Instance.ID,
		"sessions":       s.registry.TotalSessions(),
		"tracked_rooms":  stats.TrackedRooms,
		"tracked_users":  stats.TrackedUsers,
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
	})
}
