package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/cartelera-live/cartelera/internal/auth"
	"github.com/cartelera-live/cartelera/internal/broker"
	"github.com/cartelera-live/cartelera/internal/catalog"
	"github.com/cartelera-live/cartelera/internal/config"
	"github.com/cartelera-live/cartelera/internal/health"
	"github.com/cartelera-live/cartelera/internal/metrics"
	"github.com/cartelera-live/cartelera/internal/storage"
)

// Node owns every long-lived component and its lifecycle. All wiring is
// explicit: construction takes the dependencies it needs, Close tears them
// down in reverse order, and nothing lives in package-level state.
type Node struct {
	cfg *config.Config
	log *zap.Logger

	db        *storage.DB
	registry  *broker.Registry
	publisher *broker.Publisher
	server    *broker.Server
	checker   *health.Checker

	closeOnce sync.Once
}

// NewNode builds the full component graph. The database must be reachable;
// everything else is constructed in-process.
func NewNode(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Node, error) {
	db, err := storage.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	registry := broker.NewRegistry(log.Named("registry"))
	publisher := broker.NewPublisher(registry, cfg.Broker.QueueSize, log.Named("publisher"))
	resolver := auth.NewResolver(cfg.Auth.JWTSecret)

	store := catalog.NewPgStore(db)
	service := catalog.NewService(store, publisher, log.Named("catalog"))
	handlers := catalog.NewHandlers(service, resolver, log.Named("api"))

	server := broker.NewServer(cfg.Broker, registry, resolver, log.Named("broker"))

	apiMux := http.NewServeMux()
	handlers.Routes(apiMux)
	server.Mount("/api/", apiMux)

	checker := health.NewChecker(db, log, config.Version, cfg.Broker.MaxConnections)
	server.Mount("/health", checker.Handler())

	return &Node{
		cfg:       cfg,
		log:       log,
		db:        db,
		registry:  registry,
		publisher: publisher,
		server:    server,
		checker:   checker,
	}, nil
}

// Server exposes the HTTP/WebSocket server, mostly for tests.
func (n *Node) Server() *broker.Server { return n.server }

// Run serves until ctx is canceled, then tears everything down.
func (n *Node) Run(ctx context.Context) error {
	if n.cfg.Metrics.Enabled {
		go metrics.Serve(ctx, n.cfg.Metrics.Port)
	}

	err := n.server.ListenAndServe(ctx, n.cfg.Broker.WSAddr)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		n.Close()
		return fmt.Errorf("websocket server: %w", err)
	}
	n.Close()
	return nil
}

// Close flushes the publish queue, drops every connection and releases the
// database pool. Safe to call after Run returns.
func (n *Node) Close() {
	n.closeOnce.Do(func() {
		n.publisher.Close()
		n.registry.CloseAll("server shutting down")
		n.db.Close()
		n.log.Info("node stopped")
	})
}
