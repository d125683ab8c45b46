package broker

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cartelera-live/cartelera/internal/auth"
	"github.com/cartelera-live/cartelera/internal/config"
	"github.com/cartelera-live/cartelera/internal/domain"
	"github.com/cartelera-live/cartelera/internal/metrics"
)

// connectedPayload is the welcome frame body sent right after registration,
// so the peer learns the id the server knows it by.
type connectedPayload struct {
	WSID    string `json:"ws_id"`
	LocalID int64  `json:"local_id,omitempty"`
}

// Server accepts WebSocket handshakes at /ws/local, resolves the bearer
// token carried as a query parameter into a scope, and admits the
// connection into the registry. Additional HTTP surfaces (catalog REST,
// health) are mounted onto the same listener.
type Server struct {
	cfg      config.BrokerConfig
	registry *Registry
	resolver *auth.Resolver
	log      *zap.Logger

	mux      *http.ServeMux
	upgrader websocket.Upgrader
}

func NewServer(cfg config.BrokerConfig, registry *Registry, resolver *auth.Resolver, log *zap.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		registry: registry,
		resolver: resolver,
		log:      log,
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:    4096,
			WriteBufferSize:   4096,
			CheckOrigin:       func(r *http.Request) bool { return true },
			EnableCompression: true,
			HandshakeTimeout:  10 * time.Second,
		},
	}
	s.mux.HandleFunc("/ws/local", s.handleWebSocket)
	return s
}

// Mount attaches an extra HTTP handler under the given path prefix.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// Handler exposes the server mux, mostly for tests.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe runs the HTTP listener until ctx is canceled, then shuts
// down gracefully and closes every registered connection. It does not
// return until in-flight handlers have drained, so callers may tear down
// the handlers' dependencies as soon as it does.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		s.log.Info("shutting down WebSocket server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		s.registry.CloseAll("server shutting down")
	}()

	s.log.Info("WebSocket server listening", zap.String("address", addr))
	err := httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		// ListenAndServe unblocks the moment Shutdown starts; handlers may
		// still be running until Shutdown returns.
		<-drained
	}
	return err
}

// handleWebSocket upgrades the connection, resolves the token to a scope
// and registers the connection. The transport cannot carry custom headers
// on handshake, so the token rides as a query parameter; a token that fails
// resolution gets a policy close (1008) and is never registered.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if metrics.GetActiveConnectionsCount() >= int64(s.cfg.MaxConnections) {
		http.Error(w, "connection limit reached", http.StatusServiceUnavailable)
		return
	}

	token := r.URL.Query().Get("token")

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	scope, err := s.resolver.Resolve(token)
	if err != nil {
		s.log.Warn("refusing connection",
			zap.String("remote", r.RemoteAddr),
			zap.Error(err))
		msg := websocket.FormatCloseMessage(closeCodePolicy, "invalid token")
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = ws.Close()
		return
	}

	conn := newWsConn(ws, scope, s.registry, s.cfg, s.log)
	s.registry.Register(conn, scope)
	metrics.IncrementActiveConnections()

	welcome, err := domain.NewEnvelope(domain.EventConnected, domain.Target{},
		connectedPayload{WSID: conn.ID(), LocalID: scope.LocalID})
	if err == nil {
		if err := conn.Send(welcome.Frame()); err != nil {
			s.registry.Unregister(conn)
			conn.Close(closeCodeGoingAway, "welcome frame failed")
			return
		}
	}

	s.log.Debug("connection established",
		zap.String("ws_id", conn.ID()),
		zap.Int64("local_id", scope.LocalID),
		zap.String("role", string(scope.Role)),
		zap.Int64("active_connections", metrics.GetActiveConnectionsCount()))

	go conn.run()
}
