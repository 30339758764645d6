package gateway

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/voxgate/voxgate/internal/observe"
)

// maxFramePayload caps a single inbound WebSocket frame at 5 MB. The per-turn
// audio budget is enforced separately by the connection handler.
const maxFramePayload = 5 << 20

// ServerConfig configures a [Server].
type ServerConfig struct {
	// ConnConfig builds the dependency stack for each accepted connection.
	// Called once per connection so per-connection components (breakers,
	// limiters) get fresh instances. Required.
	ConnConfig func() ConnConfig

	// Metrics receives gateway instruments. Optional.
	Metrics *observe.Metrics

	// Logger receives server diagnostics. Optional.
	Logger *slog.Logger
}

// Server owns the HTTP surface of the gateway: the /ws WebSocket endpoint
// and the permissive /health liveness probe browsers poll before connecting.
type Server struct {
	connConfig func() ConnConfig
	metrics    *observe.Metrics
	log        *slog.Logger
}

// NewServer creates a gateway server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.ConnConfig == nil {
		return nil, errors.New("gateway: ServerConfig.ConnConfig must not be nil")
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		connConfig: cfg.ConnConfig,
		metrics:    metrics,
		log:        log.With("component", "gateway_server"),
	}, nil
}

// Register adds the gateway routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("GET /health", s.handleHealth)
}

// handleWS upgrades the request and serves the connection until it closes.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Browser clients connect from arbitrary local origins.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "error", err)
		return
	}
	ws.SetReadLimit(maxFramePayload)

	s.metrics.ActiveConnections.Add(r.Context(), 1)
	defer s.metrics.ActiveConnections.Add(r.Context(), -1)

	conn, err := NewConn(r.Context(), ws, s.connConfig())
	if err != nil {
		s.log.Error("connection setup failed", "error", err)
		ws.Close(websocket.StatusInternalError, "setup failed")
		return
	}

	s.log.Info("connection accepted", "remote", r.RemoteAddr)
	conn.Run()
	ws.Close(websocket.StatusNormalClosure, "")
}

// handleHealth is the public liveness probe. CORS is wide open so browser
// clients on any origin can poll it before dialing /ws.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
