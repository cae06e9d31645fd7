package wsbus

import (
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/btouchard/elastic/internal/bus"
)

// ServerConfig tunes per-connection behaviour.
type ServerConfig struct {
	// SendBuffer is the number of outbound frames queued per connection.
	SendBuffer int
	// SubscriberBuffer is passed to every bus subscription a client opens.
	SubscriberBuffer int
	// PublishRate and PublishBurst bound how fast one client may publish.
	PublishRate  float64
	PublishBurst int
	// AllowedOrigins lists accepted Origin headers. Empty accepts any.
	AllowedOrigins []string
}

// Server exposes a bus.Bus to websocket clients such as the dashboard.
type Server struct {
	bus      bus.Bus
	cfg      ServerConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu    sync.Mutex
	conns map[uuid.UUID]*conn
}

// NewServer creates a websocket endpoint backed by b.
func NewServer(b bus.Bus, cfg ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.PublishRate <= 0 {
		cfg.PublishRate = 100
	}
	if cfg.PublishBurst <= 0 {
		cfg.PublishBurst = 200
	}

	s := &Server{
		bus:    b,
		cfg:    cfg,
		logger: logger.With("component", "wsbus"),
		conns:  make(map[uuid.UUID]*conn),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(s.cfg.AllowedOrigins, "*") || slices.Contains(s.cfg.AllowedOrigins, origin)
}

// ServeHTTP upgrades the request and serves the connection until either
// side closes it.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newConn(s, ws)
	s.register(c)

	go c.writePump()
	go c.readPump()
}

// Clients returns the number of open connections.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close disconnects every client.
func (s *Server) Close() {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

func (s *Server) register(c *conn) {
	s.mu.Lock()
	s.conns[c.id] = c
	n := len(s.conns)
	s.mu.Unlock()

	clientsConnected.Inc()
	c.logger.Info("client connected", "clients", n)
}

func (s *Server) unregister(c *conn) {
	s.mu.Lock()
	_, ok := s.conns[c.id]
	delete(s.conns, c.id)
	n := len(s.conns)
	s.mu.Unlock()

	if ok {
		clientsConnected.Dec()
		c.logger.Info("client disconnected", "clients", n)
	}
}
