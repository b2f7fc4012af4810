package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// Metrics holds process-wide counters. All fields are safe for concurrent use.
type Metrics struct {
	startTime time.Time

	ConnectionsTotal  atomic.Int64
	ConnectionsActive atomic.Int64
	AuthSuccesses     atomic.Int64
	AuthFailures      atomic.Int64
	Registrations     atomic.Int64
	ChatLines         atomic.Int64 // broadcast lines routed
	PrivateLines      atomic.Int64
	CommandsDenied    atomic.Int64
	UnknownCommands   atomic.Int64
	Kicks             atomic.Int64
	GamesStarted      atomic.Int64
	GamesFinished     atomic.Int64
	OutboxDropped     atomic.Int64
	AuditDropped      atomic.Int64
}

// NewMetrics creates a Metrics registry with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

type metricLine struct {
	name, help, kind string
	c                *atomic.Int64
}

func (m *Metrics) lines() []metricLine {
	return []metricLine{
		{"tcpchat_connections_total", "Connections accepted.", "counter", &m.ConnectionsTotal},
		{"tcpchat_connections_active", "Currently attached sessions.", "gauge", &m.ConnectionsActive},
		{"tcpchat_auth_success_total", "Successful logins.", "counter", &m.AuthSuccesses},
		{"tcpchat_auth_failed_total", "Failed password attempts.", "counter", &m.AuthFailures},
		{"tcpchat_registrations_total", "Accounts registered.", "counter", &m.Registrations},
		{"tcpchat_chat_lines_total", "Public chat lines routed.", "counter", &m.ChatLines},
		{"tcpchat_private_lines_total", "Private chat lines routed.", "counter", &m.PrivateLines},
		{"tcpchat_commands_denied_total", "Commands rejected by state policy.", "counter", &m.CommandsDenied},
		{"tcpchat_commands_unknown_total", "Unrecognized commands.", "counter", &m.UnknownCommands},
		{"tcpchat_kicks_total", "Sessions kicked.", "counter", &m.Kicks},
		{"tcpchat_games_started_total", "Tic-tac-toe games started.", "counter", &m.GamesStarted},
		{"tcpchat_games_finished_total", "Tic-tac-toe games finished.", "counter", &m.GamesFinished},
		{"tcpchat_outbox_dropped_total", "Outbound lines dropped on full outboxes.", "counter", &m.OutboxDropped},
		{"tcpchat_audit_dropped_total", "Audit lines dropped on a full buffer.", "counter", &m.AuditDropped},
	}
}

// WritePrometheus writes every counter in Prometheus text exposition format.
func (m *Metrics) WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	_, _ = fmt.Fprintf(w, "# HELP tcpchat_uptime_seconds Process uptime in seconds.\n# TYPE tcpchat_uptime_seconds gauge\ntcpchat_uptime_seconds %f\n",
		time.Since(m.startTime).Seconds())
	for _, l := range m.lines() {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %d\n", l.name, l.help, l.name, l.kind, l.name, l.c.Load())
	}
}

// MetricsServer serves /metrics and /healthz.
type MetricsServer struct {
	addr    string
	metrics *Metrics
	logger  *zap.Logger
	router  *httprouter.Router
	server  *http.Server
}

// NewMetricsServer builds the HTTP server without binding.
func NewMetricsServer(addr string, metrics *Metrics, logger *zap.Logger) *MetricsServer {
	s := &MetricsServer{
		addr:    addr,
		metrics: metrics,
		logger:  logger,
		router:  httprouter.New(),
	}
	s.router.GET("/metrics", s.handleMetrics)
	s.router.GET("/healthz", s.handleHealth)
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *MetricsServer) Handler() http.Handler { return s.router }

// Start binds and serves until Stop is called.
func (s *MetricsServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	s.logger.Info("metrics HTTP listening", zap.String("addr", ln.Addr().String()))
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving metrics: %w", err)
	}
	return nil
}

// Stop shuts the HTTP server down.
func (s *MetricsServer) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("metrics shutdown", zap.Error(err))
	}
}

func (s *MetricsServer) handleMetrics(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.metrics.WritePrometheus(w)
}

func (s *MetricsServer) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}
