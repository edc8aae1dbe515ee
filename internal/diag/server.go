package diag

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server exposes /metrics (Prometheus scrape) and /status (a websocket
// feed of periodic StatusReport snapshots), optionally gated behind a
// JWT bearer token when a secret is configured.
type Server struct {
	mux        *http.ServeMux
	jwtSecret  []byte
	log        zerolog.Logger
	upgrader   websocket.Upgrader
	statusFunc func() StatusReport
}

// StatusReport is one point-in-time snapshot of the running system,
// serialized as JSON over the /status websocket.
type StatusReport struct {
	ActiveClients  int     `json:"active_clients"`
	SchedulerLevel int     `json:"scheduler_levels"`
	GraphLatency   int     `json:"graph_latency_samples"`
	Occupancy      float64 `json:"syncbuf_occupancy_avg"`
}

// NewServer builds a diagnostics server. jwtSecret may be empty, in
// which case authentication is disabled (suitable for local
// development only). statusFunc is polled once per push interval.
func NewServer(jwtSecret string, metrics *Metrics, statusFunc func() StatusReport, log zerolog.Logger) *Server {
	s := &Server{
		mux:        http.NewServeMux(),
		jwtSecret:  []byte(jwtSecret),
		log:        log,
		statusFunc: statusFunc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	s.mux.HandleFunc("/status", s.authenticate(s.handleStatus))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// authenticate wraps a handler with bearer-token JWT verification. A
// no-op pass-through when no secret is configured.
func (s *Server) authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(s.jwtSecret) == 0 {
			next(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
			return s.jwtSecret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !parsed.Valid {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("status websocket upgrade failed")
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		report := s.statusFunc()
		payload, err := json.Marshal(report)
		if err != nil {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}
