package web

import (
	"log/slog"
	"net/http"

	"autoheal/internal/metrics"
)

const maxRequestBody = 1 << 20 // 1 MB

// Server is the gateway's HTTP surface: the web approval channel, alarm
// intake and health. The chat callback is mounted through Slack so this
// package does not depend on the chat channel.
type Server struct {
	Mux            *http.ServeMux
	Resolver       ApprovalResolver
	Detector       AlarmDetector
	Store          Pinger
	TemporalHealth HealthFunc
	Goroutines     *GoroutineTracker
	Slack          http.Handler
	Auth           AuthConfig
	RateLimiter    *RateLimiter
	Logger         *slog.Logger
}

func NewServer(resolver ApprovalResolver, detector AlarmDetector, store Pinger) *Server {
	return &Server{
		Mux:      http.NewServeMux(),
		Resolver: resolver,
		Detector: detector,
		Store:    store,
	}
}

// Handler registers routes and returns the instrumented root handler. Call
// it once, after all optional fields are set.
func (s *Server) Handler() http.Handler {
	if s.Mux == nil {
		s.Mux = http.NewServeMux()
	}
	s.registerRoutes()
	return metrics.Middleware(RateLimitMiddleware(s.RateLimiter)(s.Mux))
}

func (s *Server) registerRoutes() {
	s.Mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.Mux.HandleFunc("GET /readyz", s.handleReadyz)
	s.Mux.Handle("GET /metrics", metrics.Handler())

	authed := AuthMiddleware(s.Auth)
	if s.Resolver != nil {
		s.Mux.Handle("GET /approvals/{id}", authed(http.HandlerFunc(s.handleGetApproval)))
		s.Mux.Handle("POST /approvals/{id}", authed(http.HandlerFunc(s.handleResolveApproval)))
	}
	if s.Detector != nil {
		s.Mux.Handle("POST /v1/alarms", authed(http.HandlerFunc(s.handleAlarm)))
	}
	if s.Slack != nil {
		// Chat requests carry a request signature instead of a bearer token.
		s.Mux.Handle("POST /slack/interactions", s.Slack)
	}
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
