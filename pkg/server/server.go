package server

import (
	"net/http"
	"time"

	"github.com/m-mizutani/bubbleboard/pkg/adapter"
	"github.com/m-mizutani/bubbleboard/pkg/moderation"
	"github.com/m-mizutani/bubbleboard/pkg/usecase/feed"
	"github.com/m-mizutani/bubbleboard/pkg/usecase/submission"
)

// maxBodyBytes caps request bodies on the submission routes.
const maxBodyBytes = 64 << 10

// DefaultHeartbeat is the interval of SSE keep-alive comments.
const DefaultHeartbeat = 15 * time.Second

type Server struct {
	mux     *http.ServeMux
	handler http.Handler

	backend     adapter.Backend
	submissions *submission.UseCase
	serviceKey  string

	feed *feed.Feed
	hub  *Hub

	filter            *moderation.Filter
	enforceModeration bool

	limiter   *RateLimiter
	heartbeat time.Duration
}

type Option func(*Server)

// WithGateway enables POST /api/submit, forwarding to backend.
func WithGateway(backend adapter.Backend) Option {
	return func(s *Server) {
		s.backend = backend
	}
}

// WithFunction serves the backend insertion function and the read-only submission
// routes. Calls to the function must present serviceKey as a bearer token.
func WithFunction(uc *submission.UseCase, serviceKey string) Option {
	return func(s *Server) {
		s.submissions = uc
		s.serviceKey = serviceKey
	}
}

// WithFeed publishes every change of f to the layout hub. The caller owns f's lifecycle.
func WithFeed(f *feed.Feed) Option {
	return func(s *Server) {
		s.feed = f
	}
}

// WithModeration runs the denylist on gateway submissions. Matches are rejected only
// when enforce is true; otherwise they are logged.
func WithModeration(filter *moderation.Filter, enforce bool) Option {
	return func(s *Server) {
		s.filter = filter
		s.enforceModeration = enforce
	}
}

// WithRateLimit limits POST /api/submit per client IP. rps <= 0 disables the limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = NewRateLimiter(rps, burst)
	}
}

func WithHeartbeat(interval time.Duration) Option {
	return func(s *Server) {
		s.heartbeat = interval
	}
}

func New(opts ...Option) *Server {
	s := &Server{
		mux:       http.NewServeMux(),
		hub:       NewHub(),
		heartbeat: DefaultHeartbeat,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.feed != nil {
		s.feed.OnChange(func(snap feed.Snapshot) {
			s.hub.Publish(layoutFromSnapshot(snap))
		})
		s.hub.Publish(layoutFromSnapshot(s.feed.Snapshot()))
	}

	s.routes()
	s.handler = withRequestID(withAccessLog(s.mux))
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /demo", s.handleDemo)
	s.mux.Handle("GET /assets/", assetHandler())
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	if s.backend != nil {
		var submit http.Handler = http.HandlerFunc(s.handleSubmit)
		if s.limiter != nil {
			submit = s.limiter.Middleware(submit)
		}
		s.mux.Handle("/api/submit", submit)
	}

	if s.submissions != nil {
		s.mux.HandleFunc(adapter.SubmitTextPath, s.handleSubmitText)
		s.mux.HandleFunc("GET /api/submissions", s.handleSubmissions)
	}

	s.mux.HandleFunc("GET /api/bubbles", s.handleBubbles)
	s.mux.HandleFunc("GET /api/feed", s.handleFeed)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Hub returns the layout broadcaster fed by the configured Feed.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Close ends all open event streams. Call it before shutting the HTTP server down so
// that streaming handlers return.
func (s *Server) Close() {
	s.hub.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
