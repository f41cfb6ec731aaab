package server

import (
	"context"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/codewandler/cc-gateway-go/cache"
	"github.com/codewandler/cc-gateway-go/cchat"
	"github.com/codewandler/cc-gateway-go/session"
)

// Config holds the settings used to create a [Server].
type Config struct {
	// Addr is the TCP address for the server to listen on, in the form "host:port".
	// If empty, the server listens on all interfaces with a system-chosen port.
	Addr string

	// APIKey is the expected Bearer token for authenticating inbound requests.
	// When non-empty, every request must include an "Authorization: Bearer <key>"
	// header whose value matches this key (compared in constant time). When empty,
	// the auth middleware is bypassed entirely and all requests are allowed through.
	APIKey string

	// Client is the cchat.Client used to spawn Claude Code subprocesses.
	// It must be non-nil.
	Client *cchat.Client

	// MaxConcurrentSessions bounds the number of live conversation-scoped
	// and ephemeral sessions held open at once. 0 falls back to 32.
	MaxConcurrentSessions int

	// SessionIdleTimeout is how long a conversation-scoped session may sit
	// unused before a background reaper closes it. 0 falls back to 10 minutes.
	SessionIdleTimeout time.Duration

	// TurnDeadline bounds how long a single turn may run before the handler
	// gives up, marks the session Poisoned, and returns an error. 0 falls
	// back to 5 minutes.
	TurnDeadline time.Duration

	// CacheCapacity is the maximum number of entries in the response cache.
	// 0 disables caching entirely.
	CacheCapacity int

	// CacheTTL is how long a cached response remains eligible to be served.
	// Ignored if CacheCapacity is 0. 0 with CacheCapacity > 0 falls back to
	// 5 minutes.
	CacheTTL time.Duration
}

// Server is an OpenAI-compatible HTTP server that translates chat completion
// requests into Claude Code CLI subprocess calls and returns the results in
// OpenAI format. Use [New] to create an instance and [Server.ListenAndServe]
// to start serving.
type Server struct {
	cfg      Config
	client   *cchat.Client
	sessions *session.Store
	cache    *cache.Cache // nil when caching is disabled
	mux      *http.ServeMux
	started  time.Time
}

// New creates a [Server] with the given configuration and registers the
// /v1/chat/completions, /v1/models, /health, and /stats routes. The
// returned server is ready to be started with [Server.ListenAndServe] or
// used directly via [Server.Handler] for custom HTTP serving arrangements.
func New(cfg Config) *Server {
	maxSessions := cfg.MaxConcurrentSessions
	if maxSessions <= 0 {
		maxSessions = 32
	}
	idleTimeout := cfg.SessionIdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = 10 * time.Minute
	}
	if cfg.TurnDeadline <= 0 {
		cfg.TurnDeadline = 5 * time.Minute
	}

	s := &Server{
		cfg:      cfg,
		client:   cfg.Client,
		sessions: session.NewStore(maxSessions, idleTimeout),
		mux:      http.NewServeMux(),
		started:  time.Now(),
	}

	if cfg.CacheCapacity > 0 {
		ttl := cfg.CacheTTL
		if ttl <= 0 {
			ttl = 5 * time.Minute
		}
		s.cache = cache.New(cfg.CacheCapacity, ttl)
	}

	s.mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	s.mux.HandleFunc("/v1/models", s.handleModels)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/stats", s.handleStats)

	return s
}

// Handler returns the fully assembled [http.Handler] with the middleware stack
// applied (panic recovery, request logging, and optional Bearer token auth).
// This is useful for testing or for mounting the server inside a custom
// [http.Server].
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = authMiddleware(s.cfg.APIKey, h)
	h = loggingMiddleware(h)
	h = recoveryMiddleware(h)
	return h
}

// ListenAndServe starts the HTTP server on the address specified in [Config.Addr]
// and blocks until ctx is cancelled or the server fails to start.
//
// A background goroutine reaps idle sessions every minute for the lifetime
// of the call. When ctx is cancelled, the server initiates a graceful
// shutdown with a 15-second deadline, allowing in-flight requests (including
// active SSE streams) to complete before forcibly closing connections. Once
// shutdown completes (or the deadline elapses), all remaining sessions are
// closed. If the server shuts down cleanly within the deadline, ListenAndServe
// returns nil.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	reapCtx, cancelReap := context.WithCancel(ctx)
	defer cancelReap()
	go s.reapLoop(reapCtx)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	var err error
	select {
	case <-ctx.Done():
		log.Println("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err = srv.Shutdown(shutdownCtx)
		cancel()
	case err = <-errCh:
	}

	s.sessions.CloseAll()
	return err
}

// reapLoop closes idle conversation-scoped sessions once a minute until ctx
// is cancelled.
func (s *Server) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.sessions.Reap(now); n > 0 {
				log.Printf("reaped %d idle session(s)", n)
			}
		}
	}
}
