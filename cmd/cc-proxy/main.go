/*
Cc-proxy exposes the Claude Code CLI as an OpenAI-compatible HTTP inference
endpoint. Requests carrying a conversation_id reuse a long-lived claude
subprocess across turns; requests without one spawn an isolated, ephemeral
subprocess per call. Eligible non-streaming, conversation-less requests are
served through an in-memory response cache.

Usage:

	cc-proxy [flags]

Flags:

	-addr string
		Listen address for the HTTP server. (default ":8080")
	-model string
		Default Claude model to use (e.g. sonnet, opus, haiku).
		Can be overridden per-request via the model field in the request body.
	-api-key string
		Bearer token for authenticating incoming requests. When set, every
		request must include an "Authorization: Bearer <token>" header.
		If empty, authentication is disabled. Also read from the
		CC_PROXY_API_KEY environment variable when the flag is not provided.
	-claude-path string
		Path to the claude CLI binary. (default "claude")
	-max-concurrent int
		Maximum number of concurrent claude subprocesses across both
		conversation-scoped and ephemeral sessions. Zero means unlimited.
		(default 32)
	-session-idle-timeout duration
		How long a conversation-scoped session may sit unused before a
		background reaper closes it. (default 10m)
	-turn-timeout duration
		Per-turn deadline applied to each turn read from a claude
		subprocess. (default 5m)
	-cache-entries int
		Maximum entries held in the response cache. Zero disables caching.
		(default 512)
	-cache-ttl duration
		How long a cached response remains eligible to be served.
		(default 5m)
	-work-dir string
		Working directory for spawned claude processes. If empty, the
		proxy's own working directory is used.

Environment variables:

	CC_PROXY_API_KEY
		Equivalent to -api-key. The flag takes precedence when both are set.

Endpoints:

	POST /v1/chat/completions   OpenAI-compatible chat completion (streaming and non-streaming)
	GET  /v1/models             Lists available models
	GET  /health                Liveness and uptime
	GET  /stats                 Session store and cache counters

The server performs a graceful shutdown on SIGINT or SIGTERM, allowing
in-flight requests to complete before exiting.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codewandler/cc-gateway-go/cchat"
	"github.com/codewandler/cc-gateway-go/server"
)

func main() {
	var (
		addr               = flag.String("addr", ":8080", "Listen address")
		model              = flag.String("model", "", "Default model (e.g. sonnet, opus)")
		apiKey             = flag.String("api-key", "", "API key for Bearer auth (empty = no auth)")
		claudePath         = flag.String("claude-path", "claude", "Path to claude binary")
		maxConcurrent      = flag.Int("max-concurrent", 32, "Max concurrent claude processes")
		sessionIdleTimeout = flag.Duration("session-idle-timeout", 10*time.Minute, "Idle timeout before a conversation-scoped session is reaped")
		turnTimeout        = flag.Duration("turn-timeout", 5*time.Minute, "Per-turn deadline")
		cacheEntries       = flag.Int("cache-entries", 512, "Max response cache entries (0 disables caching)")
		cacheTTL           = flag.Duration("cache-ttl", 5*time.Minute, "Response cache entry lifetime")
		workDir            = flag.String("work-dir", "", "Working directory for claude processes")
	)
	flag.Parse()

	// Allow API key from environment
	if *apiKey == "" {
		*apiKey = os.Getenv("CC_PROXY_API_KEY")
	}

	client := cchat.NewClient(&cchat.ClientConfig{
		CLIPath:       *claudePath,
		Model:         *model,
		MaxConcurrent: *maxConcurrent,
		WorkDir:       *workDir,
	})

	srv := server.New(server.Config{
		Addr:                  *addr,
		APIKey:                *apiKey,
		Client:                client,
		MaxConcurrentSessions: *maxConcurrent,
		SessionIdleTimeout:    *sessionIdleTimeout,
		TurnDeadline:          *turnTimeout,
		CacheCapacity:         *cacheEntries,
		CacheTTL:              *cacheTTL,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Fprintf(os.Stderr, "cc-proxy starting on %s\n", *addr)
	if *model != "" {
		fmt.Fprintf(os.Stderr, "default model: %s\n", *model)
	}
	if *apiKey != "" {
		fmt.Fprintln(os.Stderr, "auth: enabled")
	} else {
		fmt.Fprintln(os.Stderr, "auth: disabled")
	}
	fmt.Fprintf(os.Stderr, "max concurrent sessions: %d\n", *maxConcurrent)
	if *cacheEntries > 0 {
		fmt.Fprintf(os.Stderr, "response cache: %d entries, ttl %s\n", *cacheEntries, *cacheTTL)
	} else {
		fmt.Fprintln(os.Stderr, "response cache: disabled")
	}

	if err := srv.ListenAndServe(ctx); err != nil {
		log.Fatal(err)
	}
}
