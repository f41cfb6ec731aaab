package cchat

import (
	"context"
	"fmt"
)

// Client manages Claude Code CLI subprocess interactions.
type Client struct {
	cfg ClientConfig
	sem chan struct{} // concurrency semaphore; nil if unlimited
}

// NewClient creates a new Client with the given configuration.
func NewClient(cfg *ClientConfig) *Client {
	c := &Client{
		cfg: *cfg,
	}
	if c.cfg.CLIPath == "" {
		c.cfg.CLIPath = "claude"
	}
	if cfg.MaxConcurrent > 0 {
		c.sem = make(chan struct{}, cfg.MaxConcurrent)
	}
	return c
}

// Spawn starts a Claude Code child process and returns a [Session] ready to
// receive turns via Session.SendPrompt / Session.ReadEvent. The caller must
// call Session.Close when done; a session may be reused for several turns
// (conversation-scoped reuse) or used for exactly one (ephemeral use).
func (c *Client) Spawn(ctx context.Context, opts SpawnOptions) (*Session, error) {
	if c.sem != nil {
		select {
		case c.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, fmt.Errorf("acquiring semaphore: %w", ctx.Err())
		}
	}

	if c.cfg.DefaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.DefaultTimeout)
		// The process is bound to ctx via exec.CommandContext, so killing the
		// process on timeout already happens; stash cancel so Close releases
		// the context's own timer promptly instead of waiting for it to fire.
		proc, err := startProcess(ctx, c.cfg, opts)
		if err != nil {
			cancel()
			c.releaseSem()
			return nil, err
		}
		sess := newSession(proc, c)
		proc.timeoutCancel = cancel
		return sess, nil
	}

	proc, err := startProcess(ctx, c.cfg, opts)
	if err != nil {
		c.releaseSem()
		return nil, err
	}
	return newSession(proc, c), nil
}

// Query is a convenience wrapper for a single-turn, ephemeral use: it spawns
// a session, sends prompt as the sole text part of the turn, and returns the
// session for the caller to drain via ReadEvent and then Close.
func (c *Client) Query(ctx context.Context, prompt string, opts SpawnOptions) (*Session, error) {
	sess, err := c.Spawn(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := sess.SendPrompt(PromptPart{Text: prompt}); err != nil {
		sess.Close()
		return nil, err
	}
	return sess, nil
}

func (c *Client) releaseSem() {
	if c.sem != nil {
		<-c.sem
	}
}
