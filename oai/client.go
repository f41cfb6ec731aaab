package oai

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/codewandler/cc-gateway-go/cchat"
)

// Model represents an OpenAI-compatible model object.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

// APIError is returned when the Claude Code process reports an error.
type APIError struct {
	Message string
	Type    string
	Code    string
}

func (e *APIError) Error() string { return e.Message }

// Client provides an embedded OpenAI-compatible interface backed by
// cchat.Client. No HTTP server required — calls bridge logic and cchat
// directly, one ephemeral session per request.
type Client struct {
	cc *cchat.Client
}

// NewClient wraps an existing cchat.Client.
func NewClient(cc *cchat.Client) *Client {
	return &Client{cc: cc}
}

// NewClientDefault creates a Client with sensible defaults (CLIPath: "claude").
func NewClientDefault() *Client {
	return NewClient(cchat.NewClient(&cchat.ClientConfig{
		CLIPath:       "claude",
		MaxConcurrent: 64,
	}))
}

// ListModels returns the static list of available Claude models.
func (c *Client) ListModels(_ context.Context) ([]Model, error) {
	return []Model{
		{ID: "sonnet", Object: "model", OwnedBy: "anthropic"},
		{ID: "opus", Object: "model", OwnedBy: "anthropic"},
		{ID: "haiku", Object: "model", OwnedBy: "anthropic"},
	}, nil
}

// CreateChatCompletion sends a non-streaming chat completion request,
// spawning one ephemeral session for the full collapsed transcript.
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	req.Stream = false
	req.Model = ResolveModel(req.Model)
	systemPrompt, parts := RequestToPrompt(&req)

	sess, err := c.cc.Spawn(ctx, cchat.SpawnOptions{SystemPrompt: systemPrompt, Model: req.Model})
	if err != nil {
		return nil, &APIError{Message: err.Error(), Type: "service_unavailable"}
	}
	defer sess.Close()

	if err := sess.SendPrompt(parts...); err != nil {
		return nil, &APIError{Message: err.Error(), Type: "internal_error"}
	}

	events, err := drainTurn(ctx, sess)
	if err != nil {
		return nil, &APIError{Message: err.Error(), Type: "internal_error"}
	}

	for _, ev := range events {
		if ev.Kind == cchat.EventError {
			return nil, &APIError{Message: ev.Message, Type: "claude_error"}
		}
	}

	id := ChatCompletionID(uuid.NewString())
	return ResultFromEvents(id, time.Now().Unix(), req.Model, events, req.Tools), nil
}

// drainTurn reads events from sess until a terminal event (Result or
// Error) or the stream ends, returning everything observed along the way.
func drainTurn(ctx context.Context, sess *cchat.Session) ([]cchat.CliEvent, error) {
	var events []cchat.CliEvent
	for {
		ev, err := sess.ReadEvent(ctx, time.Time{})
		if err == cchat.ErrEndOfStream {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, ev)
		if ev.IsTerminal() {
			return events, nil
		}
	}
}
