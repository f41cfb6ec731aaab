package oai

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/codewandler/cc-gateway-go/cchat"
)

// ChatCompletionStream reads streaming chat completion chunks from Claude Code.
type ChatCompletionStream struct {
	ctx     context.Context
	sess    *cchat.Session
	state   *StreamState
	pending []*ChatCompletionChunk
	started bool
	err     error
}

// CreateChatCompletionStream sends a streaming chat completion request.
// Per spec.md's streaming contract, req.Tools must be empty — the caller
// (ChatOrchestrator) is responsible for rejecting stream+tools combinations
// before reaching here.
func (c *Client) CreateChatCompletionStream(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionStream, error) {
	if len(req.Tools) > 0 {
		return nil, &APIError{Message: "tool calling is not supported in streaming mode", Type: "invalid_request_error"}
	}
	req.Stream = true
	req.Model = ResolveModel(req.Model)
	systemPrompt, parts := RequestToPrompt(&req)

	sess, err := c.cc.Spawn(ctx, cchat.SpawnOptions{SystemPrompt: systemPrompt, Model: req.Model, Streaming: true})
	if err != nil {
		return nil, &APIError{Message: err.Error(), Type: "service_unavailable"}
	}
	if err := sess.SendPrompt(parts...); err != nil {
		sess.Close()
		return nil, &APIError{Message: err.Error(), Type: "internal_error"}
	}

	return &ChatCompletionStream{
		ctx:   ctx,
		sess:  sess,
		state: NewStreamState(ChatCompletionID(uuid.NewString()), time.Now().Unix(), req.Model),
	}, nil
}

// Recv returns the next streaming chunk. Returns io.EOF when the stream is done.
func (cs *ChatCompletionStream) Recv() (*ChatCompletionChunk, error) {
	if cs.err != nil {
		return nil, cs.err
	}

	if !cs.started {
		cs.started = true
		return cs.state.InitChunk(), nil
	}

	if len(cs.pending) > 0 {
		chunk := cs.pending[0]
		cs.pending = cs.pending[1:]
		return chunk, nil
	}

	for {
		ev, err := cs.sess.ReadEvent(cs.ctx, time.Time{})
		if errors.Is(err, cchat.ErrEndOfStream) {
			cs.err = io.EOF
			return nil, io.EOF
		}
		if err != nil {
			cs.err = err
			return nil, err
		}

		chunks := cs.state.HandleEvent(ev)
		if len(chunks) == 0 {
			if ev.IsTerminal() {
				cs.err = io.EOF
				return nil, io.EOF
			}
			continue
		}

		cs.pending = append(cs.pending, chunks[1:]...)
		return chunks[0], nil
	}
}

// Close interrupts the session and releases resources.
func (cs *ChatCompletionStream) Close() error {
	cs.err = io.EOF
	return cs.sess.Close()
}
