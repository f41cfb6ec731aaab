package cchat

import (
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"sync"
	"time"

	"github.com/codewandler/cc-gateway-go/ccwire"
)

type sessionState int32

const (
	stateIdle sessionState = iota
	stateInTurn
	stateClosed
)

// Session owns one running Claude Code child process and provides the
// half-duplex "send one prompt, receive one sequence of CliEvents" contract.
// State machine: Spawned (implicit, returned by Spawn already Idle) → Idle
// ⇄ InTurn → Closed. InTurn is entered by SendPrompt and left on any
// terminal CliEvent or error.
type Session struct {
	proc   processInterface
	parser *ccwire.Parser
	client *Client

	mu      sync.Mutex
	state   sessionState
	pending []CliEvent

	cliSessionID string
}

func newSession(proc processInterface, client *Client) *Session {
	return &Session{
		proc:   proc,
		parser: ccwire.NewParser(proc.getStdout()),
		client: client,
		state:  stateIdle,
	}
}

// stdinEnvelope mirrors the stream-json user message shape Claude Code
// expects on stdin when invoked with --input-format=stream-json.
type stdinEnvelope struct {
	Type    string         `json:"type"`
	Message stdinUserInner `json:"message"`
}

type stdinUserInner struct {
	Role    string           `json:"role"`
	Content []stdinContent   `json:"content"`
}

type stdinContent struct {
	Type   string          `json:"type"`
	Text   string          `json:"text,omitempty"`
	Source *stdinImageSrc  `json:"source,omitempty"`
}

type stdinImageSrc struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// SendPrompt writes one stream-json user message to the child's stdin and
// enters the InTurn state. Returns ErrInvokerClosed if the session has
// already been closed, or ErrTurnInProgress if a prior turn has not yet
// reached a terminal event.
func (s *Session) SendPrompt(parts ...PromptPart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		return ErrInvokerClosed
	}
	if s.state == stateInTurn {
		return ErrTurnInProgress
	}

	content := make([]stdinContent, 0, len(parts))
	for _, p := range parts {
		if p.ImagePath != "" {
			content = append(content, stdinContent{Type: "image", Source: &stdinImageSrc{Type: "path", Path: p.ImagePath}})
			continue
		}
		content = append(content, stdinContent{Type: "text", Text: p.Text})
	}

	line, err := json.Marshal(stdinEnvelope{
		Type:    "user",
		Message: stdinUserInner{Role: "user", Content: content},
	})
	if err != nil {
		return &WriteFailedError{Err: err}
	}
	line = append(line, '\n')

	if _, err := s.proc.getStdin().Write(line); err != nil {
		return &WriteFailedError{Err: err}
	}

	s.state = stateInTurn
	return nil
}

// ReadEvent reads and returns the next CliEvent, blocking until one is
// available, the deadline elapses, or the stream ends. On a terminal event
// (Result or Error) the session returns to Idle.
func (s *Session) ReadEvent(ctx context.Context, deadline time.Time) (CliEvent, error) {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return CliEvent{}, ErrInvokerClosed
	}
	if len(s.pending) > 0 {
		ev := s.pending[0]
		s.pending = s.pending[1:]
		if ev.IsTerminal() {
			s.state = stateIdle
		}
		s.mu.Unlock()
		return ev, nil
	}
	s.mu.Unlock()

	for {
		msg, err := s.readRaw(ctx, deadline)
		if err != nil {
			return CliEvent{}, err
		}

		events := projectMessage(msg)
		if sys, ok := msg.(*ccwire.SystemMessage); ok {
			s.mu.Lock()
			s.cliSessionID = sys.SessionID
			s.mu.Unlock()
		}
		if len(events) == 0 {
			continue
		}

		s.mu.Lock()
		ev := events[0]
		if len(events) > 1 {
			s.pending = append(s.pending, events[1:]...)
		}
		if ev.IsTerminal() {
			s.state = stateIdle
		}
		s.mu.Unlock()
		return ev, nil
	}
}

// readRaw reads one ccwire.Message off the child's stdout, honoring the
// deadline and ctx. It runs the blocking parser read on a goroutine so a
// stalled child cannot hang the caller past the deadline.
func (s *Session) readRaw(ctx context.Context, deadline time.Time) (ccwire.Message, error) {
	type result struct {
		msg ccwire.Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		msg, err := s.parser.Next()
		ch <- result{msg, err}
	}()

	var timer *time.Timer
	var timerC <-chan time.Time
	if !deadline.IsZero() {
		timer = time.NewTimer(time.Until(deadline))
		timerC = timer.C
		defer timer.Stop()
	}

	select {
	case r := <-ch:
		if r.err != nil {
			if errors.Is(r.err, ccwire.ErrLineTooLong) {
				return nil, &ProtocolError{Err: r.err}
			}
			if isEOF(r.err) {
				return s.handleEOF()
			}
			return nil, &ProtocolError{Err: r.err}
		}
		return r.msg, nil
	case <-timerC:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func isEOF(err error) bool {
	return err != nil && err.Error() == "EOF"
}

// handleEOF is called when the parser reports end of stream. It waits for
// the process to exit to distinguish a clean exit (ErrEndOfStream) from a
// crash (ProcessError).
func (s *Session) handleEOF() (ccwire.Message, error) {
	if waitErr := s.proc.wait(); waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			return nil, &ProcessError{ExitCode: exitErr.ExitCode(), Stderr: s.stderrString()}
		}
		return nil, waitErr
	}
	return nil, ErrEndOfStream
}

func (s *Session) stderrString() string {
	return s.proc.getStderr().String()
}

// Interrupt sends a best-effort termination signal to the child. Subsequent
// ReadEvent calls will observe EndOfStream or a terminal Error. Idempotent.
func (s *Session) Interrupt() error {
	return s.proc.interrupt()
}

// CLISessionID returns the Claude Code session identifier reported in the
// SystemInit event, or "" if none has been observed yet.
func (s *Session) CLISessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cliSessionID
}

// Close closes stdin, waits briefly for a graceful exit, then kills the
// process. Safe to call multiple times.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = stateClosed
	s.mu.Unlock()

	_ = s.proc.getStdin().Close()

	done := make(chan struct{})
	go func() {
		s.proc.wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		s.proc.kill()
		<-done
	}

	s.client.releaseSem()
	return nil
}
