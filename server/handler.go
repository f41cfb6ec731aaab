package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/codewandler/cc-gateway-go/cache"
	"github.com/codewandler/cc-gateway-go/cchat"
	"github.com/codewandler/cc-gateway-go/oai"
	"github.com/codewandler/cc-gateway-go/session"
)

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST is accepted")
		return
	}

	var req oai.ChatCompletionRequest
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20) // 10MB limit
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON: "+err.Error())
		return
	}

	if err := validateRequest(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.Model = oai.ResolveModel(req.Model)

	if req.Stream {
		s.handleStreamingTurn(w, r, &req)
		return
	}
	s.handleNonStreamingTurn(w, r, &req)
}

// handleNonStreamingTurn implements the non-streaming half of the
// orchestrator: consult the cache first (when eligible), otherwise acquire
// a session, run the turn under its lock, project the result, and publish
// it back to the cache.
func (s *Server) handleNonStreamingTurn(w http.ResponseWriter, r *http.Request, req *oai.ChatCompletionRequest) {
	cacheEligible := s.cache != nil && req.ConversationID == ""

	if cacheEligible {
		key, err := fingerprintRequest(req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to fingerprint request: "+err.Error())
			return
		}
		body, err := s.cache.GetOrCompute(r.Context(), key, func(ctx context.Context) ([]byte, error) {
			resp, apiErr := s.runNonStreamingTurn(ctx, req)
			if apiErr != nil {
				return nil, apiErr
			}
			return json.Marshal(resp)
		})
		if err != nil {
			if apiErr, ok := err.(*oai.APIError); ok {
				writeTurnError(w, apiErr)
			} else {
				writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
		return
	}

	resp, apiErr := s.runNonStreamingTurn(r.Context(), req)
	if apiErr != nil {
		writeTurnError(w, apiErr)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// runNonStreamingTurn acquires a session, drains one turn's events under
// the session's serialization lock, and projects the result into an OAI
// response. On any Claude-side error or timeout it marks the session
// Poisoned so it is discarded rather than reused.
func (s *Server) runNonStreamingTurn(ctx context.Context, req *oai.ChatCompletionRequest) (*oai.ChatCompletionResponse, *oai.APIError) {
	guard, err := s.acquireSession(ctx, req)
	if err != nil {
		return nil, err
	}
	outcome := session.Ok
	defer func() { guard.Release(outcome) }()

	sess := guard.Session()
	parts := turnParts(req)

	if sendErr := sess.SendPrompt(parts...); sendErr != nil {
		outcome = session.Poisoned
		return nil, &oai.APIError{Message: sendErr.Error(), Type: "internal_error"}
	}

	turnCtx, cancel := context.WithTimeout(ctx, s.cfg.TurnDeadline)
	defer cancel()

	events, drainErr := drainTurn(turnCtx, sess)
	if drainErr != nil {
		outcome = session.Poisoned
		return nil, apiErrorFromDrain(drainErr)
	}
	for _, ev := range events {
		if ev.Kind == cchat.EventError {
			outcome = session.Poisoned
			return nil, &oai.APIError{Message: ev.Message, Type: "cli_protocol"}
		}
	}

	id := oai.ChatCompletionID(uuid.NewString())
	resp := oai.ResultFromEvents(id, time.Now().Unix(), req.Model, events, req.Tools)
	return resp, nil
}

// handleStreamingTurn implements the streaming half: acquire a session,
// send the prompt, then translate CliEvents into SSE chunks as they arrive.
// If the client disconnects mid-turn the session is interrupted and
// discarded rather than left mid-turn for a future reuse.
func (s *Server) handleStreamingTurn(w http.ResponseWriter, r *http.Request, req *oai.ChatCompletionRequest) {
	guard, err := s.acquireSession(r.Context(), req)
	if err != nil {
		writeTurnError(w, err)
		return
	}
	outcome := session.Ok
	defer func() { guard.Release(outcome) }()

	sess := guard.Session()
	parts := turnParts(req)
	if sendErr := sess.SendPrompt(parts...); sendErr != nil {
		outcome = session.Poisoned
		writeError(w, http.StatusInternalServerError, "internal_error", sendErr.Error())
		return
	}

	turnCtx, cancel := context.WithTimeout(r.Context(), s.cfg.TurnDeadline)
	defer cancel()

	sse := newSSEWriter(w)
	state := oai.NewStreamState(oai.ChatCompletionID(uuid.NewString()), time.Now().Unix(), req.Model)

	if err := sse.WriteEvent(state.InitChunk()); err != nil {
		outcome = session.Poisoned
		return
	}

	for {
		ev, readErr := sess.ReadEvent(turnCtx, time.Time{})
		if readErr != nil {
			outcome = session.Poisoned
			if !errors.Is(readErr, cchat.ErrEndOfStream) {
				sess.Interrupt()
			}
			log.Printf("stream error: %v", readErr)
			apiErr := apiErrorFromDrain(readErr)
			sse.WriteError(statusForAPIError(apiErr), apiErr.Type, apiErr.Message)
			sse.WriteDone()
			return
		}

		if ev.Kind == cchat.EventError {
			outcome = session.Poisoned
			log.Printf("claude error: %s", ev.Message)
			sse.WriteError(http.StatusBadGateway, "cli_protocol", ev.Message)
			sse.WriteDone()
			return
		}

		for _, chunk := range state.HandleEvent(ev) {
			if writeErr := sse.WriteEvent(chunk); writeErr != nil {
				outcome = session.Poisoned
				sess.Interrupt()
				return
			}
		}
		if ev.IsTerminal() {
			break
		}
	}

	sse.WriteDone()
}

// acquireSession picks conversation-scoped or ephemeral acquisition
// depending on whether the request carries a ConversationID, spawning a new
// Claude Code process for a not-yet-seen conversation.
func (s *Server) acquireSession(ctx context.Context, req *oai.ChatCompletionRequest) (*session.Guard, *oai.APIError) {
	factory := func(ctx context.Context) (*cchat.Session, error) {
		systemPrompt, _ := oai.RequestToPrompt(req)
		return s.client.Spawn(ctx, cchat.SpawnOptions{
			SystemPrompt: systemPrompt,
			Model:        req.Model,
			Streaming:    req.Stream,
		})
	}

	var guard *session.Guard
	var err error
	if req.ConversationID != "" {
		guard, err = s.sessions.Acquire(ctx, req.ConversationID, factory)
	} else {
		guard, err = s.sessions.AcquireEphemeral(ctx, factory)
	}
	if err != nil {
		return nil, apiErrorFromAcquire(err)
	}
	return guard, nil
}

// apiErrorFromAcquire classifies a session.Store.Acquire/AcquireEphemeral
// failure per the orchestrator's error taxonomy: a full store with no idle
// session to evict is CapacityExceeded (429); a factory failure spawning the
// CLI binary is CliSpawn (503); anything else is internal (500).
func apiErrorFromAcquire(err error) *oai.APIError {
	if errors.Is(err, session.ErrCapacityExceeded) {
		return &oai.APIError{Message: err.Error(), Type: "capacity_exceeded"}
	}
	var notFoundErr *cchat.CliNotFoundError
	var spawnErr *cchat.SpawnError
	if errors.As(err, &notFoundErr) || errors.As(err, &spawnErr) {
		return &oai.APIError{Message: err.Error(), Type: "cli_spawn"}
	}
	return &oai.APIError{Message: err.Error(), Type: "internal_error"}
}

// turnParts selects what to send on this turn's stdin write. A
// conversation-scoped request only sends the newest user turn (the running
// session already holds the rest of the transcript); an ephemeral request
// sends the full collapsed transcript, since no prior turn exists to hold it.
func turnParts(req *oai.ChatCompletionRequest) []cchat.PromptPart {
	if req.ConversationID != "" {
		return oai.NewestUserParts(req)
	}
	_, parts := oai.RequestToPrompt(req)
	return parts
}

// drainTurn reads events from sess until a terminal event. A clean stdout
// close before a terminal Result or Error event is a protocol violation,
// not a successful turn — it is returned as cchat.ErrEndOfStream rather
// than swallowed, so the caller classifies it as CliProtocol instead of
// projecting an incomplete event list into a 200 OK.
func drainTurn(ctx context.Context, sess *cchat.Session) ([]cchat.CliEvent, error) {
	var events []cchat.CliEvent
	for {
		ev, err := sess.ReadEvent(ctx, time.Time{})
		if err != nil {
			return events, err
		}
		events = append(events, ev)
		if ev.IsTerminal() {
			return events, nil
		}
	}
}

// apiErrorFromDrain classifies a drainTurn/ReadEvent failure per the
// orchestrator's error taxonomy: Timeout, CliProtocol (line-too-long,
// unparseable JSON, or stdout EOF before a terminal event), CliSpawn, or
// internal.
func apiErrorFromDrain(err error) *oai.APIError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, cchat.ErrTimeout) {
		return &oai.APIError{Message: "turn exceeded its deadline", Type: "timeout"}
	}
	if errors.Is(err, cchat.ErrEndOfStream) {
		return &oai.APIError{Message: "stream ended before a terminal Result or Error event", Type: "cli_protocol"}
	}
	var protoErr *cchat.ProtocolError
	var procErr *cchat.ProcessError
	if errors.As(err, &protoErr) || errors.As(err, &procErr) {
		return &oai.APIError{Message: err.Error(), Type: "cli_protocol"}
	}
	var notFoundErr *cchat.CliNotFoundError
	var spawnErr *cchat.SpawnError
	if errors.As(err, &notFoundErr) || errors.As(err, &spawnErr) {
		return &oai.APIError{Message: err.Error(), Type: "cli_spawn"}
	}
	return &oai.APIError{Message: err.Error(), Type: "internal_error"}
}

func fingerprintRequest(req *oai.ChatCompletionRequest) (cache.Fingerprint, error) {
	messages, err := json.Marshal(req.Messages)
	if err != nil {
		return cache.Fingerprint{}, err
	}
	tools, err := json.Marshal(req.Tools)
	if err != nil {
		return cache.Fingerprint{}, err
	}
	return cache.ComputeFingerprint(cache.FingerprintInput{
		Model:    req.Model,
		Messages: messages,
		Tools:    tools,
		Stream:   req.Stream,
	}), nil
}

func writeTurnError(w http.ResponseWriter, apiErr *oai.APIError) {
	writeError(w, statusForAPIError(apiErr), apiErr.Type, apiErr.Message)
}

// statusForAPIError maps the orchestrator's error taxonomy to HTTP status:
// 408 for a per-turn timeout, 429 for capacity exhaustion, 502 for a CLI
// protocol violation, 503 for a CLI spawn failure, 500 otherwise.
func statusForAPIError(apiErr *oai.APIError) int {
	switch apiErr.Type {
	case "timeout":
		return http.StatusRequestTimeout
	case "capacity_exceeded":
		return http.StatusTooManyRequests
	case "cli_protocol":
		return http.StatusBadGateway
	case "cli_spawn":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET is accepted")
		return
	}

	models := []map[string]any{
		{"id": "sonnet", "object": "model", "owned_by": "anthropic"},
		{"id": "opus", "object": "model", "owned_by": "anthropic"},
		{"id": "haiku", "object": "model", "owned_by": "anthropic"},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   models,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"sessions": s.sessions.Stats(),
	}
	if s.cache != nil {
		stats["cache"] = s.cache.Stats()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(oai.ErrorResponse{
		Error: oai.ErrorDetail{
			Message: message,
			Type:    errType,
		},
	})
}
