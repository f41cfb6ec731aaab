package oai

import "github.com/codewandler/cc-gateway-go/cchat"

// StreamState tracks the identity fields of one streaming response across
// a turn's CliEvents. Tool-call detection never runs in streaming mode —
// a request combining stream=true and tools is rejected by the
// orchestrator before a StreamState is ever created — so unlike the
// non-streaming path there is no text buffering here: each AssistantDelta
// is forwarded as its own chunk.
type StreamState struct {
	ID      string
	Model   string
	Created int64
}

// NewStreamState creates a StreamState. id is typically "chatcmpl-<uuid>".
func NewStreamState(id string, created int64, model string) *StreamState {
	return &StreamState{ID: id, Created: created, Model: model}
}

// InitChunk creates the initial SSE chunk carrying the assistant role.
func (ss *StreamState) InitChunk() *ChatCompletionChunk {
	return &ChatCompletionChunk{
		ID:      ss.ID,
		Object:  "chat.completion.chunk",
		Created: ss.Created,
		Model:   ss.Model,
		Choices: []ChunkChoice{{Index: 0, Delta: ChunkDelta{Role: "assistant"}}},
	}
}

// HandleEvent projects one CliEvent into zero or more chunks to emit. The
// caller drives a loop of ReadEvent/HandleEvent and writes each returned
// chunk as an SSE frame; on EventResult it also appends the final
// finish-reason chunk, so the caller should stop iterating after that.
func (ss *StreamState) HandleEvent(ev cchat.CliEvent) []*ChatCompletionChunk {
	switch ev.Kind {
	case cchat.EventSystemInit:
		if ss.Model == "" {
			ss.Model = ev.Model
		}
		return nil

	case cchat.EventAssistantDelta:
		if ev.Text == "" {
			return nil
		}
		content := ev.Text
		return []*ChatCompletionChunk{ss.contentChunk(&content)}

	case cchat.EventResult:
		reason := "stop"
		if ev.StopReason == "max_tokens" || ev.StopReason == "length" {
			reason = "length"
		}
		return []*ChatCompletionChunk{{
			ID:      ss.ID,
			Object:  "chat.completion.chunk",
			Created: ss.Created,
			Model:   ss.Model,
			Choices: []ChunkChoice{{Index: 0, Delta: ChunkDelta{}, FinishReason: &reason}},
		}}

	default:
		return nil
	}
}

func (ss *StreamState) contentChunk(content *string) *ChatCompletionChunk {
	return &ChatCompletionChunk{
		ID:      ss.ID,
		Object:  "chat.completion.chunk",
		Created: ss.Created,
		Model:   ss.Model,
		Choices: []ChunkChoice{{Index: 0, Delta: ChunkDelta{Content: content}}},
	}
}
