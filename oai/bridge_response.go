package oai

import (
	"fmt"
	"strings"

	"github.com/codewandler/cc-gateway-go/cchat"
	"github.com/codewandler/cc-gateway-go/toolcall"
)

// ResultFromEvents assembles a non-streaming [ChatCompletionResponse] from
// one turn's [cchat.CliEvent] sequence. events must end with an
// EventResult (the caller is responsible for treating EventError or a
// timeout as a failure before calling this). id is typically
// "chatcmpl-<uuid>"; requestedModel echoes the resolved model identifier
// from the request.
//
// When tools is non-empty, the accumulated assistant text is scanned by
// [toolcall.Extractor]; a match nulls out Content and sets FinishReason to
// "tool_calls". Otherwise FinishReason is "length" if the CLI's stop
// reason indicates truncation, else "stop".
func ResultFromEvents(id string, created int64, requestedModel string, events []cchat.CliEvent, tools []Tool) *ChatCompletionResponse {
	var text strings.Builder
	var result *cchat.CliEvent
	for i := range events {
		ev := &events[i]
		switch ev.Kind {
		case cchat.EventAssistantDelta:
			text.WriteString(ev.Text)
		case cchat.EventResult:
			result = ev
		}
	}

	resp := &ChatCompletionResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: created,
		Model:   requestedModel,
	}

	msg := ChatMessage{Role: "assistant"}
	finishReason := "stop"

	if len(tools) > 0 {
		extractor := toolcall.NewExtractor()
		if calls := extractor.Extract(text.String(), toolSchemas(tools)); len(calls) > 0 {
			msg.ToolCalls = toCalls(calls)
			finishReason = "tool_calls"
		} else {
			msg.Content = text.String()
		}
	} else {
		msg.Content = text.String()
	}

	if finishReason == "stop" && result != nil && isTruncated(result.StopReason) {
		finishReason = "length"
	}

	resp.Choices = []Choice{{Index: 0, Message: msg, FinishReason: finishReason}}
	if result != nil {
		resp.Usage = &Usage{
			PromptTokens:     result.InputTokens,
			CompletionTokens: result.OutputTokens,
			TotalTokens:      result.InputTokens + result.OutputTokens,
		}
	}
	return resp
}

func isTruncated(stopReason string) bool {
	return stopReason == "max_tokens" || stopReason == "length"
}

func toCalls(calls []toolcall.Call) []ToolCall {
	out := make([]ToolCall, len(calls))
	for i, c := range calls {
		out[i] = ToolCall{
			ID:   c.ID,
			Type: "function",
			Function: FunctionCall{
				Name:      c.Name,
				Arguments: c.Arguments,
			},
		}
	}
	return out
}

// ErrorResponseFromEvent builds a structured error response body from a
// terminal EventError, for the ChatOrchestrator's step 4c.
func ErrorResponseFromEvent(ev cchat.CliEvent) *ErrorResponse {
	return &ErrorResponse{Error: ErrorDetail{
		Message: ev.Message,
		Type:    "claude_error",
	}}
}

// ChatCompletionID formats a response id from a uuid, per spec.md's
// "chatcmpl-<uuid>" convention.
func ChatCompletionID(uuid string) string {
	return fmt.Sprintf("chatcmpl-%s", uuid)
}
