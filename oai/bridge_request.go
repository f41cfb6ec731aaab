package oai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codewandler/cc-gateway-go/cchat"
)

// parseContentParts re-decodes an arbitrary Content value (as produced by
// json.Unmarshal into ChatMessage.Content, typically []any) into
// []ContentPart. Returns nil if Content is a plain string or otherwise
// isn't a content-part array.
func parseContentParts(content any) []ContentPart {
	if content == nil {
		return nil
	}
	if _, isString := content.(string); isString {
		return nil
	}
	data, err := json.Marshal(content)
	if err != nil {
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return nil
	}
	return parts
}

// RequestToPrompt collapses an OpenAI request's messages into a system
// prompt plus the full transcript rendered as [cchat.PromptPart]s, for an
// ephemeral (single-turn) session that has no prior context of its own.
//
// System messages are concatenated (in order) into the system prompt;
// user/assistant/tool turns are rendered as a role-labeled transcript.
// Assistant messages carrying ToolCalls re-encode them as the same bare
// JSON object convention [ToolUsageInstructions] asks the model to
// produce, so a multi-turn tool-use exchange round-trips through the
// transcript consistently.
func RequestToPrompt(req *ChatCompletionRequest) (systemPrompt string, parts []cchat.PromptPart) {
	var systemParts []string
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			systemParts = append(systemParts, msg.StringContent())
		}
	}
	systemPrompt = strings.Join(systemParts, "\n\n")
	if len(req.Tools) > 0 {
		systemPrompt += ToolUsageInstructions(req.Tools)
	}

	for _, msg := range req.Messages {
		if msg.Role == "system" {
			continue
		}
		parts = append(parts, messageParts(msg)...)
	}
	return systemPrompt, parts
}

// NewestUserParts extracts only the most recent user message's parts, for
// a conversation session being reused: prior turns are already in Claude
// Code's own context, so resending them would duplicate work and tokens.
// Returns nil if the request has no user message.
func NewestUserParts(req *ChatCompletionRequest) []cchat.PromptPart {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return messageParts(req.Messages[i])
		}
	}
	return nil
}

// messageParts renders one message as role-labeled prompt parts, inlining
// any image parts at their position in the content array.
func messageParts(msg ChatMessage) []cchat.PromptPart {
	label := fmt.Sprintf("[%s]: ", msg.Role)
	if msg.Role == "tool" {
		label = fmt.Sprintf("[tool_result for %s]: ", msg.ToolCallID)
	}

	contentParts, ok := msg.Content.([]ContentPart)
	if !ok {
		contentParts = parseContentParts(msg.Content)
	}

	text := messageText(msg)

	if len(contentParts) == 0 {
		return []cchat.PromptPart{{Text: label + text}}
	}

	var out []cchat.PromptPart
	first := true
	for _, part := range contentParts {
		switch part.Type {
		case "text":
			prefix := ""
			if first {
				prefix = label
			}
			out = append(out, cchat.PromptPart{Text: prefix + part.Text})
			first = false
		case "image_url":
			if part.ResolvedPath != "" {
				out = append(out, cchat.PromptPart{ImagePath: part.ResolvedPath})
			}
		}
	}
	return out
}

// messageText renders the message's text content, including a re-encoding
// of any ToolCalls as bare JSON objects (see RequestToPrompt).
func messageText(msg ChatMessage) string {
	text := msg.StringContent()
	if msg.Role != "assistant" || len(msg.ToolCalls) == 0 {
		return text
	}

	var parts []string
	if text != "" {
		parts = append(parts, text)
	}
	for _, tc := range msg.ToolCalls {
		parts = append(parts, fmt.Sprintf(`{"name": %q, "arguments": %s}`, tc.Function.Name, tc.Function.Arguments))
	}
	return strings.Join(parts, "\n\n")
}
