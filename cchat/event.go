package cchat

import "github.com/codewandler/cc-gateway-go/ccwire"

// CliEventKind discriminates the variants of CliEvent.
type CliEventKind int

const (
	EventSystemInit CliEventKind = iota
	EventAssistantDelta
	EventToolInvocation
	EventResult
	EventError
)

// CliEvent is the internal tagged union projected from the Claude Code
// wire format. A turn ends with exactly one EventResult or EventError;
// no further events are read past that terminator.
type CliEvent struct {
	Kind CliEventKind

	// SystemInit fields
	SessionID      string
	Model          string
	ToolsAvailable []string

	// AssistantDelta fields
	Text string

	// ToolInvocation fields
	ToolName  string
	ToolInput map[string]any

	// Result fields
	StopReason   string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	DurationMS   int

	// Error fields
	Message string
}

// projectMessage translates one ccwire.Message into zero or more CliEvents.
// Unknown or uninteresting shapes project to nothing and are skipped by the
// caller, matching the "unknown shapes are logged but ignored" contract.
func projectMessage(msg ccwire.Message) []CliEvent {
	switch m := msg.(type) {
	case *ccwire.SystemMessage:
		return []CliEvent{{
			Kind:           EventSystemInit,
			SessionID:      m.SessionID,
			Model:          m.Model,
			ToolsAvailable: m.Tools,
		}}

	case *ccwire.AssistantMessage:
		var events []CliEvent
		for _, block := range m.Message.Content {
			switch block.Type {
			case "text":
				if block.Text != "" {
					events = append(events, CliEvent{Kind: EventAssistantDelta, Text: block.Text})
				}
			case "tool_use":
				events = append(events, CliEvent{
					Kind:      EventToolInvocation,
					ToolName:  block.Name,
					ToolInput: block.Input,
				})
			}
		}
		return events

	case *ccwire.StreamEventMessage:
		ev := ccwire.ParseStreamEvent(m)
		if ev.Type != "content_block_delta" {
			return nil
		}
		text := ev.DeltaText()
		if text == "" {
			return nil
		}
		return []CliEvent{{Kind: EventAssistantDelta, Text: text}}

	case *ccwire.ResultMessage:
		if m.IsError {
			return []CliEvent{{Kind: EventError, Message: m.Result}}
		}
		stopReason := ""
		if m.StopReason != nil {
			stopReason = *m.StopReason
		}
		return []CliEvent{{
			Kind:         EventResult,
			SessionID:    m.SessionID,
			StopReason:   stopReason,
			InputTokens:  m.Usage.InputTokens + m.Usage.CacheReadInputTokens + m.Usage.CacheCreationInputTokens,
			OutputTokens: m.Usage.OutputTokens,
			CostUSD:      m.TotalCostUSD,
			DurationMS:   m.DurationMS,
		}}

	default:
		return nil
	}
}

// IsTerminal reports whether this event ends the current turn.
func (e CliEvent) IsTerminal() bool {
	return e.Kind == EventResult || e.Kind == EventError
}
