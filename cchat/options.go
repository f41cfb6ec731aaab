// Package cchat owns one Claude Code CLI child process at a time: building
// its argv, spawning it, writing prompts to its stdin, and reading typed
// events off its stdout. A [Session] is half-duplex — one prompt in, one
// sequence of [CliEvent]s out, terminated by a Result or Error — and can be
// reused for further turns by the same conversation.
package cchat

import "time"

// defaultMaxOutputTokens replaces an invalid CLAUDE_CODE_MAX_OUTPUT_TOKENS value.
const defaultMaxOutputTokens = 8192

// minMaxOutputTokens and maxMaxOutputTokens bound CLAUDE_CODE_MAX_OUTPUT_TOKENS.
const (
	minMaxOutputTokens = 1
	maxMaxOutputTokens = 32000
)

// ClientConfig configures a cchat Client.
type ClientConfig struct {
	// CLIPath is the path to the claude binary. Default: "claude".
	CLIPath string

	// Model is the default model to use (--model flag).
	Model string

	// MaxConcurrent is the maximum number of concurrent CC processes.
	// 0 means unlimited.
	MaxConcurrent int

	// DefaultTimeout is the per-process timeout. 0 means context-only.
	DefaultTimeout time.Duration

	// WorkDir is the working directory for CC processes.
	WorkDir string

	// MaxOutputTokens, if non-zero, is clamped to [1, 32000] and passed to
	// the child as CLAUDE_CODE_MAX_OUTPUT_TOKENS. A value outside that range
	// (or left at zero with EntrypointTag set) falls back to 8192.
	MaxOutputTokens int
}

// clampMaxOutputTokens applies the CLAUDE_CODE_MAX_OUTPUT_TOKENS validation
// rule: clamp in-range integers, replace anything else with the default.
func clampMaxOutputTokens(v int) int {
	if v < minMaxOutputTokens || v > maxMaxOutputTokens {
		return defaultMaxOutputTokens
	}
	return v
}

// SpawnOptions configures one CLI child process.
type SpawnOptions struct {
	// SystemPrompt replaces CC's default system prompt via --system-prompt.
	SystemPrompt string

	// Streaming adds --include-partial-messages for incremental text events.
	Streaming bool

	// Model overrides the client's default model for this session.
	Model string

	// Effort sets the --effort flag (low/medium/high).
	Effort string

	// ArgvPrefix carries additional flags assembled by the caller (the
	// "config provider" collaborator in the external-interfaces contract):
	// --mcp-config, repeatable --add-dir, --settings,
	// --dangerously-skip-permissions, --allowedTools/--disallowedTools.
	// These are inserted ahead of the fixed protocol flags.
	ArgvPrefix []string

	// MaxOutputTokens, if non-zero, overrides ClientConfig.MaxOutputTokens
	// for this session.
	MaxOutputTokens int
}

// PromptPart is one element of a turn's prompt content. A part with a
// non-empty ImagePath is rendered as an image reference; otherwise it is
// rendered as a text part.
type PromptPart struct {
	Text      string
	ImagePath string
}
