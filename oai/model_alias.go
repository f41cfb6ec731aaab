package oai

// modelAliases maps short OpenAI-style model names to the Claude Code CLI's
// own model identifiers. Unrecognized names pass through unchanged — the
// CLI itself rejects bad identifiers, so this table only needs to cover the
// convenience aliases we advertise via ListModels.
var modelAliases = map[string]string{
	"opus":   "claude-opus-4-1",
	"sonnet": "claude-sonnet-4-5",
	"haiku":  "claude-haiku-4-5",
}

// ResolveModel maps a short alias ("opus", "sonnet", "haiku") to the CLI's
// model identifier. Anything not in the table passes through unchanged,
// since the CLI itself is the source of truth for valid model names.
func ResolveModel(name string) string {
	if resolved, ok := modelAliases[name]; ok {
		return resolved
	}
	return name
}
