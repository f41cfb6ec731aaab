// Package toolcall implements JSON-native tool-call detection over a final
// assistant text: when the caller declared tools, scan the text for JSON
// that matches one of their parameter schemas and surface it as structured
// calls instead of requiring a model-specific tag convention.
package toolcall

import (
	"encoding/json"
	"regexp"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ToolSchema is the subset of a declared tool's shape the extractor needs
// to recognize a match: its name and the required property names from its
// JSON-Schema parameters object. Full JSON-Schema validation is not
// performed — required-property presence is the match criterion.
type ToolSchema struct {
	Name     string
	Required []string
}

// Call is one recognized tool invocation, ready to be rendered as an
// OpenAI-format tool_calls entry.
type Call struct {
	ID        string
	Name      string
	Arguments string // canonical JSON, object form
}

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)```")

// Extractor scans assistant text for JSON objects conforming to one of a
// request's declared tools. Stateless; safe for concurrent use.
type Extractor struct{}

// NewExtractor returns a ready-to-use Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract runs the three-pass scan over text against schemas, in order,
// stopping at the first pass that yields at least one conforming object.
// Returns nil if no pass finds a match. Detection is intended for
// non-streaming responses only — streaming assistant text passes through
// verbatim regardless of declared tools.
func (e *Extractor) Extract(text string, schemas []ToolSchema) []Call {
	if len(schemas) == 0 {
		return nil
	}

	trimmed := strings.TrimSpace(text)

	// Pass 1: the entire trimmed text as one JSON object.
	if obj, ok := parseObject(trimmed); ok {
		if calls := matchAll([]map[string]any{obj}, schemas); calls != nil {
			return calls
		}
	}

	// Pass 2: fenced code blocks, tagged json or untagged-but-balanced.
	var fenced []map[string]any
	for _, m := range fencedBlockRe.FindAllStringSubmatch(text, -1) {
		body := strings.TrimSpace(m[1])
		if obj, ok := parseObject(body); ok {
			fenced = append(fenced, obj)
		}
	}
	if calls := matchAll(fenced, schemas); calls != nil {
		return calls
	}

	// Pass 3: the largest top-level balanced {...} substring.
	if span := largestBalancedObject(text); span != "" {
		if obj, ok := parseObject(span); ok {
			if calls := matchAll([]map[string]any{obj}, schemas); calls != nil {
				return calls
			}
		}
	}

	return nil
}

// parseObject parses s as a JSON object (not array, string, number, etc).
func parseObject(s string) (map[string]any, bool) {
	if s == "" {
		return nil, false
	}
	var obj map[string]any
	dec := json.NewDecoder(strings.NewReader(s))
	if err := dec.Decode(&obj); err != nil {
		return nil, false
	}
	// Reject trailing garbage so "{...} some text" isn't treated as a clean object.
	if dec.More() {
		return nil, false
	}
	return obj, true
}

// matchAll checks each candidate against every schema, returning a Call
// for every (candidate, schema) pair that conforms. Returns nil if nothing
// in candidates matched any schema.
func matchAll(candidates []map[string]any, schemas []ToolSchema) []Call {
	var calls []Call
	for _, obj := range candidates {
		for _, schema := range schemas {
			if !conforms(obj, schema) {
				continue
			}
			args, err := json.Marshal(obj)
			if err != nil {
				continue
			}
			id, err := gonanoid.New()
			if err != nil {
				id = schema.Name
			}
			calls = append(calls, Call{
				ID:        "call_" + id,
				Name:      schema.Name,
				Arguments: string(args),
			})
			break // a candidate matches at most one schema
		}
	}
	return calls
}

// conforms reports whether obj has every property schema.Required declares.
// A schema with no required properties matches any non-empty object.
func conforms(obj map[string]any, schema ToolSchema) bool {
	if len(schema.Required) == 0 {
		return len(obj) > 0
	}
	for _, key := range schema.Required {
		if _, ok := obj[key]; !ok {
			return false
		}
	}
	return true
}

// largestBalancedObject scans text for every top-level balanced {...}
// substring (ignoring braces inside string literals) and returns the
// longest one found, or "" if none exist.
func largestBalancedObject(text string) string {
	var best string
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i, r := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					candidate := text[start : i+1]
					if len(candidate) > len(best) {
						best = candidate
					}
					start = -1
				}
			}
		}
	}
	return best
}
