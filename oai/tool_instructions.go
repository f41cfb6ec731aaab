package oai

import (
	"encoding/json"
	"strings"

	"github.com/codewandler/cc-gateway-go/toolcall"
)

// ToolUsageInstructions generates system prompt text instructing the model
// how to invoke the provided tools. Unlike a native tool-use API, Claude
// Code has no protocol-level notion of tools, so the instructions ask the
// model to emit a plain JSON object — optionally inside a ```json fenced
// block — matching one of the declared schemas. [toolcall.Extractor] is
// what actually recognizes the result; this only shapes the model's output
// toward something the extractor can recognize.
func ToolUsageInstructions(tools []Tool) string {
	if len(tools) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n\n## Available Tools\n\n")
	b.WriteString("To call a tool, respond with nothing but a single JSON object matching one ")
	b.WriteString("of the schemas below (a ```json fenced block is also accepted):\n\n")

	for _, tool := range tools {
		if tool.Type != "function" {
			continue
		}
		b.WriteString("### ")
		b.WriteString(tool.Function.Name)
		b.WriteString("\n")
		if tool.Function.Description != "" {
			b.WriteString(tool.Function.Description)
			b.WriteString("\n")
		}
		if tool.Function.Parameters != nil {
			params, err := json.Marshal(tool.Function.Parameters)
			if err == nil {
				b.WriteString("Parameters: ")
				b.Write(params)
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("Only one tool call per response. Do not include any text alongside the JSON object.\n")

	return b.String()
}

// toolSchemas converts declared OpenAI tools into toolcall.ToolSchema by
// reading the JSON-Schema "required" array from each tool's parameters, if
// present.
func toolSchemas(tools []Tool) []toolcall.ToolSchema {
	var out []toolcall.ToolSchema
	for _, tool := range tools {
		if tool.Type != "function" {
			continue
		}
		out = append(out, toolcall.ToolSchema{
			Name:     tool.Function.Name,
			Required: requiredProperties(tool.Function.Parameters),
		})
	}
	return out
}

func requiredProperties(parameters any) []string {
	if parameters == nil {
		return nil
	}
	data, err := json.Marshal(parameters)
	if err != nil {
		return nil
	}
	var schema struct {
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil
	}
	return schema.Required
}
