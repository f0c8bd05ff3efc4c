// Package oracle provides the inference port: an abstraction over a
// structured-extraction and text-generation LLM backend. The rest of the
// system depends on the Oracle interface only, so tests substitute fakes
// and the concrete binding (Gemini, or any OpenAI-compatible endpoint)
// is chosen at wiring time.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Message represents a single conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Schema describes the expected JSON output structure for structured
// extraction requests.
type Schema struct {
	Type       string                    `json:"type"`
	Properties map[string]SchemaProperty `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

// SchemaProperty describes a single field within a Schema.
type SchemaProperty struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// GenerateRequest carries the inputs for a free-text generation call.
type GenerateRequest struct {
	Prompt      string
	History     []Message
	Temperature float64
	MaxTokens   int
}

// Oracle is the inference port consumed by the conversation engine and its
// collaborators.
//
// Generate returns the model's text response or an error. Extract is
// best-effort: on any failure (transport, malformed output) it returns a map
// with every schema key set to nil and never returns an error; callers treat
// nil values as "nothing found" and fall back accordingly.
type Oracle interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	Extract(ctx context.Context, prompt string, schema Schema, history []Message) map[string]any
}

// Generator is the low-level text binding an Oracle client is built on.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Client implements Oracle on top of any Generator by rendering extraction
// requests as JSON-only prompts and parsing the response.
type Client struct {
	gen Generator
}

// NewClient wraps a Generator into a full Oracle.
func NewClient(gen Generator) *Client {
	return &Client{gen: gen}
}

// Generate delegates to the underlying binding.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	return c.gen.Generate(ctx, req)
}

const extractTemperature = 0.1

// Extract asks the model for a JSON object matching schema and parses it.
// The returned map always contains every schema key; keys the model could
// not fill (or the whole map, on failure) hold nil.
func (c *Client) Extract(ctx context.Context, prompt string, schema Schema, history []Message) map[string]any {
	out := nullResult(schema)

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		slog.Error("marshalling extraction schema", "error", err)
		return out
	}

	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\nRespond with ONLY a single valid JSON object conforming to this schema. ")
	sb.WriteString("Use null for any field you cannot determine. No prose, no markdown fences.\n\nSchema:\n")
	sb.Write(schemaJSON)

	raw, err := c.gen.Generate(ctx, GenerateRequest{
		Prompt:      sb.String(),
		History:     history,
		Temperature: extractTemperature,
	})
	if err != nil {
		slog.Warn("structured extraction failed", "error", err)
		return out
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(StripJSONFences(raw)), &parsed); err != nil {
		slog.Warn("failed to unmarshal extraction response", "error", err, "response", raw)
		return out
	}

	for key := range schema.Properties {
		if v, ok := parsed[key]; ok {
			out[key] = v
		}
	}
	return out
}

// nullResult builds the all-nil result map for a schema.
func nullResult(schema Schema) map[string]any {
	out := make(map[string]any, len(schema.Properties))
	for key := range schema.Properties {
		out[key] = nil
	}
	return out
}

// Fallback is a Generator that tries a primary binding and falls back to a
// secondary one when the primary fails or returns empty output. The secondary
// may be nil, in which case the primary's error is returned as-is.
type Fallback struct {
	Primary   Generator
	Secondary Generator
}

// Generate tries the primary binding twice (transient empty responses are
// common), then the secondary.
func (f *Fallback) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		text, err := f.Primary.Generate(ctx, req)
		if err == nil && strings.TrimSpace(text) != "" {
			return text, nil
		}
		if err != nil {
			lastErr = err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	if f.Secondary == nil {
		if lastErr != nil {
			return "", lastErr
		}
		return "", fmt.Errorf("primary oracle returned no content")
	}

	slog.Warn("primary oracle failed, using fallback", "error", lastErr)
	text, err := f.Secondary.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("fallback oracle: %w", err)
	}
	return text, nil
}
