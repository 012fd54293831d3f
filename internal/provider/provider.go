// Package provider abstracts the LLM backends behind a streaming
// completion interface built on the Eino schema.
package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/cloudwego/eino/schema"

	"github.com/mosaic-ai/mosaic/pkg/types"
)

// Provider is one LLM backend.
type Provider interface {
	// ID returns the provider identifier ("anthropic", "openai", "ollama").
	ID() string

	// Name returns the human-readable provider name.
	Name() string

	// Models returns the models this provider serves.
	Models() []Model

	// CreateCompletion opens a streaming completion.
	CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error)

	// Ready verifies the provider can serve the given model.
	Ready(ctx context.Context, modelID string) Verdict
}

// Model describes one servable model.
type Model struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	ContextLength     int    `json:"contextLength"`
	MaxOutputTokens   int    `json:"maxOutputTokens"`
	SupportsTools     bool   `json:"supportsTools"`
	SupportsReasoning bool   `json:"supportsReasoning"`
}

// CompletionRequest is a normalized streaming request.
type CompletionRequest struct {
	Model       string             `json:"model"`
	Messages    []*schema.Message  `json:"messages"`
	Tools       []*schema.ToolInfo `json:"tools,omitempty"`
	MaxTokens   int                `json:"maxTokens,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
}

// CompletionStream wraps an Eino stream reader.
type CompletionStream struct {
	reader *schema.StreamReader[*schema.Message]
}

// NewCompletionStream wraps a stream reader.
func NewCompletionStream(reader *schema.StreamReader[*schema.Message]) *CompletionStream {
	return &CompletionStream{reader: reader}
}

// Recv returns the next chunk, io.EOF at end of stream.
func (s *CompletionStream) Recv() (*schema.Message, error) {
	return s.reader.Recv()
}

// Close releases the stream.
func (s *CompletionStream) Close() {
	s.reader.Close()
}

// ChatMessage is the engine's outbound message shape: user/assistant
// roles only, with tool memory already collapsed by the caller.
type ChatMessage struct {
	Role   string // "user" | "assistant"
	Text   string
	Images []types.Attachment
}

// BuildSchemaMessages converts the outbound list to Eino messages,
// prepending the system prompt when present. Images become data-URL
// multi-content parts.
func BuildSchemaMessages(system string, msgs []ChatMessage) []*schema.Message {
	out := make([]*schema.Message, 0, len(msgs)+1)
	if system != "" {
		out = append(out, &schema.Message{Role: schema.System, Content: system})
	}
	for _, m := range msgs {
		role := schema.Assistant
		if m.Role == "user" {
			role = schema.User
		}
		sm := &schema.Message{Role: role, Content: m.Text}
		if len(m.Images) > 0 {
			parts := make([]schema.ChatMessagePart, 0, len(m.Images)+1)
			if m.Text != "" {
				parts = append(parts, schema.ChatMessagePart{
					Type: schema.ChatMessagePartTypeText,
					Text: m.Text,
				})
			}
			for _, img := range m.Images {
				parts = append(parts, schema.ChatMessagePart{
					Type: schema.ChatMessagePartTypeImageURL,
					ImageURL: &schema.ChatMessageImageURL{
						URL: "data:" + img.Mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data),
					},
				})
			}
			sm.Content = ""
			sm.MultiContent = parts
		}
		out = append(out, sm)
	}
	return out
}

// ToolSpec is a provider-neutral tool definition.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON Schema
}

// ToSchemaTools converts tool specs to Eino tool infos.
func ToSchemaTools(specs []ToolSpec) []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(specs))
	for _, spec := range specs {
		infos = append(infos, &schema.ToolInfo{
			Name:        spec.Name,
			Desc:        spec.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(parseJSONSchemaToParams(spec.Parameters)),
		})
	}
	return infos
}

// parseJSONSchemaToParams converts a JSON Schema object to Eino
// parameter infos. Nested schemas are flattened to their top level; the
// built-in tools only declare flat parameter objects.
func parseJSONSchemaToParams(schemaJSON json.RawMessage) map[string]*schema.ParameterInfo {
	var jsonSchema struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(schemaJSON, &jsonSchema); err != nil {
		return nil
	}

	requiredSet := make(map[string]bool, len(jsonSchema.Required))
	for _, r := range jsonSchema.Required {
		requiredSet[r] = true
	}

	params := make(map[string]*schema.ParameterInfo, len(jsonSchema.Properties))
	for name, prop := range jsonSchema.Properties {
		paramType := schema.String
		switch prop.Type {
		case "integer":
			paramType = schema.Integer
		case "number":
			paramType = schema.Number
		case "boolean":
			paramType = schema.Boolean
		case "array":
			paramType = schema.Array
		case "object":
			paramType = schema.Object
		}
		params[name] = &schema.ParameterInfo{
			Type:     paramType,
			Desc:     prop.Description,
			Required: requiredSet[name],
		}
	}
	return params
}
