package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const askDescription = `Asks the user a clarifying question and waits for their answer.

Usage:
- Use this when you need a decision only the user can make
- Provide options when a small set of answers is expected; the user may
  still answer with free text
- Do not ask questions you can answer by reading the workspace`

// Asker poses a question to the user and blocks until it is answered
// or cancelled. The question bridge satisfies this through an adapter.
type Asker interface {
	Ask(ctx context.Context, prompt string, options []string) (string, error)
}

// AskTool relays a clarifying question from the model to the user.
type AskTool struct {
	asker Asker
}

// AskInput is the argument shape for the ask tool.
type AskInput struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options,omitempty"`
}

// NewAskTool creates an ask tool over the given asker.
func NewAskTool(asker Asker) *AskTool {
	return &AskTool{asker: asker}
}

func (t *AskTool) Name() string        { return "ask" }
func (t *AskTool) Description() string { return askDescription }

func (t *AskTool) Policy() Policy {
	return Policy{ShowRunning: true}
}

func (t *AskTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"prompt": {
				"type": "string",
				"description": "The question to ask the user"
			},
			"options": {
				"type": "array",
				"items": {"type": "string"},
				"description": "Suggested answers, if any"
			}
		},
		"required": ["prompt"]
	}`)
}

func (t *AskTool) Execute(ctx context.Context, input json.RawMessage) (*Output, error) {
	var params AskInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if strings.TrimSpace(params.Prompt) == "" {
		return nil, fmt.Errorf("prompt must not be empty")
	}

	answer, err := t.asker.Ask(ctx, params.Prompt, params.Options)
	if err != nil {
		return nil, err
	}

	return &Output{
		Title: "Asked the user",
		Text:  fmt.Sprintf("The user answered: %s", answer),
	}, nil
}
