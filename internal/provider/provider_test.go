package provider

import (
	"encoding/json"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaic-ai/mosaic/pkg/types"
)

func TestBuildSchemaMessages(t *testing.T) {
	msgs := BuildSchemaMessages("you are helpful", []ChatMessage{
		{Role: "user", Text: "hello"},
		{Role: "assistant", Text: "hi"},
	})
	require.Len(t, msgs, 3)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Equal(t, "you are helpful", msgs[0].Content)
	assert.Equal(t, schema.User, msgs[1].Role)
	assert.Equal(t, schema.Assistant, msgs[2].Role)
}

func TestBuildSchemaMessagesNoSystem(t *testing.T) {
	msgs := BuildSchemaMessages("", []ChatMessage{{Role: "user", Text: "hello"}})
	require.Len(t, msgs, 1)
	assert.Equal(t, schema.User, msgs[0].Role)
}

func TestBuildSchemaMessagesImages(t *testing.T) {
	msgs := BuildSchemaMessages("", []ChatMessage{
		{
			Role: "user",
			Text: "what is this",
			Images: []types.Attachment{
				{Mime: "image/png", Data: []byte{0x89, 0x50}},
			},
		},
	})
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].MultiContent, 2)
	assert.Equal(t, schema.ChatMessagePartTypeText, msgs[0].MultiContent[0].Type)
	assert.Equal(t, schema.ChatMessagePartTypeImageURL, msgs[0].MultiContent[1].Type)
	assert.Contains(t, msgs[0].MultiContent[1].ImageURL.URL, "data:image/png;base64,")
	assert.Empty(t, msgs[0].Content)
}

func TestParseJSONSchemaToParams(t *testing.T) {
	raw := json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "file path"},
			"limit": {"type": "integer", "description": "max lines"},
			"all": {"type": "boolean"}
		},
		"required": ["path"]
	}`)
	params := parseJSONSchemaToParams(raw)
	require.Len(t, params, 3)
	assert.Equal(t, schema.String, params["path"].Type)
	assert.True(t, params["path"].Required)
	assert.Equal(t, "file path", params["path"].Desc)
	assert.Equal(t, schema.Integer, params["limit"].Type)
	assert.False(t, params["limit"].Required)
	assert.Equal(t, schema.Boolean, params["all"].Type)
}

func TestParseJSONSchemaToParamsInvalid(t *testing.T) {
	assert.Nil(t, parseJSONSchemaToParams(json.RawMessage(`not json`)))
}

func TestRegistryDefaultAndGet(t *testing.T) {
	r := NewRegistry()
	_, err := r.Default()
	assert.Error(t, err)

	p, err := NewOllamaProvider(&OllamaConfig{Host: "http://127.0.0.1:1"})
	require.NoError(t, err)
	r.Register(p)

	def, err := r.Default()
	require.NoError(t, err)
	assert.Equal(t, "ollama", def.ID())

	_, err = r.Get("nope")
	assert.Error(t, err)
	assert.Error(t, r.SetDefault("nope"))
	assert.NoError(t, r.SetDefault("ollama"))
}

func TestRegistryContextLimitFallback(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, 8192, r.ContextLimit("anthropic", "claude-sonnet-4-20250514"))

	p, err := NewOllamaProvider(&OllamaConfig{Host: "http://127.0.0.1:1"})
	require.NoError(t, err)
	r.Register(p)
	// unreachable server lists nothing, so the fallback applies
	assert.Equal(t, 8192, r.ContextLimit("ollama", "llama3.2"))
}

func TestDecodeDataURL(t *testing.T) {
	data, ok := decodeDataURL("data:image/png;base64,iVBORw==")
	assert.True(t, ok)
	assert.NotEmpty(t, data)

	_, ok = decodeDataURL("https://example.com/x.png")
	assert.False(t, ok)

	_, ok = decodeDataURL("data:image/png;base64,%%%")
	assert.False(t, ok)
}

func TestFromOllamaResponseToolCalls(t *testing.T) {
	resp := api.ChatResponse{
		Done:       true,
		DoneReason: "stop",
		Message: api.Message{
			ToolCalls: []api.ToolCall{
				{Function: api.ToolCallFunction{
					Name:      "read",
					Arguments: map[string]any{"path": "main.go"},
				}},
			},
		},
	}

	msg := fromOllamaResponse(resp)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "read", msg.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"path":"main.go"}`, msg.ToolCalls[0].Function.Arguments)
	require.NotNil(t, msg.ResponseMeta)
	// tool calls override the reported reason
	assert.Equal(t, "tool_calls", msg.ResponseMeta.FinishReason)
}
