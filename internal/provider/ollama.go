package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/ollama/ollama/api"

	"github.com/mosaic-ai/mosaic/internal/logging"
)

// DefaultOllamaHost is used when neither config nor OLLAMA_HOST name a
// server.
const DefaultOllamaHost = "http://127.0.0.1:11434"

// OllamaProvider serves models through a local Ollama server.
type OllamaProvider struct {
	client *api.Client
	host   string
	config *OllamaConfig
}

// OllamaConfig holds Ollama provider configuration.
type OllamaConfig struct {
	Host  string
	Model string
}

// NewOllamaProvider creates an Ollama provider. The server is not
// contacted here; Ready handles liveness and startup.
func NewOllamaProvider(config *OllamaConfig) (*OllamaProvider, error) {
	host := config.Host
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = DefaultOllamaHost
	}
	parsed, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}
	return &OllamaProvider{
		client: api.NewClient(parsed, http.DefaultClient),
		host:   host,
		config: config,
	}, nil
}

func (p *OllamaProvider) ID() string   { return "ollama" }
func (p *OllamaProvider) Name() string { return "Ollama" }

// Models lists the models the local server has pulled. An unreachable
// server yields an empty list; Ready reports the real condition.
func (p *OllamaProvider) Models() []Model {
	resp, err := p.client.List(context.Background())
	if err != nil {
		return nil
	}
	models := make([]Model, 0, len(resp.Models))
	for _, m := range resp.Models {
		models = append(models, Model{
			ID:              m.Name,
			Name:            m.Name,
			ContextLength:   8192,
			MaxOutputTokens: 4096,
			SupportsTools:   true,
		})
	}
	return models
}

// Ready delegates to EnsureReady, which can spawn the server.
func (p *OllamaProvider) Ready(ctx context.Context, modelID string) Verdict {
	return ensureOllamaReady(ctx, p.client, p.host, modelID)
}

// CreateCompletion opens a streaming chat. The Ollama callback API is
// bridged onto an Eino stream via a pipe.
func (p *OllamaProvider) CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error) {
	chatReq := &api.ChatRequest{
		Model:    req.Model,
		Messages: toOllamaMessages(req.Messages),
		Tools:    toOllamaTools(req.Tools),
		Stream:   boolPtr(true),
	}

	reader, writer := schema.Pipe[*schema.Message](16)
	log := logging.Component("ollama")

	go func() {
		defer writer.Close()
		err := p.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
			msg := fromOllamaResponse(resp)
			if closed := writer.Send(msg, nil); closed {
				return io.ErrClosedPipe
			}
			return nil
		})
		if err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("ollama chat stream failed")
			writer.Send(nil, err)
		}
	}()

	return NewCompletionStream(reader), nil
}

// toOllamaMessages flattens Eino messages to the Ollama wire shape.
// Multi-content image parts become base64 image payloads.
func toOllamaMessages(msgs []*schema.Message) []api.Message {
	out := make([]api.Message, 0, len(msgs))
	for _, m := range msgs {
		om := api.Message{Role: string(m.Role), Content: m.Content}
		for _, part := range m.MultiContent {
			switch part.Type {
			case schema.ChatMessagePartTypeText:
				om.Content += part.Text
			case schema.ChatMessagePartTypeImageURL:
				if part.ImageURL == nil {
					continue
				}
				if data, ok := decodeDataURL(part.ImageURL.URL); ok {
					om.Images = append(om.Images, data)
				}
			}
		}
		out = append(out, om)
	}
	return out
}

// decodeDataURL extracts the payload of a base64 data URL.
func decodeDataURL(u string) (api.ImageData, bool) {
	if !strings.HasPrefix(u, "data:") {
		return nil, false
	}
	idx := strings.Index(u, ";base64,")
	if idx < 0 {
		return nil, false
	}
	raw := u[idx+len(";base64,"):]
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, false
	}
	return api.ImageData(data), true
}

// toOllamaTools converts Eino tool infos to the Ollama function schema.
func toOllamaTools(tools []*schema.ToolInfo) []api.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]api.Tool, 0, len(tools))
	for _, t := range tools {
		fn := api.ToolFunction{
			Name:        t.Name,
			Description: t.Desc,
		}
		fn.Parameters.Type = "object"
		fn.Parameters.Properties = map[string]api.ToolProperty{}

		if t.ParamsOneOf != nil {
			if openAPI, err := t.ParamsOneOf.ToOpenAPIV3(); err == nil && openAPI != nil {
				fn.Parameters.Required = openAPI.Required
				for name, ref := range openAPI.Properties {
					if ref == nil || ref.Value == nil {
						continue
					}
					prop := api.ToolProperty{
						Type:        api.PropertyType{ref.Value.Type},
						Description: ref.Value.Description,
					}
					for _, e := range ref.Value.Enum {
						prop.Enum = append(prop.Enum, e)
					}
					fn.Parameters.Properties[name] = prop
				}
			}
		}

		out = append(out, api.Tool{Type: "function", Function: fn})
	}
	return out
}

// fromOllamaResponse maps one chat chunk onto the Eino message shape the
// normalizer consumes. Ollama reports tool calls whole, not fragmented.
func fromOllamaResponse(resp api.ChatResponse) *schema.Message {
	msg := &schema.Message{
		Role:    schema.Assistant,
		Content: resp.Message.Content,
	}
	for i, tc := range resp.Message.ToolCalls {
		idx := i
		args, _ := json.Marshal(tc.Function.Arguments)
		msg.ToolCalls = append(msg.ToolCalls, schema.ToolCall{
			Index: &idx,
			ID:    fmt.Sprintf("ollama-call-%d", i),
			Function: schema.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: string(args),
			},
		})
	}
	if resp.Done {
		reason := resp.DoneReason
		if reason == "" {
			reason = "stop"
		}
		if len(resp.Message.ToolCalls) > 0 {
			reason = "tool_calls"
		}
		msg.ResponseMeta = &schema.ResponseMeta{
			FinishReason: reason,
			Usage: &schema.TokenUsage{
				PromptTokens:     resp.PromptEvalCount,
				CompletionTokens: resp.EvalCount,
				TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
			},
		}
	}
	return msg
}

func boolPtr(b bool) *bool { return &b }
