package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"

	"github.com/cloudwego/eino/schema"

	"github.com/mosaic-ai/mosaic/internal/logging"
	"github.com/mosaic-ai/mosaic/pkg/types"
)

// Source is the chunk stream a provider adapter returns.
// provider.CompletionStream satisfies it; tests substitute a script.
type Source interface {
	Recv() (*schema.Message, error)
	Close()
}

// toolCallAccumulator collects the argument fragments of one tool call
// until the stream ends and the call can be emitted whole.
type toolCallAccumulator struct {
	callID string
	name   string
	args   string
}

// Normalize consumes src on a goroutine and returns the ordered event
// channel. The channel is closed after a terminal Finish or Error event.
// A cancellation observed mid-stream terminates the sequence with
// Error{Source: "abort"}.
func Normalize(ctx context.Context, src Source) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		defer src.Close()
		run(ctx, src, events)
	}()
	return events
}

func run(ctx context.Context, src Source, events chan<- Event) {
	log := logging.Component("stream")

	var (
		order   []string // accumulator keys in first-seen order
		calls   = make(map[string]*toolCallAccumulator)
		lastKey string
		reason  string
		usage   *types.Usage
	)

	emit := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !emit(StepStart{}) {
		events <- Error{Err: ctx.Err(), Source: "abort"}
		return
	}

	for {
		select {
		case <-ctx.Done():
			emitFinal(events, Error{Err: ctx.Err(), Source: "abort"})
			return
		default:
		}

		msg, err := src.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				emitFinal(events, Error{Err: ctx.Err(), Source: "abort"})
				return
			}
			emitFinal(events, Error{Err: err})
			return
		}

		if msg.ReasoningContent != "" {
			if !emit(ReasoningDelta{Content: msg.ReasoningContent}) {
				emitFinal(events, Error{Err: ctx.Err(), Source: "abort"})
				return
			}
		}
		if msg.Content != "" {
			if !emit(TextDelta{Content: msg.Content}) {
				emitFinal(events, Error{Err: ctx.Err(), Source: "abort"})
				return
			}
		}

		for _, tc := range msg.ToolCalls {
			key := accumulatorKey(tc, lastKey)
			acc, ok := calls[key]
			if !ok {
				acc = &toolCallAccumulator{}
				calls[key] = acc
				order = append(order, key)
			}
			lastKey = key
			if tc.ID != "" {
				acc.callID = tc.ID
			}
			if tc.Function.Name != "" {
				acc.name = tc.Function.Name
			}
			acc.args += tc.Function.Arguments
		}

		if meta := msg.ResponseMeta; meta != nil {
			if meta.FinishReason != "" {
				reason = meta.FinishReason
			}
			if u := meta.Usage; u != nil {
				usage = &types.Usage{
					PromptTokens:     u.PromptTokens,
					CompletionTokens: u.CompletionTokens,
					TotalTokens:      u.TotalTokens,
				}
			}
		}
	}

	for _, key := range order {
		acc := calls[key]
		args := map[string]any{}
		if acc.args != "" {
			if err := json.Unmarshal([]byte(acc.args), &args); err != nil {
				log.Warn().Str("tool", acc.name).Err(err).Msg("discarding unparseable tool arguments")
				args = map[string]any{}
			}
		}
		if !emit(ToolCallEnd{CallID: acc.callID, Name: acc.name, Args: args}) {
			emitFinal(events, Error{Err: ctx.Err(), Source: "abort"})
			return
		}
	}

	fr := normalizeFinishReason(reason)
	if reason == "" && len(order) > 0 {
		fr = FinishToolUse
	}
	emitFinal(events, Finish{Reason: fr, Usage: usage})
}

// emitFinal delivers the terminal event even when the consumer is slow;
// the channel buffer guarantees room for one more event after deltas.
func emitFinal(events chan<- Event, ev Event) {
	events <- ev
}

// accumulatorKey picks the map key for a tool-call fragment. Providers
// that stream argument fragments omit the id on continuation chunks, so
// fragments with no id and no index attach to the last call seen.
func accumulatorKey(tc schema.ToolCall, lastKey string) string {
	if tc.Index != nil {
		return "idx:" + strconv.Itoa(*tc.Index)
	}
	if tc.ID != "" {
		return "id:" + tc.ID
	}
	if lastKey != "" {
		return lastKey
	}
	return "id:"
}
