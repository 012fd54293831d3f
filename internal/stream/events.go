// Package stream normalizes a provider completion stream into the typed,
// totally ordered event sequence the turn driver consumes.
package stream

import "github.com/mosaic-ai/mosaic/pkg/types"

// Event is the tagged sum of normalized stream events.
type Event interface {
	streamEvent()
}

// StepStart marks a new model reasoning step; the driver counts these
// against the step budget.
type StepStart struct{}

func (StepStart) streamEvent() {}

// ReasoningDelta is an incremental chunk of hidden chain-of-thought text.
type ReasoningDelta struct {
	Content string
}

func (ReasoningDelta) streamEvent() {}

// TextDelta is an incremental chunk of user-visible text.
type TextDelta struct {
	Content string
}

func (TextDelta) streamEvent() {}

// ToolCallEnd carries the complete argument map of one tool invocation;
// partial argument fragments have been collapsed.
type ToolCallEnd struct {
	CallID string
	Name   string
	Args   map[string]any
}

func (ToolCallEnd) streamEvent() {}

// FinishReason classifies how a stream segment ended.
type FinishReason string

const (
	FinishStop    FinishReason = "stop"
	FinishToolUse FinishReason = "tool_use"
	FinishLength  FinishReason = "length"
)

// Finish terminates a stream segment; Usage is present when the provider
// reported authoritative token counts.
type Finish struct {
	Reason FinishReason
	Usage  *types.Usage
}

func (Finish) streamEvent() {}

// Error terminates the sequence abnormally. Source is "abort" for a
// cancellation observed mid-stream.
type Error struct {
	Err    error
	Source string
}

func (Error) streamEvent() {}

// normalizeFinishReason maps provider wording onto the three reasons the
// driver distinguishes.
func normalizeFinishReason(raw string) FinishReason {
	switch raw {
	case "tool_use", "tool_calls":
		return FinishToolUse
	case "max_tokens", "length":
		return FinishLength
	default:
		return FinishStop
	}
}
