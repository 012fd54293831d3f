// Package tool provides the tool registry, the per-tool policy table,
// and the Tool Runner that turns every outcome into a result envelope.
package tool

import (
	"context"
	"encoding/json"
)

// Tool is one invokable capability exposed to the model.
type Tool interface {
	// Name returns the tool identifier.
	Name() string

	// Description returns the tool description sent to the model.
	Description() string

	// Parameters returns the JSON Schema for tool arguments.
	Parameters() json.RawMessage

	// Policy returns how the engine treats this tool.
	Policy() Policy

	// Execute runs the tool. A returned error becomes a failure envelope.
	Execute(ctx context.Context, input json.RawMessage) (*Output, error)
}

// Policy is the per-tool behaviour table the engine consumes.
type Policy struct {
	// NeedsApproval gates execution behind the approval bridge.
	NeedsApproval bool

	// ShowRunning enqueues a running tool message while executing.
	ShowRunning bool

	// MutatesWorkspace wraps execution with a pending-change snapshot.
	MutatesWorkspace bool
}

// Output is what a tool produces on success.
type Output struct {
	Title    string         `json:"title"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// MutatedPath extracts the file path a mutating tool targets from its
// argument map. Mutating tools declare the path under "filePath".
func MutatedPath(args map[string]any) string {
	if p, ok := args["filePath"].(string); ok {
		return p
	}
	return ""
}
