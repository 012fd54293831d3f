package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mosaic-ai/mosaic/internal/event"
	"github.com/mosaic-ai/mosaic/internal/logging"
	"github.com/mosaic-ai/mosaic/pkg/types"
)

// ChangeRecorder receives the undo snapshot of a successful mutation.
// The pending-change tracker implements it.
type ChangeRecorder interface {
	Record(change types.PendingChange)
}

// WriteSuppressor mutes external-change detection for a path while the
// runner itself writes it. The change watcher implements it.
type WriteSuppressor interface {
	Suppress(path string)
	Unsuppress(path string)
}

// Runner validates arguments, routes execution, and always answers with
// a result envelope.
type Runner struct {
	registry *Registry
	changes  ChangeRecorder
	suppress WriteSuppressor
}

// NewRunner creates a runner. changes may be nil when no tracker is
// attached (mutations then go unrecorded).
func NewRunner(registry *Registry, changes ChangeRecorder) *Runner {
	return &Runner{registry: registry, changes: changes}
}

// SuppressWrites brackets mutating tool writes with the suppressor so
// the runner's own edits are not flagged as external modifications.
func (r *Runner) SuppressWrites(s WriteSuppressor) {
	r.suppress = s
}

// Execute runs a named tool. Unknown tools, invalid arguments, and
// executor errors all become failure envelopes; Execute never panics and
// never returns a Go error.
func (r *Runner) Execute(ctx context.Context, name string, args map[string]any) types.ToolResult {
	log := logging.Component("tool")

	t, ok := r.registry.Get(name)
	if !ok {
		return types.ToolResult{Success: false, Error: "unknown tool: " + name}
	}

	if err := validateArgs(t.Parameters(), args); err != nil {
		return types.ToolResult{Success: false, Error: err.Error()}
	}

	input, err := json.Marshal(args)
	if err != nil {
		return types.ToolResult{Success: false, Error: "unencodable arguments: " + err.Error()}
	}

	var snapshot *types.PendingChange
	if t.Policy().MutatesWorkspace {
		snapshot = snapshotBefore(name, args, r.registry.workDir)
	}
	if snapshot != nil && r.suppress != nil {
		r.suppress.Suppress(snapshot.Path)
		defer r.suppress.Unsuppress(snapshot.Path)
	}

	out, err := t.Execute(ctx, input)
	if err != nil {
		log.Debug().Str("tool", name).Err(err).Msg("tool execution failed")
		return types.ToolResult{Success: false, Error: err.Error()}
	}

	if snapshot != nil {
		r.recordChange(snapshot)
	}

	return types.ToolResult{Success: true, Result: out.Text}
}

// snapshotBefore captures the pre-image of the file a mutating tool
// targets. Bash mutations carry no path and stay observational.
func snapshotBefore(toolName string, args map[string]any, workDir string) *types.PendingChange {
	path := MutatedPath(args)
	if path == "" {
		return nil
	}
	path = resolveWorkspacePath(path, workDir)
	change := &types.PendingChange{
		Path: path,
		Tool: toolName,
		Time: time.Now().UnixMilli(),
	}
	if before, err := os.ReadFile(path); err == nil {
		change.Existed = true
		change.Before = before
	}
	return change
}

// recordChange completes the snapshot with the post-image and hands it
// to the tracker.
func (r *Runner) recordChange(change *types.PendingChange) {
	if after, err := os.ReadFile(change.Path); err == nil {
		change.After = after
	}
	if r.changes != nil {
		r.changes.Record(*change)
	}
	event.Publish(event.Event{
		Type: event.PendingChangeAdded,
		Data: event.PendingChangeAddedData{Path: change.Path, Tool: change.Tool},
	})
}

// validateArgs checks the argument map against the schema's required
// list and rejects non-object schemas it cannot interpret.
func validateArgs(schemaJSON json.RawMessage, args map[string]any) error {
	var jsonSchema struct {
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(schemaJSON, &jsonSchema); err != nil {
		return fmt.Errorf("invalid tool schema: %w", err)
	}
	for _, field := range jsonSchema.Required {
		v, ok := args[field]
		if !ok || v == nil {
			return fmt.Errorf("missing required argument: %s", field)
		}
		if s, isStr := v.(string); isStr && s == "" {
			return fmt.Errorf("missing required argument: %s", field)
		}
	}
	return nil
}
