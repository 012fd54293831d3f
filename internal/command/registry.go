// Package command resolves slash commands into engine outcomes.
//
// Built-ins cover conversation management (/clear, /compact, /review,
// /help, /history); user-defined commands come from YAML files in the
// config directory and continue as a synthetic user turn.
package command

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Outcome tells the engine what a resolved command wants done.
type Outcome struct {
	// Output is informational text shown as a local slash message.
	Output string

	// ClearMessages empties the conversation.
	ClearMessages bool

	// Compact requests an explicit compaction.
	Compact bool

	// EnterReview starts Review Mode over pending changes.
	EnterReview bool

	// ContinueAsTurn, when non-empty, is submitted as a user turn.
	ContinueAsTurn string
}

// Command is one resolvable slash command.
type Command struct {
	Name        string
	Description string
	Run         func(args string) (Outcome, error)
}

// Registry maps command names to commands.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]*Command
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]*Command)}
}

// Register adds a command, replacing any previous one with that name.
func (r *Registry) Register(cmd *Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[cmd.Name] = cmd
}

// Get returns a command by name.
func (r *Registry) Get(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[name]
	return cmd, ok
}

// List returns all commands sorted by name.
func (r *Registry) List() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// IsCommand reports whether input looks like a slash command.
func IsCommand(input string) bool {
	return strings.HasPrefix(input, "/") && len(input) > 1 && input[1] != '/'
}

// Resolve parses "/name args" and runs the matching command.
func (r *Registry) Resolve(input string) (Outcome, error) {
	if !IsCommand(input) {
		return Outcome{}, fmt.Errorf("not a command: %s", input)
	}
	name, args := splitCommand(input)
	cmd, ok := r.Get(name)
	if !ok {
		return Outcome{}, fmt.Errorf("unknown command: /%s", name)
	}
	return cmd.Run(args)
}

func splitCommand(input string) (name, args string) {
	rest := strings.TrimPrefix(input, "/")
	if idx := strings.IndexByte(rest, ' '); idx >= 0 {
		return rest[:idx], strings.TrimSpace(rest[idx+1:])
	}
	return rest, ""
}
