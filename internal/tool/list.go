package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const listDescription = `Lists files and directories in a specified path.

Usage:
- Returns file names, types (file/directory), and sizes
- Useful for exploring directory structure`

// ListTool lists a directory.
type ListTool struct {
	workDir string
}

// ListInput is the argument shape for the list tool.
type ListInput struct {
	Path   string   `json:"path,omitempty"`
	Ignore []string `json:"ignore,omitempty"`
}

var defaultIgnorePatterns = []string{
	"node_modules/",
	"__pycache__/",
	".git/",
	"dist/",
	"build/",
	"target/",
	"vendor/",
	".idea/",
	".vscode/",
	".cache/",
	"tmp/",
	".venv/",
	"venv/",
}

// NewListTool creates a list tool.
func NewListTool(workDir string) *ListTool {
	return &ListTool{workDir: workDir}
}

func (t *ListTool) Name() string        { return "list" }
func (t *ListTool) Description() string { return listDescription }

func (t *ListTool) Policy() Policy {
	return Policy{}
}

func (t *ListTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "The directory to list (default: workspace root)"
			},
			"ignore": {
				"type": "array",
				"items": {"type": "string"},
				"description": "List of glob patterns to ignore"
			}
		}
	}`)
}

func (t *ListTool) Execute(ctx context.Context, input json.RawMessage) (*Output, error) {
	var params ListInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	listPath := t.workDir
	if params.Path != "" {
		listPath = resolveWorkspacePath(params.Path, t.workDir)
	}
	if listPath == "" {
		listPath = "."
	}

	ignorePatterns := append([]string{}, defaultIgnorePatterns...)
	ignorePatterns = append(ignorePatterns, params.Ignore...)

	entries, err := os.ReadDir(listPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var sb strings.Builder
	count := 0
	for _, entry := range entries {
		if shouldIgnore(entry.Name(), entry.IsDir(), ignorePatterns) {
			continue
		}
		count++
		if entry.IsDir() {
			fmt.Fprintf(&sb, "[dir ] %s\n", entry.Name())
			continue
		}
		size := int64(0)
		if info, err := entry.Info(); err == nil {
			size = info.Size()
		}
		fmt.Fprintf(&sb, "[file] %s (%d bytes)\n", entry.Name(), size)
	}

	return &Output{
		Title: fmt.Sprintf("Listed %d items", count),
		Text:  sb.String(),
		Metadata: map[string]any{
			"path":  listPath,
			"count": count,
		},
	}, nil
}

// shouldIgnore checks a name against directory and file patterns.
func shouldIgnore(name string, isDir bool, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.HasSuffix(pattern, "/") {
			if isDir && name == strings.TrimSuffix(pattern, "/") {
				return true
			}
			continue
		}
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
	}
	return false
}
