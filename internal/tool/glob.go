package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const globDescription = `Fast file pattern matching tool.

Usage:
- Supports glob patterns like "**/*.js" or "src/**/*.ts"
- Returns matching file paths sorted by modification time
- Use this tool when you need to find files by name patterns`

// GlobTool matches files against doublestar patterns.
type GlobTool struct {
	workDir string
}

// GlobInput is the argument shape for the glob tool.
type GlobInput struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
}

// NewGlobTool creates a glob tool.
func NewGlobTool(workDir string) *GlobTool {
	return &GlobTool{workDir: workDir}
}

func (t *GlobTool) Name() string        { return "glob" }
func (t *GlobTool) Description() string { return globDescription }

func (t *GlobTool) Policy() Policy {
	return Policy{}
}

func (t *GlobTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {
				"type": "string",
				"description": "The glob pattern to match files against"
			},
			"path": {
				"type": "string",
				"description": "Directory to search in (default: workspace root)"
			}
		},
		"required": ["pattern"]
	}`)
}

func (t *GlobTool) Execute(ctx context.Context, input json.RawMessage) (*Output, error) {
	var params GlobInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	searchDir := t.workDir
	if params.Path != "" {
		searchDir = resolveWorkspacePath(params.Path, t.workDir)
	}
	if searchDir == "" {
		searchDir = "."
	}

	matches, err := doublestar.Glob(os.DirFS(searchDir), params.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern: %w", err)
	}

	type hit struct {
		path    string
		modTime int64
	}
	hits := make([]hit, 0, len(matches))
	for _, m := range matches {
		full := filepath.Join(searchDir, m)
		info, err := os.Stat(full)
		if err != nil || info.IsDir() {
			continue
		}
		if skipVendoredPath(m) {
			continue
		}
		hits = append(hits, hit{path: m, modTime: info.ModTime().UnixNano()})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].modTime > hits[j].modTime })

	const maxFiles = 100
	truncated := len(hits) > maxFiles
	if truncated {
		hits = hits[:maxFiles]
	}

	if len(hits) == 0 {
		return &Output{
			Title:    "Glob search",
			Text:     "No files matched the pattern",
			Metadata: map[string]any{"pattern": params.Pattern, "count": 0},
		}, nil
	}

	var sb strings.Builder
	for _, h := range hits {
		sb.WriteString(h.path)
		sb.WriteString("\n")
	}
	if truncated {
		sb.WriteString(fmt.Sprintf("\n(Showing first %d matches)", maxFiles))
	}

	return &Output{
		Title: fmt.Sprintf("Found %d files", len(hits)),
		Text:  strings.TrimRight(sb.String(), "\n"),
		Metadata: map[string]any{
			"pattern":   params.Pattern,
			"count":     len(hits),
			"truncated": truncated,
		},
	}, nil
}

// skipVendoredPath drops dependency and VCS trees from search results.
func skipVendoredPath(path string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		switch seg {
		case ".git", "node_modules", "vendor", "__pycache__", ".venv":
			return true
		}
	}
	return false
}
