package tool

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const grepDescription = `Searches file contents with a regular expression.

Usage:
- Supports Go regex syntax (e.g., "log.*Error", "function\\s+\\w+")
- Filter files with the include parameter (e.g., "*.js", "**/*.tsx")
- Returns matching lines with file paths and line numbers`

// GrepTool searches file contents.
type GrepTool struct {
	workDir string
}

// GrepInput is the argument shape for the grep tool.
type GrepInput struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
	Include string `json:"include,omitempty"`
}

// NewGrepTool creates a grep tool.
func NewGrepTool(workDir string) *GrepTool {
	return &GrepTool{workDir: workDir}
}

func (t *GrepTool) Name() string        { return "grep" }
func (t *GrepTool) Description() string { return grepDescription }

func (t *GrepTool) Policy() Policy {
	return Policy{}
}

func (t *GrepTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {
				"type": "string",
				"description": "The regex pattern to search for in file contents"
			},
			"path": {
				"type": "string",
				"description": "The directory to search in. Defaults to the workspace root."
			},
			"include": {
				"type": "string",
				"description": "File glob to include in the search (e.g. \"*.js\", \"**/*.tsx\")"
			}
		},
		"required": ["pattern"]
	}`)
}

func (t *GrepTool) Execute(ctx context.Context, input json.RawMessage) (*Output, error) {
	var params GrepInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	re, err := regexp.Compile(params.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}

	searchDir := t.workDir
	if params.Path != "" {
		searchDir = resolveWorkspacePath(params.Path, t.workDir)
	}
	if searchDir == "" {
		searchDir = "."
	}

	const maxMatches = 100
	var sb strings.Builder
	count := 0
	truncated := false

	err = filepath.WalkDir(searchDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, relErr := filepath.Rel(searchDir, path)
		if relErr != nil {
			rel = path
		}
		if d.IsDir() {
			if skipVendoredPath(rel + "/") {
				return filepath.SkipDir
			}
			return nil
		}
		if params.Include != "" {
			matched, matchErr := doublestar.Match(params.Include, filepath.ToSlash(rel))
			if matchErr != nil || !matched {
				// bare "*.ext" patterns match on basename too
				if m, _ := doublestar.Match(params.Include, d.Name()); !m {
					return nil
				}
			}
		}
		if isBinaryFile(path) {
			return nil
		}
		matches, scanErr := scanFile(path, rel, re, maxMatches-count, &sb)
		if scanErr != nil {
			return nil
		}
		count += matches
		if count >= maxMatches {
			truncated = true
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if count == 0 {
		return &Output{
			Title:    "Search results",
			Text:     "No matches found",
			Metadata: map[string]any{"pattern": params.Pattern, "count": 0},
		}, nil
	}
	if truncated {
		sb.WriteString(fmt.Sprintf("\n(Showing first %d matches)", maxMatches))
	}

	return &Output{
		Title: fmt.Sprintf("Found %d matches", count),
		Text:  strings.TrimRight(sb.String(), "\n"),
		Metadata: map[string]any{
			"pattern":   params.Pattern,
			"count":     count,
			"truncated": truncated,
		},
	}, nil
}

// scanFile appends up to limit matching lines of one file to sb.
func scanFile(path, rel string, re *regexp.Regexp, limit int, sb *strings.Builder) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	lineNum := 0
	found := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if !re.MatchString(line) {
			continue
		}
		if len(line) > 500 {
			line = line[:500] + "..."
		}
		fmt.Fprintf(sb, "%s:%d: %s\n", rel, lineNum, line)
		found++
		if found >= limit {
			break
		}
	}
	return found, nil
}
