package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agnivade/levenshtein"
)

const editDescription = `Performs exact string replacements in files.

Usage:
- The filePath parameter must be an absolute path
- The oldString must exist in the file (exact match required)
- Use replaceAll to replace all occurrences
- The edit will FAIL if oldString is not unique (unless using replaceAll)`

// EditTool performs exact string replacement with a fuzzy fallback.
type EditTool struct {
	workDir string
}

// EditInput is the argument shape for the edit tool.
type EditInput struct {
	FilePath   string `json:"filePath"`
	OldString  string `json:"oldString"`
	NewString  string `json:"newString"`
	ReplaceAll bool   `json:"replaceAll,omitempty"`
}

// NewEditTool creates an edit tool.
func NewEditTool(workDir string) *EditTool {
	return &EditTool{workDir: workDir}
}

func (t *EditTool) Name() string        { return "edit" }
func (t *EditTool) Description() string { return editDescription }

func (t *EditTool) Policy() Policy {
	return Policy{NeedsApproval: true, ShowRunning: true, MutatesWorkspace: true}
}

func (t *EditTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"filePath": {
				"type": "string",
				"description": "The absolute path to the file to edit"
			},
			"oldString": {
				"type": "string",
				"description": "The exact text to replace"
			},
			"newString": {
				"type": "string",
				"description": "The text to replace it with"
			},
			"replaceAll": {
				"type": "boolean",
				"description": "Replace all occurrences (default: false)"
			}
		},
		"required": ["filePath", "oldString", "newString"]
	}`)
}

func (t *EditTool) Execute(ctx context.Context, input json.RawMessage) (*Output, error) {
	var params EditInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.OldString == params.NewString {
		return nil, fmt.Errorf("oldString and newString must be different")
	}

	path := resolveWorkspacePath(params.FilePath, t.workDir)
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	text := string(content)

	count := strings.Count(text, params.OldString)
	if count == 0 {
		return t.fuzzyReplace(path, text, params)
	}

	var newText string
	if params.ReplaceAll {
		newText = strings.ReplaceAll(text, params.OldString, params.NewString)
	} else {
		if count > 1 {
			return nil, fmt.Errorf("oldString appears %d times in file. Use replaceAll or provide more context", count)
		}
		newText = strings.Replace(text, params.OldString, params.NewString, 1)
		count = 1
	}

	if err := os.WriteFile(path, []byte(newText), 0644); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	summary := summarizeEdit(path, text, newText, t.workDir)
	return &Output{
		Title: fmt.Sprintf("Edited %s", filepath.Base(path)),
		Text:  fmt.Sprintf("Replaced %d occurrence(s)", count),
		Metadata: map[string]any{
			"file":         path,
			"replacements": count,
			"diff":         summary.Patch,
			"additions":    summary.Additions,
			"deletions":    summary.Deletions,
		},
	}, nil
}

// fuzzyReplace falls back to line-ending normalization and then a
// Levenshtein similarity scan when the exact match fails.
func (t *EditTool) fuzzyReplace(path, text string, params EditInput) (*Output, error) {
	normalizedOld := normalizeLineEndings(params.OldString)
	normalizedText := normalizeLineEndings(text)
	if strings.Contains(normalizedText, normalizedOld) {
		newText := strings.Replace(normalizedText, normalizedOld, params.NewString, 1)
		if err := os.WriteFile(path, []byte(newText), 0644); err != nil {
			return nil, fmt.Errorf("failed to write file: %w", err)
		}
		return &Output{
			Title: fmt.Sprintf("Edited %s (normalized)", filepath.Base(path)),
			Text:  "Replaced 1 occurrence (with line ending normalization)",
		}, nil
	}

	match, score := findBestMatch(text, params.OldString)
	if match != "" && score >= 0.7 {
		newText := strings.Replace(text, match, params.NewString, 1)
		if err := os.WriteFile(path, []byte(newText), 0644); err != nil {
			return nil, fmt.Errorf("failed to write file: %w", err)
		}
		return &Output{
			Title: fmt.Sprintf("Edited %s (fuzzy)", filepath.Base(path)),
			Text:  fmt.Sprintf("Replaced 1 occurrence (%.0f%% similarity)", score*100),
		}, nil
	}

	return nil, fmt.Errorf("oldString not found in file. The content may have changed or the string doesn't exist")
}

func normalizeLineEndings(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// findBestMatch scans for the line or block most similar to target.
func findBestMatch(text, target string) (string, float64) {
	lines := strings.Split(text, "\n")
	targetLines := strings.Split(target, "\n")

	if len(targetLines) == 1 {
		bestMatch, bestScore := "", 0.0
		for _, line := range lines {
			if s := similarity(line, target); s > bestScore {
				bestScore, bestMatch = s, line
			}
		}
		return bestMatch, bestScore
	}

	targetLen := len(targetLines)
	bestMatch, bestScore := "", 0.0
	for i := 0; i <= len(lines)-targetLen; i++ {
		block := strings.Join(lines[i:i+targetLen], "\n")
		if s := similarity(block, target); s > bestScore {
			bestScore, bestMatch = s, block
		}
	}
	return bestMatch, bestScore
}

// similarity is normalized Levenshtein similarity in [0, 1].
func similarity(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	// length-ratio approximation for extreme inputs
	if len(a) > 10000 || len(b) > 10000 {
		maxLen := max(len(a), len(b))
		minLen := min(len(a), len(b))
		return float64(minLen) / float64(maxLen)
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(max(len(a), len(b)))
}
