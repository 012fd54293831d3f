package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"syscall"
	"time"

	"mvdan.cc/sh/v3/syntax"
)

const (
	DefaultBashTimeout = 120 * time.Second
	MaxBashTimeout     = 10 * time.Minute
	MaxOutputLength    = 30000
)

const bashDescription = `Executes a bash command.

Usage:
- Command is required
- Optional timeout in milliseconds (max 600000)
- Provide a brief description of what the command does
- Output is captured from stdout and stderr`

// BashTool runs shell commands.
type BashTool struct {
	workDir string
	shell   string
}

// BashInput is the argument shape for the bash tool.
type BashInput struct {
	Command     string `json:"command"`
	Timeout     int    `json:"timeout,omitempty"` // milliseconds
	Description string `json:"description,omitempty"`
}

// NewBashTool creates a bash tool.
func NewBashTool(workDir string) *BashTool {
	return &BashTool{workDir: workDir, shell: detectShell()}
}

func detectShell() string {
	if s := os.Getenv("SHELL"); s != "" {
		if !strings.HasSuffix(s, "/fish") && !strings.HasSuffix(s, "/nu") {
			return s
		}
	}
	if bash, err := exec.LookPath("bash"); err == nil {
		return bash
	}
	return "/bin/sh"
}

func (t *BashTool) Name() string        { return "bash" }
func (t *BashTool) Description() string { return bashDescription }

func (t *BashTool) Policy() Policy {
	// bash mutations are observational for review purposes
	return Policy{NeedsApproval: true, ShowRunning: true}
}

func (t *BashTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {
				"type": "string",
				"description": "The command to execute"
			},
			"timeout": {
				"type": "integer",
				"description": "Optional timeout in milliseconds (max 600000)"
			},
			"description": {
				"type": "string",
				"description": "Brief description of what this command does"
			}
		},
		"required": ["command"]
	}`)
}

func (t *BashTool) Execute(ctx context.Context, input json.RawMessage) (*Output, error) {
	var params BashInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	timeout := DefaultBashTimeout
	if params.Timeout > 0 {
		timeout = time.Duration(params.Timeout) * time.Millisecond
		if timeout > MaxBashTimeout {
			timeout = MaxBashTimeout
		}
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, t.shell, "-c", params.Command)
	if t.workDir != "" {
		cmd.Dir = t.workDir
	}
	cmd.Env = os.Environ()
	if runtime.GOOS != "windows" {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}

	output, err := cmd.CombinedOutput()
	timedOut := cmdCtx.Err() == context.DeadlineExceeded

	result := string(output)
	if len(result) > MaxOutputLength {
		result = result[:MaxOutputLength] + "\n\n(Output truncated)"
	}
	if timedOut {
		result += fmt.Sprintf("\n\n(Command timed out after %v)", timeout)
	}

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil && !timedOut {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			result += fmt.Sprintf("\n\nError: %v", err)
		}
	}

	title := params.Description
	if title == "" {
		title = CommandTitle(params.Command)
	}

	return &Output{
		Title: title,
		Text:  result,
		Metadata: map[string]any{
			"exit":    exitCode,
			"command": params.Command,
		},
	}, nil
}

// CommandTitle condenses a shell command into the short pattern shown in
// approval prompts, e.g. "git commit" for a long commit invocation.
func CommandTitle(command string) string {
	patterns := CommandPatterns(command)
	if len(patterns) == 0 {
		return command
	}
	return strings.Join(patterns, " && ")
}

// CommandPatterns parses a shell command and returns one "name
// subcommand" pattern per simple command, deduplicated in order. An
// unparseable command yields itself as the single pattern.
func CommandPatterns(command string) []string {
	parser := syntax.NewParser(
		syntax.Variant(syntax.LangBash),
		syntax.KeepComments(false),
	)
	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return []string{command}
	}

	var patterns []string
	seen := make(map[string]bool)
	syntax.Walk(file, func(node syntax.Node) bool {
		call, ok := node.(*syntax.CallExpr)
		if !ok || len(call.Args) == 0 {
			return true
		}
		name := wordToString(call.Args[0])
		if name == "" {
			return true
		}
		pattern := name
		for _, arg := range call.Args[1:] {
			s := wordToString(arg)
			if !strings.HasPrefix(s, "-") {
				pattern = name + " " + s
				break
			}
		}
		if !seen[pattern] {
			seen[pattern] = true
			patterns = append(patterns, pattern)
		}
		return true
	})
	return patterns
}

// wordToString flattens a shell word; expansions become placeholders.
func wordToString(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, qp := range p.Parts {
				if lit, ok := qp.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		case *syntax.ParamExp:
			sb.WriteString("$" + p.Param.Value)
		case *syntax.CmdSubst:
			sb.WriteString("$()")
		}
	}
	return sb.String()
}
