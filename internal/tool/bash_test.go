package tool

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestBashTool_Execute(t *testing.T) {
	tool := NewBashTool(t.TempDir())
	input := json.RawMessage(`{"command": "echo hello"}`)
	out, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(out.Text, "hello") {
		t.Errorf("Output = %q, want to contain 'hello'", out.Text)
	}
	if out.Metadata["exit"] != 0 {
		t.Errorf("exit = %v, want 0", out.Metadata["exit"])
	}
}

func TestBashTool_NonZeroExit(t *testing.T) {
	tool := NewBashTool(t.TempDir())
	input := json.RawMessage(`{"command": "exit 3"}`)
	out, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if out.Metadata["exit"] != 3 {
		t.Errorf("exit = %v, want 3", out.Metadata["exit"])
	}
}

func TestBashTool_Timeout(t *testing.T) {
	tool := NewBashTool(t.TempDir())
	input := json.RawMessage(`{"command": "sleep 2", "timeout": 100}`)
	out, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(out.Text, "timed out") {
		t.Errorf("Output should report timeout, got: %q", out.Text)
	}
}

func TestCommandPatterns(t *testing.T) {
	tests := []struct {
		command string
		want    []string
	}{
		{"git commit -m 'msg'", []string{"git commit"}},
		{"ls -la", []string{"ls"}},
		{"git status && git diff", []string{"git status", "git diff"}},
		{"rm -rf /tmp/x | sort", []string{"rm /tmp/x", "sort"}},
	}
	for _, tt := range tests {
		got := CommandPatterns(tt.command)
		if len(got) != len(tt.want) {
			t.Errorf("CommandPatterns(%q) = %v, want %v", tt.command, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("CommandPatterns(%q)[%d] = %q, want %q", tt.command, i, got[i], tt.want[i])
			}
		}
	}
}

func TestCommandPatternsUnparseable(t *testing.T) {
	got := CommandPatterns("if then fi ((")
	if len(got) != 1 {
		t.Fatalf("CommandPatterns = %v, want the raw command back", got)
	}
}

func TestCommandTitle(t *testing.T) {
	if got := CommandTitle("git status && git diff"); got != "git status && git diff" {
		t.Errorf("CommandTitle = %q", got)
	}
}
