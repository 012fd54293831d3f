package tool

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type stubAsker struct {
	answer string
	err    error
	prompt string
}

func (s *stubAsker) Ask(_ context.Context, prompt string, _ []string) (string, error) {
	s.prompt = prompt
	return s.answer, s.err
}

func TestAskTool_Execute(t *testing.T) {
	asker := &stubAsker{answer: "the second one"}
	tool := NewAskTool(asker)

	input := json.RawMessage(`{"prompt": "Which file?", "options": ["a.go", "b.go"]}`)
	out, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if asker.prompt != "Which file?" {
		t.Errorf("Prompt not forwarded, got: %s", asker.prompt)
	}
	if !strings.Contains(out.Text, "the second one") {
		t.Errorf("Output should contain the answer, got: %s", out.Text)
	}
}

func TestAskTool_EmptyPrompt(t *testing.T) {
	tool := NewAskTool(&stubAsker{})
	if _, err := tool.Execute(context.Background(), json.RawMessage(`{"prompt": "  "}`)); err == nil {
		t.Error("Expected error for empty prompt")
	}
}

func TestAskTool_CancelledQuestion(t *testing.T) {
	wantErr := errors.New("question cancelled")
	tool := NewAskTool(&stubAsker{err: wantErr})
	if _, err := tool.Execute(context.Background(), json.RawMessage(`{"prompt": "go on?"}`)); !errors.Is(err, wantErr) {
		t.Errorf("Expected cancellation error, got: %v", err)
	}
}
