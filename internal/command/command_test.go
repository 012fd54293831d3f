package command

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaic-ai/mosaic/pkg/types"
)

type fakeHistory struct {
	records []*types.ConversationRecord
}

func (f *fakeHistory) LoadConversations() []*types.ConversationRecord {
	return f.records
}

func TestIsCommand(t *testing.T) {
	assert.True(t, IsCommand("/help"))
	assert.True(t, IsCommand("/compact now"))
	assert.False(t, IsCommand("hello"))
	assert.False(t, IsCommand("/"))
	assert.False(t, IsCommand("//not-a-command"))
}

func TestResolveBuiltins(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r, nil)

	out, err := r.Resolve("/clear")
	require.NoError(t, err)
	assert.True(t, out.ClearMessages)

	out, err = r.Resolve("/compact")
	require.NoError(t, err)
	assert.True(t, out.Compact)

	out, err = r.Resolve("/review")
	require.NoError(t, err)
	assert.True(t, out.EnterReview)
}

func TestResolveUnknown(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r, nil)
	_, err := r.Resolve("/nope")
	assert.ErrorContains(t, err, "unknown command")
}

func TestHelpListsCommands(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r, nil)

	out, err := r.Resolve("/help")
	require.NoError(t, err)
	assert.Contains(t, out.Output, "/clear")
	assert.Contains(t, out.Output, "/history")
}

func TestHistoryListing(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r, &fakeHistory{records: []*types.ConversationRecord{
		{ID: "200-x", Timestamp: 200, Title: "refactor", TotalSteps: 4},
		{ID: "100-y", Timestamp: 100, TotalSteps: 2},
	}})

	out, err := r.Resolve("/history")
	require.NoError(t, err)
	assert.Contains(t, out.Output, "200-x")
	assert.Contains(t, out.Output, "refactor")
	assert.Contains(t, out.Output, "(untitled)")
}

func TestLoadCustomCommands(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deploy.yaml"), []byte(
		"name: deploy\ndescription: Deploy a service\ntemplate: \"Deploy $1 to $2. Context: $ARGUMENTS\"\n",
	), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte(":::"), 0644))

	r := NewRegistry()
	loaded := LoadCustomCommands(r, dir)
	assert.Equal(t, 1, loaded)

	out, err := r.Resolve("/deploy api staging")
	require.NoError(t, err)
	assert.Equal(t, "Deploy api to staging. Context: api staging", out.ContinueAsTurn)
}

func TestCustomCommandCannotShadowBuiltin(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clear.yaml"), []byte(
		"name: clear\ntemplate: \"nope\"\n",
	), 0644))

	r := NewRegistry()
	RegisterBuiltins(r, nil)
	loaded := LoadCustomCommands(r, dir)
	assert.Equal(t, 0, loaded)

	out, err := r.Resolve("/clear")
	require.NoError(t, err)
	assert.True(t, out.ClearMessages)
}
