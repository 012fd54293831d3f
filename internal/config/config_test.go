package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points every config source at empty temp locations so tests
// only see the files they write themselves.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("MOSAIC_CONFIG", "")
	t.Setenv("MOSAIC_CONFIG_CONTENT", "")
	t.Setenv("MOSAIC_PROVIDER", "")
	t.Setenv("MOSAIC_MODEL", "")
	t.Setenv("MOSAIC_LOG_LEVEL", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OLLAMA_HOST", "")
	return home
}

func writeProjectConfig(t *testing.T, dir, content string) {
	t.Helper()
	path := filepath.Join(dir, ".mosaic", "mosaic.jsonc")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadProjectJSONC(t *testing.T) {
	isolate(t)
	project := t.TempDir()
	writeProjectConfig(t, project, `{
		// comments are allowed
		"provider": "anthropic",
		"model": "claude-sonnet-4-20250514",
		"maxSteps": 40,
		"requireApprovals": false,
	}`)

	opts, err := Load(project)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", opts.Provider)
	assert.Equal(t, "claude-sonnet-4-20250514", opts.Model)
	assert.Equal(t, 40, opts.MaxSteps)
	assert.False(t, opts.ApprovalsRequired())
	assert.Equal(t, project, opts.Workspace)
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	opts, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.True(t, opts.ApprovalsRequired())
	assert.True(t, opts.AutoCompactEnabled())
	assert.Zero(t, opts.MaxSteps)
	assert.Zero(t, opts.MaxContextTokens)
}

func TestProjectOverridesGlobal(t *testing.T) {
	home := isolate(t)
	globalDir := filepath.Join(home, ".config", "mosaic")
	require.NoError(t, os.MkdirAll(globalDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(globalDir, "mosaic.json"), []byte(`{
		"provider": "openai",
		"model": "gpt-4o",
		"maxContextTokens": 100000
	}`), 0644))

	project := t.TempDir()
	writeProjectConfig(t, project, `{"model": "gpt-4o-mini"}`)

	opts, err := Load(project)
	require.NoError(t, err)

	assert.Equal(t, "openai", opts.Provider)
	assert.Equal(t, "gpt-4o-mini", opts.Model)
	assert.Equal(t, 100000, opts.MaxContextTokens)
}

func TestEnvInterpolation(t *testing.T) {
	isolate(t)
	t.Setenv("TEST_MOSAIC_KEY", "sk-test-42")

	project := t.TempDir()
	writeProjectConfig(t, project, `{
		"providers": {
			"anthropic": {"apiKey": "{env:TEST_MOSAIC_KEY}"}
		}
	}`)

	opts, err := Load(project)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-42", opts.ProviderFor("anthropic").APIKey)
}

func TestFileInterpolation(t *testing.T) {
	isolate(t)
	project := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(project, ".mosaic"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(project, ".mosaic", "prompt.txt"),
		[]byte("You are terse.\nNo preamble."), 0644))
	writeProjectConfig(t, project, `{"systemPrompt": "{file:prompt.txt}"}`)

	opts, err := Load(project)
	require.NoError(t, err)
	assert.Equal(t, "You are terse.\nNo preamble.", opts.SystemPrompt)
}

func TestEnvOverridesWin(t *testing.T) {
	isolate(t)
	project := t.TempDir()
	writeProjectConfig(t, project, `{
		"model": "claude-sonnet-4-20250514",
		"providers": {"anthropic": {"apiKey": "from-file"}}
	}`)

	t.Setenv("MOSAIC_MODEL", "claude-opus-4-20250514")
	t.Setenv("MOSAIC_PROVIDER", "anthropic")
	t.Setenv("OPENAI_API_KEY", "sk-openai-env")

	opts, err := Load(project)
	require.NoError(t, err)

	assert.Equal(t, "claude-opus-4-20250514", opts.Model)
	assert.Equal(t, "anthropic", opts.Provider)
	// File key survives; env only fills providers with no key yet.
	assert.Equal(t, "from-file", opts.ProviderFor("anthropic").APIKey)
	assert.Equal(t, "sk-openai-env", opts.ProviderFor("openai").APIKey)
}

func TestInlineConfigContent(t *testing.T) {
	isolate(t)
	t.Setenv("MOSAIC_CONFIG_CONTENT", `{"logLevel": "debug", "autoCompact": false}`)

	opts, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "debug", opts.LogLevel)
	assert.False(t, opts.AutoCompactEnabled())
}

func TestExplicitConfigFile(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{"maxSteps": 7}`), 0644))
	t.Setenv("MOSAIC_CONFIG", path)

	opts, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 7, opts.MaxSteps)
}

func TestSaveRoundTrip(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "mosaic.json")
	approvals := false
	require.NoError(t, Save(&Options{
		Provider:         "ollama",
		Model:            "qwen2.5-coder",
		RequireApprovals: &approvals,
	}, path))

	t.Setenv("MOSAIC_CONFIG", path)
	opts, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "ollama", opts.Provider)
	assert.Equal(t, "qwen2.5-coder", opts.Model)
	assert.False(t, opts.ApprovalsRequired())
}

func TestPathsUseMosaicDirs(t *testing.T) {
	home := isolate(t)
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("XDG_STATE_HOME", "")

	p := GetPaths()
	assert.Equal(t, filepath.Join(home, ".local", "share", "mosaic"), p.Data)
	assert.Equal(t, filepath.Join(home, ".config", "mosaic"), p.Config)
	assert.Equal(t, filepath.Join(p.Data, "conversations"), p.ConversationsPath())
	assert.Equal(t, filepath.Join(p.State, "inputs.json"), p.InputHistoryPath())
}
