package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"
)

// ProviderOptions carries per-provider credentials and overrides.
type ProviderOptions struct {
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseUrl,omitempty"`
}

// Options is the merged engine configuration.
type Options struct {
	// Provider and Model select the adapter and model id.
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`

	// SystemPrompt is forwarded to the provider verbatim.
	SystemPrompt string `json:"systemPrompt,omitempty"`

	// MaxSteps caps tool steps per turn. Zero means no budget.
	MaxSteps int `json:"maxSteps,omitempty"`

	// MaxContextTokens overrides the provider's context window for
	// the auto-compact threshold. Zero defers to the provider.
	MaxContextTokens int `json:"maxContextTokens,omitempty"`

	// RequireApprovals gates mutating tools behind the approval
	// bridge. Nil defaults to true.
	RequireApprovals *bool `json:"requireApprovals,omitempty"`

	// AutoCompact enables compaction at the context threshold. Nil
	// defaults to true.
	AutoCompact *bool `json:"autoCompact,omitempty"`

	Workspace string `json:"workspace,omitempty"`
	LogLevel  string `json:"logLevel,omitempty"`

	Providers map[string]ProviderOptions `json:"providers,omitempty"`
}

// ApprovalsRequired resolves the RequireApprovals tri-state.
func (o *Options) ApprovalsRequired() bool {
	return o.RequireApprovals == nil || *o.RequireApprovals
}

// AutoCompactEnabled resolves the AutoCompact tri-state.
func (o *Options) AutoCompactEnabled() bool {
	return o.AutoCompact == nil || *o.AutoCompact
}

// ProviderFor returns the options for a provider id, zero if unset.
func (o *Options) ProviderFor(id string) ProviderOptions {
	if o.Providers == nil {
		return ProviderOptions{}
	}
	return o.Providers[id]
}

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.config/mosaic/)
// 2. Project config (.mosaic/)
// 3. MOSAIC_CONFIG file
// 4. MOSAIC_CONFIG_CONTENT inline JSON
// 5. Environment variables
func Load(directory string) (*Options, error) {
	opts := &Options{
		Providers: make(map[string]ProviderOptions),
	}

	// Track loaded files to avoid duplicates
	loaded := make(map[string]bool)

	loadOnce := func(path string, baseDir string) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return
		}
		if loaded[absPath] {
			return
		}
		if loadConfigFile(path, opts, baseDir) == nil {
			loaded[absPath] = true
		}
	}

	// 1. Global config
	globalPath := GetPaths().Config
	loadOnce(filepath.Join(globalPath, "mosaic.json"), globalPath)
	loadOnce(filepath.Join(globalPath, "mosaic.jsonc"), globalPath)

	// 2. Project config
	if directory != "" {
		projectConfigDir := filepath.Join(directory, ".mosaic")
		loadOnce(filepath.Join(directory, "mosaic.json"), directory)
		loadOnce(filepath.Join(directory, "mosaic.jsonc"), directory)
		loadOnce(filepath.Join(projectConfigDir, "mosaic.json"), projectConfigDir)
		loadOnce(filepath.Join(projectConfigDir, "mosaic.jsonc"), projectConfigDir)
	}

	// 3. MOSAIC_CONFIG file override
	if configPath := os.Getenv("MOSAIC_CONFIG"); configPath != "" {
		loadOnce(configPath, filepath.Dir(configPath))
	}

	// 4. MOSAIC_CONFIG_CONTENT inline JSON
	if configContent := os.Getenv("MOSAIC_CONFIG_CONTENT"); configContent != "" {
		var inline Options
		if err := json.Unmarshal(jsonc.ToJSON([]byte(configContent)), &inline); err == nil {
			mergeOptions(opts, &inline)
		}
	}

	// 5. Environment variables (highest priority)
	applyEnvOverrides(opts)

	if opts.Workspace == "" {
		opts.Workspace = directory
	}

	return opts, nil
}

// loadConfigFile loads a single config file with interpolation support.
func loadConfigFile(path string, opts *Options, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err // File doesn't exist, skip
	}

	// Strip JSONC comments using tidwall/jsonc
	data = jsonc.ToJSON(data)

	// Apply interpolation
	data = interpolate(data, baseDir)

	var fileOpts Options
	if err := json.Unmarshal(data, &fileOpts); err != nil {
		return err
	}

	mergeOptions(opts, &fileOpts)
	return nil
}

// interpolate processes {env:VAR} and {file:path} placeholders.
func interpolate(data []byte, baseDir string) []byte {
	str := string(data)

	// Handle {env:VAR_NAME} placeholders
	envPattern := regexp.MustCompile(`\{env:([^}]+)\}`)
	str = envPattern.ReplaceAllStringFunc(str, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})

	// Handle {file:path} placeholders
	filePattern := regexp.MustCompile(`\{file:([^}]+)\}`)
	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]

		// Resolve path
		if strings.HasPrefix(filePath, "~/") {
			home := os.Getenv("HOME")
			filePath = filepath.Join(home, filePath[2:])
		} else if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match // Keep original if file not found
		}

		// Escape for JSON string
		escaped := strings.ReplaceAll(string(content), "\\", "\\\\")
		escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
		escaped = strings.ReplaceAll(escaped, "\n", "\\n")
		escaped = strings.ReplaceAll(escaped, "\r", "\\r")
		escaped = strings.ReplaceAll(escaped, "\t", "\\t")

		return escaped
	})

	return []byte(str)
}

// mergeOptions merges source options into target.
func mergeOptions(target, source *Options) {
	if source.Provider != "" {
		target.Provider = source.Provider
	}
	if source.Model != "" {
		target.Model = source.Model
	}
	if source.SystemPrompt != "" {
		target.SystemPrompt = source.SystemPrompt
	}
	if source.MaxSteps != 0 {
		target.MaxSteps = source.MaxSteps
	}
	if source.MaxContextTokens != 0 {
		target.MaxContextTokens = source.MaxContextTokens
	}
	if source.RequireApprovals != nil {
		target.RequireApprovals = source.RequireApprovals
	}
	if source.AutoCompact != nil {
		target.AutoCompact = source.AutoCompact
	}
	if source.Workspace != "" {
		target.Workspace = source.Workspace
	}
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}

	if source.Providers != nil {
		if target.Providers == nil {
			target.Providers = make(map[string]ProviderOptions)
		}
		for id, p := range source.Providers {
			merged := target.Providers[id]
			if p.APIKey != "" {
				merged.APIKey = p.APIKey
			}
			if p.BaseURL != "" {
				merged.BaseURL = p.BaseURL
			}
			target.Providers[id] = merged
		}
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(opts *Options) {
	// Provider API keys
	providerEnvMap := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
	}

	for provider, envVar := range providerEnvMap {
		if apiKey := os.Getenv(envVar); apiKey != "" {
			if opts.Providers == nil {
				opts.Providers = make(map[string]ProviderOptions)
			}
			p := opts.Providers[provider]
			if p.APIKey == "" {
				p.APIKey = apiKey
				opts.Providers[provider] = p
			}
		}
	}

	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		if opts.Providers == nil {
			opts.Providers = make(map[string]ProviderOptions)
		}
		p := opts.Providers["ollama"]
		if p.BaseURL == "" {
			p.BaseURL = host
			opts.Providers["ollama"] = p
		}
	}

	if provider := os.Getenv("MOSAIC_PROVIDER"); provider != "" {
		opts.Provider = provider
	}
	if model := os.Getenv("MOSAIC_MODEL"); model != "" {
		opts.Model = model
	}
	if level := os.Getenv("MOSAIC_LOG_LEVEL"); level != "" {
		opts.LogLevel = level
	}
}

// Save writes the options to a file.
func Save(opts *Options, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(opts, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
