// Package config loads layered JSON/JSONC configuration and resolves
// the standard on-disk paths for Mosaic data.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths contains the standard paths for Mosaic data.
type Paths struct {
	Data   string // ~/.local/share/mosaic
	Config string // ~/.config/mosaic
	Cache  string // ~/.cache/mosaic
	State  string // ~/.local/state/mosaic
}

// GetPaths returns the standard paths for Mosaic data.
func GetPaths() *Paths {
	return &Paths{
		Data:   filepath.Join(getEnvOrDefault("XDG_DATA_HOME", defaultDataHome()), "mosaic"),
		Config: filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", defaultConfigHome()), "mosaic"),
		Cache:  filepath.Join(getEnvOrDefault("XDG_CACHE_HOME", defaultCacheHome()), "mosaic"),
		State:  filepath.Join(getEnvOrDefault("XDG_STATE_HOME", defaultStateHome()), "mosaic"),
	}
}

// EnsurePaths creates all required directories.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Data, p.Config, p.Cache, p.State} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// ConversationsPath returns the directory holding conversation records.
func (p *Paths) ConversationsPath() string {
	return filepath.Join(p.Data, "conversations")
}

// InputHistoryPath returns the path of the persisted prompt history.
func (p *Paths) InputHistoryPath() string {
	return filepath.Join(p.State, "inputs.json")
}

// CommandsPath returns the directory scanned for custom command files.
func (p *Paths) CommandsPath() string {
	return filepath.Join(p.Config, "commands")
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultDataHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "share")
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}

func defaultCacheHome() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "cache")
	}
	return filepath.Join(os.Getenv("HOME"), ".cache")
}

func defaultStateHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "state")
}

// GlobalConfigPath returns the path of the global config file.
func GlobalConfigPath() string {
	return filepath.Join(GetPaths().Config, "mosaic.json")
}

// ProjectConfigPath returns the path of the project config file.
func ProjectConfigPath(directory string) string {
	return filepath.Join(directory, ".mosaic", "mosaic.json")
}
