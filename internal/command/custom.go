package command

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mosaic-ai/mosaic/internal/logging"
)

// customCommand is the YAML shape of a user-defined command file.
type customCommand struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Template    string `yaml:"template"`
}

// LoadCustomCommands reads every *.yaml/*.yml file in dir and registers
// each as a command whose outcome continues as a user turn. Files that
// fail to parse are skipped. Custom commands never shadow built-ins.
func LoadCustomCommands(r *Registry, dir string) int {
	log := logging.Component("command")

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}

	loaded := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		var custom customCommand
		if err := yaml.Unmarshal(data, &custom); err != nil {
			log.Warn().Str("file", name).Err(err).Msg("skipping invalid command file")
			continue
		}
		if custom.Name == "" || custom.Template == "" {
			log.Warn().Str("file", name).Msg("command file needs name and template")
			continue
		}
		if _, exists := r.Get(custom.Name); exists {
			log.Warn().Str("name", custom.Name).Msg("command name already taken")
			continue
		}

		template := custom.Template
		r.Register(&Command{
			Name:        custom.Name,
			Description: custom.Description,
			Run: func(args string) (Outcome, error) {
				return Outcome{ContinueAsTurn: expandTemplate(template, args)}, nil
			},
		})
		loaded++
	}
	return loaded
}

// expandTemplate substitutes $ARGUMENTS, $input, and positional $1..$9
// in a command template.
func expandTemplate(template, args string) string {
	out := strings.ReplaceAll(template, "$ARGUMENTS", args)
	out = strings.ReplaceAll(out, "$input", args)
	fields := strings.Fields(args)
	limit := len(fields)
	if limit > 9 {
		limit = 9
	}
	for i := limit; i >= 1; i-- {
		out = strings.ReplaceAll(out, "$"+strconv.Itoa(i), fields[i-1])
	}
	return out
}
