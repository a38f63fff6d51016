package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Loader handles loading and initial parsing of the Config from a file.
type Loader struct {
	filePath string
}

// NewLoader creates a new configuration loader for the given file path.
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Load reads the configuration file, unmarshals it into Config,
// and performs basic structural validation.
// Defaulting and the env/flag overlay are handled separately.
func (l *Loader) Load() (*Config, error) {
	if l.filePath == "" {
		return nil, errors.New("configuration file path is empty")
	}
	content, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file '%s'", l.filePath)
	}
	if len(content) == 0 {
		return nil, errors.Errorf("configuration file '%s' is empty", l.filePath)
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config YAML from '%s'", l.filePath)
	}

	if cfg.APIVersion == "" {
		return nil, errors.Errorf("config validation failed: apiVersion is a required field in '%s'", l.filePath)
	}
	if cfg.Kind != DefaultKind {
		return nil, errors.Errorf("config validation failed: kind must be '%s' in '%s', got '%s'", DefaultKind, l.filePath, cfg.Kind)
	}
	return &cfg, nil
}
