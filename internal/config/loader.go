package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultPath is where the setup wizard writes the config file.
const DefaultPath = ".duesync/config.yaml"

// LoadFromPath reads a config file (YAML or JSON) and returns the parsed,
// validated Config. Format is detected by extension or content.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Load(data, filepath.Ext(path))
}
