// Package config resolves which registry index the tool talks to: a fixed
// default, overridable through the user's configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultRegistry is the canonical registry index used when no override is
// configured.
const DefaultRegistry = "https://index.lode.dev/registry-index"

// File is the user configuration, read from <home>/config.yaml.
type File struct {
	// Registry overrides the default registry index URL.
	Registry string `yaml:"registry"`
}

// Load reads the configuration file at path. A missing file yields an
// empty configuration, not an error.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{}, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &f, nil
}

// RegistryURL returns the configured registry index URL, falling back to
// the default.
func (f *File) RegistryURL() string {
	if f.Registry != "" {
		return f.Registry
	}
	return DefaultRegistry
}
