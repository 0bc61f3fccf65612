// Package fetch resolves download locations from a registry's hosted
// configuration and transfers package archives into the local cache,
// verifying every body against the index-recorded checksum before a single
// byte is persisted.
package fetch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConfigFile is the name of the registry configuration document at the
// index checkout root.
const ConfigFile = "config.json"

// ErrConfigMissing reports a registry whose configuration document is
// absent or malformed. The index must be updated before packages can be
// downloaded.
var ErrConfigMissing = errors.New("registry config.json missing or malformed")

// Config is the registry's hosted configuration document.
type Config struct {
	// DL is the base URL packages are downloaded from.
	DL string `json:"dl"`
	// API is the base URL of the registry's web API.
	API string `json:"api"`
}

// LoadConfig reads and decodes the configuration document from the index
// checkout root.
func LoadConfig(checkoutRoot string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(checkoutRoot, ConfigFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigMissing, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigMissing, err)
	}
	return &cfg, nil
}

// DownloadURL returns the archive location for one package version:
// <dl>/<name>/<version>/download.
func (c *Config) DownloadURL(name, version string) string {
	return fmt.Sprintf("%s/%s/%s/download", strings.TrimSuffix(c.DL, "/"), name, version)
}
