// Package config loads the user-level config file (spec §6): a plain
// JSON document naming remote endpoints and the local user's identity
// and auth token. Grounded on poon-cli/pkg/config/config.go's
// plain-struct-plus-JSON-file approach.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/outpostml/dvc/internal/oxerr"
)

// Endpoint is one named remote.
type Endpoint struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// User is the local identity used to stamp commit authorship and
// authenticate against remotes.
type User struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Token string `json:"token"`
}

// Config is the full on-disk schema: {endpoints, user}.
type Config struct {
	Endpoints []Endpoint `json:"endpoints"`
	User      User       `json:"user"`
}

// DefaultPath returns the conventional per-user config location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", oxerr.Wrap("config.DefaultPath", err)
	}
	return filepath.Join(home, ".dvc", "config.json"), nil
}

// Load reads and parses the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, oxerr.NotFound("config.Load", path)
		}
		return nil, oxerr.Wrap("config.Load", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, oxerr.New(oxerr.KindSerialization, "config.Load", path, err)
	}
	return &cfg, nil
}

// Save writes cfg to path as indented JSON, creating parent directories
// as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return oxerr.Wrap("config.Save", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return oxerr.New(oxerr.KindSerialization, "config.Save", path, err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Endpoint looks up a named remote.
func (c *Config) Endpoint(name string) (Endpoint, bool) {
	for _, e := range c.Endpoints {
		if e.Name == name {
			return e, true
		}
	}
	return Endpoint{}, false
}
