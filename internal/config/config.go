// Package config loads the optional tessera.yaml options file. Flags
// override file values; the file only provides defaults.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is searched for in the working directory and its
// ancestors when no --config flag is given.
const DefaultFileName = "tessera.yaml"

// Interpreter mirrors the engine's script-host configuration.
type Interpreter struct {
	Executable string   `yaml:"executable"`
	Args       []string `yaml:"args"`
	Version    string   `yaml:"version"`
}

// File is the decoded tessera.yaml.
type File struct {
	CasesRoot         string      `yaml:"casesRoot"`
	SuitesRoot        string      `yaml:"suitesRoot"`
	PlansRoot         string      `yaml:"plansRoot"`
	RunsRoot          string      `yaml:"runsRoot"`
	Interpreter       Interpreter `yaml:"interpreter"`
	DefaultTimeoutSec int         `yaml:"defaultTimeoutSec"`
}

// Load reads and decodes an options file.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return &f, nil
}

// Search walks from dir upward looking for the default file name and
// returns the first hit, or "" when none exists.
func Search(dir string) string {
	current, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(current, DefaultFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(current)
		if parent == current {
			return ""
		}
		current = parent
	}
}
