// Package config loads the optional YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sokinpui/changepipe/internal/logging"
)

// ErrInvalidYAML is returned when the config file cannot be decoded.
var ErrInvalidYAML = errors.New("invalid config file")

const (
	EditorNvim = "nvim"
	EditorNone = "none"
)

// File mirrors the on-disk config.yaml schema. Empty fields mean "use the
// default" and are overridden by command-line flags.
type File struct {
	Workspace      string   `yaml:"workspace"`
	Extensions     []string `yaml:"extensions"`
	JournalPath    string   `yaml:"journal_path"`
	Editor         string   `yaml:"editor"`
	HostRPC        string   `yaml:"host_rpc"`
	HighlightStyle string   `yaml:"highlight_style"`
	LogLevel       string   `yaml:"log_level"`
	LogFile        string   `yaml:"log_file"`
}

// DefaultPath returns $XDG_CONFIG_HOME/changepipe/config.yaml, falling back
// to the platform config directory.
func DefaultPath() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		var err error
		base, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("resolve config directory: %w", err)
		}
	}
	return filepath.Join(base, "changepipe", "config.yaml"), nil
}

// Load reads the config at path. A missing file yields an empty File.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return File{}, nil
		}
		return File{}, err
	}

	var cfg File
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return File{}, fmt.Errorf("%w %s: %v", ErrInvalidYAML, path, err)
	}
	cfg.Workspace = expandPath(cfg.Workspace)
	cfg.JournalPath = expandPath(cfg.JournalPath)
	cfg.LogFile = expandPath(cfg.LogFile)
	cfg.Extensions = NormalizeExtensions(cfg.Extensions)

	if err := cfg.Validate(); err != nil {
		return File{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks enumerated fields.
func (f File) Validate() error {
	switch f.Editor {
	case "", EditorNvim, EditorNone:
	default:
		return fmt.Errorf("editor must be %q or %q, got %q", EditorNvim, EditorNone, f.Editor)
	}
	if _, err := logging.ParseLevel(f.LogLevel); err != nil {
		return err
	}
	return nil
}

// NormalizeExtensions adds the leading dot to bare extensions ("go" -> ".go").
func NormalizeExtensions(exts []string) []string {
	if len(exts) == 0 {
		return nil
	}
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.TrimSpace(ext)
		if ext == "" {
			continue
		}
		if ext[0] != '.' {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}

func expandPath(p string) string {
	if p == "" {
		return ""
	}
	p = os.ExpandEnv(p)
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
