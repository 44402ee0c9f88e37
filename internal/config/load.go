package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ConfigEnv names a config file when --config is not given.
const ConfigEnv = "PARLA_CONFIG"

// Loaded is a resolved config file plus its non-fatal warnings. Exists is
// false when defaults were used because the file is absent.
type Loaded struct {
	Path     string
	Format   Format
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves the config path (flag, then $PARLA_CONFIG, then the XDG
// location), then parses and validates it.
func Load(explicitPath string) (Loaded, error) {
	if strings.TrimSpace(explicitPath) == "" {
		explicitPath = os.Getenv(ConfigEnv)
	}
	path, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	content, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return Loaded{
			Path:     path,
			Format:   DetectFormat(path, ""),
			Config:   Default(),
			Warnings: []Warning{{Message: fmt.Sprintf("config file %q not found; using defaults", path)}},
		}, nil
	case err != nil:
		return Loaded{}, fmt.Errorf("read config %q: %w", path, err)
	}

	format := DetectFormat(path, string(content))
	cfg, warnings, err := ParseFile(path, string(content), Default())
	if err != nil {
		return Loaded{}, fmt.Errorf("parse %s config %q: %w", format, path, err)
	}
	return Loaded{Path: path, Format: format, Config: cfg, Warnings: warnings, Exists: true}, nil
}
