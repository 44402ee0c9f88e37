package config

import (
	"path/filepath"
	"strings"
)

// Format names a config file syntax.
type Format string

const (
	FormatJSONC Format = "jsonc"
	FormatYAML  Format = "yaml"
)

// DetectFormat picks the syntax from the file extension, falling back to
// content sniffing: a leading `{` or comment means JSONC.
func DetectFormat(path string, content string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json", ".jsonc":
		return FormatJSONC
	}
	trimmed := strings.TrimSpace(content)
	for _, prefix := range []string{"{", "//", "/*"} {
		if strings.HasPrefix(trimmed, prefix) {
			return FormatJSONC
		}
	}
	return FormatYAML
}

// Parse reads configuration content as JSONC when it opens with `{` or a
// comment, otherwise as YAML.
func Parse(content string, base Config) (Config, []Warning, error) {
	return ParseFile("", content, base)
}

// ParseFile decodes content in the format DetectFormat picks for path.
// Empty content yields the validated base.
func ParseFile(path string, content string, base Config) (Config, []Warning, error) {
	if strings.TrimSpace(content) == "" {
		return finalize(base, nil)
	}
	if DetectFormat(path, content) == FormatYAML {
		return parseYAML(content, base)
	}
	return parseJSONC(content, base)
}

func finalize(cfg Config, warnings []Warning) (Config, []Warning, error) {
	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, append(warnings, validatedWarnings...), nil
}
