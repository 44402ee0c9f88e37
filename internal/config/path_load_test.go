package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvePathPrecedence(t *testing.T) {
	explicit := "/tmp/custom.jsonc"
	resolved, err := ResolvePath(explicit)
	require.NoError(t, err)
	require.Equal(t, explicit, resolved)

	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(xdg, "parla", "config.jsonc"), resolved)

	t.Setenv("XDG_CONFIG_HOME", "")
	home := t.TempDir()
	t.Setenv("HOME", home)
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".config", "parla", "config.jsonc"), resolved)
}

func TestResolvePathFindsYAML(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	dir := filepath.Join(xdg, "parla")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	yamlPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("gate:\n  enabled: false\n"), 0o600))

	resolved, err := ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, yamlPath, resolved)

	jsoncPath := filepath.Join(dir, "config.jsonc")
	require.NoError(t, os.WriteFile(jsoncPath, []byte("{}"), 0o600))
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, jsoncPath, resolved)
}

func TestStateDir(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_STATE_HOME", xdg)
	dir, err := StateDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(xdg, "parla"), dir)
}

func TestLoadMissingConfigUsesDefaultsWithWarning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.jsonc")

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, path, loaded.Path)
	require.False(t, loaded.Exists)
	require.Equal(t, Default(), loaded.Config)
	require.NotEmpty(t, loaded.Warnings)
	require.Contains(t, loaded.Warnings[0].Message, "not found")
}

func TestLoadExistingYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("history:\n  retain: 20\nmetrics:\n  enable: true\n"), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.True(t, loaded.Exists)
	require.Equal(t, FormatYAML, loaded.Format)
	require.Equal(t, 20, loaded.Config.History.Retain)
	require.True(t, loaded.Config.Metrics.Enable)
}

func TestLoadWrapsParseErrorsWithPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{"nope": true}`), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), path)
}

func TestLoadUsesEnvironmentPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parla.conf")
	require.NoError(t, os.WriteFile(path, []byte(`{"history": {"retain": 7}}`), 0o600))
	t.Setenv(ConfigEnv, path)

	loaded, err := Load("")
	require.NoError(t, err)
	require.Equal(t, path, loaded.Path)
	require.Equal(t, FormatJSONC, loaded.Format)
	require.Equal(t, 7, loaded.Config.History.Retain)
}

func TestDetectFormat(t *testing.T) {
	require.Equal(t, FormatYAML, DetectFormat("a.yml", "{}"))
	require.Equal(t, FormatJSONC, DetectFormat("a.json", "gate: {}"))
	require.Equal(t, FormatJSONC, DetectFormat("a.conf", "  {\n}"))
	require.Equal(t, FormatYAML, DetectFormat("a.conf", "gate:\n  enabled: true\n"))
	require.Equal(t, FormatJSONC, DetectFormat("a.conf", "// saved\n{}"))
	require.Equal(t, FormatJSONC, DetectFormat("", "/* saved */ {}"))
	require.Equal(t, FormatYAML, DetectFormat("", ""))
}
