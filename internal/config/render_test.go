package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func customized() Config {
	cfg := Default()
	cfg.Audio.Backend = "pulse"
	cfg.Audio.Input = "RODE"
	cfg.Pipeline.TrimSilence = true
	cfg.Pipeline.TrimThresholdDB = -35
	cfg.Recognizer.Backend = "exec"
	cfg.Recognizer.Command = CommandConfig{Raw: "whisper-run --beam 'five words'", Argv: []string{"whisper-run", "--beam", "five words"}}
	cfg.Output.Capitalize = false
	return cfg
}

func TestRenderRoundTrips(t *testing.T) {
	for _, format := range []Format{FormatJSONC, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			want := customized()
			out, err := Render(want, format)
			require.NoError(t, err)

			got, warnings, err := Parse(string(out), Config{})
			require.NoError(t, err)
			require.Empty(t, warnings)
			require.Equal(t, want, got)
		})
	}
}

func TestRenderUsesFileKeys(t *testing.T) {
	out, err := Render(Default(), FormatJSONC)
	require.NoError(t, err)
	text := string(out)
	require.True(t, strings.HasPrefix(text, "{"))
	require.Contains(t, text, `"silence_close_ms": 1000`)
	require.Contains(t, text, `"strip_annotations": true`)
	require.Contains(t, text, `"command": "parecord`)
	require.NotContains(t, text, "clipboard_cmd")

	out, err = Render(Default(), FormatYAML)
	require.NoError(t, err)
	require.Contains(t, string(out), "\n  trim_threshold_db: -40\n")
}
