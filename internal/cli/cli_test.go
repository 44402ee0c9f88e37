package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDefaultsToHelp(t *testing.T) {
	parsed, err := Parse(nil)
	require.NoError(t, err)
	require.True(t, parsed.ShowHelp)
	require.Equal(t, CommandHelp, parsed.Command)
}

func TestParseCommandWithConfig(t *testing.T) {
	parsed, err := Parse([]string{"--config", "/tmp/parla.jsonc", "doctor"})
	require.NoError(t, err)
	require.Equal(t, CommandDoctor, parsed.Command)
	require.Equal(t, "/tmp/parla.jsonc", parsed.ConfigPath)
	require.False(t, parsed.ShowHelp)
}

func TestParseArgMatrix(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantErr  string
		wantCmd  Command
		wantHelp bool
		wantPath string
	}{
		{
			name:     "help short flag",
			args:     []string{"-h"},
			wantCmd:  CommandHelp,
			wantHelp: true,
		},
		{
			name:     "help long flag",
			args:     []string{"--help"},
			wantCmd:  CommandHelp,
			wantHelp: true,
		},
		{
			name:     "version flag",
			args:     []string{"--version"},
			wantCmd:  CommandVersion,
			wantHelp: false,
		},
		{
			name:     "config command",
			args:     []string{"--config=/tmp/cfg", "config"},
			wantCmd:  CommandConfig,
			wantPath: "/tmp/cfg",
		},
		{
			name:    "config after command",
			args:    []string{"status", "--config", "/tmp/cfg"},
			wantErr: "unexpected arguments after command",
		},
		{
			name:    "missing config path",
			args:    []string{"--config"},
			wantErr: "requires a path",
		},
		{
			name:    "unknown flag",
			args:    []string{"--bogus"},
			wantErr: "unknown flag",
		},
		{
			name:    "unknown command",
			args:    []string{"bogus"},
			wantErr: "unknown command",
		},
		{
			name:    "extra args after command",
			args:    []string{"doctor", "extra"},
			wantErr: "unexpected arguments",
		},
		{
			name:     "valid cancel command",
			args:     []string{"cancel"},
			wantCmd:  CommandCancel,
			wantHelp: false,
		},
		{
			name:     "valid stats command",
			args:     []string{"stats"},
			wantCmd:  CommandStats,
			wantHelp: false,
		},
		{
			name:     "start command",
			args:     []string{"start"},
			wantCmd:  CommandStart,
			wantHelp: false,
		},
		{
			name:    "limit without value",
			args:    []string{"--limit"},
			wantErr: "requires a number",
		},
		{
			name:    "limit not positive",
			args:    []string{"--limit", "0", "history"},
			wantErr: "positive integer",
		},
		{
			name:     "inline config value",
			args:     []string{"--config=/tmp/inline.yaml", "status"},
			wantCmd:  CommandStatus,
			wantPath: "/tmp/inline.yaml",
		},
		{
			name:    "inline limit not a number",
			args:    []string{"--limit=many", "history"},
			wantErr: "positive integer",
		},
		{
			name:     "valid stop with config",
			args:     []string{"--config", "/tmp/cfg", "stop"},
			wantCmd:  CommandStop,
			wantHelp: false,
			wantPath: "/tmp/cfg",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := Parse(tc.args)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.wantCmd, parsed.Command)
			require.Equal(t, tc.wantHelp, parsed.ShowHelp)
			require.Equal(t, tc.wantPath, parsed.ConfigPath)
		})
	}
}

func TestParseHistoryLimit(t *testing.T) {
	parsed, err := Parse([]string{"history"})
	require.NoError(t, err)
	require.Equal(t, DefaultHistoryLimit, parsed.Limit)

	parsed, err = Parse([]string{"--limit", "3", "history"})
	require.NoError(t, err)
	require.Equal(t, CommandHistory, parsed.Command)
	require.Equal(t, 3, parsed.Limit)
}

func TestHelpTextIncludesCoreCommands(t *testing.T) {
	text := HelpText("parla")
	require.Contains(t, text, "start")
	require.Contains(t, text, "toggle")
	require.Contains(t, text, "stats")
	require.Contains(t, text, "history")
	require.Contains(t, text, "stop")
	require.Contains(t, text, "cancel")
	require.Contains(t, text, "doctor")
	require.Contains(t, text, "config")
	require.Contains(t, text, "--config PATH")
	for _, c := range commands {
		require.Contains(t, text, "  "+string(c.name)+" ")
	}
}
