// Package cli parses the parla command line.
package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Command string

const (
	CommandStart   Command = "start"
	CommandToggle  Command = "toggle"
	CommandStop    Command = "stop"
	CommandCancel  Command = "cancel"
	CommandStatus  Command = "status"
	CommandStats   Command = "stats"
	CommandHistory Command = "history"
	CommandDevices Command = "devices"
	CommandDoctor  Command = "doctor"
	CommandConfig  Command = "config"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

// commands is ordered as printed by HelpText.
var commands = []struct {
	name    Command
	summary string
}{
	{CommandStart, "Start a dictation session and run it until stopped"},
	{CommandToggle, "Start a session, or stop the running one"},
	{CommandStop, "Stop the running session after pending text is typed"},
	{CommandCancel, "Cancel the running session and discard pending text"},
	{CommandStatus, "Print the session state"},
	{CommandStats, "Print live pipeline statistics as JSON"},
	{CommandHistory, "List recent sessions"},
	{CommandDevices, "List available input devices"},
	{CommandDoctor, "Run configuration and environment checks"},
	{CommandConfig, "Print the resolved config path and effective settings"},
	{CommandVersion, "Print version information"},
	{CommandHelp, "Show this help"},
}

func known(name string) (Command, bool) {
	for _, c := range commands {
		if string(c.name) == name {
			return c.name, true
		}
	}
	return "", false
}

// DefaultHistoryLimit is how many sessions history prints without --limit.
const DefaultHistoryLimit = 10

type Parsed struct {
	Command    Command
	ConfigPath string
	Limit      int
	ShowHelp   bool
}

// Parse reads global flags followed by exactly one command. Flags accept
// both `--flag value` and `--flag=value`.
func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true, Limit: DefaultHistoryLimit}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			cmd, ok := known(arg)
			if !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}
			if rest := args[i+1:]; len(rest) > 0 {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q: %s", arg, strings.Join(rest, " "))
			}
			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
			break
		}

		flag, value, inline := strings.Cut(arg, "=")
		takeValue := func(missing string) (string, error) {
			if inline {
				return value, nil
			}
			i++
			if i >= len(args) {
				return "", errors.New(missing)
			}
			return args[i], nil
		}

		switch flag {
		case "-h", "--help":
			parsed.Command, parsed.ShowHelp = CommandHelp, true
		case "--version":
			parsed.Command, parsed.ShowHelp = CommandVersion, false
		case "--config":
			path, err := takeValue("--config requires a path")
			if err != nil {
				return Parsed{}, err
			}
			parsed.ConfigPath = path
		case "--limit":
			raw, err := takeValue("--limit requires a number")
			if err != nil {
				return Parsed{}, err
			}
			limit, err := strconv.Atoi(raw)
			if err != nil || limit <= 0 {
				return Parsed{}, fmt.Errorf("--limit must be a positive integer, got %q", raw)
			}
			parsed.Limit = limit
		default:
			return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
		}
	}

	return parsed, nil
}

func HelpText(binaryName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Usage:\n  %s [--config PATH] [--limit N] <command>\n\nCommands:\n", binaryName)
	for _, c := range commands {
		fmt.Fprintf(&b, "  %-9s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(&b, `
Flags:
  --config PATH   Config file path (default: $PARLA_CONFIG or $XDG_CONFIG_HOME/parla/config.jsonc)
  --limit N       Sessions shown by history (default: %d)
  -h, --help      Show help
  --version       Show version
`, DefaultHistoryLimit)
	return b.String()
}
