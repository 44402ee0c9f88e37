package config

import (
	"fmt"
	"strings"

	"github.com/mattn/go-shellwords"
)

// parseArgv splits a configured command line with shell quoting rules.
// Environment variables and backticks are left untouched.
func parseArgv(input string) ([]string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}

	parser := shellwords.NewParser()
	argv, err := parser.Parse(input)
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", input, err)
	}
	if parser.Position >= 0 {
		return nil, fmt.Errorf("command %q contains a shell operator; wrap it in sh -c", input)
	}
	return argv, nil
}

func mustParseArgv(input string) []string {
	argv, err := parseArgv(input)
	if err != nil {
		panic(err)
	}
	return argv
}

func parseCommand(key string, raw string) (CommandConfig, error) {
	argv, err := parseArgv(raw)
	if err != nil {
		return CommandConfig{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return CommandConfig{Raw: raw, Argv: argv}, nil
}
