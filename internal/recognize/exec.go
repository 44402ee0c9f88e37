package recognize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/rbright/parla/internal/audio"
)

// ExecConfig describes a command-line recognizer. The command receives
// --audio <wav> plus optional --model and --language flags and prints
// {"text": "...", "language": "...", "confidence": 0.9} on stdout.
type ExecConfig struct {
	Command  string
	Model    string
	Language string
	Timeout  time.Duration
	TempDir  string
}

type execResult struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// Exec runs one process per utterance.
type Exec struct {
	argv []string
	cfg  ExecConfig
}

// NewExec parses the command line and verifies the binary exists.
func NewExec(cfg ExecConfig) (*Exec, error) {
	argv, err := parseCommand(cfg.Command)
	if err != nil {
		return nil, err
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		return nil, fmt.Errorf("recognizer command %q not found: %w", argv[0], err)
	}
	return &Exec{argv: argv, cfg: cfg}, nil
}

func parseCommand(command string) ([]string, error) {
	parser := shellwords.NewParser()
	argv, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse recognizer command: %w", err)
	}
	if len(argv) == 0 {
		return nil, errors.New("recognizer command is empty")
	}
	return argv, nil
}

func (r *Exec) Recognize(ctx context.Context, frames []audio.Frame) (Result, error) {
	if len(frames) == 0 {
		return Result{}, nil
	}
	started := time.Now()

	file, err := os.CreateTemp(r.cfg.TempDir, "parla_utterance_*.wav")
	if err != nil {
		return Result{}, Retryable("exec", fmt.Errorf("temp file: %w", err))
	}
	defer os.Remove(file.Name())

	if err := audio.WriteWAV(file, frames); err != nil {
		_ = file.Close()
		return Result{}, Retryable("exec", err)
	}
	if err := file.Close(); err != nil {
		return Result{}, Retryable("exec", fmt.Errorf("close wav: %w", err))
	}

	args := append([]string{}, r.argv[1:]...)
	args = append(args, "--audio", file.Name())
	if r.cfg.Model != "" {
		args = append(args, "--model", r.cfg.Model)
	}
	if r.cfg.Language != "" {
		args = append(args, "--language", r.cfg.Language)
	}

	runCtx := ctx
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	command := exec.CommandContext(runCtx, r.argv[0], args...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr
	command.WaitDelay = time.Second

	if err := command.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return Result{}, Fatal("exec", err)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return Result{}, Retryable("exec", fmt.Errorf("command failed: %w: %s", err, msg))
		}
		return Result{}, Retryable("exec", fmt.Errorf("command failed: %w", err))
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Result{}, Retryable("exec", fmt.Errorf("decode recognizer response: %w", err))
	}

	language := resp.Language
	if language == "" {
		language = r.cfg.Language
	}
	return Result{
		Text:       resp.Text,
		Language:   language,
		Confidence: clampConfidence(resp.Confidence),
		Duration:   time.Since(started),
	}, nil
}
