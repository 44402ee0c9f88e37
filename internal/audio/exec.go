package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"
)

// DefaultCaptureCommand records raw s16le mono PCM from the default Pulse/PipeWire source.
const DefaultCaptureCommand = "parecord --raw --format=s16le --rate={rate} --channels={channels}"

// ExecSource streams raw s16le PCM from the stdout of a capture command.
// The placeholders {rate} and {channels} are substituted before parsing.
type ExecSource struct {
	format  Format
	command string

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr bytes.Buffer
	closed bool

	waitOnce sync.Once
	waitErr  error
}

// NewExecSource prepares a command-backed source.
func NewExecSource(format Format, command string) *ExecSource {
	if strings.TrimSpace(command) == "" {
		command = DefaultCaptureCommand
	}
	return &ExecSource{format: format, command: command}
}

// ProbeExec checks that the capture command's binary resolves on PATH.
func ProbeExec(_ context.Context, format Format, command string) error {
	argv, err := captureArgv(format, command)
	if err != nil {
		return err
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		return fmt.Errorf("capture command %q not found: %w", argv[0], err)
	}
	return nil
}

func captureArgv(format Format, command string) ([]string, error) {
	if strings.TrimSpace(command) == "" {
		command = DefaultCaptureCommand
	}
	expanded := strings.NewReplacer(
		"{rate}", strconv.Itoa(format.SampleRate),
		"{channels}", strconv.Itoa(format.Channels),
	).Replace(command)

	argv, err := shellwords.Parse(expanded)
	if err != nil {
		return nil, fmt.Errorf("parse capture command: %w", err)
	}
	if len(argv) == 0 {
		return nil, errors.New("capture command is empty")
	}
	return argv, nil
}

// Open starts the capture process.
func (s *ExecSource) Open(ctx context.Context) error {
	if err := s.format.Validate(); err != nil {
		return permanent("exec", err)
	}
	argv, err := captureArgv(s.format, s.command)
	if err != nil {
		return permanent("exec", err)
	}

	// The process outlives Open's context; Close terminates it.
	cmd := exec.CommandContext(context.WithoutCancel(ctx), argv[0], argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return permanent("exec", fmt.Errorf("open capture stdout: %w", err))
	}
	cmd.Stderr = &s.stderr
	if err := cmd.Start(); err != nil {
		return permanent("exec", fmt.Errorf("start capture command %q: %w", argv[0], err))
	}

	s.mu.Lock()
	s.cmd = cmd
	s.stdout = stdout
	s.mu.Unlock()
	return nil
}

// Next reads exactly one frame from the process output.
func (s *ExecSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	s.mu.Lock()
	stdout := s.stdout
	s.mu.Unlock()
	if stdout == nil {
		return Frame{}, permanent("exec", errors.New("source is not open"))
	}

	// A blocked read only returns once the process dies.
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	pcm := make([]byte, s.format.BytesPerFrame())
	if _, err := io.ReadFull(stdout, pcm); err != nil {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return Frame{}, io.EOF
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, permanent("exec", fmt.Errorf("capture command exited: %s", s.describeExit()))
		}
		return Frame{}, transient("exec", fmt.Errorf("read capture output: %w", err))
	}
	return FrameFromPCM16(pcm, s.format, time.Now()), nil
}

// Close kills the capture process. Safe to call more than once.
func (s *ExecSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cmd := s.cmd
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	_ = cmd.Process.Kill()
	s.wait()
	return nil
}

// wait reaps the process once; stderr is complete after it returns.
func (s *ExecSource) wait() {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil {
		return
	}
	s.waitOnce.Do(func() {
		err := cmd.Wait()
		s.mu.Lock()
		s.waitErr = err
		s.mu.Unlock()
	})
}

func (s *ExecSource) describeExit() string {
	s.wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := strings.TrimSpace(s.stderr.String())
	switch {
	case s.waitErr != nil && msg != "":
		return fmt.Sprintf("%v: %s", s.waitErr, msg)
	case s.waitErr != nil:
		return s.waitErr.Error()
	case msg != "":
		return msg
	default:
		return "end of output"
	}
}
