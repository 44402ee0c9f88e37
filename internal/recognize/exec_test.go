package recognize

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rbright/parla/internal/audio"
	"github.com/stretchr/testify/require"
)

func speechFrames(n int) []audio.Frame {
	frames := make([]audio.Frame, n)
	for i := range frames {
		samples := make([]float32, 320)
		for j := range samples {
			samples[j] = 0.1
		}
		frames[i] = audio.Frame{Samples: samples, SampleRate: 16000, Channels: 1, Duration: 20 * time.Millisecond}
	}
	return frames
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recognizer.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestExecRecognizerParsesJSONOutput(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args.txt")
	script := writeScript(t, `echo "$@" > `+argsFile+`
echo '{"text":"hello world","language":"en","confidence":0.92}'
`)

	r, err := NewExec(ExecConfig{Command: script + " --beam 2", Model: "base.en", Language: "en"})
	require.NoError(t, err)

	res, err := r.Recognize(context.Background(), speechFrames(5))
	require.NoError(t, err)
	require.Equal(t, "hello world", res.Text)
	require.Equal(t, "en", res.Language)
	require.InDelta(t, 0.92, res.Confidence, 1e-9)
	require.Greater(t, res.Duration, time.Duration(0))

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	require.Contains(t, string(args), "--beam 2 --audio ")
	require.Contains(t, string(args), "--model base.en --language en")
}

func TestExecRecognizerFailureIsRetryable(t *testing.T) {
	script := writeScript(t, "echo 'model exploded' >&2\nexit 3\n")
	r, err := NewExec(ExecConfig{Command: script})
	require.NoError(t, err)

	_, err = r.Recognize(context.Background(), speechFrames(2))
	require.Error(t, err)
	require.False(t, IsFatal(err))
	require.Contains(t, err.Error(), "model exploded")
}

func TestExecRecognizerBadJSONIsRetryable(t *testing.T) {
	script := writeScript(t, "echo not-json\n")
	r, err := NewExec(ExecConfig{Command: script})
	require.NoError(t, err)

	_, err = r.Recognize(context.Background(), speechFrames(1))
	require.Error(t, err)
	require.False(t, IsFatal(err))
	require.Contains(t, err.Error(), "decode recognizer response")
}

func TestExecRecognizerTimeout(t *testing.T) {
	script := writeScript(t, "exec sleep 5\n")
	r, err := NewExec(ExecConfig{Command: script, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	started := time.Now()
	_, err = r.Recognize(context.Background(), speechFrames(1))
	require.Error(t, err)
	require.Less(t, time.Since(started), 3*time.Second)
}

func TestExecRecognizerEmptyInputSkipsCommand(t *testing.T) {
	script := writeScript(t, "exit 1\n")
	r, err := NewExec(ExecConfig{Command: script})
	require.NoError(t, err)

	res, err := r.Recognize(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, res.Text)
}

func TestNewExecValidation(t *testing.T) {
	_, err := NewExec(ExecConfig{Command: ""})
	require.Error(t, err)

	_, err = NewExec(ExecConfig{Command: "definitely-missing-recognizer --flag"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")

	_, err = NewExec(ExecConfig{Command: `whisper "unterminated`})
	require.Error(t, err)
}
