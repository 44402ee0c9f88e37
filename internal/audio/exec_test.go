package audio

import (
	"context"
	"io"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCaptureArgvSubstitutesFormat(t *testing.T) {
	argv, err := captureArgv(DefaultFormat(), "")
	require.NoError(t, err)
	require.Equal(t, []string{"parecord", "--raw", "--format=s16le", "--rate=16000", "--channels=1"}, argv)

	argv, err = captureArgv(DefaultFormat(), `arecord -q -t raw -f S16_LE -r {rate} -c {channels} -D "plughw:1,0"`)
	require.NoError(t, err)
	require.Equal(t, "plughw:1,0", argv[len(argv)-1])
	require.Contains(t, argv, "16000")
}

func TestProbeExecMissingBinary(t *testing.T) {
	err := ProbeExec(context.Background(), DefaultFormat(), "definitely-missing-capture-binary")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}

func TestExecSourceReadsFramesThenFailsPermanently(t *testing.T) {
	if _, err := exec.LookPath("head"); err != nil {
		t.Skip("head not available")
	}
	// Two full frames plus a partial one.
	source := NewExecSource(DefaultFormat(), "head -c 1400 /dev/zero")
	require.NoError(t, source.Open(context.Background()))
	defer source.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for range 2 {
		frame, err := source.Next(ctx)
		require.NoError(t, err)
		require.Len(t, frame.Samples, 320)
	}

	_, err := source.Next(ctx)
	require.Error(t, err)
	require.True(t, IsPermanent(err))
	require.Contains(t, err.Error(), "capture command exited")
}

func TestExecSourceCloseEndsStream(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	source := NewExecSource(DefaultFormat(), "cat /dev/zero")
	require.NoError(t, source.Open(context.Background()))

	_, err := source.Next(context.Background())
	require.NoError(t, err)

	require.NoError(t, source.Close())
	require.NoError(t, source.Close())

	for {
		_, err = source.Next(context.Background())
		if err != nil {
			break
		}
	}
	require.ErrorIs(t, err, io.EOF)
}
