package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSendRoundTrip(t *testing.T) {
	runtimeDir := t.TempDir()
	socketPath := filepath.Join(runtimeDir, "parla.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- Serve(ctx, listener, HandlerFunc(func(_ context.Context, req Request) Response {
			require.Equal(t, "status", req.Command)
			return Response{OK: true, State: "active", Message: "ok"}
		}))
	}()

	resp, err := Client{Path: socketPath, Timeout: 200 * time.Millisecond}.Send(context.Background(), Request{Command: "status"})
	require.NoError(t, err)
	require.True(t, resp.OK)
	require.Equal(t, "active", resp.State)
	require.Equal(t, "ok", resp.Message)

	cancel()
	require.NoError(t, <-serveDone)
}

func TestSendDecodeResponseError(t *testing.T) {
	runtimeDir := t.TempDir()
	socketPath := filepath.Join(runtimeDir, "parla.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}
		defer conn.Close()

		reader := bufio.NewReader(conn)
		_, _ = reader.ReadBytes('\n')
		_, _ = conn.Write([]byte("not-json\n"))
	}()

	_, err = Client{Path: socketPath, Timeout: 200 * time.Millisecond}.Send(context.Background(), Request{Command: "status"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode response")
}

func TestNewClientUsesSocketPath(t *testing.T) {
	t.Setenv(SocketEnv, "/tmp/x/parla.sock")
	client := NewClient()
	require.Equal(t, "/tmp/x/parla.sock", client.Path)
	require.Equal(t, DefaultTimeout, client.Timeout)
}

func TestServeRejectsOversizedRequest(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "parla.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- Serve(ctx, listener, HandlerFunc(func(context.Context, Request) Response {
			return Response{OK: true}
		}))
	}()

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()
	payload := `{"command":"` + strings.Repeat("x", maxRequestBytes) + `"}` + "\n"
	_, _ = conn.Write([]byte(payload))

	var resp Response
	require.NoError(t, json.NewDecoder(conn).Decode(&resp))
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "request")

	cancel()
	require.NoError(t, <-serveDone)
}

func TestSendReadResponseError(t *testing.T) {
	runtimeDir := t.TempDir()
	socketPath := filepath.Join(runtimeDir, "parla.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}
		_ = conn.Close()
	}()

	_, err = Client{Path: socketPath, Timeout: 200 * time.Millisecond}.Send(context.Background(), Request{Command: "status"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "read response")
}

func TestServeDecodeRequestErrorResponse(t *testing.T) {
	runtimeDir := t.TempDir()
	socketPath := filepath.Join(runtimeDir, "parla.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- Serve(ctx, listener, HandlerFunc(func(_ context.Context, _ Request) Response {
			return Response{OK: true}
		}))
	}()

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("not-json\n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(line, &resp))
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "decode request")

	cancel()
	require.NoError(t, <-serveDone)
}

func TestProbe(t *testing.T) {
	runtimeDir := t.TempDir()
	socketPath := filepath.Join(runtimeDir, "parla.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- Serve(ctx, listener, HandlerFunc(func(_ context.Context, req Request) Response {
			if req.Command == "status" {
				return Response{OK: true, State: "idle"}
			}
			return Response{OK: false, Error: "bad"}
		}))
	}()

	alive, probeErr := Client{Path: socketPath, Timeout: 200 * time.Millisecond}.Probe(context.Background())
	require.NoError(t, probeErr)
	require.True(t, alive)

	cancel()
	require.NoError(t, <-serveDone)

	alive, probeErr = Client{Path: socketPath, Timeout: 100 * time.Millisecond}.Probe(context.Background())
	require.NoError(t, probeErr)
	require.False(t, alive)
}

func TestCallDecodesDataAndRejections(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "parla.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- Serve(ctx, listener, HandlerFunc(func(_ context.Context, req Request) Response {
			switch req.Command {
			case CommandStats:
				return Response{OK: true, Data: json.RawMessage(`{"frames_produced":42}`)}
			case CommandStop:
				return Response{OK: false, Error: "cannot stop from state idle"}
			default:
				panic("boom")
			}
		}))
	}()

	client := Client{Path: socketPath, Timeout: 200 * time.Millisecond}
	resp, err := client.Call(context.Background(), CommandStats)
	require.NoError(t, err)
	var stats struct {
		FramesProduced int `json:"frames_produced"`
	}
	require.NoError(t, resp.Decode(&stats))
	require.Equal(t, 42, stats.FramesProduced)

	_, err = client.Call(context.Background(), CommandStop)
	require.EqualError(t, err, "cannot stop from state idle")

	_, err = client.Call(context.Background(), "explode")
	require.Error(t, err)
	require.Contains(t, err.Error(), "panic: boom")

	cancel()
	require.NoError(t, <-serveDone)
}

func TestCallReportsNotRunning(t *testing.T) {
	client := Client{Path: filepath.Join(t.TempDir(), "parla.sock"), Timeout: 100 * time.Millisecond}
	_, err := client.Call(context.Background(), CommandStatus)
	require.ErrorIs(t, err, ErrNotRunning)
}

func TestResponseDecodeWithoutData(t *testing.T) {
	var v map[string]any
	require.Error(t, Response{OK: true}.Decode(&v))
	require.NoError(t, Response{OK: true}.Err())
	require.EqualError(t, Response{}.Err(), "request rejected")
}
