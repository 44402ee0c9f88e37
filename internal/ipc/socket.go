package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

var (
	ErrAlreadyRunning = errors.New("parla session already running")
	ErrNotRunning     = errors.New("no parla session is running")
)

// SocketEnv overrides the socket location.
const SocketEnv = "PARLA_SOCKET"

// SocketPath is the per-user socket a session owner listens on: $PARLA_SOCKET,
// else $XDG_RUNTIME_DIR/parla.sock, else a uid-scoped file in the temp dir.
func SocketPath() string {
	if path := strings.TrimSpace(os.Getenv(SocketEnv)); path != "" {
		return path
	}
	if runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); runtimeDir != "" {
		return filepath.Join(runtimeDir, "parla.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("parla-%d.sock", os.Getuid()))
}

// AcquireOptions tunes stale-socket recovery.
type AcquireOptions struct {
	// ProbeTimeout bounds the liveness check against an existing socket.
	ProbeTimeout time.Duration
	// Retries is how many times a stale socket is removed and re-listened.
	Retries int
	// Rescue runs after a stale socket is removed.
	Rescue func(context.Context) error
}

// Owner is the listening side of the single-owner socket.
type Owner struct {
	net.Listener
	path string
}

// Path returns the socket file path.
func (o *Owner) Path() string { return o.path }

// Close stops listening and unlinks the socket file.
func (o *Owner) Close() error {
	err := o.Listener.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	if removeErr := os.Remove(o.path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) && err == nil {
		err = removeErr
	}
	return err
}

// Acquire listens on path, enforcing a single owner. A socket that exists but
// refuses connections is stale: it is removed and Rescue runs before retrying.
// A socket that accepts but does not answer in time is left alone.
func Acquire(ctx context.Context, path string, opts AcquireOptions) (*Owner, error) {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 200 * time.Millisecond
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure runtime socket dir: %w", err)
	}
	client := Client{Path: path, Timeout: opts.ProbeTimeout}

	for attempt := 0; attempt <= opts.Retries; attempt++ {
		listener, err := net.Listen("unix", path)
		if err == nil {
			_ = os.Chmod(path, 0o600)
			return &Owner{Listener: listener, path: path}, nil
		}

		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("listen unix %s: %w", path, err)
		}

		alive, probeErr := client.Probe(ctx)
		if alive {
			return nil, ErrAlreadyRunning
		}
		if probeErr != nil {
			return nil, fmt.Errorf("probe existing socket %s: %w", path, probeErr)
		}

		if removeErr := os.Remove(path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket %s: %w", path, removeErr)
		}

		if opts.Rescue != nil {
			_ = opts.Rescue(ctx)
		}

		if attempt < opts.Retries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(25*(attempt+1)) * time.Millisecond):
			}
		}
	}

	return nil, fmt.Errorf("failed to acquire socket %s after %d retries", path, opts.Retries)
}
