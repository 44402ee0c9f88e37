package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"
)

// DefaultTimeout bounds one client round trip.
const DefaultTimeout = 2500 * time.Millisecond

// Client talks to the session owner on Path.
type Client struct {
	Path    string
	Timeout time.Duration
}

// NewClient returns a client for the default socket path.
func NewClient() Client {
	return Client{Path: SocketPath(), Timeout: DefaultTimeout}
}

func (c Client) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// Send performs one request/response round trip. Transport errors are
// returned as-is; a rejected response is not an error here.
func (c Client) Send(ctx context.Context, req Request) (Response, error) {
	timeout := c.timeout()
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "unix", c.Path)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			return Response{}, fmt.Errorf("decode response: %w", err)
		}
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

// Call sends one command. A missing owner yields ErrNotRunning and a
// rejected response is converted to an error.
func (c Client) Call(ctx context.Context, command string) (Response, error) {
	resp, err := c.Send(ctx, Request{Command: command})
	if err != nil {
		if notListening(err) {
			return Response{}, ErrNotRunning
		}
		return Response{}, fmt.Errorf("%s: %w", command, err)
	}
	return resp, resp.Err()
}

// Probe reports whether a responsive owner is listening.
func (c Client) Probe(ctx context.Context) (bool, error) {
	_, err := c.Send(ctx, Request{Command: CommandStatus})
	if err == nil {
		return true, nil
	}
	if notListening(err) {
		return false, nil
	}
	return false, fmt.Errorf("probe socket: %w", err)
}

// notListening reports an absent socket file or one with no listener.
func notListening(err error) bool {
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED)
}
