package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Commands understood by a running session owner.
const (
	CommandStatus = "status"
	CommandStats  = "stats"
	CommandStop   = "stop"
	CommandCancel = "cancel"
)

// Request is one newline-delimited JSON command.
type Request struct {
	Command string `json:"command"`
}

// Response answers one Request. Data carries command-specific payloads such as stats.
type Response struct {
	OK      bool            `json:"ok"`
	State   string          `json:"state,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Err converts a rejected response into an error.
func (r Response) Err() error {
	if r.OK {
		return nil
	}
	if r.Error == "" {
		return errors.New("request rejected")
	}
	return errors.New(r.Error)
}

// Decode unmarshals Data into v.
func (r Response) Decode(v any) error {
	if len(r.Data) == 0 {
		return errors.New("response carries no data")
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}
