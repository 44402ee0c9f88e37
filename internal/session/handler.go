package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rbright/parla/internal/fsm"
	"github.com/rbright/parla/internal/ipc"
)

// Handle serves IPC commands for the session owned by this process.
func (m *Manager) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		info, live := m.Info()
		resp := ipc.Response{OK: true, State: string(info.State), Message: "idle"}
		if live {
			resp.Message = fmt.Sprintf("session %s", info.ID)
		}
		return withData(resp, info)
	case ipc.CommandStats:
		return withData(ipc.Response{OK: true, State: string(m.State()), Message: "stats"}, m.Stats())
	case ipc.CommandStop:
		return m.requestEnd(EndStopped)
	case ipc.CommandCancel:
		return m.requestEnd(EndCancelled)
	default:
		return ipc.Response{OK: false, State: string(m.State()), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

// requestEnd starts teardown in the background so the IPC reply is not held
// for the shutdown grace period.
func (m *Manager) requestEnd(reason EndReason) ipc.Response {
	verb := "stop"
	if reason == EndCancelled {
		verb = "cancel"
	}

	state := m.State()
	switch state {
	case fsm.StateStarting, fsm.StateActive:
	case fsm.StateStopping:
		if reason == EndCancelled {
			break
		}
		return ipc.Response{OK: true, State: string(state), Message: "stop already requested"}
	default:
		return ipc.Response{OK: false, State: string(state), Error: fmt.Sprintf("cannot %s from state %s", verb, state)}
	}

	go func() {
		_, _ = m.end(context.Background(), reason)
	}()
	return ipc.Response{OK: true, State: string(state), Message: verb + " requested"}
}

func withData(resp ipc.Response, payload any) ipc.Response {
	data, err := json.Marshal(payload)
	if err != nil {
		resp.OK = false
		resp.Error = fmt.Sprintf("encode %s: %v", resp.Message, err)
		return resp
	}
	resp.Data = data
	return resp
}
