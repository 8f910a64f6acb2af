// Package ipc is the local control channel of a running switcher. Each
// connection carries one newline-terminated JSON ControlRequest and receives
// one newline-terminated JSON ControlResponse. On Windows the endpoint is a
// per-user named pipe; elsewhere it is a per-user unix socket.
package ipc

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
)

// Control commands understood by the running instance.
const (
	CmdNext          = "next"
	CmdPrevious      = "previous"
	CmdGoto          = "goto"
	CmdFocus         = "focus"
	CmdStatus        = "status"
	CmdToggleOverlay = "toggle-overlay"
	CmdReload        = "reload"
	CmdRescan        = "rescan"
	CmdQuit          = "quit"
)

// endpointEnv overrides the default endpoint when it passes validation.
const endpointEnv = "CHARSWITCH_ENDPOINT"

// ControlRequest is a single control command.
type ControlRequest struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// ControlResponse is the reply to a ControlRequest. Status is attached when
// the command produces a state snapshot.
type ControlResponse struct {
	OK     bool            `json:"ok"`
	Error  string          `json:"error,omitempty"`
	Status json.RawMessage `json:"status,omitempty"`
}

// CommandExecutor handles a control request and returns a response.
type CommandExecutor interface {
	Execute(req ControlRequest) ControlResponse
}

// ErrorResponse builds a failed response from err.
func ErrorResponse(err error) ControlResponse {
	if err == nil {
		err = errors.New("unknown error")
	}
	return ControlResponse{OK: false, Error: err.Error()}
}

// DefaultEndpoint returns the endpoint to use. If CHARSWITCH_ENDPOINT is set
// and valid for the platform, its value is used; otherwise a per-user default
// is constructed from the current username.
func DefaultEndpoint() string {
	if v, ok := trustedEndpointFromEnv(); ok {
		return v
	}
	return defaultEndpoint()
}

func trustedEndpointFromEnv() (string, bool) {
	value := strings.TrimSpace(os.Getenv(endpointEnv))
	if value == "" {
		return "", false
	}
	if !validEndpoint(value) {
		slog.Warn("[ipc] "+endpointEnv+" rejected: value does not match allowed pattern", "value", value)
		return "", false
	}
	return value, true
}

func encodeRequest(req ControlRequest) ([]byte, error) {
	return json.Marshal(req)
}

func decodeRequest(raw []byte) (ControlRequest, error) {
	var req ControlRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return ControlRequest{}, err
	}
	req.Command = strings.TrimSpace(req.Command)
	if req.Command == "" {
		return ControlRequest{}, errors.New("command is required")
	}
	if req.Args == nil {
		req.Args = []string{}
	}
	return req, nil
}

func encodeResponse(resp ControlResponse) ([]byte, error) {
	return json.Marshal(resp)
}

func decodeResponse(raw []byte) (ControlResponse, error) {
	var resp ControlResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ControlResponse{}, err
	}
	return resp, nil
}
