// Package statusfeed publishes switcher status to display collaborators such
// as an overlay or tray renderer.
//
// # Wire format
//
// Every server frame is a JSON text message carrying a "type" field:
//
//   - "status": a full Snapshot, flattened into the message object.
//   - "error": {"type":"error","message":"..."} for malformed client input.
//
// Clients may send {"action":"status"} to receive the current snapshot
// again. GET /status returns the same status message as plain JSON.
package statusfeed

import (
	"encoding/json"
	"fmt"
	"time"

	"charswitch/internal/config"
	"charswitch/internal/switcher"
)

const (
	TypeStatus = "status"
	TypeError  = "error"

	actionStatus = "status"
)

// Result is the outcome of the most recent hotkey or control action.
type Result struct {
	Action string    `json:"action"`
	Error  string    `json:"error,omitempty"`
	At     time.Time `json:"at"`
}

// Snapshot is everything a renderer needs to draw the current state.
type Snapshot struct {
	switcher.Status
	HotkeysRegistered bool                 `json:"hotkeysRegistered"`
	OverlayVisible    bool                 `json:"overlayVisible"`
	Overlay           config.OverlayConfig `json:"overlay"`
	LastResult        *Result              `json:"lastResult,omitempty"`
	Warnings          []string             `json:"warnings,omitempty"`
}

type statusMsg struct {
	Type string `json:"type"`
	Snapshot
}

// clientMsg is a request from a connected client.
type clientMsg struct {
	Action string `json:"action"`
}

// errorMsg is the JSON payload for server error notifications sent to the client.
type errorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// EncodeStatus builds a status frame.
func EncodeStatus(s Snapshot) ([]byte, error) {
	if s.Names == nil {
		s.Names = []string{}
	}
	raw, err := json.Marshal(statusMsg{Type: TypeStatus, Snapshot: s})
	if err != nil {
		return nil, fmt.Errorf("statusfeed: encode status: %w", err)
	}
	return raw, nil
}

// DecodeStatus parses a frame produced by EncodeStatus.
func DecodeStatus(frame []byte) (Snapshot, error) {
	var msg statusMsg
	if err := json.Unmarshal(frame, &msg); err != nil {
		return Snapshot{}, fmt.Errorf("statusfeed: decode status: %w", err)
	}
	if msg.Type != TypeStatus {
		return Snapshot{}, fmt.Errorf("statusfeed: decode status: unexpected type %q", msg.Type)
	}
	return msg.Snapshot, nil
}
