package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"charswitch/internal/hotkeys"
	"charswitch/internal/ipc"
)

var _ ipc.CommandExecutor = (*App)(nil)

// Execute runs one control-channel command. Every response carries the
// status snapshot taken after the command.
func (a *App) Execute(req ipc.ControlRequest) ipc.ControlResponse {
	if a.controller == nil || a.coordinator == nil {
		return ipc.ErrorResponse(errAppNotStarted)
	}

	err := a.executeCommand(req)
	resp := ipc.ControlResponse{OK: err == nil}
	if err != nil {
		resp.Error = err.Error()
	}

	raw, marshalErr := json.Marshal(a.statusSnapshot())
	if marshalErr != nil {
		slog.Warn("[ipc] failed to encode status", "error", marshalErr)
	} else {
		resp.Status = raw
	}
	return resp
}

func (a *App) executeCommand(req ipc.ControlRequest) error {
	switch req.Command {
	case ipc.CmdNext:
		return a.coordinator.Dispatch(hotkeys.NextAction)
	case ipc.CmdPrevious:
		return a.coordinator.Dispatch(hotkeys.PreviousAction)
	case ipc.CmdGoto:
		index, err := parseGotoArgs(req.Args)
		if err != nil {
			return err
		}
		return a.coordinator.Dispatch(hotkeys.SlotAction(index))
	case ipc.CmdFocus:
		name := strings.TrimSpace(strings.Join(req.Args, " "))
		if name == "" {
			return fmt.Errorf("%s requires a character name", ipc.CmdFocus)
		}
		err := a.controller.SwitchToName(name)
		a.recordResult("focus", err)
		return err
	case ipc.CmdStatus:
		return nil
	case ipc.CmdToggleOverlay:
		return a.coordinator.Dispatch(hotkeys.ToggleOverlayAction)
	case ipc.CmdReload:
		return a.reloadConfig()
	case ipc.CmdRescan:
		return a.rescan()
	case ipc.CmdQuit:
		return a.coordinator.Dispatch(hotkeys.QuitAction)
	default:
		return fmt.Errorf("unknown command %q", req.Command)
	}
}

// parseGotoArgs converts a 1-based character number into a sequence index.
func parseGotoArgs(args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%s requires exactly one character number", ipc.CmdGoto)
	}
	n, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil {
		return 0, fmt.Errorf("%s: invalid character number %q", ipc.CmdGoto, args[0])
	}
	if n < 1 || n > hotkeys.PositionSlots {
		return 0, fmt.Errorf("%s: character number must be between 1 and %d", ipc.CmdGoto, hotkeys.PositionSlots)
	}
	return n - 1, nil
}

// rescan replaces the registry with freshly detected windows and persists it.
func (a *App) rescan() error {
	n, err := a.controller.Seed(a.windows, nil)
	if err != nil {
		return err
	}
	slog.Info("[DEBUG-SWITCH] registry rebuilt from detected windows", "count", n)
	a.persistState()
	a.publishStatus()
	return nil
}
