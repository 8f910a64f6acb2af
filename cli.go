package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"charswitch/internal/config"
	"charswitch/internal/ipc"
	"charswitch/internal/sessionlog"
	"charswitch/internal/singleinstance"
	"charswitch/internal/statusfeed"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var errAlreadyRunning = errors.New("charswitch is already running")

// sendControlFn is a test seam.
var sendControlFn = ipc.Send

type cliState struct {
	logLevel string
	endpoint string
	jsonOut  bool
	warnings *sessionlog.Ring
}

func newRootCommand() *cobra.Command {
	state := &cliState{warnings: sessionlog.NewRing(sessionlog.DefaultCapacity)}

	root := &cobra.Command{
		Use:           "charswitch",
		Short:         "Cycle focus between game-client windows with global hotkeys",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, err := parseLogLevel(state.logLevel)
			if err != nil {
				return err
			}
			installLogger(cmd.ErrOrStderr(), level, state.warnings)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSwitcher(cmd.Context(), state)
		},
	}
	root.PersistentFlags().StringVar(&state.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	root.PersistentFlags().StringVar(&state.endpoint, "endpoint", "", "control channel endpoint (default: per-user pipe or socket)")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the switcher in the foreground (default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runSwitcher(cmd.Context(), state)
			},
		},
		newDetectCommand(),
		newControlCommand(state, ipc.CmdNext, "Focus the next character", cobra.NoArgs),
		newControlCommand(state, ipc.CmdPrevious, "Focus the previous character", cobra.NoArgs),
		newControlCommand(state, ipc.CmdGoto+" <number>", "Focus the character at 1-based position <number>", cobra.ExactArgs(1)),
		newControlCommand(state, ipc.CmdFocus+" <name>", "Focus the character named <name>", cobra.MinimumNArgs(1)),
		newControlCommand(state, ipc.CmdToggleOverlay, "Show or hide the overlay", cobra.NoArgs),
		newControlCommand(state, ipc.CmdReload, "Reload the config file", cobra.NoArgs),
		newControlCommand(state, ipc.CmdRescan, "Rebuild the character list from detected windows", cobra.NoArgs),
		newControlCommand(state, ipc.CmdQuit, "Stop the running switcher", cobra.NoArgs),
		newStatusCommand(state),
	)
	return root
}

// runSwitcher runs the app in the foreground under the single-instance guard.
func runSwitcher(ctx context.Context, state *cliState) error {
	lock, err := singleinstance.Acquire()
	if errors.Is(err, singleinstance.ErrAlreadyRunning) {
		return errAlreadyRunning
	}
	if err != nil {
		slog.Warn("[DEBUG-SINGLE] instance lock failed, proceeding without single-instance guard", "error", err)
	}
	if lock != nil {
		defer func() {
			if releaseErr := lock.Release(); releaseErr != nil {
				slog.Warn("[DEBUG-SINGLE] instance lock release failed", "error", releaseErr)
			}
		}()
	}

	app := NewApp(appOptions{
		controlEndpoint: state.endpoint,
		warnings:        state.warnings,
	})
	return app.Run(ctx)
}

func newDetectCommand() *cobra.Command {
	var processNames []string
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "List windows that look like game clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(processNames) == 0 {
				cfg, err := config.Load(config.DefaultPath())
				if err != nil {
					slog.Warn("[WARN-CONFIG] failed to load config, using default process names", "error", err)
				}
				processNames = cfg.Detect.ProcessNames
			}
			windows, err := defaultWindows(processNames).DetectWindows()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tHANDLE\tPID\tPROCESS\tTITLE")
			for i, w := range windows {
				fmt.Fprintf(tw, "%d\t%#x\t%d\t%s\t%s\n", i+1, uintptr(w.Handle), w.PID, w.Process, w.Title)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if len(windows) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "no matching windows found")
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&processNames, "process", nil, "executable names to match (default: from config)")
	return cmd
}

// newControlCommand builds a subcommand that forwards itself to the running
// instance. use is "<command> [arg usage]".
func newControlCommand(state *cliState, use string, short string, args cobra.PositionalArgs) *cobra.Command {
	command, _, _ := strings.Cut(use, " ")
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := sendControl(state, ipc.ControlRequest{Command: command, Args: args})
			return err
		},
	}
}

func newStatusCommand(state *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   ipc.CmdStatus,
		Short: "Show the running switcher's characters and cursor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := sendControl(state, ipc.ControlRequest{Command: ipc.CmdStatus})
			if err != nil {
				return err
			}
			if state.jsonOut {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), string(resp.Status))
				return err
			}
			var snap statusfeed.Snapshot
			if err := json.Unmarshal(resp.Status, &snap); err != nil {
				return fmt.Errorf("decode status: %w", err)
			}
			return printStatus(cmd.OutOrStdout(), snap)
		},
	}
	cmd.Flags().BoolVar(&state.jsonOut, "json", false, "print the raw status JSON")
	return cmd
}

// sendControl delivers req and turns transport or command failures into errors.
func sendControl(state *cliState, req ipc.ControlRequest) (ipc.ControlResponse, error) {
	resp, err := sendControlFn(state.endpoint, req)
	if err != nil {
		if ipc.IsConnectionError(err) {
			return resp, errors.New("charswitch is not running")
		}
		return resp, fmt.Errorf("%s: %w", req.Command, err)
	}
	if !resp.OK {
		return resp, fmt.Errorf("%s: %s", req.Command, resp.Error)
	}
	return resp, nil
}

func printStatus(w io.Writer, snap statusfeed.Snapshot) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if len(snap.Names) == 0 {
		fmt.Fprintln(tw, "no characters configured")
	}
	for i, name := range snap.Names {
		marker := " "
		switch i {
		case snap.CurrentIndex:
			marker = "*"
		case snap.NextIndex:
			marker = ">"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", marker, i+1, name)
	}
	fmt.Fprintf(tw, "hotkeys\t%s\n", onOff(snap.HotkeysRegistered))
	fmt.Fprintf(tw, "overlay\t%s\n", onOff(snap.OverlayVisible))
	if r := snap.LastResult; r != nil {
		outcome := "ok"
		if r.Error != "" {
			outcome = r.Error
		}
		fmt.Fprintf(tw, "last\t%s: %s\n", r.Action, outcome)
	}
	for _, warning := range snap.Warnings {
		fmt.Fprintf(tw, "warning\t%s\n", warning)
	}
	return tw.Flush()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintln(os.Stderr, "charswitch:", err)
	return 1
}
