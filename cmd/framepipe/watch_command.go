package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"

	"github.com/arloliu/framepipe"
	"github.com/arloliu/framepipe/sink"
	"github.com/arloliu/framepipe/types"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var (
		once   bool
		follow bool
	)

	cmd := &cobra.Command{
		Use:   "watch [session-id]",
		Short: "Stream live progress fields from the progress bucket",
		Long: "Print progress field updates as they are published. With a session ID the " +
			"command exits once the session reaches a terminal status unless --follow is set.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			defer ctx.close()

			var sessionID string
			if len(args) == 1 {
				sessionID = args[0]
			}

			cfg, _ := ctx.ensureConfig()
			js, err := ctx.jetStream(runCtx)
			if err != nil {
				return err
			}

			progress, err := sink.OpenKV(runCtx, js, cfg.ProgressSettings())
			if err != nil {
				return err
			}

			if once {
				if sessionID == "" {
					return fmt.Errorf("%w: --once requires a session ID", framepipe.ErrInvalidConfig)
				}
				fields, err := progress.Fields(runCtx, sessionID)
				if err != nil {
					return err
				}
				if len(fields) == 0 {
					return fmt.Errorf("%w: %s", framepipe.ErrSessionNotFound, sessionID)
				}

				return printFields(cmd.OutOrStdout(), sessionID, fields)
			}

			watcher, err := progress.Watch(runCtx, sessionID)
			if err != nil {
				return err
			}
			defer func() { _ = watcher.Stop() }()

			return streamProgress(runCtx, watcher, cmd.OutOrStdout(), sessionID != "" && !follow)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Print the current fields of a session and exit")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep watching after the session finishes")

	return cmd
}

// streamProgress prints each field update until ctx ends, or until a terminal
// status arrives when stopOnFinish is set.
func streamProgress(ctx context.Context, watcher jetstream.KeyWatcher, w io.Writer, stopOnFinish bool) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case entry, ok := <-watcher.Updates():
			if !ok {
				return nil
			}
			// nil marks the end of the initial values.
			if entry == nil {
				continue
			}
			if entry.Operation() != jetstream.KeyValuePut {
				continue
			}

			id, field, valid := sink.ParseKey(entry.Key())
			if !valid {
				continue
			}
			value := string(entry.Value())
			fmt.Fprintf(w, "%s %-14s %s\n", id, field, value)

			if stopOnFinish && field == types.FieldStatus && isTerminalStatus(value) {
				return nil
			}
		}
	}
}

func isTerminalStatus(status string) bool {
	switch status {
	case types.SessionCompleted.String(), types.SessionFailed.String(), types.SessionAborted.String():
		return true
	default:
		return false
	}
}

func printFields(w io.Writer, sessionID string, fields map[string]string) error {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		if _, err := fmt.Fprintf(w, "%s %-14s %s\n", sessionID, name, fields[name]); err != nil {
			return err
		}
	}

	return nil
}
