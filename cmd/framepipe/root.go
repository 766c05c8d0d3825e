package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	ctx := newCommandContext(flags)

	rootCmd := &cobra.Command{
		Use:           "framepipe",
		Short:         "Distributed per-unit processing with ordered reassembly",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}
			_, err := ctx.ensureLogger(cmd.ErrOrStderr())

			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "", "Configuration file path (YAML)")
	pf.StringVar(&flags.natsURL, "nats-url", "", "NATS server URL (default $NATS_URL or nats://127.0.0.1:4222)")
	pf.BoolVar(&flags.embedded, "embedded", false, "Start an in-process NATS server with JetStream")
	pf.StringVar(&flags.embeddedDir, "embedded-dir", "", "JetStream storage directory for --embedded (default: temporary)")
	pf.StringVar(&flags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.BoolVar(&flags.logJSON, "log-json", false, "Emit JSON logs")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newWorkerCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newWorkersCommand(ctx))

	return rootCmd
}
