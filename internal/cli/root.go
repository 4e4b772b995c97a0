// Package cli wires the Duet client core into a command line tool.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/duetlog/duet/backend/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

// NewRootCommand creates the root command for the Duet CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "duet",
		Short: "Duet offline-first client core",
		Long: `Duet client core: a durable offline operation queue, a sync engine,
an offline snapshot cache, and a real-time sync client.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", defaultConfigPath(), "path to config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewPendingCommand(opts))
	cmd.AddCommand(NewCacheGCCommand(opts))
	cmd.AddCommand(NewDeadletterCommand(opts))
	cmd.AddCommand(NewLoginCommand(opts))
	cmd.AddCommand(NewLogoutCommand(opts))

	return cmd
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "duet.yaml"
	}
	return home + "/.duet/config.yaml"
}

func initLogging(level string, verbose bool) {
	if verbose {
		level = "debug"
	}
	logging.Init(os.Stderr, level)
}
