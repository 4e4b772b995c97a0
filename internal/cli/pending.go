package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewPendingCommand creates the pending command: the queue badge count.
func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "Print the number of queued operations awaiting sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			count, err := a.engine.PendingOperationCount(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), count)
			return nil
		},
	}
}
