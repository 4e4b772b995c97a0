package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewSyncCommand creates the sync command: a one-shot queue drain.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Drain the offline operation queue once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.engine.SyncPendingOperations(context.Background())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "succeeded: %d\nfailed: %d\n",
				result.SuccessfulOperations, result.FailedOperations)
			for _, description := range result.Errors {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", description)
			}
			if !result.Success {
				return fmt.Errorf("sync finished with %d failed operations", result.FailedOperations)
			}
			return nil
		},
	}
}
