package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewDeadletterCommand creates the deadletter command: inspect and purge
// operations that exhausted their retries.
func NewDeadletterCommand(rootOpts *RootOptions) *cobra.Command {
	var purgeOlderThan time.Duration

	cmd := &cobra.Command{
		Use:   "deadletter",
		Short: "List permanently failed operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := context.Background()

			if purgeOlderThan > 0 {
				cutoff := time.Now().Add(-purgeOlderThan)
				removed, err := a.queue.PurgeDeadBefore(ctx, cutoff)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %d dead operations\n", removed)
				return nil
			}

			dead, err := a.queue.ListDead(ctx, a.cfg.UserID)
			if err != nil {
				return err
			}
			if len(dead) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no dead operations")
				return nil
			}

			for _, op := range dead {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-24s retries=%d  %s\n    %s\n",
					op.ID, op.Type, op.RetryCount,
					op.CreatedAtTime().Format(time.RFC3339), op.LastError)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&purgeOlderThan, "purge-older-than", 0,
		"purge dead operations older than this duration instead of listing")

	return cmd
}
