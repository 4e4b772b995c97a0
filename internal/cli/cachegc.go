package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewCacheGCCommand creates the cache-gc command: one-shot snapshot
// eviction past the retention horizon.
func NewCacheGCCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cache-gc",
		Short: "Evict cached snapshots past the retention horizon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			removed, err := a.cache.InvalidateOldCache(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "evicted %d snapshots\n", removed)
			return nil
		},
	}
}
