package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/duetlog/duet/backend/internal/logging"
	"github.com/duetlog/duet/backend/internal/realtime"
	"github.com/duetlog/duet/backend/internal/sync/scheduler"
)

// NewRunCommand creates the run command: the long-lived client daemon.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the client core until interrupted",
		Long: `Run the client core: connect to the push service, probe connectivity,
and drain the offline queue in the background until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(rootOpts)
		},
	}
}

func runDaemon(opts *RootOptions) error {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(a.engine, a.cache, scheduler.Config{
		ProbeInterval: a.cfg.ProbeInterval(),
		DrainInterval: a.cfg.DrainInterval(),
	})
	sched.Start(ctx)
	defer sched.Stop()

	rt := realtime.NewClient(realtime.ClientConfig{URL: a.cfg.Realtime.URL})
	defer rt.Close()

	// A restored push connection is a strong online signal; drain right away.
	rt.OnConnectionStatusChanged(func(connected bool) {
		if connected {
			go sched.TriggerDrain(ctx)
		}
	})

	if err := rt.Connect(ctx, a.cfg.UserID, a.cfg.API.Token); err != nil {
		// The queue still works offline; push delivery resumes on the next
		// manual reconnect.
		logging.Error("push connection failed, continuing offline", err, nil)
	}

	logging.Info("duet client core running", logging.Fields{
		"user_id":  a.cfg.UserID,
		"data_dir": a.cfg.DataDir,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logging.Info("shutting down", nil)
	return nil
}
