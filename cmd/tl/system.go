package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/threadlive/internal/archive"
	"github.com/alfredjeanlab/threadlive/internal/config"
	"github.com/alfredjeanlab/threadlive/internal/eventlog"
	eventsbus "github.com/alfredjeanlab/threadlive/internal/events"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of the threadlive service",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := api.Health(context.Background())
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}

		if jsonOutput {
			if err := printJSON(map[string]string{"status": status}); err != nil {
				return err
			}
		} else {
			fmt.Printf("Health: %s\n", status)
		}

		if status != "ok" {
			return fmt.Errorf("unhealthy: %s", status)
		}
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:     "sweep",
	Short:   "Archive and delete expired events once, using server configuration",
	GroupID: "system",
	// Runs against the database directly, not through a server.
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if maxAge, _ := cmd.Flags().GetDuration("max-age"); maxAge > 0 {
			cfg.Retention.MaxAge = maxAge
		}
		logger := newLogger(cfg)

		st, err := openStore(cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := context.Background()
		log := eventlog.New(st, &eventsbus.NoopPublisher{}, logger)
		sched := archive.NewScheduler(log, archiveDestinations(ctx, cfg, logger), cfg.Retention, logger)
		res, err := sched.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("sweeping: %w", err)
		}
		if jsonOutput {
			return printJSON(res)
		}
		fmt.Printf("Cutoff %s: exported %d, deleted %d\n", res.Cutoff.UTC().Format("2006-01-02 15:04:05"), res.Exported, res.Swept)
		return nil
	},
}

func init() {
	sweepCmd.Flags().Duration("max-age", 0, "override THREADLIVE_RETENTION_MAX_AGE")
}
