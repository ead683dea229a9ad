package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Run a single dispatch cycle and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := bootstrap(ctx, bootOptions{messaging: true})
		if err != nil {
			return err
		}
		defer a.close()

		report, err := a.orch.RunCycle(ctx)
		if err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{
			"delivered": report.Delivered,
			"failed":    report.Failed,
			"deferred":  report.Deferred,
			"stop":      report.StopReason,
		}).Infof("[DISPATCH] Cycle finished in %s", report.FinishedAt.Sub(report.StartedAt).Round(time.Second))
		return nil
	},
}

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Mark stale Sent leads as Cold and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := bootstrap(ctx, bootOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		_, err = a.reaper.Run(ctx)
		return err
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the lead and settings tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := bootstrap(context.Background(), bootOptions{})
		if err != nil {
			return err
		}
		defer a.close()
		logrus.WithField("driver", a.cfg.Database.Driver).Info("[MIGRATION] Schema is up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dispatchCmd, reapCmd, migrateCmd)
}
