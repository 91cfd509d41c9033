package main

import (
	"context"
	"net"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/winery-catalog/internal/schedule"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run scrape-all on a cron schedule and serve Prometheus metrics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		spec, _ := cmd.Flags().GetString("spec")
		if spec == "" {
			spec = cfg.Schedule.Spec
		}
		runOnStart, _ := cmd.Flags().GetBool("run-now")

		job := func(ctx context.Context) error {
			_, err := env.Pipeline.ScrapeAll(ctx, cfg.Scrape.Workers)
			return err
		}
		runner, err := schedule.New(spec, job)
		if err != nil {
			return err
		}

		ln, err := net.Listen("tcp", cfg.Schedule.MetricsAddr)
		if err != nil {
			return eris.Wrapf(err, "schedule: listen on %s", cfg.Schedule.MetricsAddr)
		}

		zap.L().Info("scheduler starting",
			zap.String("spec", spec),
			zap.String("metrics_addr", ln.Addr().String()),
		)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return schedule.ServeMetrics(gctx, ln, env.Metrics.Handler())
		})
		g.Go(func() error {
			if runOnStart {
				if err := job(gctx); err != nil {
					zap.L().Error("initial scrape-all failed", zap.Error(err))
				}
			}
			return runner.Run(gctx)
		})

		if err := g.Wait(); err != nil && !eris.Is(err, context.Canceled) {
			return err
		}
		zap.L().Info("scheduler stopped")
		return nil
	},
}

func init() {
	scheduleCmd.Flags().String("spec", "", "cron spec with seconds field (default schedule.spec)")
	scheduleCmd.Flags().Bool("run-now", false, "run scrape-all once before waiting for the first tick")
	rootCmd.AddCommand(scheduleCmd)
}
