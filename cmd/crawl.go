package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/artist-crawler/internal/app"
	"github.com/JakeFAU/artist-crawler/internal/dispatcher"
	"github.com/JakeFAU/artist-crawler/internal/printer"
	"github.com/JakeFAU/artist-crawler/internal/report"
)

type crawlOptions struct {
	schedule   string
	reportPath string
	noServer   bool
}

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Claims locations and crawls them",
		Long: `Claims up to crawler.max_claim unclaimed locations and crawls each one
with a pool of workers. With --schedule (a cron expression such as "@hourly" or
"*/30 * * * *") the pass repeats until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.schedule, "schedule", "", "cron schedule; overrides crawler.schedule")
	cmd.Flags().StringVar(&opts.reportPath, "report", "", "write a Markdown run report to this path")
	cmd.Flags().BoolVar(&opts.noServer, "no-server", false, "do not start the ops HTTP server")
	return cmd
}

func runCrawl(cmd *cobra.Command, opts *crawlOptions) error {
	e, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	if err := e.cfg.RequireOracle(); err != nil {
		return err
	}
	ctx := cmd.Context()

	a, err := app.New(ctx, e.cfg, e.logger, app.Overrides{})
	if err != nil {
		return fmt.Errorf("initialize application services: %w", err)
	}
	defer func() {
		if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil {
			e.logger.Warn("failed to close services", zap.Error(cerr))
		}
	}()

	if err := a.Store().Migrate(ctx); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	if e.cfg.Server.Enabled && !opts.noServer {
		go func() {
			if err := a.Serve(ctx); err != nil {
				e.logger.Error("ops server stopped", zap.Error(err))
			}
		}()
	}

	schedule := opts.schedule
	if schedule == "" {
		schedule = e.cfg.Crawler.Schedule
	}
	out := cmd.OutOrStdout()

	runOnce := func() error {
		printer.Step(out, "claiming up to %d locations", e.cfg.Crawler.MaxClaim)
		summary, err := a.RunOnce(ctx)
		printer.Summary(out, summary)
		if rerr := writeReport(opts.reportPath, summary); rerr != nil {
			e.logger.Warn("failed to write report", zap.Error(rerr))
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("run crawl: %w", err)
		}
		return nil
	}

	if schedule == "" {
		return runOnce()
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(schedule, func() {
		if err := runOnce(); err != nil {
			e.logger.Error("scheduled crawl failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("parse schedule %q: %w", schedule, err)
	}
	printer.Step(out, "crawling on schedule %q; interrupt to stop", schedule)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	printer.Success(out, "scheduler stopped")
	return nil
}

func writeReport(path string, summary dispatcher.Summary) error {
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := report.NewWriter(f).Write(summary, time.Now()); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close report: %w", err)
	}
	return nil
}
