package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Runner is a long-lived background loop.
type Runner interface {
	Run(ctx context.Context) error
}

// Orchestrator runs the background side of the bot: the calendar scanner,
// the market feed and the archive cron. Any of them may be nil.
type Orchestrator struct {
	scanner     *Scanner
	feed        Runner
	archiver    *Archiver
	archiveCron string
	logger      *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(scanner *Scanner, feed Runner, archiver *Archiver, archiveCron string, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		scanner:     scanner,
		feed:        feed,
		archiver:    archiver,
		archiveCron: archiveCron,
		logger:      logger.With(slog.String("component", "orchestrator")),
	}
}

// Run starts every configured loop and blocks until ctx is cancelled or one
// of them fails, which cancels the rest.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if o.scanner != nil {
		g.Go(func() error { return o.guard(ctx, "scanner", o.scanner.RunLoop(ctx)) })
	}
	if o.feed != nil {
		g.Go(func() error { return o.guard(ctx, "market feed", o.feed.Run(ctx)) })
	}
	if o.archiver != nil && o.archiveCron != "" {
		g.Go(func() error {
			return o.guard(ctx, "archiver", o.archiver.RunCron(ctx, o.archiveCron))
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline stopped cleanly")
	return nil
}

// guard turns a loop's exit into the errgroup result: cancellation is a
// clean shutdown.
func (o *Orchestrator) guard(ctx context.Context, name string, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	if err == nil {
		o.logger.Info("loop exited", slog.String("loop", name))
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}
