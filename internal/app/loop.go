package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ggonzalez94/defi-keeper/internal/metrics"
	"github.com/ggonzalez94/defi-keeper/internal/model"
	"github.com/ggonzalez94/defi-keeper/internal/out"
	"github.com/ggonzalez94/defi-keeper/internal/poll"
)

func notifyContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

type cycleFunc func(ctx context.Context, cycle int) (model.CycleReport, error)

type loopOptions struct {
	once     bool
	interval time.Duration
}

// runLoop runs cycle once, or every interval until ctx is cancelled, and
// renders each report to stdout.
func (s *runtimeState) runLoop(ctx context.Context, command string, opts loopOptions, cycle cycleFunc) error {
	if s.settings.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, s.settings.MetricsAddr, s.metrics, s.log); err != nil {
				s.log.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	n := 0
	op := func(ctx context.Context) (model.CycleReport, error) {
		n++
		s.lastCycle = n
		report, err := cycle(ctx, n)
		if err != nil {
			return report, err
		}
		s.log.Info("cycle complete",
			zap.String("loop", report.Loop),
			zap.Int("cycle", n),
			zap.Int("outcomes", len(report.Outcomes)),
			zap.Duration("duration", report.Duration),
		)
		if err := out.Render(s.runner.stdout, out.Success(command, n, report, cycleWarnings(report)), s.settings.OutputMode); err != nil {
			s.log.Warn("render report", zap.Error(err))
		}
		return report, nil
	}
	_, err := poll.Until(ctx, op, func(model.CycleReport) bool { return !opts.once }, opts.interval)
	return err
}

func cycleWarnings(report model.CycleReport) []string {
	if report.Error == "" {
		return nil
	}
	return []string{report.Error}
}
