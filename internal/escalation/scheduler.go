package escalation

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler drives the engine on a fixed interval, decoupled from any HTTP
// request lifecycle. It runs one pass immediately on Start, then once per
// interval. Overlapping ticks are skipped, never run concurrently, so a
// slow pass cannot double-process the same signal within a tick.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
	cron     *cron.Cron
	job      cron.Job
	cancel   context.CancelFunc
}

// NewScheduler creates a scheduler for the engine. A non-positive interval
// falls back to 5 minutes.
func NewScheduler(engine *Engine, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		engine:   engine,
		interval: interval,
	}
}

// Start launches the scheduler. The ctx bounds all passes; cancelling it
// makes in-flight passes wind down cleanly.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	logger := &cronLogger{log: slog.Default()}
	s.job = cron.NewChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(skipLogger{logger}),
	).Then(cron.FuncJob(func() {
		s.runPass(ctx)
	}))

	s.cron = cron.New(cron.WithLogger(logger))
	s.cron.Schedule(cron.Every(s.interval), s.job)
	s.cron.Start()

	slog.Info("escalation scheduler started", "interval", s.interval)

	// First pass goes through the same chained job, so a long startup pass
	// also suppresses the first scheduled tick instead of overlapping it.
	go s.job.Run()
}

// Stop halts scheduling and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	stopCtx := s.cron.Stop()
	if s.cancel != nil {
		s.cancel()
	}
	<-stopCtx.Done()
	slog.Info("escalation scheduler stopped")
}

func (s *Scheduler) runPass(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.engine.RunPass(ctx); err != nil {
		// Transient repository failures are retried naturally at the next
		// tick; nothing to do here beyond logging.
		slog.Error("scheduled escalation pass failed", "error", err)
	}
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	log *slog.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}

// skipLogger counts skipped ticks in addition to logging them.
type skipLogger struct {
	*cronLogger
}

func (l skipLogger) Info(msg string, keysAndValues ...interface{}) {
	recordTickSkipped()
	l.cronLogger.Info(msg, keysAndValues...)
}
