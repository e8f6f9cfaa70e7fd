// Package schedule triggers headless ranking runs on a cron expression.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"

	"github.com/desertthunder/rankwatch/internal/shared"
)

// DefaultSpec runs once a day at 09:00 local time.
const DefaultSpec = "0 9 * * *"

// Job is the work fired on each tick.
type Job func(ctx context.Context) error

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron parses a five-field cron expression or a descriptor such as @daily.
func ParseCron(expr string) (cron.Schedule, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: cron %q: %v", shared.ErrInvalidConfig, expr, err)
	}
	return sched, nil
}

// Scheduler fires a [Job] on a cron schedule. A tick that arrives while the previous job is still running is
// skipped.
type Scheduler struct {
	spec   string
	sched  cron.Schedule
	job    Job
	logger *log.Logger
	now    func() time.Time
}

// New validates spec and returns a stopped scheduler.
func New(spec string, job Job, logger *log.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	sched, err := ParseCron(spec)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{spec: spec, sched: sched, job: job, logger: logger, now: time.Now}, nil
}

// Spec returns the cron expression in use.
func (s *Scheduler) Spec() string { return s.spec }

// NextRun returns the next fire time after now.
func (s *Scheduler) NextRun() time.Time {
	return s.sched.Next(s.now())
}

// Run fires the job until ctx ends, then waits for a running job to return.
func (s *Scheduler) Run(ctx context.Context) error {
	clog := cronLogger{s.logger}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	c.Schedule(s.sched, cron.FuncJob(func() { s.fire(ctx) }))

	s.logger.Info("scheduler started", "spec", s.spec, "next", s.NextRun().Format(time.DateTime))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) fire(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := s.now()
	err := s.job(ctx)
	switch {
	case errors.Is(err, shared.ErrRunInProgress):
		s.logger.Warn("scheduled run skipped", "reason", err)
	case err != nil:
		s.logger.Error("scheduled run failed", "error", err, "took", s.now().Sub(start))
	default:
		s.logger.Info("scheduled run finished", "took", s.now().Sub(start), "next", s.NextRun().Format(time.DateTime))
	}
}

// cronLogger adapts a charm logger to [cron.Logger].
type cronLogger struct {
	l *log.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
