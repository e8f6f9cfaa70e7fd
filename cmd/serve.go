package main

import (
	"context"
	"fmt"
	"net"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/rankwatch/internal/models"
	"github.com/desertthunder/rankwatch/internal/schedule"
	"github.com/desertthunder/rankwatch/internal/server"
	"github.com/desertthunder/rankwatch/internal/shared"
	"github.com/desertthunder/rankwatch/internal/tasks"
)

// Serve runs the dashboard API and, when enabled, the scheduled trigger until interrupted.
//
// Both share one engine, so a scheduled run and a streamed run never overlap.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.rankingEngine()
	if err != nil {
		return err
	}
	journal, err := r.journal()
	if err != nil {
		return err
	}

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}

	api := server.NewAPI(server.APIOpts{
		Engine:        engine,
		Tasks:         r.taskStore(),
		Runs:          journal,
		HistoryDir:    r.config.Storage.DataDir,
		ScreenshotDir: r.config.Screenshot.Dir,
		Logger:        shared.WithLogger(r.logger, "component", "http"),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx, addr, api, r.logger)
	})

	if r.config.Schedule.Enabled && !cmd.Bool("no-schedule") {
		sched, err := r.scheduler(engine)
		if err != nil {
			return err
		}
		r.logger.Info("scheduled runs enabled", "cron", sched.Spec(), "next", sched.NextRun())
		g.Go(func() error { return sched.Run(gctx) })
	}

	if cmd.Bool("open") {
		url := dashboardURL(addr)
		if err := shared.OpenDashboard(url); err != nil {
			r.logger.Warn("failed to open dashboard", "url", url, "error", err)
		}
	}

	return g.Wait()
}

// scheduler wraps a headless run over every task in the configured cron trigger.
func (r *Runner) scheduler(engine server.Engine) (*schedule.Scheduler, error) {
	spec := r.config.Schedule.Cron
	if spec == "" {
		spec = schedule.DefaultSpec
	}
	job := func(ctx context.Context) error {
		_, err := engine.Run(ctx, tasks.RunRequest{Selection: tasks.Selection{All: true}, Mode: models.ModeScheduled}, nil)
		return err
	}
	return schedule.New(spec, job, shared.WithLogger(r.logger, "component", "schedule"))
}

// dashboardURL maps a listen address onto a URL a local browser can open.
func dashboardURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr + "/"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s/", net.JoinHostPort(host, port))
}
