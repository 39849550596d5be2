package main

import (
	"context"
	"flag"
	"guapassist-backend/internal/components/chrono"
	"guapassist-backend/internal/components/telemetry"
	"guapassist-backend/internal/service"
	"guapassist-backend/internal/stack"
	"guapassist-backend/lib/configutil"
	"guapassist-backend/lib/restyutil"
	"guapassist-backend/lib/util/serviceutil"
	"log/slog"
	"time"
)

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	configPath := flag.String("config", "config.json5", "Path to the config file.")
	flag.Parse()

	ctx := serviceutil.SignalContext()
	shutdownTelemetry := InitTelemetry(ctx, *verbose)

	cfg, err := configutil.ReadConfig[stack.Config](*configPath)
	if err != nil {
		serviceutil.Fatal("read config", err)
	}

	tel := telemetry.SlogAPI{}
	opts := stack.Options{
		Tel: tel,
	}
	if *verbose {
		opts.Dump = restyutil.DevOutput
	}
	app, err := stack.Build(ctx, cfg, opts)
	if err != nil {
		serviceutil.Fatal("init service", err)
	}

	cron := chrono.NewStandardCron(tel)
	err = cron.Cron(cfg.CleanupCron(), func() {
		closed := app.Manager.CleanupExpiredSessions(context.Background())
		if closed > 0 {
			slog.Info("closed expired sessions", "count", closed)
		}
	})
	if err != nil {
		serviceutil.Fatal("schedule session cleanup", err)
	}

	server, err := serviceutil.StartHttpServer(
		cfg.ListenPort(),
		service.NewRouter(app.Service, service.HTTPOptions{AccessToken: cfg.AccessToken}),
	)
	if err != nil {
		serviceutil.Fatal("start http server", err)
	}

	<-ctx.Done()
	slog.Info("shutting down")

	serviceutil.ShutdownHttpServer(server, 30*time.Second)
	cron.Stop()

	cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	app.Close(cleanupCtx)
	shutdownTelemetry(cleanupCtx)
}
