package main

import (
	"context"
	"guapassist-backend/lib/telemetry"
	"guapassist-backend/lib/util/serviceutil"
	"log/slog"
	"time"
)

// InitTelemetry installs the global slog handler and otel providers, it
// returns the shutdown hook of the providers.
func InitTelemetry(ctx context.Context, verbose bool) func(ctx context.Context) {
	telemetry.InitSlog(verbose)

	if verbose {
		slog.DebugContext(ctx, "verbose logging enabled")
	}

	tel, err := telemetry.SetupFromEnv(ctx, "guap-server")
	if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	}
	telemetry.InstrumentPerfStats(ctx, 15*time.Second)

	return func(ctx context.Context) {
		err := tel.Shutdown(ctx)
		if err != nil {
			slog.Warn("failed to shutdown telemetry", "err", err)
		}
	}
}
