package stack

import (
	"context"
	"guapassist-backend/internal/browser/fakebrowser"
	"guapassist-backend/internal/components/chrono"
	"guapassist-backend/internal/components/telemetry"
	"guapassist-backend/internal/session"
	"guapassist-backend/internal/store"
	configlibsql "guapassist-backend/lib/configutil/libsql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	require.Equal(t, 8000, cfg.ListenPort())
	require.Equal(t, "@every 5m", cfg.CleanupCron())
	require.Equal(t, session.Options{}, cfg.SessionOptions())
	require.Equal(t, store.Options{}, cfg.StoreOptions())
}

func TestConfigUnits(t *testing.T) {
	cfg := Config{
		Port:    9000,
		Session: SessionConfig{TimeoutMinutes: 15, LoginsPerMinute: 10, CleanupCron: "@every 1m"},
		Cache:   CacheConfig{FreshMinutes: 5, MemoryEntries: 100},
		Engine:  EngineConfig{NavigationSeconds: 20, ReadySeconds: 4, InvertWeekParity: true},
		Upstream: UpstreamConfig{
			RequestsPerSecond: 1,
			DisableBypass:     true,
		},
	}

	require.Equal(t, 9000, cfg.ListenPort())
	require.Equal(t, "@every 1m", cfg.CleanupCron())
	require.Equal(t, session.Options{Timeout: 15 * time.Minute, LoginsPerMinute: 10}, cfg.SessionOptions())
	require.Equal(t, store.Options{FreshFor: 5 * time.Minute, MemoryEntries: 100}, cfg.StoreOptions())

	engine := cfg.EngineOptions()
	require.Equal(t, 20*time.Second, engine.Timeouts.Navigation)
	require.Equal(t, 4*time.Second, engine.Timeouts.Ready)
	require.True(t, engine.InvertWeekParity)

	upstream := cfg.UpstreamOptions()
	require.Equal(t, 1.0, upstream.RequestsPerSecond)
	require.True(t, upstream.DisableBypass)
}

func TestBuild(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "guap.db")
	cfg := Config{
		Database: configlibsql.Struct{File: path},
		Upstream: UpstreamConfig{DisableBypass: true},
	}
	launcher := fakebrowser.NewLauncher(func() *fakebrowser.Page {
		return fakebrowser.New(fakebrowser.Routes(nil), nil)
	})
	clock := chrono.NewFake(time.Date(2025, time.November, 3, 12, 0, 0, 0, chrono.MSK()))
	ctx := context.Background()

	app, err := Build(ctx, cfg, Options{
		Launcher: launcher,
		Time:     clock,
		Tel:      telemetry.NewRecorder(),
	})
	require.NoError(t, err)

	app.Log.Record(ctx, store.Outcome{Username: "ivanov", Domain: "tasks", Success: true, ItemsCount: 3})
	res := app.Service.CheckSession(ctx, "ivanov")
	require.True(t, res.Success)
	require.Equal(t, session.Stats{}, app.Service.Stats())
	app.Close(ctx)

	// a second build migrates the same file again and sees what was logged
	app, err = Build(ctx, cfg, Options{Launcher: launcher, Time: clock, Tel: telemetry.NewRecorder()})
	require.NoError(t, err)
	defer app.Close(ctx)
	outcomes, err := app.Log.Recent(ctx, "ivanov", 10)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.Equal(t, 3, outcomes[0].ItemsCount)
}
