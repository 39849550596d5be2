// Package stack assembles the extraction service out of its configuration,
// it is shared by the server and the cli running locally.
package stack

import (
	"context"
	"database/sql"
	"guapassist-backend/internal/browser"
	"guapassist-backend/internal/components/chrono"
	"guapassist-backend/internal/components/telemetry"
	"guapassist-backend/internal/scrapers/guap"
	"guapassist-backend/internal/service"
	"guapassist-backend/internal/session"
	"guapassist-backend/internal/store"
	"guapassist-backend/internal/store/db"
	"guapassist-backend/internal/upstream"
	"guapassist-backend/lib/restyutil"
	"guapassist-backend/pkg/migrations"
	"log/slog"
)

const DefaultDatabaseFile = ".dev/guap.db"

type Options struct {
	// Launcher replaces the chrome launcher built from the config.
	Launcher browser.Launcher
	Time     chrono.TimeAPI
	Tel      telemetry.API
	// Dump returns where the http exchanges of the named client are
	// dumped, nil disables dumping.
	Dump func(name string) restyutil.InstrumentOutput
}

type Stack struct {
	Service *service.Service
	Manager *session.Manager
	Engine  *guap.Engine
	Store   *store.Store
	Log     *store.OutcomeLog

	database *sql.DB
}

// Build opens and migrates the database and wires everything on top of it.
func Build(ctx context.Context, cfg Config, opts Options) (*Stack, error) {
	if opts.Time == nil {
		opts.Time = chrono.NewStandardTime()
	}
	if opts.Tel == nil {
		opts.Tel = telemetry.SlogAPI{}
	}
	if opts.Launcher == nil {
		// browsers are closed by Close, they must not die with ctx
		opts.Launcher = browser.NewChromeLauncher(context.Background(), cfg.Browser, opts.Tel)
	}
	if cfg.Database.File == "" && !cfg.Database.Remote() {
		cfg.Database.File = DefaultDatabaseFile
	}

	database, err := cfg.Database.OpenDB()
	if err != nil {
		return nil, err
	}
	err = migrations.Migrate(ctx, database, db.Schema)
	if err != nil {
		database.Close()
		return nil, err
	}

	manager := session.NewManager(
		opts.Launcher,
		guap.NewAuthStrategy(opts.Tel),
		opts.Time,
		opts.Tel,
		cfg.SessionOptions(),
	)
	engine := guap.NewEngine(manager, opts.Tel, cfg.EngineOptions())
	cache := store.NewStore(database, opts.Time, opts.Tel, cfg.StoreOptions())
	log := store.NewOutcomeLog(database, opts.Time, opts.Tel)

	upstreamOpts := cfg.UpstreamOptions()
	if opts.Dump != nil {
		upstreamOpts.Dump = opts.Dump("upstream")
	}
	prober := upstream.NewProber(opts.Time, opts.Tel, upstreamOpts)

	return &Stack{
		Service: service.NewService(
			engine,
			manager,
			cache,
			log,
			prober,
			opts.Time,
			opts.Tel,
			service.Options{InvertWeekParity: cfg.Engine.InvertWeekParity},
		),
		Manager:  manager,
		Engine:   engine,
		Store:    cache,
		Log:      log,
		database: database,
	}, nil
}

// Close signs every session out and closes the database.
func (s *Stack) Close(ctx context.Context) {
	s.Manager.CleanupAllSessions(ctx)
	err := s.database.Close()
	if err != nil {
		slog.Warn("failed to close database", "err", err)
	}
}
