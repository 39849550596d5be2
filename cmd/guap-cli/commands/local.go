package commands

import (
	"context"
	"errors"
	"guapassist-backend/internal/stack"
	"guapassist-backend/lib/configutil"
	"guapassist-backend/lib/restyutil"
	"log/slog"
	"os"
)

// localStack runs everything in process, a missing config means defaults.
func localStack(ctx context.Context) (*stack.Stack, error) {
	cfg, err := configutil.ReadConfig[stack.Config](configPath)
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("no config found, using defaults", "path", configPath)
		err = nil
	}
	if err != nil {
		return nil, err
	}

	opts := stack.Options{}
	if verbose {
		opts.Dump = restyutil.DevOutput
	}
	return stack.Build(ctx, cfg, opts)
}
