package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storykeeper/internal/config"
	"storykeeper/internal/pipeline"
	"storykeeper/internal/store"
	"storykeeper/internal/store/postgres"
	"storykeeper/internal/store/sqlite"
)

const configFile = "storykeeper.yaml"

func openStore(ctx context.Context, dsn string) (store.Store, error) {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return sqlite.New(ctx, dsn)
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return postgres.New(ctx, dsn)
	}
	return nil, fmt.Errorf("unsupported store DSN scheme: %s", dsn)
}

// openProject loads the config, opens the store and wires the pipeline.
// Callers own the returned store's lifetime.
func openProject(ctx context.Context) (*pipeline.Pipeline, store.Store, error) {
	cfg, err := config.LoadProjectConfig(configFile)
	if err != nil {
		return nil, nil, err
	}
	st, err := openStore(ctx, cfg.Store.DSN)
	if err != nil {
		return nil, nil, err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		st.Close(ctx)
		return nil, nil, err
	}
	return pipeline.New(cfg, st, time.Now), st, nil
}
