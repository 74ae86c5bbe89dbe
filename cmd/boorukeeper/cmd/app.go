package cmd

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/solatis/boorukeeper/internal/core/api"
	"github.com/solatis/boorukeeper/internal/core/db"
	"github.com/solatis/boorukeeper/internal/core/store"
	"github.com/solatis/boorukeeper/internal/fetch"
	"github.com/solatis/boorukeeper/internal/site"
	"github.com/solatis/boorukeeper/internal/tagsearch"
)

// app is everything a command needs to talk to backends.
type app struct {
	registry *site.Registry
	fetcher  *fetch.CachingFetcher
	memo     *tagsearch.Memo
	database *sqlx.DB
	store    *store.Store
	service  *api.BoardService
}

// loadRegistry compiles the built-in backends plus the configured directory.
func loadRegistry() (*site.Registry, error) {
	reg, err := site.NewRegistry()
	if err != nil {
		return nil, err
	}
	if cfg.Backends.Dir != "" {
		if err := reg.LoadDir(cfg.Backends.Dir); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// newApp wires registry, fetcher, memo and, when a database is
// configured, the store. The store requires migrations to be applied.
func newApp(ctx context.Context) (*app, error) {
	rt := &app{}
	var err error

	if rt.registry, err = loadRegistry(); err != nil {
		return nil, fmt.Errorf("failed to load backends: %w", err)
	}

	httpFetcher, err := fetch.NewHTTPFetcher(cfg.HTTP.UserAgent, cfg.HTTP.Timeout, logger)
	if err != nil {
		return nil, err
	}
	if rt.fetcher, err = fetch.NewCachingFetcher(httpFetcher, cfg.HTTP.CacheEntries, cfg.HTTP.CacheTTL); err != nil {
		return nil, err
	}
	if rt.memo, err = tagsearch.NewMemo(cfg.TagSearch.MemoEntries, cfg.TagSearch.MemoTTL); err != nil {
		rt.Close()
		return nil, err
	}

	var archive api.Archive
	if cfg.Database.URL != "" {
		if rt.database, err = db.Open(ctx, cfg.Database.URL); err != nil {
			rt.Close()
			return nil, err
		}
		if err := requireMigrated(ctx, rt.database); err != nil {
			rt.Close()
			return nil, err
		}
		if rt.store, err = store.New(rt.database, logger); err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to load queries: %w", err)
		}
		archive = rt.store
	}

	if rt.service, err = api.NewBoardService(rt.registry, rt.fetcher, rt.memo, archive, cfg, logger); err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return rt, nil
}

// requireMigrated fails when migrations are pending.
func requireMigrated(ctx context.Context, database *sqlx.DB) error {
	statuses, err := db.MigrateStatus(ctx, database)
	if err != nil {
		return fmt.Errorf("failed to check migrations: %w", err)
	}
	for _, s := range statuses {
		if !s.Applied {
			return fmt.Errorf("migration %s not applied - run 'boorukeeper migrate' first", s.ID)
		}
	}
	return nil
}

// Close releases caches and the database.
func (rt *app) Close() {
	if rt.memo != nil {
		rt.memo.Close()
	}
	if rt.fetcher != nil {
		rt.fetcher.Close()
	}
	if rt.database != nil {
		rt.database.Close()
	}
}
