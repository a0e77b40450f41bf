// Package plausch wires the chat session synchronization core: the
// in-memory session store, the reconciliation controller, the streaming
// model client and the Postgres-backed remote store. The package is a
// library; the UI layer embedding it owns process lifecycle and
// rendering.
package plausch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmwagner/plausch/internal/config"
	"github.com/jmwagner/plausch/internal/controller"
	"github.com/jmwagner/plausch/internal/repository"
	"github.com/jmwagner/plausch/internal/service"
	"github.com/jmwagner/plausch/internal/share"
	"github.com/jmwagner/plausch/internal/store"
	"github.com/jmwagner/plausch/internal/title"
)

// Core is the constructed-once dependency bundle. Build it at session
// start and inject it wherever chat state is needed; there are no
// package-level singletons.
type Core struct {
	Store      *store.Store
	Controller *controller.Controller

	pool *pgxpool.Pool
}

// New loads configuration from the environment, connects to the
// database, applies migrations and assembles the core.
func New(ctx context.Context) (*Core, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	migrationsFS, err := fs.Sub(MigrationsFS, "migrations")
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("load embedded migrations: %w", err)
	}
	if err := repository.RunMigrations(cfg.DatabaseURL, migrationsFS); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	openRouter := service.NewOpenRouterService(cfg.OpenRouterKey, cfg.Model)

	var pages title.PageTitler
	if cfg.FetchPageTitles {
		pages = service.NewPageTitleService()
	}

	st := store.New()
	ctrl := controller.New(controller.Deps{
		Cfg:    cfg,
		Store:  st,
		Repo:   repository.NewSessionRepository(pool),
		LLM:    openRouter,
		Titles: title.New(openRouter, pages),
		Clip:   share.SystemClipboard{},
	})

	slog.Info("chat core initialized", "model", cfg.Model)

	return &Core{Store: st, Controller: ctrl, pool: pool}, nil
}

// Close waits for background work and releases the database pool.
func (c *Core) Close() {
	c.Controller.Wait()
	c.pool.Close()
}
