package app

import (
	"context"
	"fmt"

	"github.com/datallboy/optolib/internal/auth"
	"github.com/datallboy/optolib/internal/catalog"
	"github.com/datallboy/optolib/internal/catalog/pg"
	"github.com/datallboy/optolib/internal/catalog/postgrest"
	"github.com/datallboy/optolib/internal/engine"
	"github.com/datallboy/optolib/internal/infra/config"
	"github.com/datallboy/optolib/internal/infra/logger"
	"github.com/datallboy/optolib/internal/library"
	"github.com/datallboy/optolib/internal/reader"
	"github.com/datallboy/optolib/internal/store"
)

// Context holds the core environment and shared resources for optolib.
// It is built once at startup and closed once at exit.
type Context struct {
	Config *config.Config
	Logger *logger.Logger

	Store   *store.PersistentStore
	Library *library.Library
	Engine  *engine.Engine
	Jobs    *engine.JobManager
	Catalog *catalog.Feeds
	Reader  *reader.Reader

	// Auth is nil when no auth endpoint is configured
	Auth *auth.Provider

	closers []func()
}

// New wires every component. On error, whatever was already opened is closed.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *Context, err error) {
	a := &Context{Config: cfg, Logger: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.Store, err = store.NewPersistentStore(cfg.Store.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	a.onClose(func() { a.Store.Close() })

	a.Library, err = library.Open(ctx, cfg.Download.LibraryDir, a.Store, log.Component("library"))
	if err != nil {
		return nil, err
	}

	a.Engine = engine.New(a.Library, log.Component("engine"), engine.OptionsFromConfig(cfg.Download))
	a.onClose(a.Engine.Close)
	a.Jobs = engine.NewJobManager(a.Engine, a.Library)

	gw, err := a.buildGateway(ctx)
	if err != nil {
		return nil, err
	}
	a.Catalog = catalog.NewFeeds(catalog.NewService(gw, log.Component("catalog")))

	a.Reader = reader.New(a.Store, a.Library, log.Component("reader"))

	if cfg.Auth.BaseURL != "" {
		var cache *auth.CredentialCache
		if cfg.Auth.Secret != "" {
			cache, err = auth.NewCredentialCache(a.Store, cfg.Auth.Secret)
			if err != nil {
				return nil, err
			}
		} else {
			log.Warn("auth.secret is empty, signed-in sessions will not be remembered")
		}
		a.Auth = auth.NewProvider(cfg.Auth.BaseURL, cfg.Auth.AnonKey, cache, log.Component("auth"))
		a.onClose(a.Auth.Close)
	}

	return a, nil
}

func (a *Context) buildGateway(ctx context.Context) (catalog.Gateway, error) {
	var gw catalog.Gateway

	switch a.Config.Catalog.Backend {
	case config.BackendPostgres:
		pgw, err := pg.New(ctx, a.Config.Catalog.DSN)
		if err != nil {
			return nil, err
		}
		a.onClose(pgw.Close)
		gw = pgw
	default:
		gw = postgrest.New(a.Config.Catalog.BaseURL, a.Config.Catalog.AnonKey)
	}

	if a.Config.Catalog.CacheDir == "" {
		return gw, nil
	}
	cache := &catalog.FileCache{Dir: a.Config.Catalog.CacheDir}
	return catalog.NewCachedGateway(gw, cache, a.Logger.Component("catalog")), nil
}

func (a *Context) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *Context) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
