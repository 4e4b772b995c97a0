package cli

import (
	"github.com/duetlog/duet/backend/internal/api"
	cachepkg "github.com/duetlog/duet/backend/internal/cache"
	"github.com/duetlog/duet/backend/internal/config"
	"github.com/duetlog/duet/backend/internal/crypto"
	"github.com/duetlog/duet/backend/internal/db"
	syncpkg "github.com/duetlog/duet/backend/internal/sync"
)

// app holds the wired client core shared by the commands.
type app struct {
	cfg    *config.Config
	db     *db.DB
	queue  *db.QueueStore
	cache  *cachepkg.Manager
	engine *syncpkg.Engine
}

// openApp loads configuration, opens and migrates the local database, and
// wires the sync engine and cache manager.
func openApp(opts *RootOptions) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	initLogging(cfg.LogLevel, opts.Verbose)

	// Config and environment win; the stored token is the fallback.
	if cfg.API.Token == "" {
		if token, err := crypto.NewTokenStore(cfg.DataDir).Load(); err == nil {
			cfg.API.Token = token
		}
	}

	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	if err := db.NewMigrator(database.DB).Up(); err != nil {
		database.Close()
		return nil, err
	}

	queue := db.NewQueueStore(database)

	client := api.NewHTTPClient(api.HTTPClientConfig{
		BaseURL:     cfg.API.BaseURL,
		Token:       cfg.API.Token,
		CallTimeout: cfg.APITimeout(),
	})

	engine := syncpkg.NewEngine(queue, client, syncpkg.EngineConfig{
		UserID:     cfg.UserID,
		MaxRetries: cfg.Sync.MaxRetries,
	})

	cache := cachepkg.NewManager(db.NewCacheStore(database), cachepkg.ManagerConfig{
		Retention: cfg.CacheRetention(),
	})

	return &app{
		cfg:    cfg,
		db:     database,
		queue:  queue,
		cache:  cache,
		engine: engine,
	}, nil
}

func (a *app) Close() {
	a.queue.Close()
	a.db.Close()
}
