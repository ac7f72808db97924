// Package app assembles the services shared by the server and the CLI.
package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"go-autoagent/internal/agent"
	"go-autoagent/internal/auth"
	"go-autoagent/internal/config"
	"go-autoagent/internal/db"
	"go-autoagent/internal/embedding"
	"go-autoagent/internal/gmail"
	"go-autoagent/internal/llm"
	"go-autoagent/internal/logging"
	"go-autoagent/internal/memory"
	"go-autoagent/internal/memory/chromemstore"
	"go-autoagent/internal/memory/qdrantstore"
	"go-autoagent/internal/notify"
	redisdb "go-autoagent/internal/redis"
	"go-autoagent/internal/scheduler"
	"go-autoagent/internal/watcher"
)

// App holds every long-lived service. Gmail, Watcher, Redis and
// Revocations are nil when their dependency is not configured.
type App struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  *redis.Client

	Store     *memory.Store
	Agent     *agent.Agent
	LLM       *llm.Manager
	Gmail     *gmail.Client
	Hub       *notify.Hub
	Notifier  *notify.Dispatcher
	Watcher   *watcher.Watcher
	Scheduler *scheduler.Scheduler

	Auth        *auth.Authenticator
	Revocations *auth.Revocations

	backend  memory.Backend
	embedder memory.Embedder
	log      *slog.Logger
}

// Build connects every service described by cfg. Optional services that
// fail to start are logged and left nil; required ones abort the build.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	a := &App{Config: cfg, log: logging.Component(logger, "app")}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.DB, err = db.Open(cfg, logger, &watcher.AlertRecord{}, &scheduler.JobRecord{})
	if err != nil {
		return nil, err
	}

	var tracker *redisdb.Tracker
	if cfg.Redis.Addr != "" {
		rdb := redisdb.NewClient(cfg)
		if err := rdb.Ping(ctx).Err(); err != nil {
			a.log.Warn("redis unavailable, continuing without it", "addr", cfg.Redis.Addr, "error", err)
			_ = rdb.Close()
		} else {
			a.Redis = rdb
			tracker = redisdb.NewTracker(rdb, "gmail", cfg.Watcher.DedupTTL.Std())
			a.Revocations = auth.NewRevocations(rdb)
		}
	}

	a.embedder, err = embedding.New(ctx, cfg.Embedding)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build embedder", goerr.V("provider", cfg.Embedding.Provider))
	}
	a.backend, err = openBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Store = memory.New(a.backend, a.embedder,
		memory.WithCallTimeout(cfg.Memory.CallTimeout.Std()),
		memory.WithScanPageSize(cfg.Memory.ScanPage),
		memory.WithLogger(logger),
	)

	provider, err := llm.NewProvider(ctx, cfg.LLM)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build llm provider", goerr.V("provider", cfg.LLM.Provider))
	}
	breaker := llm.NewCircuitBreaker(cfg.LLM.Queue.BreakerThreshold, cfg.LLM.Queue.BreakerCooldown.Std(), logger)
	a.LLM = llm.NewManager(llm.ConfigFrom(cfg.LLM), breaker, logger)
	a.Agent = agent.New(a.Store, llm.NewQueued(provider, a.LLM, llm.PriorityCritical), agent.WithLogger(logger))

	a.Gmail, err = gmail.NewFromConfig(ctx, cfg.Gmail, logger)
	if err != nil {
		if errors.Is(err, gmail.ErrNotAuthenticated) {
			a.log.Warn("gmail not authenticated, run `autoagent gmail-auth`", "error", err)
		} else {
			a.log.Warn("gmail unavailable", "error", err)
		}
		a.Gmail, err = nil, nil
	}

	a.Hub = notify.NewHub(logger)
	var sms notify.SMSGateway
	if a.Gmail != nil {
		sms = a.Gmail
	}
	a.Notifier = notify.FromConfig(cfg.Notifications, sms, a.Hub, logger)

	if a.Gmail != nil {
		// Background checks queue behind interactive requests.
		bg := agent.New(a.Store, llm.NewQueued(provider, a.LLM, llm.PriorityBackground), agent.WithLogger(logger))
		opts := []watcher.Option{watcher.WithDB(a.DB), watcher.WithLogger(logger)}
		if tracker != nil {
			opts = append(opts, watcher.WithTracker(tracker))
		}
		a.Watcher, err = watcher.New(cfg.Watcher, a.Gmail, bg, a.Notifier, opts...)
		if err != nil {
			return nil, err
		}
	}

	a.Scheduler = scheduler.New(scheduler.WithDB(a.DB), scheduler.WithLogger(logger))
	if a.Watcher != nil {
		a.Scheduler.Handle(scheduler.EndpointWatcher, func(ctx context.Context) error {
			_, err := a.Watcher.Check(ctx)
			return err
		})
	}
	n, err := a.Scheduler.Load(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 && cfg.Scheduler.Enabled && a.Watcher != nil {
		if _, err := a.Scheduler.AddWatcherInterval(ctx, cfg.Scheduler.WatcherInterval); err != nil {
			return nil, err
		}
	}

	a.Auth = auth.New(cfg.Server.JWTSecret, a.Revocations)
	return a, nil
}

func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (memory.Backend, error) {
	m := cfg.Memory
	if m.Backend == "qdrant" {
		s, err := qdrantstore.New(ctx, qdrantstore.Config{
			URL:        m.Qdrant.URL,
			APIKey:     m.Qdrant.APIKey,
			UseTLS:     m.Qdrant.UseTLS,
			Collection: m.Collection,
			Dimensions: cfg.Embedding.Dimensions,
		}, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	var opts []chromemstore.Option
	if m.Chromem.Path != "" {
		opts = append(opts, chromemstore.WithPersistence(m.Chromem.Path, m.Chromem.Compress))
	}
	s, err := chromemstore.New(m.Collection, cfg.Embedding.Dimensions, opts...)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Close stops background work and releases connections. It tolerates a
// partially built App.
func (a *App) Close() {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.LLM != nil {
		a.LLM.Stop()
	}
	if a.Hub != nil {
		a.Hub.Close()
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.log.Warn("failed to close memory backend", "error", err)
		}
	}
	if c, ok := a.embedder.(*embedding.Cached); ok {
		c.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
