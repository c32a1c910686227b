package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"socialgo/internal/api"
	"socialgo/internal/bus"
	"socialgo/internal/config"
	"socialgo/internal/domain"
	"socialgo/internal/engine"
	"socialgo/internal/events"
	"socialgo/internal/logging"
	"socialgo/internal/notifications"
	"socialgo/internal/persistence"
	"socialgo/internal/push"
	"socialgo/internal/transport"
)

// Runtime owns the wired application graph: config, store, sync engine, push
// channel, and the session cache.
type Runtime struct {
	mu sync.RWMutex

	Ctx    context.Context
	cancel context.CancelFunc

	Paths  Paths
	Config config.AppConfig

	LogManager *logging.Manager
	Bus        *bus.PubSubBus
	DB         *sql.DB

	UserRepo         *persistence.UserRepo
	ConversationRepo *persistence.ConversationRepo
	NotificationRepo *persistence.NotificationRepo
	WriterQueue      *persistence.WriterQueue

	Store    *domain.Store
	Resolver *domain.Resolver
	Lists    *domain.ListReconciler

	API        *api.Client
	Applier    *engine.Applier
	Mutations  *engine.MutationManager
	Dispatcher *engine.Dispatcher
	Fetcher    *engine.Fetcher
	Push       *push.Service

	SelfID string

	connStatusMu    sync.RWMutex
	connStatus      events.ConnectionStatus
	connStatusKnown bool
}

// Initialize loads config, wires every component, fetches the session user,
// and starts the background services. mutateConfig, when non-nil, is applied
// to the loaded config before validation (CLI flag overrides).
func Initialize(parent context.Context, mutateConfig func(*config.AppConfig)) (*Runtime, error) {
	paths, err := ResolvePaths()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return nil, err
	}
	if mutateConfig != nil {
		mutateConfig(&cfg)
		cfg.FillMissingDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithCancel(parent)
	rt := &Runtime{
		Ctx:    ctx,
		cancel: cancel,
		Paths:  paths,
		Config: cfg,
	}

	logMgr := logging.NewManager()
	if err := logMgr.Configure(cfg.Logging, paths.LogFile); err != nil {
		_ = logMgr.Close()
		cancel()

		return nil, fmt.Errorf("configure logging: %w", err)
	}
	rt.LogManager = logMgr
	slog.Info("starting socialgo runtime", "api", cfg.Server.APIBaseURL)

	rt.Store = domain.NewStore()
	rt.Resolver = domain.NewResolver(rt.Store, logMgr.Logger("resolver"))
	rt.Lists = domain.NewListReconciler(logMgr.Logger("lists"))

	b := bus.New(logMgr.Logger("bus"))
	rt.Bus = b
	connSub := b.Subscribe(events.TopicConnStatus)
	go rt.captureConnStatus(ctx, connSub)

	if !cfg.Cache.Disabled {
		db, err := persistence.Open(ctx, paths.DBFile)
		if err != nil {
			_ = rt.Close()

			return nil, err
		}
		rt.DB = db
		rt.UserRepo = persistence.NewUserRepo(db)
		rt.ConversationRepo = persistence.NewConversationRepo(db)
		rt.NotificationRepo = persistence.NewNotificationRepo(db)

		// Warm the store from crash remnants; a clean shutdown leaves the
		// cache empty, so this is a no-op on normal starts.
		if err := domain.LoadStoreFromRepositories(ctx, rt.Store, rt.UserRepo, rt.ConversationRepo, rt.NotificationRepo); err != nil {
			_ = rt.Close()

			return nil, err
		}

		writerQueue := persistence.NewWriterQueue(logMgr.Logger("persistence"), 512)
		writerQueue.Start(ctx)
		rt.WriterQueue = writerQueue
		engine.StartCacheProjection(ctx, b, writerQueue, rt.Store, rt.UserRepo, rt.ConversationRepo, rt.NotificationRepo)
	}

	rt.API = api.NewClient(api.Config{
		BaseURL:   cfg.Server.APIBaseURL,
		AuthToken: cfg.Server.AuthToken,
		Timeout:   cfg.RequestTimeout(),
		Logger:    logMgr.Logger("api"),
	})

	selfID, err := rt.fetchSelfID(ctx)
	if err != nil {
		_ = rt.Close()

		return nil, fmt.Errorf("resolve session user: %w", err)
	}
	rt.SelfID = selfID

	rt.Applier = engine.NewApplier(rt.Store, logMgr.Logger("engine.applier"))
	rt.Applier.Start(ctx, b)

	rt.Mutations = engine.NewMutationManager(rt.Store, logMgr.Logger("engine.mutations"))
	rt.Dispatcher = engine.NewDispatcher(rt.Mutations, rt.API, selfID, logMgr.Logger("engine.dispatcher"))
	rt.Fetcher = engine.NewFetcher(rt.Lists, rt.Resolver, rt.Store, rt.API, logMgr.Logger("engine.fetcher"))

	ws := transport.NewWebsocketTransport(cfg.Server.PushURL, cfg.Server.AuthToken)
	rt.Push = push.NewService(logMgr.Logger("push"), b, ws)
	rt.Push.Start(ctx)

	notifier := NewNotificationService(
		b,
		rt.Store,
		rt.CurrentConfig,
		notifications.NewBeeepSender(logMgr.Logger("notifications")),
		logMgr.Logger("app.notifications"),
	)
	notifier.Start(ctx)

	return rt, nil
}

func (r *Runtime) fetchSelfID(ctx context.Context) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, r.Config.RequestTimeout())
	defer cancel()

	raw, err := r.API.FetchEntity(reqCtx, "/me")
	if err != nil {
		return "", err
	}

	return r.Resolver.Resolve(raw, domain.OriginSearch)
}

func (r *Runtime) captureConnStatus(ctx context.Context, sub bus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-sub:
			if !ok {
				return
			}
			status, ok := raw.(events.ConnectionStatus)
			if !ok {
				continue
			}
			r.setConnStatus(status)
		}
	}
}

func (r *Runtime) setConnStatus(status events.ConnectionStatus) {
	r.connStatusMu.Lock()
	defer r.connStatusMu.Unlock()
	r.connStatus = status
	r.connStatusKnown = true
}

func (r *Runtime) CurrentConnStatus() (events.ConnectionStatus, bool) {
	r.connStatusMu.RLock()
	defer r.connStatusMu.RUnlock()

	return r.connStatus, r.connStatusKnown
}

func (r *Runtime) CurrentConfig() config.AppConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.Config
}

// SaveAndApplyConfig persists the new config. Endpoint changes take effect on
// next start; notification toggles apply immediately.
func (r *Runtime) SaveAndApplyConfig(cfg config.AppConfig) error {
	cfg.FillMissingDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(r.Paths.ConfigFile, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	r.mu.Lock()
	r.Config = cfg
	r.mu.Unlock()

	return nil
}

// Logout drops all session state: the in-memory store, list cursors, and the
// on-disk cache.
func (r *Runtime) Logout() error {
	r.Store.Reset()
	r.Lists.ResetAll()
	r.SelfID = ""

	if r.DB != nil {
		if err := persistence.ClearDatabase(r.Ctx, r.DB); err != nil {
			return fmt.Errorf("clear session cache: %w", err)
		}
	}

	return nil
}

func (r *Runtime) Close() error {
	if r.cancel != nil {
		r.cancel()
	}

	var firstErr error
	if r.DB != nil {
		// Session cache must not outlive the session.
		if err := persistence.ClearDatabase(context.Background(), r.DB); err != nil {
			firstErr = err
		}
		if err := r.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.DB = nil
	}
	if r.LogManager != nil {
		if err := r.LogManager.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
