package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"rentgate/internal/audit"
	"rentgate/internal/auth"
	"rentgate/internal/cache"
	"rentgate/internal/config"
	"rentgate/internal/directory"
	"rentgate/internal/observability"
	"rentgate/internal/store"
	"rentgate/internal/subscription"
	"rentgate/internal/webapi"
)

type App struct {
	Config   config.Config
	Store    *store.Store
	Cache    *cache.Cache
	Handler  *webapi.Handler
	Logger   *log.Logger
}

func New(ctx context.Context, cfg config.Config, logger *log.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}

	st, err := store.Open(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := st.WaitReady(ctx, 30*time.Second); err != nil {
		_ = st.Close()
		return nil, err
	}
	if err := store.Migrate(ctx, st.DB()); err != nil {
		_ = st.Close()
		return nil, err
	}

	var keyedCache *cache.Cache
	if cfg.Redis.URL != "" {
		keyedCache, err = cache.New(cfg.Redis.URL, cfg.Cache.UserTTL, logger)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	verifier := auth.NewVerifier(cfg)
	var userCache directory.UserCache
	var revocations webapi.RevocationList
	if keyedCache != nil {
		userCache = keyedCache
		revocations = keyedCache
	}
	resolver := directory.NewResolver(st, userCache)
	evaluator := subscription.NewEvaluator(st, logger)
	admin := subscription.NewManager(st, cfg.Subscription.TrialDays)
	sink := audit.NewSink(st, logger)
	observer := observability.NewDecisionObserver(logger)

	handler := webapi.NewHandler(cfg, st, verifier, resolver, evaluator, admin, sink, observer, revocations, logger)

	return &App{
		Config:  cfg,
		Store:   st,
		Cache:   keyedCache,
		Handler: handler,
		Logger:  logger,
	}, nil
}

func (a *App) Close() error {
	var err error
	if a.Store != nil {
		err = a.Store.Close()
	}
	if a.Cache != nil {
		_ = a.Cache.Close()
	}
	return err
}

func (a *App) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.Store.Ping(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		if a.Cache != nil {
			if err := a.Cache.Ping(r.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	mux.Handle("/metrics", observability.MetricsHandler())
	a.Handler.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              a.Config.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	return srv.ListenAndServe()
}
