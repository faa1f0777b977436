package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriys/letletme/internal/api"
	"github.com/oriys/letletme/internal/cache"
	"github.com/oriys/letletme/internal/circuitbreaker"
	"github.com/oriys/letletme/internal/config"
	"github.com/oriys/letletme/internal/logging"
	"github.com/oriys/letletme/internal/metrics"
	"github.com/oriys/letletme/internal/observability"
	"github.com/oriys/letletme/internal/service"
	"github.com/oriys/letletme/internal/store"
)

// cacheBackend is a response cache the server can health-check and close.
type cacheBackend interface {
	cache.Store
	Ping(ctx context.Context) error
	Close() error
}

func serveCmd() *cobra.Command {
	var (
		listenAddr string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.Server.Addr = listenAddr
			}
			if logLevel != "" {
				cfg.Server.LogLevel = logLevel
			}

			logging.InitStructured(cfg.Server.LogFormat, cfg.Server.LogLevel)
			if cfg.Server.AccessLog != "" {
				if err := logging.Default().SetOutput(cfg.Server.AccessLog); err != nil {
					return fmt.Errorf("open access log: %w", err)
				}
				defer logging.Default().Close()
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cacheBackendName := "redis"
			if cfg.CacheRedis.Addr == config.MemoryCacheAddr {
				cacheBackendName = "memory"
			}
			if err := observability.Init(ctx, observability.Config{
				Enabled:      cfg.Tracing.Enabled,
				Exporter:     cfg.Tracing.Exporter,
				Endpoint:     cfg.Tracing.Endpoint,
				ServiceName:  "letletme",
				SampleRate:   cfg.Tracing.SampleRate,
				CacheBackend: cacheBackendName,
				Season:       cfg.Season,
			}); err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer observability.Shutdown(context.Background())

			metrics.InitPrometheus(cfg.Metrics.Namespace, nil)

			data, err := store.NewDataStore(ctx, cfg.DataRedis.Addr, cfg.DataRedis.Password, cfg.DataRedis.DB)
			if err != nil {
				return err
			}
			defer data.Close()

			policy := cache.NewPolicy(time.Duration(cfg.Cache.DefaultTTL)*time.Second, cfg.TTLOverrides())

			var (
				cacheStore cacheBackend
				hashStore  *cache.HashStore
			)
			if cfg.CacheRedis.Addr == config.MemoryCacheAddr {
				logging.Op().Warn("using in-process response cache; entries are not shared between instances")
				cacheStore = cache.NewMemoryStore(policy)
			} else {
				hashStore = cache.NewHashStore(cache.RedisConfig{
					Addr:     cfg.CacheRedis.Addr,
					Password: cfg.CacheRedis.Password,
					DB:       cfg.CacheRedis.DB,
				}, policy)
				if err := hashStore.Ping(ctx); err != nil {
					// The cache is best-effort; serve uncached rather than refuse to start.
					logging.Op().Warn("cache redis unreachable, serving uncached until it recovers", "addr", cfg.CacheRedis.Addr, "error", err)
				}
				cacheStore = hashStore
				if b := cfg.Cache.Breaker; b.Enabled {
					cacheStore = cache.NewGuardedStore(hashStore, newCacheBreaker(b))
				}
			}
			defer cacheStore.Close()

			backends := map[string]api.Pinger{"data_redis": data, "cache": cacheStore}

			var entries store.EntryReader
			if cfg.Postgres.DSN != "" {
				pg, err := store.NewPostgresStore(ctx, cfg.Postgres.DSN)
				if err != nil {
					return err
				}
				defer pg.Close()
				entries = pg
				backends["postgres"] = pg
			} else {
				logging.Op().Info("postgres not configured, entry endpoints disabled")
			}

			if cfg.Cache.Invalidation && hashStore != nil {
				inv := cache.NewInvalidator(hashStore, hashStore.Client())
				go inv.Start(ctx)
				defer inv.Close()
			}

			opts := service.Options{Season: cfg.Season, SingleFlight: cfg.Cache.SingleFlight}
			events := service.NewEventService(data, cacheStore, opts)
			handler := &api.Handler{
				Events:   events,
				Fixtures: service.NewFixtureService(data, cacheStore, opts),
				Entries:  service.NewEntryService(entries, cacheStore, opts),
				Cache:    cacheStore,
				Policy:   policy,
				Backends: backends,
			}

			server := api.StartHTTPServer(cfg.Server.Addr, handler)
			logging.Op().Info("LetLetMe API started", "addr", cfg.Server.Addr, "season", events.Season())

			<-ctx.Done()
			logging.Op().Info("shutdown signal received")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown server: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (overrides config)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (overrides config)")

	return cmd
}

func newCacheBreaker(b config.BreakerConfig) *circuitbreaker.Breaker {
	return circuitbreaker.New(circuitbreaker.Config{
		ErrorPct:       b.ErrorPct,
		WindowDuration: time.Duration(b.Window) * time.Second,
		OpenDuration:   time.Duration(b.OpenFor) * time.Second,
		MinRequests:    b.MinRequests,
	}, circuitbreaker.OnStateChange(func(from, to circuitbreaker.State) {
		metrics.SetBreakerState("cache_redis", int(to))
		if to == circuitbreaker.StateOpen {
			logging.Op().Warn("cache redis breaker opened, bypassing cache", "from", from.String())
			return
		}
		logging.Op().Info("cache redis breaker state changed", "from", from.String(), "to", to.String())
	}))
}
