package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/maejeom/market-game/internal/api"
	"github.com/maejeom/market-game/internal/calendar"
	"github.com/maejeom/market-game/internal/config"
	"github.com/maejeom/market-game/internal/ledger"
	"github.com/maejeom/market-game/internal/metrics"
	"github.com/maejeom/market-game/internal/registry"
	"github.com/maejeom/market-game/internal/session"
	"github.com/maejeom/market-game/internal/simulator"
	"github.com/maejeom/market-game/internal/store"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	level, _ := cfg.SlogLevel()
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			slog.Error("database migration failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.Redis.URL != "" {
			opt, err := redis.ParseURL(cfg.Redis.URL)
			if err != nil {
				slog.Error("invalid redis url", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.Redis.TTL)
			slog.Info("Redis cache enabled", "ttl", cfg.Redis.TTL.String())
		}
	} else {
		slog.Warn("database url not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	if ids, err := st.ListSessions(ctx); err != nil {
		slog.Warn("could not list saved sessions", "err", err)
	} else {
		slog.Info("saved sessions found", "count", len(ids))
	}

	// --- Game ---
	cal := calendar.Default()
	if cfg.Calendar.File != "" {
		cal, err = calendar.Load(cfg.Calendar.File)
		if err != nil {
			slog.Error("calendar load failed", "file", cfg.Calendar.File, "err", err)
			os.Exit(1)
		}
	}
	simOpts := []simulator.Option{simulator.WithCalendar(cal)}
	if start, ok := cfg.StartDate(); ok {
		simOpts = append(simOpts, simulator.WithStartDate(start))
	}
	sim := simulator.New(registry.Default(), simOpts...)

	sessions := session.NewManager(st, sim, session.Options{
		Ledger:      ledger.Config{Horizon: cfg.Game.Horizon, Endowment: cfg.Endowment()},
		Seed:        cfg.Game.Seed,
		RandomSeed:  cfg.Game.RandomSeed,
		MaxSessions: cfg.Game.MaxSessions,
	})

	// --- WebSocket hub ---
	hub := api.NewHub()
	go hub.Run(ctx)

	svc := api.NewService(sessions, hub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	r.Use(metrics.Middleware)

	// CORS middleware for browser clients.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+api.SessionHeader)
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"market-game"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	svc.Mount(r)

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("market-game listening",
			"port", cfg.Server.Port,
			"horizon", cfg.Game.Horizon,
			"seed", cfg.Game.Seed,
			"random_seed", cfg.Game.RandomSeed,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("shutting down market-game...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("market-game stopped")
}
