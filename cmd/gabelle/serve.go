package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecgard/gabelle/internal/api"
	"github.com/alecgard/gabelle/internal/config"
	"github.com/alecgard/gabelle/internal/crypto"
	"github.com/alecgard/gabelle/internal/directory"
	"github.com/alecgard/gabelle/internal/marketplace"
	"github.com/alecgard/gabelle/internal/metrics"
	"github.com/alecgard/gabelle/internal/ocr"
	"github.com/alecgard/gabelle/internal/ratelimit"
	"github.com/alecgard/gabelle/internal/resolver"
	"github.com/alecgard/gabelle/internal/session"
	"github.com/alecgard/gabelle/internal/usage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Gabelle server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}
	slog.Info("connected to database")

	m := metrics.New()
	m.RegisterDBPoolCollector(func() (total, idle, acquired int32) {
		stat := pool.Stat()
		return stat.TotalConns(), stat.IdleConns(), stat.AcquiredConns()
	})

	// Session context store: in-process by default, Redis when sessions must
	// survive restarts or be shared across replicas.
	var sessions session.Store
	switch cfg.Session.Backend {
	case "redis":
		rs, err := session.NewRedisStore(ctx, cfg.Session.RedisURL, cfg.Session.TTL)
		if err != nil {
			return err
		}
		defer rs.Close()
		sessions = rs
		slog.Info("using redis session store")
	default:
		ms := session.NewMemoryStore(cfg.Session.TTL)
		go func() {
			ticker := time.NewTicker(cfg.Session.TTL)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if n := ms.Sweep(); n > 0 {
						slog.Debug("swept expired sessions", "count", n)
					}
				case <-ctx.Done():
					return
				}
			}
		}()
		sessions = ms
	}

	cipher, err := crypto.NewCipher(cfg.Encryption.Key)
	if err != nil {
		return err
	}
	if cipher != nil {
		slog.Info("ocr text encryption at rest enabled")
	}

	store := usage.NewStore(pool, cipher)
	recorder := usage.NewRecorder(store, cfg.Recorder.BatchSize, cfg.Recorder.FlushInterval)
	recorder.SetMetrics(m)
	go recorder.Start(ctx)

	mpClient := marketplace.NewClient(cfg.Marketplace.BaseURL, cfg.Marketplace.APIKey, cfg.Marketplace.Timeout)
	res := resolver.New(mpClient, sessions)
	res.SetMetrics(m)

	var dir *directory.Client
	if cfg.Directory.BaseURL != "" {
		dir = directory.NewClient(cfg.Directory.BaseURL, cfg.Directory.Timeout)
	}

	ocrClient := ocr.NewClient(cfg.OCR.Endpoint, cfg.OCR.SubscriptionKey, cfg.OCR.Timeout)
	if !ocrClient.Configured() {
		slog.Warn("ocr endpoint or subscription key not configured; document submission will be rejected")
	}

	limiter := ratelimit.New(cfg.RateLimit.Default, cfg.RateLimit.Window)

	deps := api.RouterDeps{
		Resolver:      res,
		OCR:           ocrClient,
		Recorder:      recorder,
		UsageStore:    store,
		Sessions:      sessions,
		Limiter:       limiter,
		Metrics:       m,
		AdminKey:      cfg.Auth.AdminKey,
		CORSOrigins:   cfg.CORS.AllowedOrigins,
		MaxUploadSize: cfg.OCR.MaxUploadSize,
	}
	if dir != nil {
		deps.Directory = dir
	}
	router := api.NewRouter(deps)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Final flush so queued usage records are not lost on shutdown.
	recorder.Stop()

	return srv.Shutdown(shutdownCtx)
}
