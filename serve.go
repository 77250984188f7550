package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cleanpay/internal/api"
	"cleanpay/internal/auth"
	"cleanpay/internal/config"
	"cleanpay/internal/logging"
	"cleanpay/internal/orchestrator"
	"cleanpay/internal/redis"
	"cleanpay/internal/service/cleaning"
	"cleanpay/internal/service/download"
	"cleanpay/internal/service/payment"
	"cleanpay/internal/sessions"
	"cleanpay/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web front end",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.BasicConfig.LogLevel, opts.verbose)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return serve(cmd.Context(), cfg, logger, opts.verbose)
		},
	}
}

// reapingStore is a session store with a background idle reaper.
type reapingStore interface {
	sessions.Store
	Run(ctx context.Context, interval time.Duration)
}

func serve(parent context.Context, cfg *config.Config, logger *zap.Logger, verbose bool) error {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	timeout := time.Duration(cfg.BasicConfig.RequestTimeout) * time.Second
	cleaner := cleaning.NewClient(cfg.Services.CleaningURL, cleaning.Options{
		Timeout: timeout,
		RPS:     cfg.Services.CleaningRPS,
		Burst:   cfg.Services.CleaningBurst,
		Logger:  logger.Named("cleaning"),
	})
	gateway, err := payment.NewInlineGateway(cfg.Payment.PublicKey)
	if err != nil {
		return err
	}
	pricing, err := pricingFromConfig(cfg)
	if err != nil {
		return err
	}
	deps := orchestrator.Deps{
		Cleaner:    cleaner,
		Gateway:    gateway,
		Verifier:   payment.NewVerifier(cfg.Services.VerifyURL, timeout, nil),
		Downloader: download.NewEndpoint(cfg.Services.DownloadURL),
		Pricing:    pricing,
		Policy:     orchestrator.TokenPolicy(cfg.BasicConfig.TokenPolicy),
		Timeout:    timeout,
		Logger:     logger.Named("session"),
	}

	var history api.HistoryReader
	if name := cfg.BasicConfig.Database; name != "" {
		db, err := storage.Open(ctx, name, cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := storage.Migrate(ctx, db, name); err != nil {
			return err
		}
		ledger, err := storage.NewLedger(db, logger.Named("ledger"))
		if err != nil {
			return err
		}
		deps = deps.WithObserver(ledger)
		history = ledger
		logger.Info("transition ledger enabled", zap.String("database", name))
	}

	ttl := time.Duration(cfg.BasicConfig.SessionTTL) * time.Minute
	var (
		store       reapingStore
		storeHealth api.Pinger
	)
	switch cfg.BasicConfig.SessionStore {
	case config.StoreRedis:
		rdb, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("create redis client: %w", err)
		}
		defer rdb.Close()
		storeHealth = rdb
		sealer, err := sessions.NewSealer(cfg.Redis.SealKey)
		if err != nil {
			return err
		}
		store, err = sessions.NewRedisStore(rdb, sealer, deps, ttl, logger.Named("sessions"))
		if err != nil {
			return err
		}
	default:
		store = sessions.NewMemoryStore(deps, ttl, logger.Named("sessions"))
	}

	handler := api.NewHandler(auth.NewService(store, ttl), api.Options{
		PublicKey:      cfg.Payment.PublicKey,
		Pricing:        pricing,
		MaxUploadBytes: cfg.BasicConfig.MaxUploadBytes,
		History:        history,
		Upstream:       cleaner,
		SessionStore:   storeHealth,
		Logger:         logger.Named("api"),
	})

	if verbose {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(logging.Middleware(logger.Named("http")), gin.Recovery())
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening",
			zap.String("addr", srv.Addr),
			zap.String("session_store", cfg.BasicConfig.SessionStore),
			zap.String("cleaning_url", cfg.Services.CleaningURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		store.Run(gctx, time.Duration(cfg.BasicConfig.ReapInterval)*time.Minute)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func pricingFromConfig(cfg *config.Config) (orchestrator.Pricing, error) {
	if cfg.Payment.FlatAmount > 0 {
		return orchestrator.FlatPricing(cfg.Payment.FlatAmount), nil
	}
	return orchestrator.NewPricing(cfg.Payment.Pricing)
}
