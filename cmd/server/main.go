package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"pharmapos/backend/internal/billing"
	"pharmapos/backend/internal/cache"
	"pharmapos/backend/internal/config"
	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/httpapi"
	"pharmapos/backend/internal/logging"
	"pharmapos/backend/internal/service"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/store/memory"
	pgstore "pharmapos/backend/internal/store/postgres"
	"pharmapos/backend/internal/upstream"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		logrus.Fatalf("failed to read .env: %v", err)
	}
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	if err := validateConfig(cfg); err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatalf("postgres migration failed: %v", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		seeded, err := memory.NewSeeded(logger)
		if err != nil {
			logger.Fatalf("failed to seed in-memory store: %v", err)
		}
		repo = seeded
		logger.Info("repository: in-memory")
	}

	var (
		methodCache cache.PaymentMethodCache = cache.NoopPaymentMethodCache{}
		locker      cache.SubmitLocker       = cache.NewLocalLocker()
		tokens      upstream.TokenStore      = upstream.NewMemoryTokenStore()
	)
	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warnf("redis unavailable (%v), using in-process cache and locks", err)
			_ = client.Close()
		} else {
			methodCache = cache.NewRedisPaymentMethodCache(client)
			locker = cache.NewRedisSubmitLocker(client)
			tokens = upstream.NewRedisTokenStore(client, "")
			closers = append(closers, client.Close)
			logger.Info("cache: redis")
		}
	} else {
		logger.Info("cache: in-process")
	}

	backend := upstream.New(upstream.Config{
		BaseURL:  cfg.BackendBaseURL,
		Username: cfg.BackendUsername,
		Password: cfg.BackendPassword,
		Timeout:  cfg.BackendTimeout,
		Tokens:   tokens,
		Logger:   logger,
	})

	svc := service.New(repo, backend, methodCache, locker, service.Options{
		DefaultLocationID: cfg.DefaultLocationID,
		GSTRate:           cfg.GSTRatePercent,
		UPI: billing.UPIConfig{
			PayeeVPA:         cfg.UPIPayeeVPA,
			PayeeName:        cfg.UPIPayeeName,
			CountdownSeconds: cfg.UPITimeoutSeconds,
			PollInterval:     time.Duration(cfg.UPIPollSeconds) * time.Second,
			Confirmer:        billing.ElapsedConfirmer{After: time.Duration(cfg.UPIConfirmAfterSeconds) * time.Second},
		},
		PhoneRegion:        cfg.PhoneRegion,
		ShopName:           cfg.ShopName,
		PaymentMethodsTTL:  time.Duration(cfg.PaymentMethodsTTLSeconds) * time.Second,
		SubmitTimeout:      cfg.BackendTimeout + 5*time.Second,
		SessionIdleTimeout: time.Duration(cfg.SessionIdleTimeoutMinutes) * time.Minute,
	}, logger)
	auth := httpapi.NewAuthManager(ctx, cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	if cfg.BootstrapAdminPassword != "" {
		created, err := auth.EnsureOperator(ctx, cfg.BootstrapAdminUsername, cfg.BootstrapAdminPassword, domain.RoleAdmin)
		if err != nil {
			logger.Fatalf("bootstrap admin: %v", err)
		}
		if created {
			logger.WithField("username", cfg.BootstrapAdminUsername).Info("bootstrap admin created")
		}
	}
	api := httpapi.New(svc, auth, httpapi.Options{AllowedOrigin: cfg.AllowedOrigin, Logger: logger})

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go svc.RunJanitor(runCtx, time.Minute)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.BackendTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Infof("billing service listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server error: %v", err)
		}
	}()

	<-runCtx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown error: %v", err)
	}
	svc.Close()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Errorf("close error: %v", err)
		}
	}

	logger.Info("server stopped")
}

func validateConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.BackendBaseURL == "" {
		return fmt.Errorf("BACKEND_BASE_URL must be set")
	}
	if cfg.UPIPayeeVPA == "" {
		return fmt.Errorf("UPI_PAYEE_VPA must be set")
	}
	if cfg.GSTRatePercent.IsNegative() {
		return fmt.Errorf("GST_RATE_PERCENT must not be negative")
	}
	return nil
}
