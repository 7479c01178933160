// Command server runs the accrual service HTTP API.
//
//	@title						Accrual Service API
//	@version					1.0
//	@description				Account balance accrual, activation and withdrawal ledger.
//	@BasePath					/
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	_ "github.com/xtremeprotocol/accrual-service/docs"
	"github.com/xtremeprotocol/accrual-service/internal/api"
	"github.com/xtremeprotocol/accrual-service/internal/api/handler"
	"github.com/xtremeprotocol/accrual-service/internal/core/domain"
	"github.com/xtremeprotocol/accrual-service/internal/core/service"
	"github.com/xtremeprotocol/accrual-service/internal/infrastructure/config"
	"github.com/xtremeprotocol/accrual-service/internal/infrastructure/queue"
	"github.com/xtremeprotocol/accrual-service/pkg/logger"
)

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		l := logger.Init(logger.Options{Output: os.Stderr})
		l.Fatal().Err(err).Msg("invalid configuration")
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "accrual-service",
	})

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	if cfg.JWTSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return err
		}
		cfg.JWTSecret = secret
		log.Warn().Msg("JWT_SECRET not set, using an ephemeral secret; tokens will not survive a restart")
	}

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.close()

	locker, idem, err := openCoordination(ctx, cfg, store, log)
	if err != nil {
		return err
	}

	notifier, err := openNotifier(cfg, store, log)
	if err != nil {
		return err
	}

	// Audit workers outlive the signal context so Shutdown can drain them.
	auditCtx, stopAudit := context.WithCancel(context.Background())
	defer stopAudit()
	audit := queue.NewAuditDispatcher(cfg.AuditWorkers, store.audit, logger.Component("audit"))
	audit.Start(auditCtx)

	rates := domain.RateSchedule{
		Base:      cfg.Accrual.BaseRate,
		Withdrawn: cfg.Accrual.WithdrawnRate,
		Elevated:  cfg.Accrual.ElevatedRate,
		Period:    cfg.Accrual.Period,
	}

	authSvc := service.NewAuthService(store.accounts, audit, cfg.JWTSecret, cfg.TokenTTL, cfg.Accrual.InitialBalance, log)
	accrualSvc := service.NewAccrualService(store.accounts, locker, audit, rates, log)
	activationSvc := service.NewActivationService(store.accounts, store.codes, store.tx, locker, audit, log)
	withdrawalSvc := service.NewWithdrawalService(
		store.accounts, store.ledger, store.tx, locker, notifier, idem, audit,
		service.WithdrawalPolicy{
			MinAmount:           cfg.Withdrawal.MinAmount,
			NotifyTimeout:       cfg.Withdrawal.NotifyTimeout,
			RequireVerification: cfg.Withdrawal.RequireVerification,
		},
		log,
	)
	adminSvc := service.NewAdminService(
		store.accounts, store.codes, store.audit, audit, locker,
		service.AdminCredentials{Username: cfg.Admin.Username, Password: cfg.Admin.Password},
		cfg.JWTSecret, cfg.TokenTTL, cfg.Admin.CodeTTL, log,
	)
	if cfg.Admin.Username == "" || cfg.Admin.Password == "" {
		log.Warn().Msg("ADMIN_USER/ADMIN_PASS not set, admin surface is disabled")
	}

	e := api.NewRouter(api.Handlers{
		Account: handler.NewAccountHandler(authSvc),
		Reward:  handler.NewRewardHandler(accrualSvc, activationSvc, withdrawalSvc),
		Admin:   handler.NewAdminHandler(adminSvc),
		Health:  handler.NewHealthHandler(store.checks),
	}, api.Options{
		JWTSecret:   cfg.JWTSecret,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger.Component("http"),
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("storage", cfg.StorageDriver).
			Str("lock", cfg.LockBackend).
			Str("notifier", cfg.Notifier).
			Msg("starting server")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok {
			return err
		}
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := audit.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("audit queue not fully drained")
	}
	return nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// shutdownGrace bounds the close of each backing connection.
const shutdownGrace = 5 * time.Second
