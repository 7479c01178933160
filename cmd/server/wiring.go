package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/xtremeprotocol/accrual-service/internal/api/handler"
	"github.com/xtremeprotocol/accrual-service/internal/core/ports"
	"github.com/xtremeprotocol/accrual-service/internal/infrastructure/config"
	"github.com/xtremeprotocol/accrual-service/internal/infrastructure/db/memory"
	mongodb "github.com/xtremeprotocol/accrual-service/internal/infrastructure/db/mongo"
	"github.com/xtremeprotocol/accrual-service/internal/infrastructure/db/postgres"
	redisdb "github.com/xtremeprotocol/accrual-service/internal/infrastructure/db/redis"
	"github.com/xtremeprotocol/accrual-service/internal/infrastructure/lock"
	"github.com/xtremeprotocol/accrual-service/internal/infrastructure/notify"
)

// storage bundles the persistence ports of the selected driver.
type storage struct {
	accounts ports.AccountRepository
	codes    ports.CodeRegistry
	ledger   ports.LedgerRepository
	audit    ports.AuditRepository
	tx       ports.Transactor
	idem     ports.IdempotencyStore
	checks   map[string]handler.HealthCheck
	closers  []func(ctx context.Context)
}

func (s *storage) onClose(fn func(ctx context.Context)) {
	s.closers = append(s.closers, fn)
}

func (s *storage) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i](ctx)
	}
}

func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*storage, error) {
	s := &storage{checks: make(map[string]handler.HealthCheck)}

	switch cfg.StorageDriver {
	case config.StorageMongo:
		client, db, err := mongodb.Connect(ctx, mongodb.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return nil, err
		}
		s.onClose(func(ctx context.Context) { _ = client.Disconnect(ctx) })

		if err := mongodb.EnsureIndexes(ctx, db); err != nil {
			s.close()
			return nil, err
		}
		s.accounts = mongodb.NewAccountRepository(db)
		s.codes = mongodb.NewCodeRegistry(db)
		s.ledger = mongodb.NewLedgerRepository(db)
		s.audit = mongodb.NewAuditRepository(db)
		s.tx = mongodb.NewTransactor(client, cfg.Mongo.Transactions)
		s.checks["mongodb"] = mongodb.Pinger(client)

	case config.StoragePostgres:
		pool, err := postgres.Connect(ctx, postgres.Config{DSN: cfg.Postgres.DSN, MaxConns: cfg.Postgres.MaxConns})
		if err != nil {
			return nil, err
		}
		s.onClose(func(context.Context) { pool.Close() })

		if err := postgres.Migrate(ctx, pool); err != nil {
			s.close()
			return nil, err
		}
		s.accounts = postgres.NewAccountRepository(pool)
		s.codes = postgres.NewCodeRegistry(pool)
		s.ledger = postgres.NewLedgerRepository(pool)
		s.audit = postgres.NewAuditRepository(pool)
		s.tx = postgres.NewTransactor(pool)
		s.checks["postgres"] = postgres.Pinger(pool)

	default:
		store := memory.NewStore()
		s.accounts = store.Accounts()
		s.codes = store.Codes()
		s.ledger = store.Ledger()
		s.audit = store.Audit()
		s.tx = store
		s.idem = store.Idempotency()
		s.checks["memory"] = store.Ping
		log.Warn().Msg("using in-memory storage, data is lost on restart")
	}

	return s, nil
}

// openCoordination picks the account locker and, with Redis, moves the
// idempotency keys there too.
func openCoordination(ctx context.Context, cfg *config.Config, s *storage, log zerolog.Logger) (ports.AccountLocker, ports.IdempotencyStore, error) {
	if cfg.LockBackend != config.LockRedis {
		if s.idem == nil {
			log.Warn().Msg("no idempotency store for this storage driver, Idempotency-Key is ignored")
		}
		return lock.NewKeyedMutex(), s.idem, nil
	}

	rdb, err := redisdb.Connect(ctx, redisdb.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, nil, err
	}
	s.onClose(func(context.Context) { _ = rdb.Close() })
	s.checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }

	return redisdb.NewLocker(rdb, cfg.Redis.LockTTL, log),
		redisdb.NewIdempotencyStore(rdb, cfg.Withdrawal.IdempotencyTTL),
		nil
}

func openNotifier(cfg *config.Config, s *storage, log zerolog.Logger) (ports.Notifier, error) {
	switch cfg.Notifier {
	case config.NotifierSMTP:
		n, err := notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			To:       cfg.SMTP.To,
		})
		if err != nil {
			return nil, err
		}
		return notify.Measured(config.NotifierSMTP, n), nil

	case config.NotifierAMQP:
		n, err := notify.NewAMQPNotifier(notify.AMQPConfig{URL: cfg.AMQP.URL, Exchange: cfg.AMQP.Exchange}, log)
		if err != nil {
			return nil, fmt.Errorf("open notifier: %w", err)
		}
		s.onClose(func(context.Context) { _ = n.Close() })
		s.checks["amqp"] = n.Ping
		return notify.Measured(config.NotifierAMQP, n), nil

	default:
		return notify.Measured(config.NotifierLog, notify.NewLogNotifier(log)), nil
	}
}
