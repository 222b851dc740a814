package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/hotchain/hotledger/internal/accounts"
	"github.com/hotchain/hotledger/internal/auth"
	"github.com/hotchain/hotledger/internal/config"
	"github.com/hotchain/hotledger/internal/ledger"
	"github.com/hotchain/hotledger/internal/notification"
	"github.com/hotchain/hotledger/internal/scheduler"
	"github.com/hotchain/hotledger/internal/token"
)

// Components holds the wired contract and its collaborators.
type Components struct {
	Store    ledger.Store
	Accounts *accounts.Service
	Tokens   *auth.Service
	Queue    scheduler.Queue
	Contract *token.Contract
	Runner   *scheduler.Runner
	Settler  *scheduler.Settler
}

// Assemble builds the contract on Postgres and Redis when they are given and
// on in-memory backends otherwise. Callers decide whether the fallback is
// acceptable.
func Assemble(ctx context.Context, cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Components, error) {
	if cfg.TokenSecret == "" {
		return nil, fmt.Errorf("token secret is required")
	}

	var (
		store    ledger.Store
		repo     accounts.Repository
		queue    scheduler.Queue
		notifier notification.Notifier = notification.NewLoggerNotifier(logger)
	)
	if db != nil {
		store = ledger.NewPostgresStore(db)
		repo = accounts.NewPostgresRepository(db)
	} else {
		store = ledger.NewInMemory()
		repo = accounts.NewMemoryRepository()
	}
	if cache != nil {
		queue = scheduler.NewRedisQueue(cache, scheduler.DefaultRedisKey)
		notifier = notification.Fanout{notifier, notification.NewRedisNotifier(cache, notification.DefaultStream)}
	} else {
		queue = scheduler.NewMemoryQueue()
	}

	acctSvc := accounts.NewService(repo, cfg.ContractAccount, cfg.StakeAccount)
	for name, secret := range map[string]string{cfg.ContractAccount: cfg.ContractSecret, cfg.StakeAccount: cfg.StakeSecret} {
		if secret == "" {
			continue
		}
		_, err := acctSvc.Provision(ctx, accounts.Credentials{Name: name, Secret: secret})
		switch {
		case err == nil:
			logger.Info("provisioned reserved account", "account", name)
		case errors.Is(err, accounts.ErrAccountExists):
		default:
			return nil, fmt.Errorf("provision %s: %w", name, err)
		}
	}
	contract := token.New(token.Config{
		Self:         cfg.ContractAccount,
		StakeAccount: cfg.StakeAccount,
		CoreSymbol:   cfg.CoreSymbol,
		BatchSize:    cfg.BatchSize,
	}, store, acctSvc, scheduler.NewQueueScheduler(queue), notifier, logger)

	runner := scheduler.NewRunner(queue, contract, logger)
	return &Components{
		Store:    store,
		Accounts: acctSvc,
		Tokens:   auth.NewService(cfg.TokenSecret, cfg.TokenTTL, repo),
		Queue:    queue,
		Contract: contract,
		Runner:   runner,
		Settler:  scheduler.NewSettler(contract, runner, cfg.SettleMaxSteps, logger),
	}, nil
}
