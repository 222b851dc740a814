package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hotchain/hotledger/internal/asset"
	"github.com/hotchain/hotledger/internal/ledger"
	"github.com/hotchain/hotledger/internal/notification"
)

// DefaultBatchSize is the number of accounts one clear invocation may select.
const DefaultBatchSize = 8

const maxMemoBytes = 256

// AccountChecker answers whether a name is a registered account.
type AccountChecker interface {
	IsAccount(ctx context.Context, name string) (bool, error)
}

// Deferred is an action scheduled by a unit of work to run in a later one.
type Deferred struct {
	Name      string
	Authority string
	Args      any
}

// Scheduler receives deferred actions once the unit that produced them commits.
type Scheduler interface {
	Schedule(ctx context.Context, actions ...Deferred) error
}

// Config carries the contract identity.
type Config struct {
	// Self is the contract account; it authorizes create and forced close.
	Self string
	// StakeAccount holds staked funds on behalf of stakers.
	StakeAccount string
	// CoreSymbol is the asset whose balances earn bonus.
	CoreSymbol asset.Symbol
	// BatchSize caps the accounts selected per clear; zero means DefaultBatchSize.
	BatchSize int
}

// Contract is the token ledger with stake weighted bonus rounds. Every action
// is one atomic unit of work over the store.
type Contract struct {
	cfg       Config
	store     ledger.Store
	accounts  AccountChecker
	scheduler Scheduler
	notifier  notification.Notifier
	logger    *slog.Logger
}

// New constructs a contract. scheduler and notifier may be nil.
func New(cfg Config, store ledger.Store, accounts AccountChecker, scheduler Scheduler, notifier notification.Notifier, logger *slog.Logger) *Contract {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Contract{
		cfg:       cfg,
		store:     store,
		accounts:  accounts,
		scheduler: scheduler,
		notifier:  notifier,
		logger:    logger,
	}
}

// Config returns the contract identity.
func (c *Contract) Config() Config {
	return c.cfg
}

// unit collects what one invocation releases after commit.
type unit struct {
	tx       ledger.Tx
	deferred []Deferred
	notes    []notification.Message
}

func (u *unit) schedule(d Deferred) {
	u.deferred = append(u.deferred, d)
}

func (u *unit) notify(kind, destination, body string) {
	u.notes = append(u.notes, notification.Message{Kind: kind, Destination: destination, Body: body})
}

// run executes fn as one unit of work and releases its deferred actions and
// notifications only when the unit commits.
func (c *Contract) run(ctx context.Context, action string, fn func(u *unit) error) error {
	var u *unit
	err := c.store.Update(ctx, func(tx ledger.Tx) error {
		u = &unit{tx: tx}
		return fn(u)
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInvariantViolation) {
			c.logger.Error("action aborted", "action", action, "invariant", true, "error", err)
		} else {
			c.logger.Info("action rejected", "action", action, "error", err)
		}
		return err
	}
	c.logger.Debug("action committed", "action", action, "deferred", len(u.deferred))

	if c.notifier != nil {
		for _, msg := range u.notes {
			if nerr := c.notifier.Send(ctx, msg); nerr != nil {
				c.logger.Warn("notification failed", "kind", msg.Kind, "destination", msg.Destination, "error", nerr)
			}
		}
	}
	if len(u.deferred) > 0 && c.scheduler != nil {
		if serr := c.scheduler.Schedule(ctx, u.deferred...); serr != nil {
			c.logger.Error("schedule deferred actions", "action", action, "count", len(u.deferred), "error", serr)
			return fmt.Errorf("schedule deferred actions of %s: %w", action, serr)
		}
	}
	return nil
}

func (c *Contract) requireAccount(ctx context.Context, name, role string) error {
	if c.accounts == nil {
		return nil
	}
	ok, err := c.accounts.IsAccount(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s account %q does not exist", ledger.ErrNotFound, role, name)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ledger.ErrInvalidArgument}, args...)...)
}

func invariant(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ledger.ErrInvariantViolation}, args...)...)
}

// checkQuantity validates an action amount against the token it names.
func checkQuantity(quantity asset.Asset, st ledger.SupplyRecord, verb string) error {
	if !quantity.IsValid() {
		return invalid("invalid quantity %s", quantity)
	}
	if quantity.Amount <= 0 {
		return invalid("must %s positive quantity", verb)
	}
	if quantity.Symbol != st.Supply.Symbol {
		return invalid("symbol precision mismatch: %s vs %s", quantity.Symbol, st.Supply.Symbol)
	}
	return nil
}

func checkMemo(memo string) error {
	if len(memo) > maxMemoBytes {
		return invalid("memo has more than %d bytes", maxMemoBytes)
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ledger.ErrNotFound)
}
