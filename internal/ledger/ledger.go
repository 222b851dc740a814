package ledger

import (
	"context"
	"errors"

	"github.com/hotchain/hotledger/internal/asset"
)

var (
	// ErrInvalidArgument covers malformed symbols, non-positive amounts,
	// precision mismatches and oversize memos.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnauthorized indicates a required signer is missing from the invocation.
	ErrUnauthorized = errors.New("missing required authority")

	// ErrNotFound indicates a referenced supply, balance, round or meta row is absent.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientFunds occurs when the source account lacks available balance
	// to cover a requested debit.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrSupplyCapExceeded occurs when issuance would push supply past max supply.
	ErrSupplyCapExceeded = errors.New("supply cap exceeded")

	// ErrInvariantViolation marks states that should never be reachable. It
	// signals a defect rather than a business rejection.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrDuplicate indicates an emplace collided with an existing primary key.
	ErrDuplicate = errors.New("duplicate primary key")
)

// SupplyRecord is the per-symbol stat row.
type SupplyRecord struct {
	Supply    asset.Asset
	MaxSupply asset.Asset
	Issuer    string
	Payer     string
}

// BalanceRecord is the per-(owner, symbol) balance row.
type BalanceRecord struct {
	Owner   string
	Balance asset.Asset
	Payer   string
}

// AccountBonusMeta tracks the bonus bookkeeping of one account.
type AccountBonusMeta struct {
	Owner string
	// Round is the last round this snapshot reflects.
	Round uint64
	// Balance is the core asset balance at last sync.
	Balance int64
	// Stake is the signed net amount staked.
	Stake int64
	// Bonus is the crystallized share not yet paid or forfeited.
	Bonus asset.Asset
	Payer string
}

// BonusRound is the singleton distribution round.
type BonusRound struct {
	Round     uint64
	Clearing  bool
	Clearbase int64
	Bonus     asset.Asset
	Minimum   asset.Asset
	Remaining asset.Asset
	Collector string
	Payer     string
}

// Tx is one atomic unit of work over the contract tables. Every mutation takes
// the storage payer; an empty payer on Modify keeps the current one. Modify
// callbacks receive a copy of the row and return its replacement.
type Tx interface {
	Supply(ctx context.Context, code string) (SupplyRecord, error)
	EmplaceSupply(ctx context.Context, payer string, rec SupplyRecord) error
	ModifySupply(ctx context.Context, code, payer string, fn func(SupplyRecord) (SupplyRecord, error)) (SupplyRecord, error)

	Balance(ctx context.Context, owner, code string) (BalanceRecord, error)
	EmplaceBalance(ctx context.Context, payer string, rec BalanceRecord) error
	ModifyBalance(ctx context.Context, owner, code, payer string, fn func(BalanceRecord) (BalanceRecord, error)) (BalanceRecord, error)
	EraseBalance(ctx context.Context, owner, code string) error

	Round(ctx context.Context) (BonusRound, error)
	EmplaceRound(ctx context.Context, payer string, r BonusRound) error
	ModifyRound(ctx context.Context, payer string, fn func(BonusRound) (BonusRound, error)) (BonusRound, error)

	Meta(ctx context.Context, owner string) (AccountBonusMeta, error)
	EmplaceMeta(ctx context.Context, payer string, m AccountBonusMeta) error
	ModifyMeta(ctx context.Context, owner, payer string, fn func(AccountBonusMeta) (AccountBonusMeta, error)) (AccountBonusMeta, error)
	// MetasBehindRound returns up to limit rows with Round < round in
	// ascending round order.
	MetasBehindRound(ctx context.Context, round uint64, limit int) ([]AccountBonusMeta, error)
	// MetasByBonus returns up to limit rows in descending pending bonus order.
	MetasByBonus(ctx context.Context, limit int) ([]AccountBonusMeta, error)
}

// Store defines the contract implemented by storage backends (e.g. Postgres).
// Update runs fn as one unit of work: any returned error discards every write
// fn made.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
}
