package ledger

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hotchain/hotledger/internal/asset"
)

// Schema creates the contract tables and their secondary indexes.
//
//go:embed schema.sql
var Schema string

// PostgresStore persists the contract tables in PostgreSQL. Every unit of work
// is a serializable transaction so concurrent invocations behave as if run one
// at a time.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Update runs fn inside a serializable transaction and commits when it succeeds.
func (s *PostgresStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable}, fn)
}

// View runs fn inside a read-only transaction.
func (s *PostgresStore) View(ctx context.Context, fn func(tx Tx) error) error {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, fn)
}

func (s *PostgresStore) run(ctx context.Context, opts pgx.TxOptions, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Supply(ctx context.Context, code string) (SupplyRecord, error) {
	return t.supply(ctx, code, "")
}

func (t *pgTx) supply(ctx context.Context, code, lock string) (SupplyRecord, error) {
	row := t.tx.QueryRow(ctx, `SELECT symbol, supply, max_supply, issuer, payer FROM stat WHERE code = $1`+lock, code)
	var (
		rec           SupplyRecord
		sym           string
		supply, maxSp int64
	)
	if err := row.Scan(&sym, &supply, &maxSp, &rec.Issuer, &rec.Payer); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SupplyRecord{}, fmt.Errorf("%w: token %s", ErrNotFound, code)
		}
		return SupplyRecord{}, err
	}
	symbol, err := parseStoredSymbol(sym)
	if err != nil {
		return SupplyRecord{}, err
	}
	rec.Supply = asset.Asset{Amount: supply, Symbol: symbol}
	rec.MaxSupply = asset.Asset{Amount: maxSp, Symbol: symbol}
	return rec, nil
}

func (t *pgTx) EmplaceSupply(ctx context.Context, payer string, rec SupplyRecord) error {
	tag, err := t.tx.Exec(ctx, `INSERT INTO stat (code, symbol, supply, max_supply, issuer, payer)
        VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (code) DO NOTHING`,
		rec.Supply.Symbol.Code, rec.Supply.Symbol.String(), rec.Supply.Amount, rec.MaxSupply.Amount, rec.Issuer, payer)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: token %s", ErrDuplicate, rec.Supply.Symbol.Code)
	}
	return nil
}

func (t *pgTx) ModifySupply(ctx context.Context, code, payer string, fn func(SupplyRecord) (SupplyRecord, error)) (SupplyRecord, error) {
	prev, err := t.supply(ctx, code, " FOR UPDATE")
	if err != nil {
		return SupplyRecord{}, err
	}
	next, err := fn(prev)
	if err != nil {
		return SupplyRecord{}, err
	}
	if next.Supply.Symbol.Code != code {
		return SupplyRecord{}, fmt.Errorf("%w: primary key of token %s changed", ErrInvariantViolation, code)
	}
	next.Payer = keepPayer(payer, prev.Payer)
	if _, err := t.tx.Exec(ctx, `UPDATE stat SET supply = $2, max_supply = $3, issuer = $4, payer = $5 WHERE code = $1`,
		code, next.Supply.Amount, next.MaxSupply.Amount, next.Issuer, next.Payer); err != nil {
		return SupplyRecord{}, err
	}
	return next, nil
}

func (t *pgTx) Balance(ctx context.Context, owner, code string) (BalanceRecord, error) {
	return t.balance(ctx, owner, code, "")
}

func (t *pgTx) balance(ctx context.Context, owner, code, lock string) (BalanceRecord, error) {
	row := t.tx.QueryRow(ctx, `SELECT symbol, amount, payer FROM accounts WHERE owner = $1 AND code = $2`+lock, owner, code)
	var (
		sym    string
		amount int64
		rec    = BalanceRecord{Owner: owner}
	)
	if err := row.Scan(&sym, &amount, &rec.Payer); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BalanceRecord{}, fmt.Errorf("%w: balance of %s in %s", ErrNotFound, owner, code)
		}
		return BalanceRecord{}, err
	}
	symbol, err := parseStoredSymbol(sym)
	if err != nil {
		return BalanceRecord{}, err
	}
	rec.Balance = asset.Asset{Amount: amount, Symbol: symbol}
	return rec, nil
}

func (t *pgTx) EmplaceBalance(ctx context.Context, payer string, rec BalanceRecord) error {
	tag, err := t.tx.Exec(ctx, `INSERT INTO accounts (owner, code, symbol, amount, payer)
        VALUES ($1, $2, $3, $4, $5) ON CONFLICT (owner, code) DO NOTHING`,
		rec.Owner, rec.Balance.Symbol.Code, rec.Balance.Symbol.String(), rec.Balance.Amount, payer)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: balance of %s in %s", ErrDuplicate, rec.Owner, rec.Balance.Symbol.Code)
	}
	return nil
}

func (t *pgTx) ModifyBalance(ctx context.Context, owner, code, payer string, fn func(BalanceRecord) (BalanceRecord, error)) (BalanceRecord, error) {
	prev, err := t.balance(ctx, owner, code, " FOR UPDATE")
	if err != nil {
		return BalanceRecord{}, err
	}
	next, err := fn(prev)
	if err != nil {
		return BalanceRecord{}, err
	}
	if next.Owner != owner || next.Balance.Symbol.Code != code {
		return BalanceRecord{}, fmt.Errorf("%w: primary key of balance %s/%s changed", ErrInvariantViolation, owner, code)
	}
	next.Payer = keepPayer(payer, prev.Payer)
	if _, err := t.tx.Exec(ctx, `UPDATE accounts SET amount = $3, payer = $4 WHERE owner = $1 AND code = $2`,
		owner, code, next.Balance.Amount, next.Payer); err != nil {
		return BalanceRecord{}, err
	}
	return next, nil
}

func (t *pgTx) EraseBalance(ctx context.Context, owner, code string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM accounts WHERE owner = $1 AND code = $2`, owner, code)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: balance of %s in %s", ErrNotFound, owner, code)
	}
	return nil
}

const roundColumns = `round, clearing, clearbase, bonus_amount, minimum_amount, remaining_amount, bonus_symbol, collector, payer`

func (t *pgTx) Round(ctx context.Context) (BonusRound, error) {
	return t.round(ctx, "")
}

func (t *pgTx) round(ctx context.Context, lock string) (BonusRound, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+roundColumns+` FROM brnd WHERE id = 1`+lock)
	var (
		r                         BonusRound
		bonus, minimum, remaining int64
		sym                       string
	)
	if err := row.Scan(&r.Round, &r.Clearing, &r.Clearbase, &bonus, &minimum, &remaining, &sym, &r.Collector, &r.Payer); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BonusRound{}, fmt.Errorf("%w: bonus round", ErrNotFound)
		}
		return BonusRound{}, err
	}
	symbol, err := parseStoredSymbol(sym)
	if err != nil {
		return BonusRound{}, err
	}
	r.Bonus = asset.Asset{Amount: bonus, Symbol: symbol}
	r.Minimum = asset.Asset{Amount: minimum, Symbol: symbol}
	r.Remaining = asset.Asset{Amount: remaining, Symbol: symbol}
	return r, nil
}

func (t *pgTx) EmplaceRound(ctx context.Context, payer string, r BonusRound) error {
	tag, err := t.tx.Exec(ctx, `INSERT INTO brnd (id, `+roundColumns+`)
        VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9) ON CONFLICT (id) DO NOTHING`,
		r.Round, r.Clearing, r.Clearbase, r.Bonus.Amount, r.Minimum.Amount, r.Remaining.Amount,
		storedSymbol(r.Bonus.Symbol), r.Collector, payer)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: bonus round", ErrDuplicate)
	}
	return nil
}

func (t *pgTx) ModifyRound(ctx context.Context, payer string, fn func(BonusRound) (BonusRound, error)) (BonusRound, error) {
	prev, err := t.round(ctx, " FOR UPDATE")
	if err != nil {
		return BonusRound{}, err
	}
	next, err := fn(prev)
	if err != nil {
		return BonusRound{}, err
	}
	next.Payer = keepPayer(payer, prev.Payer)
	if _, err := t.tx.Exec(ctx, `UPDATE brnd SET round = $1, clearing = $2, clearbase = $3, bonus_amount = $4,
        minimum_amount = $5, remaining_amount = $6, bonus_symbol = $7, collector = $8, payer = $9 WHERE id = 1`,
		next.Round, next.Clearing, next.Clearbase, next.Bonus.Amount, next.Minimum.Amount, next.Remaining.Amount,
		storedSymbol(next.Bonus.Symbol), next.Collector, next.Payer); err != nil {
		return BonusRound{}, err
	}
	return next, nil
}

const metaColumns = `owner, round, balance, stake, bonus_amount, bonus_symbol, payer`

func (t *pgTx) Meta(ctx context.Context, owner string) (AccountBonusMeta, error) {
	return t.meta(ctx, owner, "")
}

func (t *pgTx) meta(ctx context.Context, owner, lock string) (AccountBonusMeta, error) {
	m, err := scanMeta(t.tx.QueryRow(ctx, `SELECT `+metaColumns+` FROM abms WHERE owner = $1`+lock, owner))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountBonusMeta{}, fmt.Errorf("%w: bonus meta of %s", ErrNotFound, owner)
		}
		return AccountBonusMeta{}, err
	}
	return m, nil
}

func (t *pgTx) EmplaceMeta(ctx context.Context, payer string, m AccountBonusMeta) error {
	tag, err := t.tx.Exec(ctx, `INSERT INTO abms (`+metaColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (owner) DO NOTHING`,
		m.Owner, m.Round, m.Balance, m.Stake, m.Bonus.Amount, storedSymbol(m.Bonus.Symbol), payer)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: bonus meta of %s", ErrDuplicate, m.Owner)
	}
	return nil
}

func (t *pgTx) ModifyMeta(ctx context.Context, owner, payer string, fn func(AccountBonusMeta) (AccountBonusMeta, error)) (AccountBonusMeta, error) {
	prev, err := t.meta(ctx, owner, " FOR UPDATE")
	if err != nil {
		return AccountBonusMeta{}, err
	}
	next, err := fn(prev)
	if err != nil {
		return AccountBonusMeta{}, err
	}
	if next.Owner != owner {
		return AccountBonusMeta{}, fmt.Errorf("%w: primary key of bonus meta %s changed", ErrInvariantViolation, owner)
	}
	next.Payer = keepPayer(payer, prev.Payer)
	if _, err := t.tx.Exec(ctx, `UPDATE abms SET round = $2, balance = $3, stake = $4, bonus_amount = $5,
        bonus_symbol = $6, payer = $7 WHERE owner = $1`,
		owner, next.Round, next.Balance, next.Stake, next.Bonus.Amount, storedSymbol(next.Bonus.Symbol), next.Payer); err != nil {
		return AccountBonusMeta{}, err
	}
	return next, nil
}

func (t *pgTx) MetasBehindRound(ctx context.Context, round uint64, limit int) ([]AccountBonusMeta, error) {
	if limit <= 0 {
		return nil, nil
	}
	return t.queryMetas(ctx, `SELECT `+metaColumns+` FROM abms WHERE round < $1 ORDER BY round ASC, owner ASC LIMIT $2`, round, limit)
}

func (t *pgTx) MetasByBonus(ctx context.Context, limit int) ([]AccountBonusMeta, error) {
	if limit <= 0 {
		return nil, nil
	}
	return t.queryMetas(ctx, `SELECT `+metaColumns+` FROM abms ORDER BY bonus_amount DESC, owner DESC LIMIT $1`, limit)
}

func (t *pgTx) queryMetas(ctx context.Context, query string, args ...any) ([]AccountBonusMeta, error) {
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AccountBonusMeta
	for rows.Next() {
		m, err := scanMeta(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMeta(row pgx.Row) (AccountBonusMeta, error) {
	var (
		m      AccountBonusMeta
		amount int64
		sym    string
	)
	if err := row.Scan(&m.Owner, &m.Round, &m.Balance, &m.Stake, &amount, &sym, &m.Payer); err != nil {
		return AccountBonusMeta{}, err
	}
	symbol, err := parseStoredSymbol(sym)
	if err != nil {
		return AccountBonusMeta{}, err
	}
	m.Bonus = asset.Asset{Amount: amount, Symbol: symbol}
	return m, nil
}

func storedSymbol(s asset.Symbol) string {
	if s.IsZero() {
		return ""
	}
	return s.String()
}

func parseStoredSymbol(s string) (asset.Symbol, error) {
	if s == "" {
		return asset.Symbol{}, nil
	}
	sym, err := asset.ParseSymbol(s)
	if err != nil {
		return asset.Symbol{}, fmt.Errorf("%w: stored symbol %q: %w", ErrInvariantViolation, s, err)
	}
	return sym, nil
}
