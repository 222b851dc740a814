package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/btree"
)

const btreeDegree = 16

type balanceKey struct {
	owner string
	code  string
}

type roundKey struct {
	round uint64
	owner string
}

type bonusKey struct {
	amount int64
	owner  string
}

// InMemoryStore keeps the contract tables in maps with btree secondary
// indices. Units of work are serialized by a single lock and rolled back
// through an undo log.
type InMemoryStore struct {
	mu       sync.RWMutex
	supplies map[string]SupplyRecord
	balances map[balanceKey]BalanceRecord
	round    *BonusRound
	metas    map[string]AccountBonusMeta
	byRound  *btree.BTreeG[roundKey]
	byBonus  *btree.BTreeG[bonusKey]
}

// NewInMemory creates an in-memory store useful for unit tests and development.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		supplies: make(map[string]SupplyRecord),
		balances: make(map[balanceKey]BalanceRecord),
		metas:    make(map[string]AccountBonusMeta),
		byRound: btree.NewG(btreeDegree, func(a, b roundKey) bool {
			if a.round != b.round {
				return a.round < b.round
			}
			return a.owner < b.owner
		}),
		byBonus: btree.NewG(btreeDegree, func(a, b bonusKey) bool {
			if a.amount != b.amount {
				return a.amount < b.amount
			}
			return a.owner < b.owner
		}),
	}
}

// Update runs fn exclusively and undoes its writes when it fails.
func (s *InMemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// View runs fn against a read-only transaction.
func (s *InMemoryStore) View(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memTx{s: s, readOnly: true})
}

type memTx struct {
	s        *InMemoryStore
	readOnly bool
	undo     []func()
}

var errReadOnly = fmt.Errorf("%w: write in read-only transaction", ErrInvariantViolation)

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) Supply(_ context.Context, code string) (SupplyRecord, error) {
	rec, ok := t.s.supplies[code]
	if !ok {
		return SupplyRecord{}, fmt.Errorf("%w: token %s", ErrNotFound, code)
	}
	return rec, nil
}

func (t *memTx) EmplaceSupply(_ context.Context, payer string, rec SupplyRecord) error {
	if t.readOnly {
		return errReadOnly
	}
	code := rec.Supply.Symbol.Code
	if _, ok := t.s.supplies[code]; ok {
		return fmt.Errorf("%w: token %s", ErrDuplicate, code)
	}
	rec.Payer = payer
	t.s.supplies[code] = rec
	t.undo = append(t.undo, func() { delete(t.s.supplies, code) })
	return nil
}

func (t *memTx) ModifySupply(ctx context.Context, code, payer string, fn func(SupplyRecord) (SupplyRecord, error)) (SupplyRecord, error) {
	if t.readOnly {
		return SupplyRecord{}, errReadOnly
	}
	prev, err := t.Supply(ctx, code)
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
	t.s.supplies[code] = next
	t.undo = append(t.undo, func() { t.s.supplies[code] = prev })
	return next, nil
}

func (t *memTx) Balance(_ context.Context, owner, code string) (BalanceRecord, error) {
	rec, ok := t.s.balances[balanceKey{owner: owner, code: code}]
	if !ok {
		return BalanceRecord{}, fmt.Errorf("%w: balance of %s in %s", ErrNotFound, owner, code)
	}
	return rec, nil
}

func (t *memTx) EmplaceBalance(_ context.Context, payer string, rec BalanceRecord) error {
	if t.readOnly {
		return errReadOnly
	}
	key := balanceKey{owner: rec.Owner, code: rec.Balance.Symbol.Code}
	if _, ok := t.s.balances[key]; ok {
		return fmt.Errorf("%w: balance of %s in %s", ErrDuplicate, key.owner, key.code)
	}
	rec.Payer = payer
	t.s.balances[key] = rec
	t.undo = append(t.undo, func() { delete(t.s.balances, key) })
	return nil
}

func (t *memTx) ModifyBalance(ctx context.Context, owner, code, payer string, fn func(BalanceRecord) (BalanceRecord, error)) (BalanceRecord, error) {
	if t.readOnly {
		return BalanceRecord{}, errReadOnly
	}
	prev, err := t.Balance(ctx, owner, code)
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
	key := balanceKey{owner: owner, code: code}
	next.Payer = keepPayer(payer, prev.Payer)
	t.s.balances[key] = next
	t.undo = append(t.undo, func() { t.s.balances[key] = prev })
	return next, nil
}

func (t *memTx) EraseBalance(ctx context.Context, owner, code string) error {
	if t.readOnly {
		return errReadOnly
	}
	prev, err := t.Balance(ctx, owner, code)
	if err != nil {
		return err
	}
	key := balanceKey{owner: owner, code: code}
	delete(t.s.balances, key)
	t.undo = append(t.undo, func() { t.s.balances[key] = prev })
	return nil
}

func (t *memTx) Round(_ context.Context) (BonusRound, error) {
	if t.s.round == nil {
		return BonusRound{}, fmt.Errorf("%w: bonus round", ErrNotFound)
	}
	return *t.s.round, nil
}

func (t *memTx) EmplaceRound(_ context.Context, payer string, r BonusRound) error {
	if t.readOnly {
		return errReadOnly
	}
	if t.s.round != nil {
		return fmt.Errorf("%w: bonus round", ErrDuplicate)
	}
	r.Payer = payer
	t.s.round = &r
	t.undo = append(t.undo, func() { t.s.round = nil })
	return nil
}

func (t *memTx) ModifyRound(ctx context.Context, payer string, fn func(BonusRound) (BonusRound, error)) (BonusRound, error) {
	if t.readOnly {
		return BonusRound{}, errReadOnly
	}
	prev, err := t.Round(ctx)
	if err != nil {
		return BonusRound{}, err
	}
	next, err := fn(prev)
	if err != nil {
		return BonusRound{}, err
	}
	next.Payer = keepPayer(payer, prev.Payer)
	t.s.round = &next
	t.undo = append(t.undo, func() { t.s.round = &prev })
	return next, nil
}

func (t *memTx) Meta(_ context.Context, owner string) (AccountBonusMeta, error) {
	m, ok := t.s.metas[owner]
	if !ok {
		return AccountBonusMeta{}, fmt.Errorf("%w: bonus meta of %s", ErrNotFound, owner)
	}
	return m, nil
}

func (t *memTx) EmplaceMeta(_ context.Context, payer string, m AccountBonusMeta) error {
	if t.readOnly {
		return errReadOnly
	}
	if _, ok := t.s.metas[m.Owner]; ok {
		return fmt.Errorf("%w: bonus meta of %s", ErrDuplicate, m.Owner)
	}
	m.Payer = payer
	t.s.putMeta(m)
	owner := m.Owner
	t.undo = append(t.undo, func() { t.s.deleteMeta(owner) })
	return nil
}

func (t *memTx) ModifyMeta(ctx context.Context, owner, payer string, fn func(AccountBonusMeta) (AccountBonusMeta, error)) (AccountBonusMeta, error) {
	if t.readOnly {
		return AccountBonusMeta{}, errReadOnly
	}
	prev, err := t.Meta(ctx, owner)
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
	t.s.putMeta(next)
	t.undo = append(t.undo, func() { t.s.putMeta(prev) })
	return next, nil
}

func (t *memTx) MetasBehindRound(_ context.Context, round uint64, limit int) ([]AccountBonusMeta, error) {
	var out []AccountBonusMeta
	if limit <= 0 {
		return out, nil
	}
	t.s.byRound.AscendLessThan(roundKey{round: round}, func(k roundKey) bool {
		out = append(out, t.s.metas[k.owner])
		return len(out) < limit
	})
	return out, nil
}

func (t *memTx) MetasByBonus(_ context.Context, limit int) ([]AccountBonusMeta, error) {
	var out []AccountBonusMeta
	if limit <= 0 {
		return out, nil
	}
	t.s.byBonus.Descend(func(k bonusKey) bool {
		out = append(out, t.s.metas[k.owner])
		return len(out) < limit
	})
	return out, nil
}

func (s *InMemoryStore) putMeta(m AccountBonusMeta) {
	s.deleteMeta(m.Owner)
	s.metas[m.Owner] = m
	s.byRound.ReplaceOrInsert(roundKey{round: m.Round, owner: m.Owner})
	s.byBonus.ReplaceOrInsert(bonusKey{amount: m.Bonus.Amount, owner: m.Owner})
}

func (s *InMemoryStore) deleteMeta(owner string) {
	old, ok := s.metas[owner]
	if !ok {
		return
	}
	s.byRound.Delete(roundKey{round: old.Round, owner: owner})
	s.byBonus.Delete(bonusKey{amount: old.Bonus.Amount, owner: owner})
	delete(s.metas, owner)
}

func keepPayer(payer, current string) string {
	if payer == "" {
		return current
	}
	return payer
}
