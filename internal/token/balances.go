package token

import (
	"context"
	"fmt"

	"github.com/hotchain/hotledger/internal/asset"
	"github.com/hotchain/hotledger/internal/ledger"
	"github.com/hotchain/hotledger/internal/notification"
)

func (c *Contract) subBalance(ctx context.Context, u *unit, owner string, value asset.Asset, stakeDelta int64) error {
	code := value.Symbol.Code
	rec, err := u.tx.Balance(ctx, owner, code)
	if err != nil {
		return fmt.Errorf("no balance object found: %w", err)
	}
	if rec.Balance.Amount < value.Amount {
		return fmt.Errorf("%w: %s holds %s, needs %s", ledger.ErrInsufficientFunds, owner, rec.Balance, value)
	}
	rec, err = u.tx.ModifyBalance(ctx, owner, code, owner, func(b ledger.BalanceRecord) (ledger.BalanceRecord, error) {
		next, err := b.Balance.Sub(value)
		if err != nil {
			return b, fmt.Errorf("%w: %w", ledger.ErrInvalidArgument, err)
		}
		b.Balance = next
		return b, nil
	})
	if err != nil {
		return err
	}
	return c.onBalanceChange(ctx, u, owner, rec.Balance, owner, stakeDelta)
}

func (c *Contract) addBalance(ctx context.Context, u *unit, owner string, value asset.Asset, payer string, stakeDelta int64) error {
	code := value.Symbol.Code
	rec, err := u.tx.Balance(ctx, owner, code)
	switch {
	case isNotFound(err):
		rec = ledger.BalanceRecord{Owner: owner, Balance: value}
		if err := u.tx.EmplaceBalance(ctx, payer, rec); err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		rec, err = u.tx.ModifyBalance(ctx, owner, code, "", func(b ledger.BalanceRecord) (ledger.BalanceRecord, error) {
			next, err := b.Balance.Add(value)
			if err != nil {
				return b, fmt.Errorf("%w: %w", ledger.ErrInvalidArgument, err)
			}
			b.Balance = next
			return b, nil
		})
		if err != nil {
			return err
		}
	}
	return c.onBalanceChange(ctx, u, owner, rec.Balance, payer, stakeDelta)
}

// transfer moves quantity between two balances inside the unit. Both sides
// observe the same stake delta.
func (c *Contract) transfer(ctx context.Context, u *unit, from, to string, quantity asset.Asset, memo, payer string, stakeDelta int64) error {
	if err := c.subBalance(ctx, u, from, quantity, stakeDelta); err != nil {
		return err
	}
	if err := c.addBalance(ctx, u, to, quantity, payer, stakeDelta); err != nil {
		return err
	}
	u.notify(notification.KindTransfer, from, fmt.Sprintf("sent %s to %s: %s", quantity, to, memo))
	u.notify(notification.KindTransfer, to, fmt.Sprintf("received %s from %s: %s", quantity, from, memo))
	return nil
}

// onBalanceChange reconciles the owner's bonus meta with the current round
// after its core balance changed.
func (c *Contract) onBalanceChange(ctx context.Context, u *unit, owner string, balance asset.Asset, payer string, stakeDelta int64) error {
	if balance.Symbol != c.cfg.CoreSymbol {
		return nil
	}

	var current uint64
	round, err := u.tx.Round(ctx)
	switch {
	case err == nil:
		current = round.Round
	case !isNotFound(err):
		return err
	}

	meta, err := u.tx.Meta(ctx, owner)
	if isNotFound(err) {
		if stakeDelta < 0 {
			return invariant("account %s cannot start with negative stake %d", owner, stakeDelta)
		}
		if err := c.checkCustody(owner, balance, stakeDelta); err != nil {
			return err
		}
		return u.tx.EmplaceMeta(ctx, payer, ledger.AccountBonusMeta{
			Owner:   owner,
			Round:   current,
			Balance: balance.Amount,
			Stake:   stakeDelta,
		})
	}
	if err != nil {
		return err
	}
	if err := c.checkCustody(owner, balance, meta.Stake+stakeDelta); err != nil {
		return err
	}

	switch {
	case meta.Round+1 == current:
		if meta.Bonus.Amount != 0 {
			return invariant("account %s still holds bonus %s of round %d", owner, meta.Bonus, meta.Round)
		}
		share, err := c.calcBonus(round, owner, meta.Balance, meta.Stake)
		if err != nil {
			return err
		}
		_, err = u.tx.ModifyMeta(ctx, owner, "", func(m ledger.AccountBonusMeta) (ledger.AccountBonusMeta, error) {
			m.Bonus = share
			m.Round = current
			m.Balance = balance.Amount
			m.Stake += stakeDelta
			return m, nil
		})
		return err
	case meta.Round == current:
		_, err = u.tx.ModifyMeta(ctx, owner, "", func(m ledger.AccountBonusMeta) (ledger.AccountBonusMeta, error) {
			m.Balance = balance.Amount
			m.Stake += stakeDelta
			return m, nil
		})
		return err
	default:
		return invariant("bonus meta of %s at round %d, current round %d", owner, meta.Round, current)
	}
}

// checkCustody keeps staked funds in the stake account: its balance may only
// drop below the stake it holds for others through an unstake.
func (c *Contract) checkCustody(owner string, balance asset.Asset, stake int64) error {
	if owner != c.cfg.StakeAccount || balance.Amount >= stake {
		return nil
	}
	return invalid("%s holds %d staked, balance would drop to %s; staked funds leave through %s",
		owner, stake, balance, ActionStakedTransfer)
}
