package token

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/hotchain/hotledger/internal/asset"
	"github.com/hotchain/hotledger/internal/auth"
	"github.com/hotchain/hotledger/internal/ledger"
	"github.com/hotchain/hotledger/internal/notification"
)

const (
	bonusMemo      = "bonus"
	bonusCloseMemo = "bonus close"
)

// ClearResult reports what one clear invocation selected.
type ClearResult struct {
	Round   uint64   `json:"round"`
	Payouts []string `json:"payouts"`
	// Done is set once no account is left behind or holding a pending bonus
	// beyond the ones selected here.
	Done bool `json:"done"`
	// CloseScheduled is set when a close was scheduled after the payouts.
	CloseScheduled bool `json:"close_scheduled"`
}

// PayoutResult reports the outcome of paying one account.
type PayoutResult struct {
	Owner     string      `json:"owner"`
	Paid      asset.Asset `json:"paid"`
	Forfeited asset.Asset `json:"forfeited"`
}

// PayBonusArgs are the arguments of a scheduled payout.
type PayBonusArgs struct {
	To string `json:"to"`
}

// CloseBonusArgs are the arguments of a scheduled close.
type CloseBonusArgs struct {
	Force bool `json:"force"`
}

// weighted is the bonus weight of a snapshot. The stake account's balance
// holds everyone's staked funds, which count for their stakers instead.
func (c *Contract) weighted(owner string, balance, stake int64) int64 {
	if owner == c.cfg.StakeAccount {
		return balance - stake
	}
	return balance + stake
}

// calcBonus computes floor(pool * weighted / clearbase) for the round being cleared.
func (c *Contract) calcBonus(round ledger.BonusRound, owner string, balance, stake int64) (asset.Asset, error) {
	if !round.Clearing {
		return asset.Asset{}, invariant("bonus of %s calculated outside clearing of round %d", owner, round.Round)
	}
	if round.Clearbase <= 0 {
		return asset.Asset{}, invariant("round %d has clearbase %d", round.Round, round.Clearbase)
	}
	weighted := c.weighted(owner, balance, stake)
	if weighted < 0 {
		return asset.Asset{}, invariant("negative weighted balance %d of %s", weighted, owner)
	}
	if round.Bonus.Amount < 0 {
		return asset.Asset{}, invariant("negative bonus pool %s in round %d", round.Bonus, round.Round)
	}

	v := new(uint256.Int).Mul(uint256.NewInt(uint64(round.Bonus.Amount)), uint256.NewInt(uint64(weighted)))
	v.Div(v, uint256.NewInt(uint64(round.Clearbase)))
	if !v.IsUint64() || v.Uint64() > uint64(asset.MaxAmount) {
		return asset.Asset{}, invariant("bonus of %s overflows: %s", owner, v.Dec())
	}
	return asset.Asset{Amount: int64(v.Uint64()), Symbol: round.Bonus.Symbol}, nil
}

// activeRound loads the round being cleared and its pool token.
func activeRound(ctx context.Context, tx ledger.Tx) (ledger.BonusRound, ledger.SupplyRecord, error) {
	round, err := tx.Round(ctx)
	if err != nil {
		return ledger.BonusRound{}, ledger.SupplyRecord{}, err
	}
	if !round.Clearing {
		return ledger.BonusRound{}, ledger.SupplyRecord{}, invariant("bonus round %d has not been frozen", round.Round)
	}
	st, err := tx.Supply(ctx, round.Bonus.Symbol.Code)
	if err != nil {
		return ledger.BonusRound{}, ledger.SupplyRecord{}, fmt.Errorf("bonus token of round %d: %w", round.Round, err)
	}
	return round, st, nil
}

// FreezeBonus starts a new round distributing pool to core holders in
// proportion to their weighted balance at the end of the round.
func (c *Contract) FreezeBonus(ctx context.Context, pool, minimum asset.Asset, collector string) error {
	return c.run(ctx, ActionFreezeBonus, func(u *unit) error {
		if !pool.IsValid() {
			return invalid("invalid bonus quantity %s", pool)
		}
		if !minimum.IsValid() {
			return invalid("invalid minimum quantity %s", minimum)
		}
		if pool.Symbol != minimum.Symbol {
			return invalid("bonus %s and minimum %s must be the same token", pool.Symbol, minimum.Symbol)
		}
		if pool.Amount <= 0 {
			return invalid("bonus amount must be positive")
		}
		if minimum.Amount < 0 {
			return invalid("minimum bonus must not be negative")
		}
		if pool.Amount < minimum.Amount {
			return invalid("bonus %s is below minimum %s", pool, minimum)
		}
		if err := c.requireAccount(ctx, collector, "collector"); err != nil {
			return err
		}

		st, err := u.tx.Supply(ctx, pool.Symbol.Code)
		if err != nil {
			return fmt.Errorf("bonus token does not exist: %w", err)
		}
		if st.Supply.Symbol != pool.Symbol {
			return invalid("symbol precision mismatch: %s vs %s", pool.Symbol, st.Supply.Symbol)
		}
		if err := auth.RequireAuth(ctx, st.Issuer); err != nil {
			return err
		}
		core, err := u.tx.Supply(ctx, c.cfg.CoreSymbol.Code)
		if err != nil {
			return fmt.Errorf("core token does not exist: %w", err)
		}
		if core.Supply.Amount <= 0 {
			return invalid("core supply is zero, nothing to distribute over")
		}

		freeze := func(r ledger.BonusRound) ledger.BonusRound {
			r.Clearing = true
			r.Clearbase = core.Supply.Amount
			r.Bonus = pool
			r.Minimum = minimum
			r.Remaining = pool
			r.Collector = collector
			return r
		}
		_, err = u.tx.Round(ctx)
		if isNotFound(err) {
			return u.tx.EmplaceRound(ctx, st.Issuer, freeze(ledger.BonusRound{Round: 1}))
		}
		if err != nil {
			return err
		}
		_, err = u.tx.ModifyRound(ctx, "", func(r ledger.BonusRound) (ledger.BonusRound, error) {
			if r.Clearing {
				return r, invariant("round %d in process of clearing, cannot freeze bonus", r.Round)
			}
			r.Round++
			return freeze(r), nil
		})
		return err
	})
}

// ClearBonus selects at most BatchSize accounts to pay and schedules their
// payouts. Accounts never synced this round go first, then those holding the
// largest pending bonus. Once nothing is left to select and the pool is not
// drained, a close is scheduled after the payouts.
func (c *Contract) ClearBonus(ctx context.Context) (ClearResult, error) {
	var res ClearResult
	err := c.run(ctx, ActionClearBonus, func(u *unit) error {
		res = ClearResult{}
		round, st, err := activeRound(ctx, u.tx)
		if err != nil {
			return err
		}
		if err := auth.RequireAuth(ctx, st.Issuer); err != nil {
			return err
		}
		res.Round = round.Round
		k := c.cfg.BatchSize

		behind, err := u.tx.MetasBehindRound(ctx, round.Round, k)
		if err != nil {
			return err
		}
		for _, m := range behind {
			res.Payouts = append(res.Payouts, m.Owner)
		}

		if need := k - len(res.Payouts); need > 0 {
			rich, err := u.tx.MetasByBonus(ctx, need)
			if err != nil {
				return err
			}
			for _, m := range rich {
				if m.Bonus.Amount <= 0 {
					res.Done = true
					break
				}
				res.Payouts = append(res.Payouts, m.Owner)
			}
			if len(rich) < need {
				res.Done = true
			}
		}

		for _, owner := range res.Payouts {
			u.schedule(Deferred{Name: ActionPayBonus, Authority: st.Issuer, Args: PayBonusArgs{To: owner}})
		}
		if res.Done && round.Remaining.Amount > 0 {
			u.schedule(Deferred{Name: ActionCloseBonus, Authority: st.Issuer, Args: CloseBonusArgs{Force: false}})
			res.CloseScheduled = true
		}
		return nil
	})
	if err != nil {
		return ClearResult{}, err
	}
	return res, nil
}

// PayBonus syncs to with the round being cleared and pays its pending bonus
// once. Shares below the round minimum are forfeited and stay in the pool.
func (c *Contract) PayBonus(ctx context.Context, to string) (PayoutResult, error) {
	var res PayoutResult
	err := c.run(ctx, ActionPayBonus, func(u *unit) error {
		res = PayoutResult{Owner: to}
		round, st, err := activeRound(ctx, u.tx)
		if err != nil {
			return err
		}
		if err := auth.RequireAuth(ctx, st.Issuer); err != nil {
			return err
		}
		meta, err := u.tx.Meta(ctx, to)
		if err != nil {
			return err
		}

		var share asset.Asset
		switch {
		case meta.Round+1 == round.Round:
			if meta.Bonus.Amount != 0 {
				return invariant("account %s still holds bonus %s of round %d", to, meta.Bonus, meta.Round)
			}
			share, err = c.calcBonus(round, to, meta.Balance, meta.Stake)
			if err != nil {
				return err
			}
		case meta.Round == round.Round:
			share = meta.Bonus
		default:
			return invariant("bonus meta of %s at round %d, current round %d", to, meta.Round, round.Round)
		}
		if share.Amount != 0 && share.Symbol != round.Bonus.Symbol {
			return invariant("pending bonus %s of %s does not match pool %s", share, to, round.Bonus.Symbol)
		}

		if _, err := u.tx.ModifyMeta(ctx, to, "", func(m ledger.AccountBonusMeta) (ledger.AccountBonusMeta, error) {
			m.Round = round.Round
			m.Bonus = asset.Asset{}
			return m, nil
		}); err != nil {
			return err
		}

		if share.Amount <= 0 {
			return nil
		}
		if share.Amount < round.Minimum.Amount {
			res.Forfeited = share
			return nil
		}
		if _, err := u.tx.ModifyRound(ctx, "", func(r ledger.BonusRound) (ledger.BonusRound, error) {
			next, err := r.Remaining.Sub(share)
			if err != nil {
				return r, fmt.Errorf("%w: %w", ledger.ErrInvariantViolation, err)
			}
			r.Remaining = next
			return r, nil
		}); err != nil {
			return err
		}
		if err := c.mint(ctx, u, st, share); err != nil {
			return err
		}
		if to != st.Issuer {
			if err := c.transfer(ctx, u, st.Issuer, to, share, bonusMemo, st.Issuer, 0); err != nil {
				return err
			}
		}
		u.notify(notification.KindBonusPaid, to, fmt.Sprintf("round %d bonus %s", round.Round, share))
		res.Paid = share
		return nil
	})
	if err != nil {
		return PayoutResult{}, err
	}
	return res, nil
}

// CloseBonus ends the round being cleared and sweeps what is left of the pool
// to the collector. force requires the contract's own authority instead of
// the issuer's.
func (c *Contract) CloseBonus(ctx context.Context, force bool) error {
	return c.run(ctx, ActionCloseBonus, func(u *unit) error {
		round, st, err := activeRound(ctx, u.tx)
		if err != nil {
			return err
		}
		signer := st.Issuer
		if force {
			signer = c.cfg.Self
		}
		if err := auth.RequireAuth(ctx, signer); err != nil {
			return err
		}

		behind, err := u.tx.MetasBehindRound(ctx, round.Round, 1)
		if err != nil {
			return err
		}
		if len(behind) > 0 {
			return invariant("cannot close round %d: %s is still at round %d", round.Round, behind[0].Owner, behind[0].Round)
		}
		rich, err := u.tx.MetasByBonus(ctx, 1)
		if err != nil {
			return err
		}
		if len(rich) > 0 && rich[0].Bonus.Amount > 0 {
			return invariant("cannot close round %d: %s still holds bonus %s", round.Round, rich[0].Owner, rich[0].Bonus)
		}

		if _, err := u.tx.ModifyRound(ctx, "", func(r ledger.BonusRound) (ledger.BonusRound, error) {
			r.Clearing = false
			r.Clearbase = 0
			r.Bonus = asset.Asset{}
			r.Minimum = asset.Asset{}
			r.Remaining = asset.Asset{}
			r.Collector = ""
			return r, nil
		}); err != nil {
			return err
		}

		sweep := round.Remaining
		if sweep.Amount <= 0 {
			return nil
		}
		if err := c.mint(ctx, u, st, sweep); err != nil {
			return err
		}
		if round.Collector != st.Issuer {
			if err := c.transfer(ctx, u, st.Issuer, round.Collector, sweep, bonusCloseMemo, st.Issuer, 0); err != nil {
				return err
			}
		}
		u.notify(notification.KindBonusSwept, round.Collector, fmt.Sprintf("round %d leftover %s", round.Round, sweep))
		return nil
	})
}
