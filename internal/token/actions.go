package token

import (
	"context"
	"fmt"

	"github.com/hotchain/hotledger/internal/asset"
	"github.com/hotchain/hotledger/internal/auth"
	"github.com/hotchain/hotledger/internal/ledger"
)

// Create registers a token with its issuer and maximum supply.
func (c *Contract) Create(ctx context.Context, issuer string, maxSupply asset.Asset) error {
	return c.run(ctx, ActionCreate, func(u *unit) error {
		if err := auth.RequireAuth(ctx, c.cfg.Self); err != nil {
			return err
		}
		if !maxSupply.IsValid() {
			return invalid("invalid supply %s", maxSupply)
		}
		if maxSupply.Amount <= 0 {
			return invalid("max-supply must be positive")
		}
		if issuer == "" {
			return invalid("issuer is required")
		}
		return u.tx.EmplaceSupply(ctx, c.cfg.Self, ledger.SupplyRecord{
			Supply:    asset.Zero(maxSupply.Symbol),
			MaxSupply: maxSupply,
			Issuer:    issuer,
		})
	})
}

// Issue mints quantity to the issuer and forwards it to to.
func (c *Contract) Issue(ctx context.Context, to string, quantity asset.Asset, memo string) error {
	return c.run(ctx, ActionIssue, func(u *unit) error {
		if err := checkMemo(memo); err != nil {
			return err
		}
		st, err := u.tx.Supply(ctx, quantity.Symbol.Code)
		if err != nil {
			return fmt.Errorf("create token before issue: %w", err)
		}
		if err := auth.RequireAuth(ctx, st.Issuer); err != nil {
			return err
		}
		if err := checkQuantity(quantity, st, "issue"); err != nil {
			return err
		}
		if err := c.mint(ctx, u, st, quantity); err != nil {
			return err
		}
		if to == st.Issuer {
			return nil
		}
		if err := c.requireAccount(ctx, to, "to"); err != nil {
			return err
		}
		return c.transfer(ctx, u, st.Issuer, to, quantity, memo, c.payerFor(ctx, st.Issuer, to), 0)
	})
}

// mint raises supply by quantity and credits the issuer.
func (c *Contract) mint(ctx context.Context, u *unit, st ledger.SupplyRecord, quantity asset.Asset) error {
	if quantity.Amount > st.MaxSupply.Amount-st.Supply.Amount {
		return fmt.Errorf("%w: %s exceeds available supply of %s", ledger.ErrSupplyCapExceeded, quantity, st.Supply.Symbol.Code)
	}
	_, err := u.tx.ModifySupply(ctx, quantity.Symbol.Code, "", func(s ledger.SupplyRecord) (ledger.SupplyRecord, error) {
		next, err := s.Supply.Add(quantity)
		if err != nil {
			return s, fmt.Errorf("%w: %w", ledger.ErrInvalidArgument, err)
		}
		s.Supply = next
		return s, nil
	})
	if err != nil {
		return err
	}
	return c.addBalance(ctx, u, st.Issuer, quantity, st.Issuer, 0)
}

// Retire burns quantity from the issuer's balance.
func (c *Contract) Retire(ctx context.Context, quantity asset.Asset, memo string) error {
	return c.run(ctx, ActionRetire, func(u *unit) error {
		if err := checkMemo(memo); err != nil {
			return err
		}
		st, err := u.tx.Supply(ctx, quantity.Symbol.Code)
		if err != nil {
			return err
		}
		if err := auth.RequireAuth(ctx, st.Issuer); err != nil {
			return err
		}
		if err := checkQuantity(quantity, st, "retire"); err != nil {
			return err
		}
		_, err = u.tx.ModifySupply(ctx, quantity.Symbol.Code, "", func(s ledger.SupplyRecord) (ledger.SupplyRecord, error) {
			next, err := s.Supply.Sub(quantity)
			if err != nil {
				return s, fmt.Errorf("%w: %w", ledger.ErrInvalidArgument, err)
			}
			if next.Amount < 0 {
				return s, fmt.Errorf("%w: retire %s exceeds supply %s", ledger.ErrInsufficientFunds, quantity, s.Supply)
			}
			s.Supply = next
			return s, nil
		})
		if err != nil {
			return err
		}
		return c.subBalance(ctx, u, st.Issuer, quantity, 0)
	})
}

// Transfer moves quantity from one account to another.
func (c *Contract) Transfer(ctx context.Context, from, to string, quantity asset.Asset, memo string) error {
	return c.run(ctx, ActionTransfer, func(u *unit) error {
		if err := c.checkTransfer(ctx, u, from, to, quantity, memo); err != nil {
			return err
		}
		return c.transfer(ctx, u, from, to, quantity, memo, c.payerFor(ctx, from, to), 0)
	})
}

// StakedTransfer moves core asset into or out of the stake custody account
// while keeping the staker's bonus weight unchanged.
func (c *Contract) StakedTransfer(ctx context.Context, from, to string, quantity asset.Asset, memo string) error {
	return c.run(ctx, ActionStakedTransfer, func(u *unit) error {
		if c.cfg.StakeAccount == "" {
			return invalid("no stake account configured")
		}
		if from != c.cfg.StakeAccount && to != c.cfg.StakeAccount {
			return invalid("staked transfer must involve stake account %s", c.cfg.StakeAccount)
		}
		if err := c.checkTransfer(ctx, u, from, to, quantity, memo); err != nil {
			return err
		}
		if quantity.Symbol != c.cfg.CoreSymbol {
			return invalid("only %s can be staked", c.cfg.CoreSymbol)
		}

		delta := quantity.Amount
		if from == c.cfg.StakeAccount {
			delta = -quantity.Amount
			meta, err := u.tx.Meta(ctx, to)
			if err != nil && !isNotFound(err) {
				return err
			}
			if meta.Stake < quantity.Amount {
				return fmt.Errorf("%w: %s has %d staked, unstaking %s", ledger.ErrInsufficientFunds, to, meta.Stake, quantity)
			}
		}
		return c.transfer(ctx, u, from, to, quantity, memo, c.payerFor(ctx, from, to), delta)
	})
}

func (c *Contract) checkTransfer(ctx context.Context, u *unit, from, to string, quantity asset.Asset, memo string) error {
	if from == to {
		return invalid("cannot transfer to self")
	}
	if err := auth.RequireAuth(ctx, from); err != nil {
		return err
	}
	if err := c.requireAccount(ctx, to, "to"); err != nil {
		return err
	}
	st, err := u.tx.Supply(ctx, quantity.Symbol.Code)
	if err != nil {
		return err
	}
	if err := checkQuantity(quantity, st, "transfer"); err != nil {
		return err
	}
	return checkMemo(memo)
}

// payerFor picks who pays for a new balance row of to.
func (c *Contract) payerFor(ctx context.Context, from, to string) string {
	if auth.HasAuth(ctx, to) {
		return to
	}
	return from
}

// Open creates a zero balance row for owner, paid by payer.
func (c *Contract) Open(ctx context.Context, owner string, symbol asset.Symbol, payer string) error {
	return c.run(ctx, ActionOpen, func(u *unit) error {
		if err := auth.RequireAuth(ctx, payer); err != nil {
			return err
		}
		if err := c.requireAccount(ctx, owner, "owner"); err != nil {
			return err
		}
		st, err := u.tx.Supply(ctx, symbol.Code)
		if err != nil {
			return fmt.Errorf("symbol does not exist: %w", err)
		}
		if st.Supply.Symbol != symbol {
			return invalid("symbol precision mismatch: %s vs %s", symbol, st.Supply.Symbol)
		}
		_, err = u.tx.Balance(ctx, owner, symbol.Code)
		if err == nil {
			return nil
		}
		if !isNotFound(err) {
			return err
		}
		zero := asset.Zero(symbol)
		if err := u.tx.EmplaceBalance(ctx, payer, ledger.BalanceRecord{Owner: owner, Balance: zero}); err != nil {
			return err
		}
		return c.onBalanceChange(ctx, u, owner, zero, payer, 0)
	})
}

// Close erases owner's zero balance row.
func (c *Contract) Close(ctx context.Context, owner string, symbol asset.Symbol) error {
	return c.run(ctx, ActionClose, func(u *unit) error {
		if err := auth.RequireAuth(ctx, owner); err != nil {
			return err
		}
		rec, err := u.tx.Balance(ctx, owner, symbol.Code)
		if err != nil {
			return fmt.Errorf("balance row already deleted or never existed: %w", err)
		}
		if rec.Balance.Amount != 0 {
			return invalid("cannot close because the balance %s is not zero", rec.Balance)
		}
		return u.tx.EraseBalance(ctx, owner, symbol.Code)
	})
}
