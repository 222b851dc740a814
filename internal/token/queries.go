package token

import (
	"context"

	"github.com/hotchain/hotledger/internal/asset"
	"github.com/hotchain/hotledger/internal/ledger"
)

// SupplyOf returns the stat row of a token.
func (c *Contract) SupplyOf(ctx context.Context, code string) (ledger.SupplyRecord, error) {
	var rec ledger.SupplyRecord
	err := c.store.View(ctx, func(tx ledger.Tx) error {
		var err error
		rec, err = tx.Supply(ctx, code)
		return err
	})
	return rec, err
}

// BalanceOf returns owner's balance of a token.
func (c *Contract) BalanceOf(ctx context.Context, owner, code string) (asset.Asset, error) {
	var bal asset.Asset
	err := c.store.View(ctx, func(tx ledger.Tx) error {
		rec, err := tx.Balance(ctx, owner, code)
		if err != nil {
			return err
		}
		bal = rec.Balance
		return nil
	})
	return bal, err
}

// Round returns the bonus round registry.
func (c *Contract) Round(ctx context.Context) (ledger.BonusRound, error) {
	var round ledger.BonusRound
	err := c.store.View(ctx, func(tx ledger.Tx) error {
		var err error
		round, err = tx.Round(ctx)
		return err
	})
	return round, err
}

// BonusMeta returns the bonus bookkeeping of owner.
func (c *Contract) BonusMeta(ctx context.Context, owner string) (ledger.AccountBonusMeta, error) {
	var meta ledger.AccountBonusMeta
	err := c.store.View(ctx, func(tx ledger.Tx) error {
		var err error
		meta, err = tx.Meta(ctx, owner)
		return err
	})
	return meta, err
}
