package token

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hotchain/hotledger/internal/asset"
	"github.com/hotchain/hotledger/internal/ledger"
	"github.com/hotchain/hotledger/internal/notification"
)

func TestCreate(t *testing.T) {
	f := newFixture(t, 0, nil)

	err := f.c.Create(as(issuer), issuer, asset.Asset{Amount: 100, Symbol: asset.MustSymbol("BNS", 4)})
	require.ErrorIs(t, err, ledger.ErrUnauthorized)

	err = f.c.Create(as(self), issuer, asset.Asset{Amount: 0, Symbol: asset.MustSymbol("BNS", 4)})
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)

	err = f.c.Create(as(self), issuer, hotAmt(1))
	require.ErrorIs(t, err, ledger.ErrDuplicate)

	require.NoError(t, f.c.Create(as(self), "bns.issuer", asset.Asset{Amount: 100, Symbol: asset.MustSymbol("BNS", 4)}))
	st, err := f.c.SupplyOf(context.Background(), "BNS")
	require.NoError(t, err)
	require.Equal(t, "bns.issuer", st.Issuer)
	require.True(t, st.Supply.IsZero())
	require.Equal(t, "0.0100 BNS", st.MaxSupply.String())
}

func TestIssueAndRetire(t *testing.T) {
	f := newFixture(t, 0, map[string]int64{"alice": 0})

	require.NoError(t, f.c.Issue(as(issuer), "alice", hotAmt(1_000), "hello"))
	require.Equal(t, int64(1_000), f.balance("alice"))
	require.Equal(t, int64(0), f.balance(issuer))
	f.requireConserved(hot.Code)

	err := f.c.Issue(as("alice"), "alice", hotAmt(1), "")
	require.ErrorIs(t, err, ledger.ErrUnauthorized)

	err = f.c.Issue(as(issuer), "alice", hotAmt(-1), "")
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)

	err = f.c.Issue(as(issuer), "alice", asset.Asset{Amount: 1, Symbol: asset.MustSymbol("HOT", 4)}, "")
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)

	err = f.c.Issue(as(issuer), "alice", hotAmt(1), strings.Repeat("x", 257))
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)

	err = f.c.Issue(as(issuer), "nobody", hotAmt(1), "")
	require.ErrorIs(t, err, ledger.ErrNotFound)

	require.NoError(t, f.c.Issue(as(issuer), issuer, hotAmt(300), ""))
	require.NoError(t, f.c.Retire(as(issuer), hotAmt(100), "burn"))
	require.Equal(t, int64(200), f.balance(issuer))
	f.requireConserved(hot.Code)

	err = f.c.Retire(as(issuer), hotAmt(201), "")
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	require.Equal(t, int64(200), f.balance(issuer))
	f.requireConserved(hot.Code)
}

func TestIssueSupplyCap(t *testing.T) {
	f := newFixture(t, 0, nil)
	bns := asset.MustSymbol("BNS", 2)
	require.NoError(t, f.c.Create(as(self), issuer, asset.Asset{Amount: 1_000, Symbol: bns}))

	require.NoError(t, f.c.Issue(as(issuer), issuer, asset.Asset{Amount: 1_000, Symbol: bns}, ""))
	err := f.c.Issue(as(issuer), issuer, asset.Asset{Amount: 1, Symbol: bns}, "")
	require.ErrorIs(t, err, ledger.ErrSupplyCapExceeded)
	f.requireConserved("BNS")
}

func TestTransfer(t *testing.T) {
	f := newFixture(t, 0, map[string]int64{"alice": 1_000, "bob": 0})

	require.NoError(t, f.c.Transfer(as("alice"), "alice", "bob", hotAmt(400), "rent"))
	require.Equal(t, int64(600), f.balance("alice"))
	require.Equal(t, int64(400), f.balance("bob"))
	f.requireConserved(hot.Code)

	require.Len(t, f.notes.messages, 2)
	require.Equal(t, notification.KindTransfer, f.notes.messages[0].Kind)
	require.Equal(t, "alice", f.notes.messages[0].Destination)
	require.Equal(t, "bob", f.notes.messages[1].Destination)

	cases := []struct {
		name     string
		ctx      context.Context
		from, to string
		quantity asset.Asset
		memo     string
		want     error
	}{
		{"self", as("alice"), "alice", "alice", hotAmt(1), "", ledger.ErrInvalidArgument},
		{"unsigned", as("bob"), "alice", "bob", hotAmt(1), "", ledger.ErrUnauthorized},
		{"unknown recipient", as("alice"), "alice", "nobody", hotAmt(1), "", ledger.ErrNotFound},
		{"zero", as("alice"), "alice", "bob", hotAmt(0), "", ledger.ErrInvalidArgument},
		{"precision", as("alice"), "alice", "bob", asset.Asset{Amount: 1, Symbol: asset.MustSymbol("HOT", 2)}, "", ledger.ErrInvalidArgument},
		{"unknown token", as("alice"), "alice", "bob", asset.Asset{Amount: 1, Symbol: asset.MustSymbol("XYZ", 2)}, "", ledger.ErrNotFound},
		{"memo", as("alice"), "alice", "bob", hotAmt(1), strings.Repeat("m", 257), ledger.ErrInvalidArgument},
		{"overdrawn", as("alice"), "alice", "bob", hotAmt(601), "", ledger.ErrInsufficientFunds},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f.notes.messages = nil
			err := f.c.Transfer(tc.ctx, tc.from, tc.to, tc.quantity, tc.memo)
			require.ErrorIs(t, err, tc.want)
			require.Empty(t, f.notes.messages)
			require.Equal(t, int64(600), f.balance("alice"))
			require.Equal(t, int64(400), f.balance("bob"))
		})
	}
}

func TestTransferPayer(t *testing.T) {
	f := newFixture(t, 0, map[string]int64{"alice": 1_000})
	f.accounts["bob"] = true
	f.accounts["carol"] = true

	require.NoError(t, f.c.Transfer(as("alice"), "alice", "bob", hotAmt(1), ""))
	require.NoError(t, f.c.Transfer(as("alice", "carol"), "alice", "carol", hotAmt(1), ""))

	require.NoError(t, f.store.View(context.Background(), func(tx ledger.Tx) error {
		rec, err := tx.Balance(context.Background(), "bob", hot.Code)
		require.NoError(t, err)
		require.Equal(t, "alice", rec.Payer)
		rec, err = tx.Balance(context.Background(), "carol", hot.Code)
		require.NoError(t, err)
		require.Equal(t, "carol", rec.Payer)
		m, err := tx.Meta(context.Background(), "carol")
		require.NoError(t, err)
		require.Equal(t, "carol", m.Payer)
		return nil
	}))
}

func TestOpenClose(t *testing.T) {
	f := newFixture(t, 0, map[string]int64{"alice": 10})
	f.accounts["bob"] = true

	err := f.c.Open(as("alice"), "bob", asset.MustSymbol("HOT", 4), "alice")
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)
	err = f.c.Open(as("bob"), "bob", hot, "alice")
	require.ErrorIs(t, err, ledger.ErrUnauthorized)

	require.NoError(t, f.c.Open(as("alice"), "bob", hot, "alice"))
	require.NoError(t, f.c.Open(as("alice"), "bob", hot, "alice"))
	m := f.meta("bob")
	require.Equal(t, uint64(0), m.Round)
	require.Equal(t, int64(0), m.Balance)
	require.Equal(t, "alice", m.Payer)

	err = f.c.Close(as("alice"), "alice", hot)
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)
	err = f.c.Close(as("alice"), "bob", hot)
	require.ErrorIs(t, err, ledger.ErrUnauthorized)

	require.NoError(t, f.c.Close(as("bob"), "bob", hot))
	_, err = f.c.BalanceOf(context.Background(), "bob", hot.Code)
	require.ErrorIs(t, err, ledger.ErrNotFound)
	err = f.c.Close(as("bob"), "bob", hot)
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestSupplyConservation(t *testing.T) {
	f := newFixture(t, 0, map[string]int64{"alice": 5_000, "bob": 3_000, "carol": 0})

	steps := []func() error{
		func() error { return f.c.Transfer(as("alice"), "alice", "carol", hotAmt(1_234), "") },
		func() error { return f.c.Issue(as(issuer), "bob", hotAmt(777), "") },
		func() error { return f.c.Transfer(as("bob"), "bob", "alice", hotAmt(3_777), "") },
		func() error { return f.c.Transfer(as("carol"), "carol", "bob", hotAmt(1_235), "") },
		func() error { return f.c.Issue(as(issuer), issuer, hotAmt(50), "") },
		func() error { return f.c.Retire(as(issuer), hotAmt(20), "") },
		func() error { return f.c.StakedTransfer(as("alice"), "alice", custody, hotAmt(500), "") },
		func() error { return f.c.StakedTransfer(as(custody), custody, "alice", hotAmt(200), "") },
	}
	for i, step := range steps {
		err := step()
		if i == 3 {
			require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
		} else {
			require.NoError(t, err, "step %d", i)
		}
		f.requireConserved(hot.Code)
	}
}

func TestStakedTransfer(t *testing.T) {
	f := newFixture(t, 0, map[string]int64{"alice": 1_000, "bob": 1_000})

	err := f.c.StakedTransfer(as("alice"), "alice", "bob", hotAmt(10), "")
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)

	bns := asset.MustSymbol("BNS", 2)
	require.NoError(t, f.c.Create(as(self), issuer, asset.Asset{Amount: 1_000, Symbol: bns}))
	require.NoError(t, f.c.Issue(as(issuer), "alice", asset.Asset{Amount: 10, Symbol: bns}, ""))
	err = f.c.StakedTransfer(as("alice"), "alice", custody, asset.Asset{Amount: 10, Symbol: bns}, "")
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)

	require.NoError(t, f.c.StakedTransfer(as("alice"), "alice", custody, hotAmt(400), "stake"))
	alice, stakeRow := f.meta("alice"), f.meta(custody)
	require.Equal(t, int64(600), alice.Balance)
	require.Equal(t, int64(400), alice.Stake)
	require.Equal(t, int64(400), stakeRow.Balance)
	require.Equal(t, int64(400), stakeRow.Stake)
	require.Equal(t, int64(1_000), f.c.weighted("alice", alice.Balance, alice.Stake))
	require.Equal(t, int64(0), f.c.weighted(custody, stakeRow.Balance, stakeRow.Stake))

	err = f.c.StakedTransfer(as(custody), custody, "bob", hotAmt(1), "")
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	err = f.c.StakedTransfer(as("alice"), custody, "alice", hotAmt(1), "")
	require.ErrorIs(t, err, ledger.ErrUnauthorized)
	err = f.c.StakedTransfer(as(custody), custody, "alice", hotAmt(401), "")
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	require.NoError(t, f.c.StakedTransfer(as(custody), custody, "alice", hotAmt(150), "unstake"))
	alice, stakeRow = f.meta("alice"), f.meta(custody)
	require.Equal(t, int64(750), alice.Balance)
	require.Equal(t, int64(250), alice.Stake)
	require.Equal(t, int64(250), stakeRow.Balance)
	require.Equal(t, int64(250), stakeRow.Stake)
	f.requireConserved(hot.Code)
}

func TestStakeAccountKeepsStakedFunds(t *testing.T) {
	f := newFixture(t, 0, map[string]int64{"alice": 1_000, "bob": 0})

	require.NoError(t, f.c.StakedTransfer(as("alice"), "alice", custody, hotAmt(500), "stake"))
	err := f.c.Transfer(as(custody), custody, "bob", hotAmt(500), "")
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)
	require.Equal(t, int64(500), f.balance(custody))
	require.Equal(t, int64(0), f.balance("bob"))

	// funds sent to the stake account outside staking may leave again
	require.NoError(t, f.c.Transfer(as("alice"), "alice", custody, hotAmt(30), "tip"))
	require.NoError(t, f.c.Transfer(as(custody), custody, "bob", hotAmt(30), ""))
	err = f.c.Transfer(as(custody), custody, "bob", hotAmt(1), "")
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)

	// the next round still settles with the stake account in it
	require.NoError(t, f.c.FreezeBonus(as(issuer), hotAmt(100), hotAmt(0), collector))
	f.settle()
	require.False(t, f.round().Clearing)
	stakeRow := f.meta(custody)
	require.Equal(t, int64(500), stakeRow.Stake)
	require.Equal(t, f.round().Round, stakeRow.Round)
	f.requireConserved(hot.Code)
}

func TestNonCoreBalancesSkipBonusMeta(t *testing.T) {
	f := newFixture(t, 0, nil)
	f.accounts["alice"] = true
	bns := asset.MustSymbol("BNS", 2)
	require.NoError(t, f.c.Create(as(self), issuer, asset.Asset{Amount: 1_000, Symbol: bns}))
	require.NoError(t, f.c.Issue(as(issuer), "alice", asset.Asset{Amount: 10, Symbol: bns}, ""))

	_, err := f.c.BonusMeta(context.Background(), "alice")
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestHookRejectsDesyncedMeta(t *testing.T) {
	f := newFixture(t, 0, map[string]int64{"alice": 100, "bob": 100})
	ctx := context.Background()

	require.NoError(t, f.store.Update(ctx, func(tx ledger.Tx) error {
		return tx.EmplaceRound(ctx, issuer, ledger.BonusRound{Round: 2})
	}))

	err := f.c.Transfer(as("alice"), "alice", "bob", hotAmt(10), "")
	require.ErrorIs(t, err, ledger.ErrInvariantViolation)
	require.Equal(t, int64(100), f.balance("alice"))
	require.Equal(t, int64(100), f.meta("bob").Balance)
}

func TestHookRejectsNegativeOpeningStake(t *testing.T) {
	f := newFixture(t, 0, nil)
	ctx := context.Background()
	err := f.store.Update(ctx, func(tx ledger.Tx) error {
		return f.c.onBalanceChange(ctx, &unit{tx: tx}, "alice", hotAmt(5), "alice", -1)
	})
	require.ErrorIs(t, err, ledger.ErrInvariantViolation)
}

func TestDispatch(t *testing.T) {
	f := newFixture(t, 0, map[string]int64{"alice": 1_000, "bob": 0})

	_, err := f.c.Dispatch(as("alice"), ActionTransfer, []byte(`{"from":"alice","to":"bob","quantity":"0.000100 HOT","memo":"x"}`))
	require.NoError(t, err)
	require.Equal(t, int64(900), f.balance("alice"))

	_, err = f.c.Dispatch(as("alice"), "steal", nil)
	require.ErrorIs(t, err, ErrUnknownAction)

	_, err = f.c.Dispatch(as("alice"), ActionTransfer, []byte(`{"from":"alice","to":"bob","quantity":"lots"}`))
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)

	_, err = f.c.Dispatch(as("alice"), ActionTransfer, []byte(`{"from":"alice","amount":1}`))
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)
}
