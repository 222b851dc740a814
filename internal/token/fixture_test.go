package token

import (
	"context"
	"encoding/json"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hotchain/hotledger/internal/asset"
	"github.com/hotchain/hotledger/internal/auth"
	"github.com/hotchain/hotledger/internal/ledger"
	"github.com/hotchain/hotledger/internal/logging"
	"github.com/hotchain/hotledger/internal/notification"
)

const (
	self      = "hot.token"
	custody   = "hot.stake"
	issuer    = "hot.issuer"
	collector = "treasury"
)

var hot = asset.MustSymbol("HOT", 6)

func hotAmt(n int64) asset.Asset {
	return asset.Asset{Amount: n, Symbol: hot}
}

func as(signers ...string) context.Context {
	return auth.WithSigners(context.Background(), signers...)
}

type accountSet map[string]bool

func (s accountSet) IsAccount(_ context.Context, name string) (bool, error) {
	return s[name], nil
}

type recordingScheduler struct {
	actions []Deferred
}

func (r *recordingScheduler) Schedule(_ context.Context, actions ...Deferred) error {
	r.actions = append(r.actions, actions...)
	return nil
}

type recordingNotifier struct {
	messages []notification.Message
}

func (r *recordingNotifier) Send(_ context.Context, msg notification.Message) error {
	r.messages = append(r.messages, msg)
	return nil
}

type fixture struct {
	t        *testing.T
	store    *ledger.InMemoryStore
	accounts accountSet
	sched    *recordingScheduler
	notes    *recordingNotifier
	c        *Contract
}

// newFixture creates HOT and issues each holder its balance. Holders with a
// zero balance get an opened row.
func newFixture(t *testing.T, batch int, holders map[string]int64) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		store:    ledger.NewInMemory(),
		accounts: accountSet{self: true, custody: true, issuer: true, collector: true},
		sched:    &recordingScheduler{},
		notes:    &recordingNotifier{},
	}
	f.c = New(Config{Self: self, StakeAccount: custody, CoreSymbol: hot, BatchSize: batch},
		f.store, f.accounts, f.sched, f.notes, logging.Discard())

	require.NoError(t, f.c.Create(as(self), issuer, hotAmt(asset.MaxAmount)))
	names := make([]string, 0, len(holders))
	for name := range holders {
		f.accounts[name] = true
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if amount := holders[name]; amount > 0 {
			require.NoError(t, f.c.Issue(as(issuer), name, hotAmt(amount), "genesis"))
		} else {
			require.NoError(t, f.c.Open(as(name), name, hot, name))
		}
	}
	f.notes.messages = nil
	return f
}

func (f *fixture) balance(owner string) int64 {
	f.t.Helper()
	bal, err := f.c.BalanceOf(context.Background(), owner, hot.Code)
	if err != nil {
		return 0
	}
	return bal.Amount
}

func (f *fixture) meta(owner string) ledger.AccountBonusMeta {
	f.t.Helper()
	m, err := f.c.BonusMeta(context.Background(), owner)
	require.NoError(f.t, err)
	return m
}

func (f *fixture) round() ledger.BonusRound {
	f.t.Helper()
	r, err := f.c.Round(context.Background())
	require.NoError(f.t, err)
	return r
}

func (f *fixture) requireConserved(code string) {
	f.t.Helper()
	st, err := f.c.SupplyOf(context.Background(), code)
	require.NoError(f.t, err)
	require.Equal(f.t, st.Supply.Amount, ledger.SumBalances(f.store, code), "sum of %s balances", code)
}

// drain runs scheduled actions in order with their authority as signer.
func (f *fixture) drain() []PayoutResult {
	f.t.Helper()
	var paid []PayoutResult
	for len(f.sched.actions) > 0 {
		d := f.sched.actions[0]
		f.sched.actions = f.sched.actions[1:]
		raw, err := json.Marshal(d.Args)
		require.NoError(f.t, err)
		out, err := f.c.Dispatch(as(d.Authority), d.Name, raw)
		require.NoError(f.t, err, "deferred %s", d.Name)
		if p, ok := out.(PayoutResult); ok {
			paid = append(paid, p)
		}
	}
	return paid
}

// settle clears the active round until it closes and returns the number of
// clear invocations it took.
func (f *fixture) settle() int {
	f.t.Helper()
	for clears := 1; clears <= 1000; clears++ {
		res, err := f.c.ClearBonus(as(issuer))
		require.NoError(f.t, err)
		require.LessOrEqual(f.t, len(res.Payouts), f.c.cfg.BatchSize)
		f.drain()
		if !f.round().Clearing {
			return clears
		}
		if res.Done {
			require.NoError(f.t, f.c.CloseBonus(as(issuer), false))
			return clears
		}
	}
	f.t.Fatal("round did not close")
	return 0
}

func behindCount(t *testing.T, s *ledger.InMemoryStore, round uint64) int {
	t.Helper()
	n := 0
	for _, m := range ledger.Metas(s) {
		if m.Round < round {
			n++
		}
	}
	return n
}

func pendingCount(s *ledger.InMemoryStore) int {
	n := 0
	for _, m := range ledger.Metas(s) {
		if m.Bonus.Amount > 0 {
			n++
		}
	}
	return n
}
