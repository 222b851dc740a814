package ledger

import (
	"github.com/hotchain/hotledger/internal/asset"
)

// SeedBalance is a test helper that overwrites a balance row in the in-memory
// store without touching supply or bonus bookkeeping.
func SeedBalance(s *InMemoryStore, owner string, balance asset.Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := balanceKey{owner: owner, code: balance.Symbol.Code}
	rec := s.balances[key]
	rec.Owner = owner
	rec.Balance = balance
	if rec.Payer == "" {
		rec.Payer = owner
	}
	s.balances[key] = rec
}

// SumBalances totals every balance row of a symbol code.
func SumBalances(s *InMemoryStore, code string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for k, rec := range s.balances {
		if k.code == code {
			total += rec.Balance.Amount
		}
	}
	return total
}

// Metas returns a copy of every bonus meta row.
func Metas(s *InMemoryStore) []AccountBonusMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AccountBonusMeta, 0, len(s.metas))
	s.byRound.Ascend(func(k roundKey) bool {
		out = append(out, s.metas[k.owner])
		return true
	})
	return out
}
