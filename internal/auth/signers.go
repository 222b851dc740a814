package auth

import (
	"context"
	"fmt"
	"slices"

	"github.com/hotchain/hotledger/internal/ledger"
)

type signersKey struct{}

// WithSigners returns a context carrying the accounts that signed the current
// invocation, replacing any previous set.
func WithSigners(ctx context.Context, accounts ...string) context.Context {
	return context.WithValue(ctx, signersKey{}, slices.Clone(accounts))
}

// Signers returns the accounts that signed the current invocation.
func Signers(ctx context.Context) []string {
	signers, _ := ctx.Value(signersKey{}).([]string)
	return signers
}

// HasAuth reports whether account signed the current invocation.
func HasAuth(ctx context.Context, account string) bool {
	return account != "" && slices.Contains(Signers(ctx), account)
}

// RequireAuth fails with ledger.ErrUnauthorized unless account signed the
// current invocation.
func RequireAuth(ctx context.Context, account string) error {
	if !HasAuth(ctx, account) {
		return fmt.Errorf("%w of %s", ledger.ErrUnauthorized, account)
	}
	return nil
}
