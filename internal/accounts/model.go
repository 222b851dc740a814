package accounts

import "time"

// Account is a registered on-ledger name able to sign invocations.
type Account struct {
	Name         string
	SecretHash   []byte
	TokenVersion int
	CreatedAt    time.Time
}

// Credentials request structure.
type Credentials struct {
	Name   string
	Secret string
}
