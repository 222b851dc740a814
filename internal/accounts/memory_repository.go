package accounts

import (
	"context"
	"fmt"
	"sync"
)

type memoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

// NewMemoryRepository builds an in-memory account store for tests and development.
func NewMemoryRepository() Repository {
	return &memoryRepository{accounts: make(map[string]Account)}
}

func (r *memoryRepository) Create(_ context.Context, account Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.accounts[account.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAccountExists, account.Name)
	}
	r.accounts[account.Name] = account
	return nil
}

func (r *memoryRepository) FindByName(_ context.Context, name string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	account, ok := r.accounts[name]
	if !ok {
		return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, name)
	}
	return account, nil
}

func (r *memoryRepository) UpdateTokenVersion(_ context.Context, name string, version int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, name)
	}
	account.TokenVersion = version
	r.accounts[name] = account
	return nil
}
