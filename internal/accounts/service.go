package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	maxNameLen   = 12
	minSecretLen = 8
)

var (
	// ErrInvalidName indicates a name outside the [a-z1-5.]{1,12} alphabet.
	ErrInvalidName = errors.New("invalid account name")
	// ErrInvalidCredentials covers an unknown name or a wrong secret.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrReservedName is returned when self-registration names a privileged account.
	ErrReservedName = errors.New("account name is reserved")
)

// Service manages the account registry.
type Service struct {
	repo     Repository
	reserved map[string]struct{}
}

// NewService creates a new account service. Reserved names can only be
// created through Provision.
func NewService(repo Repository, reserved ...string) *Service {
	s := &Service{repo: repo, reserved: make(map[string]struct{}, len(reserved))}
	for _, name := range reserved {
		if name != "" {
			s.reserved[name] = struct{}{}
		}
	}
	return s
}

// IsReserved reports whether name is kept for Provision.
func (s *Service) IsReserved(name string) bool {
	_, ok := s.reserved[name]
	return ok
}

// ValidName reports whether name uses 1-12 characters of a-z, 1-5 and '.',
// and does not end with a dot.
func ValidName(name string) bool {
	if len(name) == 0 || len(name) > maxNameLen || name[len(name)-1] == '.' {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '1' && r <= '5', r == '.':
		default:
			return false
		}
	}
	return true
}

// Register creates an account and stores a hashed secret.
func (s *Service) Register(ctx context.Context, creds Credentials) (Account, error) {
	if s.IsReserved(creds.Name) {
		return Account{}, fmt.Errorf("%w: %q", ErrReservedName, creds.Name)
	}
	return s.create(ctx, creds)
}

// Provision creates any account, reserved ones included. It backs operator
// tooling and must not be reachable from self-registration.
func (s *Service) Provision(ctx context.Context, creds Credentials) (Account, error) {
	return s.create(ctx, creds)
}

func (s *Service) create(ctx context.Context, creds Credentials) (Account, error) {
	if !ValidName(creds.Name) {
		return Account{}, fmt.Errorf("%w: %q", ErrInvalidName, creds.Name)
	}
	if len(creds.Secret) < minSecretLen {
		return Account{}, fmt.Errorf("secret must be at least %d characters", minSecretLen)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Secret), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, err
	}

	account := Account{
		Name:       creds.Name,
		SecretHash: hash,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, account); err != nil {
		return Account{}, err
	}
	return account, nil
}

// Authenticate verifies the secret of a registered account.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (Account, error) {
	account, err := s.repo.FindByName(ctx, creds.Name)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Account{}, ErrInvalidCredentials
		}
		return Account{}, err
	}
	if err := bcrypt.CompareHashAndPassword(account.SecretHash, []byte(creds.Secret)); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	return account, nil
}

// Find returns a registered account.
func (s *Service) Find(ctx context.Context, name string) (Account, error) {
	return s.repo.FindByName(ctx, name)
}

// IsAccount reports whether name is registered. Lookup failures other than a
// missing row are returned.
func (s *Service) IsAccount(ctx context.Context, name string) (bool, error) {
	if _, err := s.repo.FindByName(ctx, name); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// RevokeTokens bumps the token version so previously issued tokens stop verifying.
func (s *Service) RevokeTokens(ctx context.Context, name string) error {
	account, err := s.repo.FindByName(ctx, name)
	if err != nil {
		return err
	}
	return s.repo.UpdateTokenVersion(ctx, name, account.TokenVersion+1)
}
