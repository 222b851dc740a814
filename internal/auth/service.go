package auth

import (
	"context"
	"errors"
	"time"

	"github.com/hotchain/hotledger/internal/accounts"
)

// ErrInvalidToken covers malformed, forged, expired and revoked tokens.
var ErrInvalidToken = errors.New("invalid token")

// Service issues and verifies account tokens.
type Service struct {
	secret   []byte
	ttl      time.Duration
	accounts accounts.Repository
	now      func() time.Time
}

// NewService builds a token service.
func NewService(secret string, ttl time.Duration, repo accounts.Repository) *Service {
	return &Service{secret: []byte(secret), ttl: ttl, accounts: repo, now: time.Now}
}

// Token is an issued bearer token.
type Token struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Issue signs a token for a registered account.
func (s *Service) Issue(account accounts.Account) (Token, error) {
	now := s.now()
	signed, err := SignHS256(Claims{
		Subject:   account.Name,
		Version:   account.TokenVersion,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(s.ttl).Unix(),
	}, s.secret)
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: signed, ExpiresIn: int64(s.ttl.Seconds())}, nil
}

// Verify checks a token and returns the account it signs for.
func (s *Service) Verify(ctx context.Context, token string) (string, error) {
	claims, err := ParseAndVerifyHS256(token, s.secret, s.now())
	if err != nil {
		return "", ErrInvalidToken
	}
	account, err := s.accounts.FindByName(ctx, claims.Subject)
	if err != nil {
		return "", ErrInvalidToken
	}
	if account.TokenVersion != claims.Version {
		return "", ErrInvalidToken
	}
	return account.Name, nil
}
