package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	b64 = base64.RawURLEncoding

	errTokenFormat    = errors.New("invalid token format")
	errTokenSignature = errors.New("signature mismatch")
	errTokenExpired   = errors.New("token expired")
)

// Claims is the payload of an account token.
type Claims struct {
	Subject   string `json:"sub"`
	Version   int    `json:"ver"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// SignHS256 creates a compact JWT string using HS256.
func SignHS256(claims Claims, secret []byte) (string, error) {
	h, err := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	if err != nil {
		return "", err
	}
	c, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	unsigned := b64.EncodeToString(h) + "." + b64.EncodeToString(c)
	return unsigned + "." + b64.EncodeToString(mac(unsigned, secret)), nil
}

// ParseAndVerifyHS256 verifies the signature and expiry of token and returns its claims.
func ParseAndVerifyHS256(token string, secret []byte, now time.Time) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, errTokenFormat
	}
	sig, err := b64.DecodeString(parts[2])
	if err != nil {
		return Claims{}, errTokenFormat
	}
	if !hmac.Equal(sig, mac(parts[0]+"."+parts[1], secret)) {
		return Claims{}, errTokenSignature
	}
	payload, err := b64.DecodeString(parts[1])
	if err != nil {
		return Claims{}, errTokenFormat
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Claims{}, errTokenFormat
	}
	if claims.ExpiresAt != 0 && now.Unix() >= claims.ExpiresAt {
		return Claims{}, errTokenExpired
	}
	return claims, nil
}

func mac(unsigned string, secret []byte) []byte {
	m := hmac.New(sha256.New, secret)
	m.Write([]byte(unsigned))
	return m.Sum(nil)
}
