package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iho/walletledger/internal/domain"
)

const (
	issuer    = "walletledger"
	clockSkew = 30 * time.Second
)

// Claims represents the JWT claims. The subject names the caller.
type Claims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager issues and verifies HMAC-signed bearer tokens.
type JWTManager struct {
	secretKey     []byte
	tokenDuration time.Duration
	now           func() time.Time
}

// NewJWTManager creates a JWTManager whose tokens live for tokenDuration.
func NewJWTManager(secretKey string, tokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:     []byte(secretKey),
		tokenDuration: tokenDuration,
		now:           time.Now,
	}
}

// Generate signs a token for the principal.
func (m *JWTManager) Generate(p domain.Principal) (string, error) {
	if p.Subject == "" {
		return "", fmt.Errorf("%w: subject is required", domain.ErrInvalidArgument)
	}
	if !p.Role.IsValid() {
		return "", fmt.Errorf("%w: unknown role %q", domain.ErrInvalidArgument, p.Role)
	}

	now := m.now()
	claims := Claims{
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Subject,
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// Verify checks signature, issuer and lifetime of tokenString and returns
// the principal it was issued to. Only HS256 tokens are accepted.
func (m *JWTManager) Verify(tokenString string) (domain.Principal, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(m.now),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return m.secretKey, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.Principal{}, domain.ErrExpiredToken
	case err != nil:
		return domain.Principal{}, fmt.Errorf("%w: %w", domain.ErrInvalidToken, err)
	case claims.Subject == "" || !claims.Role.IsValid():
		return domain.Principal{}, domain.ErrInvalidToken
	}

	return domain.Principal{Subject: claims.Subject, Role: claims.Role}, nil
}
