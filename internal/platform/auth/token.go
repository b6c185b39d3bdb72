package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims carried by every session token the platform issues.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

var (
	ErrMissingToken = errors.New("missing credential")
	ErrInvalidToken = errors.New("invalid or expired credential")
)

// TokenIssuer issues and verifies HS256 session tokens. The platform is its
// own identity provider; there is no external IdP in the deployment.
type TokenIssuer struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
}

func NewTokenIssuer(signingKey []byte, issuer string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{signingKey: signingKey, issuer: issuer, ttl: ttl}
}

// Issue creates a signed token for the given user.
func (t *TokenIssuer) Issue(userID uuid.UUID, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
		Role: role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token string, returning the subject id and
// role. Expired or tampered tokens fail with ErrInvalidToken.
func (t *TokenIssuer) Verify(tokenStr string) (uuid.UUID, string, error) {
	tokenStr = NormalizeCredential(tokenStr)
	if tokenStr == "" {
		return uuid.Nil, "", ErrMissingToken
	}

	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(tok *jwt.Token) (interface{}, error) {
		return t.signingKey, nil
	}, opts...)
	if err != nil || !token.Valid {
		return uuid.Nil, "", ErrInvalidToken
	}

	uid, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, "", ErrInvalidToken
	}
	return uid, claims.Role, nil
}

// NormalizeCredential strips whitespace and stray quote characters that some
// clients leave around tokens pulled from local storage.
func NormalizeCredential(raw string) string {
	return strings.Trim(strings.TrimSpace(raw), `"'`)
}
