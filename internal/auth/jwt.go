package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fsae-team/daqserver/internal/store"
)

const tokenTTL = 12 * time.Hour

// Claims is the JWT payload issued on login.
type Claims struct {
	jwt.RegisteredClaims
	UID     int64    `json:"uid"`
	IsAdmin bool     `json:"is_admin"`
	Roles   []string `json:"roles"`
}

// Issuer signs and verifies Claims with a single HMAC secret.
type Issuer struct {
	secret []byte
}

// NewIssuer creates an Issuer from a shared HMAC secret. The secret should
// come from the JWT_SECRET environment variable; callers are responsible
// for rejecting an empty one at startup.
func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret)}
}

// Issue signs a token for u with a 12h TTL.
func (iss *Issuer) Issue(u *store.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
		UID:     u.ID,
		IsAdmin: u.IsAdmin,
		Roles:   u.Roles,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(iss.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token string, checking signature and
// expiry. It does not check that the user still exists; callers (the
// middleware) must do that against the Store.
func (iss *Issuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Method)
		}
		return iss.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
