// Package auth issues and verifies bearer tokens and turns them into request actors.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Claims are the JWT claims carried by access tokens.
type Claims struct {
	TenantID int64  `json:"tenant_id"`
	UserID   int64  `json:"user_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Token is the response of a successful login.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Issuer signs and parses HS256 access tokens.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer constructs an Issuer.
func NewIssuer(secret, issuer string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (i *Issuer) WithNow(now func() time.Time) {
	if now != nil {
		i.now = now
	}
}

// Issue signs a token for actor.
func (i *Issuer) Issue(actor shared.Actor) (Token, error) {
	now := i.now()
	expires := now.Add(i.ttl)
	claims := Claims{
		TenantID: actor.TenantID,
		UserID:   actor.UserID,
		Role:     actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   strconv.FormatInt(actor.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Token{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return Token{AccessToken: signed, TokenType: "Bearer", ExpiresAt: expires.UTC()}, nil
}

// Parse verifies raw and returns its claims. Every failure wraps shared.ErrUnauthorized.
func (i *Issuer) Parse(raw string) (Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, fmt.Errorf("%w: token expired", shared.ErrUnauthorized)
		}
		return Claims{}, fmt.Errorf("%w: invalid token", shared.ErrUnauthorized)
	}
	if !token.Valid || claims.TenantID <= 0 || claims.UserID <= 0 {
		return Claims{}, fmt.Errorf("%w: invalid token", shared.ErrUnauthorized)
	}
	return claims, nil
}
