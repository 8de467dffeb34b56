package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/nomina/internal/rbac"
	"github.com/odyssey-erp/nomina/internal/shared"
)

// Claims carried by a credential.
type Claims struct {
	Role   string `json:"role,omitempty"`
	Region string `json:"region,omitempty"`
	jwt.RegisteredClaims
}

// ParseCredential checks the structure of a compact credential and decodes its claims
// without verifying the signature. It requires exactly three segments, a decodable
// payload and an expiry claim.
func ParseCredential(raw string) (*Claims, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("auth: parse credential: %w", shared.ErrMalformedCredential)
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("auth: parse credential: %w: %v", shared.ErrMalformedCredential, err)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("auth: parse credential: %w: missing exp", shared.ErrMalformedCredential)
	}
	return claims, nil
}

// Issuer signs and verifies HS256 credentials.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	clock  shared.Clock
}

// NewIssuer constructs an Issuer.
func NewIssuer(secret string, ttl time.Duration, clock shared.Clock) *Issuer {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, clock: clock}
}

// Issue signs a credential for principal.
func (i *Issuer) Issue(principal rbac.Principal) (string, *Claims, error) {
	if len(i.secret) == 0 {
		return "", nil, errors.New("auth: issuer secret missing")
	}
	now := i.clock.Now()
	claims := &Claims{
		Role:   string(principal.Role),
		Region: principal.Region,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   principal.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", nil, fmt.Errorf("auth: sign credential: %w", err)
	}
	return signed, claims, nil
}

// Verify checks signature and expiry.
func (i *Issuer) Verify(raw string) (*Claims, error) {
	if _, err := ParseCredential(raw); err != nil {
		return nil, err
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.clock.Now), jwt.WithExpirationRequired())
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("auth: verify credential: %w", shared.ErrExpired)
	default:
		return nil, fmt.Errorf("auth: verify credential: %w: %v", shared.ErrMalformedCredential, err)
	}
}
