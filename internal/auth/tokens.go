package auth

import (
	"errors"
	"time"

	"github.com/Harshitk-cp/iotpilot/internal/access"
	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// SessionClaims are the JWT claims stored in the session cookie.
type SessionClaims struct {
	jwt.RegisteredClaims
	CustomerID string `json:"customer_id"`
	Role       string `json:"role"`
	Email      string `json:"email"`
}

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret []byte, issuer string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret: secret,
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// SetClock overrides the time source (tests).
func (t *TokenIssuer) SetClock(now func() time.Time) {
	t.now = now
}

func (t *TokenIssuer) TTL() time.Duration {
	return t.ttl
}

// Issue signs a token for p and returns it with its expiry.
func (t *TokenIssuer) Issue(p access.Principal) (string, time.Time, error) {
	now := t.now().UTC()
	expiresAt := now.Add(t.ttl)
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   p.UserID.String(),
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role:  string(p.Role),
		Email: p.Email,
	}
	if p.CustomerID != uuid.Nil {
		claims.CustomerID = p.CustomerID.String()
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Parse verifies signature, issuer and expiry and rebuilds the Principal.
func (t *TokenIssuer) Parse(token string) (access.Principal, error) {
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !parsed.Valid {
		return access.Principal{}, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return access.Principal{}, ErrInvalidToken
	}
	role := domain.Role(claims.Role)
	if !role.Valid() {
		return access.Principal{}, ErrInvalidToken
	}
	var customerID uuid.UUID
	if claims.CustomerID != "" {
		customerID, err = uuid.Parse(claims.CustomerID)
		if err != nil {
			return access.Principal{}, ErrInvalidToken
		}
	}
	if customerID == uuid.Nil && role != domain.RoleSuperAdmin {
		return access.Principal{}, ErrInvalidToken
	}

	return access.Principal{
		UserID:     userID,
		CustomerID: customerID,
		Role:       role,
		Email:      claims.Email,
	}, nil
}
