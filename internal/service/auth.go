package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Harshitk-cp/iotpilot/internal/access"
	"github.com/Harshitk-cp/iotpilot/internal/auth"
	"github.com/Harshitk-cp/iotpilot/internal/bus"
	"github.com/Harshitk-cp/iotpilot/internal/cache"
	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/Harshitk-cp/iotpilot/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

type AuthService struct {
	users  domain.UserStore
	gate   customerGate
	cache  cache.Cache
	ttl    time.Duration
	hasher *auth.Hasher
	tokens *auth.TokenIssuer
	logger *zap.Logger

	// dummyHash keeps unknown-email logins as slow as wrong-password ones.
	dummyHash string
	now       func() time.Time
}

func NewAuthService(us domain.UserStore, cs domain.CustomerStore, c cache.Cache, ttl time.Duration, hasher *auth.Hasher, tokens *auth.TokenIssuer, logger *zap.Logger) *AuthService {
	dummy, err := hasher.Hash("iotpilot-dummy-password")
	if err != nil {
		logger.Warn("failed to precompute dummy hash", zap.Error(err))
	}
	return &AuthService{
		users:     us,
		gate:      customerGate{customers: cs, cache: c, ttl: ttl, logger: logger},
		cache:     c,
		ttl:       ttl,
		hasher:    hasher,
		tokens:    tokens,
		logger:    logger,
		dummyHash: dummy,
		now:       utcNow,
	}
}

type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *domain.User `json:"user"`
}

func principalOf(u *domain.User) access.Principal {
	return access.Principal{UserID: u.ID, CustomerID: u.CustomerID, Role: u.Role, Email: u.Email}
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = s.hasher.Compare(s.dummyHash, password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := s.hasher.Compare(u.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if u.CustomerID != uuid.Nil {
		if err := s.gate.requireActive(ctx, u.CustomerID); err != nil {
			return nil, err
		}
	}

	token, exp, err := s.tokens.Issue(principalOf(u))
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.users.UpdateLastLogin(ctx, u.ID, now); err != nil {
		s.logger.Warn("failed to record last login", zap.String("user_id", u.ID.String()), zap.Error(err))
	} else {
		u.LastLoginAt = &now
	}
	return &LoginResult{Token: token, ExpiresAt: exp, User: u}, nil
}

func principalKey(userID uuid.UUID) string {
	return "principal:" + userID.String()
}

// Resolve reloads the principal a session token was issued for. The token
// only proves who the caller was; role and customer standing come from the
// store, through the tenant cache.
func (s *AuthService) Resolve(ctx context.Context, claims access.Principal) (access.Principal, error) {
	key := principalKey(claims.UserID)
	p, ok, err := cache.GetJSON[access.Principal](ctx, s.cache, claims.CustomerID, key)
	if err != nil {
		s.logger.Warn("principal cache read failed", zap.String("user_id", claims.UserID.String()), zap.Error(err))
	}
	if !ok {
		u, err := s.users.GetByID(ctx, claims.UserID, claims.CustomerID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return access.Principal{}, fmt.Errorf("%w: %w", access.ErrRevoked, ErrUserNotFound)
			}
			return access.Principal{}, err
		}
		p = principalOf(u)
		if err := cache.SetJSON(ctx, s.cache, p.CustomerID, key, p, s.ttl); err != nil {
			s.logger.Warn("principal cache write failed", zap.String("user_id", p.UserID.String()), zap.Error(err))
		}
	}
	if p.CustomerID != uuid.Nil {
		if err := s.gate.requireActive(ctx, p.CustomerID); err != nil {
			if errors.Is(err, ErrCustomerInactive) {
				return access.Principal{}, fmt.Errorf("%w: %w", access.ErrRevoked, err)
			}
			return access.Principal{}, err
		}
	}
	return p, nil
}

// InvalidateOn drops a cached principal whenever its user changes. Customer
// changes clear the whole tenant in CustomerService. The returned func
// removes the subscriptions.
func (s *AuthService) InvalidateOn(events *bus.EventBus) func() {
	drop := func(ctx context.Context, customerID, userID uuid.UUID) error {
		return s.cache.Delete(ctx, customerID, principalKey(userID))
	}
	unsubs := []func(){
		events.Subscribe(domain.EventUserUpdated, func(ctx context.Context, e bus.Event) error {
			if ev, ok := e.(domain.UserUpdated); ok {
				return drop(ctx, ev.CustomerID, ev.UserID)
			}
			return nil
		}),
		events.Subscribe(domain.EventUserDeleted, func(ctx context.Context, e bus.Event) error {
			if ev, ok := e.(domain.UserDeleted); ok {
				return drop(ctx, ev.CustomerID, ev.UserID)
			}
			return nil
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Me returns the caller's own account.
func (s *AuthService) Me(ctx context.Context, p access.Principal) (*domain.User, error) {
	u, err := s.users.GetByID(ctx, p.UserID, p.CustomerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, p access.Principal, oldPassword, newPassword string) error {
	u, err := s.Me(ctx, p)
	if err != nil {
		return err
	}
	if err := s.hasher.Compare(u.PasswordHash, oldPassword); err != nil {
		return ErrInvalidCredentials
	}
	if err := checkPassword(newPassword); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, u.ID, hash)
}
