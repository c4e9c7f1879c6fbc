package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/Harshitk-cp/iotpilot/internal/access"
	"github.com/Harshitk-cp/iotpilot/internal/auth"
	"github.com/Harshitk-cp/iotpilot/internal/bus"
	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/Harshitk-cp/iotpilot/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const minPasswordLen = 8

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrUserConflict     = errors.New("user with this email already exists")
	ErrWeakPassword     = errors.New("password must be at least 8 characters")
	ErrInvalidRole      = errors.New("role must be SUPERADMIN, ADMIN or USER")
	ErrCannotDeleteSelf = errors.New("cannot delete your own account")
	ErrTenantSuperAdmin = errors.New("SUPERADMIN accounts belong to no customer and are created with the admin CLI")
)

type UserService struct {
	users  domain.UserStore
	hasher *auth.Hasher
	events *bus.EventBus
	logger *zap.Logger
}

func NewUserService(us domain.UserStore, hasher *auth.Hasher, events *bus.EventBus, logger *zap.Logger) *UserService {
	return &UserService{users: us, hasher: hasher, events: events, logger: logger}
}

type CreateUserInput struct {
	Email    string      `json:"email"`
	Name     string      `json:"name"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role"`
}

func checkPassword(pw string) error {
	if utf8.RuneCountInString(pw) < minPasswordLen {
		return ErrWeakPassword
	}
	return nil
}

func (s *UserService) Create(ctx context.Context, p access.Principal, customerID uuid.UUID, in CreateUserInput) (*domain.User, error) {
	if !access.CanManageCustomer(p, customerID) {
		return nil, access.ErrForbidden
	}
	if in.Role == "" {
		in.Role = domain.RoleUser
	}
	if !in.Role.Valid() {
		return nil, ErrInvalidRole
	}
	if in.Role == domain.RoleSuperAdmin {
		return nil, ErrTenantSuperAdmin
	}
	if !access.CanAssignRole(p, in.Role) {
		return nil, access.ErrForbidden
	}
	return s.create(ctx, customerID, in)
}

// CreateSuperAdmin creates a SUPERADMIN that belongs to no customer. It is
// only reachable from the admin CLI.
func (s *UserService) CreateSuperAdmin(ctx context.Context, email, name, password string) (*domain.User, error) {
	return s.create(ctx, uuid.Nil, CreateUserInput{Email: email, Name: name, Password: password, Role: domain.RoleSuperAdmin})
}

func (s *UserService) create(ctx context.Context, customerID uuid.UUID, in CreateUserInput) (*domain.User, error) {
	email, err := domain.NewEmail(in.Email)
	if err != nil {
		return nil, validationError(err)
	}
	if err := checkPassword(in.Password); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	u := &domain.User{
		CustomerID:   customerID,
		Email:        email.String(),
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		Role:         in.Role,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrUserConflict
		}
		return nil, err
	}

	publish(ctx, s.events, s.logger, domain.UserCreated{
		EventMeta: domain.NewEventMeta(customerID),
		UserID:    u.ID,
		Email:     u.Email,
		Role:      u.Role,
	})
	return u, nil
}

func (s *UserService) List(ctx context.Context, p access.Principal, customerID uuid.UUID) ([]domain.User, error) {
	if !access.CanManageCustomer(p, customerID) {
		return nil, access.ErrForbidden
	}
	return s.users.ListByCustomer(ctx, customerID)
}

func (s *UserService) Get(ctx context.Context, p access.Principal, customerID, id uuid.UUID) (*domain.User, error) {
	if !access.CanManageCustomer(p, customerID) && id != p.UserID {
		return nil, access.ErrForbidden
	}
	u, err := s.users.GetByID(ctx, id, customerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

type UpdateUserInput struct {
	Name *string      `json:"name,omitempty"`
	Role *domain.Role `json:"role,omitempty"`
}

func (s *UserService) Update(ctx context.Context, p access.Principal, customerID, id uuid.UUID, in UpdateUserInput) (*domain.User, error) {
	if !access.CanManageCustomer(p, customerID) {
		return nil, access.ErrForbidden
	}
	u, err := s.Get(ctx, p, customerID, id)
	if err != nil {
		return nil, err
	}
	// An ADMIN cannot touch a SUPERADMIN's account.
	if !access.CanAssignRole(p, u.Role) {
		return nil, access.ErrForbidden
	}
	if in.Name != nil {
		u.Name = strings.TrimSpace(*in.Name)
	}
	if in.Role != nil {
		if !in.Role.Valid() {
			return nil, ErrInvalidRole
		}
		if *in.Role == domain.RoleSuperAdmin {
			return nil, ErrTenantSuperAdmin
		}
		if !access.CanAssignRole(p, *in.Role) {
			return nil, access.ErrForbidden
		}
		u.Role = *in.Role
	}
	if err := s.users.Update(ctx, u); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	publish(ctx, s.events, s.logger, domain.UserUpdated{
		EventMeta: domain.NewEventMeta(customerID),
		UserID:    u.ID,
		Role:      u.Role,
	})
	return u, nil
}

func (s *UserService) Delete(ctx context.Context, p access.Principal, customerID, id uuid.UUID) error {
	if !access.CanManageCustomer(p, customerID) {
		return access.ErrForbidden
	}
	if id == p.UserID {
		return ErrCannotDeleteSelf
	}
	u, err := s.Get(ctx, p, customerID, id)
	if err != nil {
		return err
	}
	if !access.CanAssignRole(p, u.Role) {
		return access.ErrForbidden
	}
	if err := s.users.Delete(ctx, id, customerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	publish(ctx, s.events, s.logger, domain.UserDeleted{EventMeta: domain.NewEventMeta(customerID), UserID: id})
	return nil
}

// ResetPassword sets a new password on another user's account.
func (s *UserService) ResetPassword(ctx context.Context, p access.Principal, customerID, id uuid.UUID, password string) error {
	if !access.CanManageCustomer(p, customerID) {
		return access.ErrForbidden
	}
	u, err := s.Get(ctx, p, customerID, id)
	if err != nil {
		return err
	}
	if !access.CanAssignRole(p, u.Role) {
		return access.ErrForbidden
	}
	if err := checkPassword(password); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, u.ID, hash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}
