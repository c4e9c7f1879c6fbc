// Package access holds the tenant-isolation and authorization rules.
//
// Every request runs on behalf of a Principal. Ordinary users are confined to
// their own customer; SUPERADMIN bypasses isolation and may act on any
// customer.
package access

import (
	"context"
	"errors"

	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrForbidden        = errors.New("forbidden")
	ErrCustomerRequired = errors.New("customer context required")
	// ErrRevoked means a once-valid session names an account that can no
	// longer sign in.
	ErrRevoked          = errors.New("session is no longer valid")
)

// Principal is the authenticated caller.
type Principal struct {
	UserID     uuid.UUID   `json:"user_id"`
	CustomerID uuid.UUID   `json:"customer_id"`
	Role       domain.Role `json:"role"`
	Email      string      `json:"email"`
}

func (p Principal) IsSuperAdmin() bool {
	return p.Role == domain.RoleSuperAdmin
}

type contextKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}

// Specification is a reusable authorization predicate.
type Specification interface {
	IsSatisfiedBy(p Principal) bool
}

type SpecFunc func(p Principal) bool

func (f SpecFunc) IsSatisfiedBy(p Principal) bool { return f(p) }

func And(specs ...Specification) Specification {
	return SpecFunc(func(p Principal) bool {
		for _, s := range specs {
			if !s.IsSatisfiedBy(p) {
				return false
			}
		}
		return true
	})
}

func Or(specs ...Specification) Specification {
	return SpecFunc(func(p Principal) bool {
		for _, s := range specs {
			if s.IsSatisfiedBy(p) {
				return true
			}
		}
		return false
	})
}

func Not(spec Specification) Specification {
	return SpecFunc(func(p Principal) bool { return !spec.IsSatisfiedBy(p) })
}

var IsSuperAdmin Specification = SpecFunc(Principal.IsSuperAdmin)

func HasRoleAtLeast(role domain.Role) Specification {
	return SpecFunc(func(p Principal) bool {
		return p.Role.Valid() && p.Role.Rank() >= role.Rank()
	})
}

func BelongsTo(customerID uuid.UUID) Specification {
	return SpecFunc(func(p Principal) bool {
		return customerID != uuid.Nil && p.CustomerID == customerID
	})
}

// Require returns ErrForbidden unless spec holds for p.
func Require(spec Specification, p Principal) error {
	if !spec.IsSatisfiedBy(p) {
		return ErrForbidden
	}
	return nil
}

// CanAccessCustomer reports whether p may read data of the given customer.
func CanAccessCustomer(p Principal, customerID uuid.UUID) bool {
	return Or(IsSuperAdmin, And(HasRoleAtLeast(domain.RoleUser), BelongsTo(customerID))).IsSatisfiedBy(p)
}

// CanManageCustomer reports whether p may change users, devices and settings
// of the given customer.
func CanManageCustomer(p Principal, customerID uuid.UUID) bool {
	return Or(IsSuperAdmin, And(HasRoleAtLeast(domain.RoleAdmin), BelongsTo(customerID))).IsSatisfiedBy(p)
}

// CanAssignRole reports whether p may create or promote a user to role.
func CanAssignRole(p Principal, role domain.Role) bool {
	if !role.Valid() {
		return false
	}
	switch p.Role {
	case domain.RoleSuperAdmin:
		return true
	case domain.RoleAdmin:
		return role != domain.RoleSuperAdmin
	}
	return false
}

// ResolveCustomer picks the customer a request operates on. A zero requested
// id means the principal's own customer. Only SUPERADMIN may target another one.
func ResolveCustomer(p Principal, requested uuid.UUID) (uuid.UUID, error) {
	if requested == uuid.Nil {
		if p.CustomerID == uuid.Nil {
			return uuid.Nil, ErrCustomerRequired
		}
		return p.CustomerID, nil
	}
	if requested != p.CustomerID && !p.IsSuperAdmin() {
		return uuid.Nil, ErrForbidden
	}
	return requested, nil
}
