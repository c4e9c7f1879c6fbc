package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Harshitk-cp/iotpilot/internal/access"
	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedUser(t *testing.T, env *testEnv, customerID uuid.UUID, email, password string, role domain.Role) *domain.User {
	t.Helper()
	hash, err := env.hasher.Hash(password)
	require.NoError(t, err)
	u := &domain.User{CustomerID: customerID, Email: email, PasswordHash: hash, Role: role}
	require.NoError(t, env.users.Create(context.Background(), u))
	return u
}

func TestAuthService_Login(t *testing.T) {
	env := newTestEnv(t)
	cust := env.mustCustomer(t, "Acme").ID
	u := seedUser(t, env, cust, "ops@example.com", "correct-horse", domain.RoleAdmin)

	res, err := env.auth.Login(context.Background(), " OPS@example.com ", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, res.User.ID)
	require.NotNil(t, res.User.LastLoginAt)

	p, err := env.tokens.Parse(res.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, p.UserID)
	assert.Equal(t, cust, p.CustomerID)
	assert.Equal(t, domain.RoleAdmin, p.Role)
	assert.False(t, res.ExpiresAt.IsZero())
}

func TestAuthService_LoginFailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t)
	seedUser(t, env, uuid.New(), "ops@example.com", "correct-horse", domain.RoleUser)

	_, errWrong := env.auth.Login(context.Background(), "ops@example.com", "wrong")
	_, errUnknown := env.auth.Login(context.Background(), "nobody@example.com", "wrong")

	assert.ErrorIs(t, errWrong, ErrInvalidCredentials)
	assert.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	assert.Equal(t, errWrong.Error(), errUnknown.Error())
}

func TestAuthService_MeSuperAdmin(t *testing.T) {
	env := newTestEnv(t)
	u := seedUser(t, env, uuid.Nil, "root@example.com", "password1", domain.RoleSuperAdmin)

	me, err := env.auth.Me(context.Background(), access.Principal{UserID: u.ID, Role: domain.RoleSuperAdmin})
	require.NoError(t, err)
	assert.Equal(t, "root@example.com", me.Email)

	_, err = env.auth.Me(context.Background(), access.Principal{UserID: uuid.New(), Role: domain.RoleUser, CustomerID: uuid.New()})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAuthService_ChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cust := env.mustCustomer(t, "Acme").ID
	u := seedUser(t, env, cust, "ops@example.com", "old-password", domain.RoleUser)
	p := access.Principal{UserID: u.ID, CustomerID: cust, Role: domain.RoleUser}

	assert.ErrorIs(t, env.auth.ChangePassword(ctx, p, "nope", "new-password"), ErrInvalidCredentials)
	assert.ErrorIs(t, env.auth.ChangePassword(ctx, p, "old-password", "tiny"), ErrWeakPassword)
	require.NoError(t, env.auth.ChangePassword(ctx, p, "old-password", "new-password"))

	_, err := env.auth.Login(ctx, "ops@example.com", "new-password")
	assert.NoError(t, err)
	_, err = env.auth.Login(ctx, "ops@example.com", "old-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func deactivate(t *testing.T, env *testEnv, customerID uuid.UUID) {
	t.Helper()
	off := false
	_, err := env.svc.Customers.Update(context.Background(), superAdmin(), customerID, UpdateCustomerInput{Active: &off})
	require.NoError(t, err)
}

func TestAuthService_LoginRejectsInactiveCustomer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cust := env.mustCustomer(t, "Acme").ID
	seedUser(t, env, cust, "ops@example.com", "correct-horse", domain.RoleAdmin)
	seedUser(t, env, uuid.New(), "orphan@example.com", "correct-horse", domain.RoleAdmin)
	seedUser(t, env, uuid.Nil, "root@example.com", "correct-horse", domain.RoleSuperAdmin)

	_, err := env.auth.Login(ctx, "ops@example.com", "correct-horse")
	require.NoError(t, err)

	deactivate(t, env, cust)
	_, err = env.auth.Login(ctx, "ops@example.com", "correct-horse")
	assert.ErrorIs(t, err, ErrCustomerInactive)

	_, err = env.auth.Login(ctx, "ops@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials, "a wrong password reveals nothing about the customer")

	_, err = env.auth.Login(ctx, "orphan@example.com", "correct-horse")
	assert.ErrorIs(t, err, ErrCustomerInactive, "a user whose customer is gone cannot sign in")

	_, err = env.auth.Login(ctx, "root@example.com", "correct-horse")
	assert.NoError(t, err, "SUPERADMIN belongs to no customer")
}

func TestAuthService_ResolveReadsRoleFromStore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cust := env.mustCustomer(t, "Acme").ID
	u := seedUser(t, env, cust, "ops@example.com", "password1", domain.RoleAdmin)
	claims := access.Principal{UserID: u.ID, CustomerID: cust, Role: domain.RoleAdmin, Email: u.Email}

	p, err := env.auth.Resolve(ctx, claims)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, p.Role)

	role := domain.RoleUser
	_, err = env.svc.Users.Update(ctx, adminOf(cust), cust, u.ID, UpdateUserInput{Role: &role})
	require.NoError(t, err)

	p, err = env.auth.Resolve(ctx, claims)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, p.Role, "a demotion applies to tokens issued before it")
	assert.Equal(t, cust, p.CustomerID)
}

func TestAuthService_ResolveUsesTenantCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cust := env.mustCustomer(t, "Acme").ID
	u := seedUser(t, env, cust, "ops@example.com", "password1", domain.RoleAdmin)
	claims := access.Principal{UserID: u.ID, CustomerID: cust, Role: domain.RoleAdmin}

	_, err := env.auth.Resolve(ctx, claims)
	require.NoError(t, err)

	// A write that bypasses the services publishes nothing, so the cached
	// principal stays in place.
	env.users.mu.Lock()
	env.users.users[u.ID].Role = domain.RoleUser
	env.users.mu.Unlock()
	p, err := env.auth.Resolve(ctx, claims)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, p.Role)

	_, ok, err := env.cache.Get(ctx, cust, principalKey(u.ID))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAuthService_ResolveRevokes(t *testing.T) {
	ctx := context.Background()

	t.Run("deleted user", func(t *testing.T) {
		env := newTestEnv(t)
		cust := env.mustCustomer(t, "Acme").ID
		u := seedUser(t, env, cust, "ops@example.com", "password1", domain.RoleUser)
		claims := access.Principal{UserID: u.ID, CustomerID: cust, Role: domain.RoleUser}
		_, err := env.auth.Resolve(ctx, claims)
		require.NoError(t, err)

		require.NoError(t, env.svc.Users.Delete(ctx, adminOf(cust), cust, u.ID))
		_, err = env.auth.Resolve(ctx, claims)
		assert.ErrorIs(t, err, access.ErrRevoked)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("deactivated customer", func(t *testing.T) {
		env := newTestEnv(t)
		cust := env.mustCustomer(t, "Acme").ID
		u := seedUser(t, env, cust, "ops@example.com", "password1", domain.RoleUser)
		claims := access.Principal{UserID: u.ID, CustomerID: cust, Role: domain.RoleUser}
		_, err := env.auth.Resolve(ctx, claims)
		require.NoError(t, err)

		deactivate(t, env, cust)
		_, err = env.auth.Resolve(ctx, claims)
		assert.ErrorIs(t, err, access.ErrRevoked)
		assert.ErrorIs(t, err, ErrCustomerInactive)

		on := true
		_, err = env.svc.Customers.Update(ctx, superAdmin(), cust, UpdateCustomerInput{Active: &on})
		require.NoError(t, err)
		_, err = env.auth.Resolve(ctx, claims)
		assert.NoError(t, err)
	})

	t.Run("deleted customer", func(t *testing.T) {
		env := newTestEnv(t)
		cust := env.mustCustomer(t, "Acme").ID
		u := seedUser(t, env, cust, "ops@example.com", "password1", domain.RoleUser)
		claims := access.Principal{UserID: u.ID, CustomerID: cust, Role: domain.RoleUser}
		_, err := env.auth.Resolve(ctx, claims)
		require.NoError(t, err)

		require.NoError(t, env.svc.Customers.Delete(ctx, superAdmin(), cust))
		_, err = env.auth.Resolve(ctx, claims)
		assert.ErrorIs(t, err, access.ErrRevoked)
	})

	t.Run("store failure is not a revocation", func(t *testing.T) {
		env := newTestEnv(t)
		env.users.getErr = errors.New("connection reset")
		_, err := env.auth.Resolve(ctx, access.Principal{UserID: uuid.New(), CustomerID: uuid.New()})
		require.Error(t, err)
		assert.NotErrorIs(t, err, access.ErrRevoked)
	})
}

func TestAuthService_ResolveSuperAdmin(t *testing.T) {
	env := newTestEnv(t)
	u := seedUser(t, env, uuid.Nil, "root@example.com", "password1", domain.RoleSuperAdmin)

	p, err := env.auth.Resolve(context.Background(), access.Principal{UserID: u.ID, Role: domain.RoleSuperAdmin})
	require.NoError(t, err)
	assert.True(t, p.IsSuperAdmin())
	assert.Equal(t, uuid.Nil, p.CustomerID)
}
