package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Harshitk-cp/iotpilot/internal/access"
	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/google/uuid"
)

type contextKey string

const (
	deviceContextKey   contextKey = "device"
	customerContextKey contextKey = "customer_id"

	// CustomerIDHeader lets a SUPERADMIN pick the tenant a request operates on.
	CustomerIDHeader = "X-Customer-ID"
	// DeviceKeyHeader carries a device API key. A bearer token is accepted too.
	DeviceKeyHeader = "X-Device-Key"
)

// TokenParser turns a session token into the principal it was issued for.
type TokenParser interface {
	Parse(token string) (access.Principal, error)
}

// PrincipalResolver reloads the principal named by a parsed token. It
// returns an error wrapping access.ErrRevoked when the account or its
// customer may no longer sign in.
type PrincipalResolver interface {
	Resolve(ctx context.Context, claims access.Principal) (access.Principal, error)
}

// DeviceAuthenticator resolves a raw device API key.
type DeviceAuthenticator interface {
	Authenticate(ctx context.Context, key string) (*domain.Device, error)
}

func DeviceFromContext(ctx context.Context) *domain.Device {
	d, _ := ctx.Value(deviceContextKey).(*domain.Device)
	return d
}

// CustomerIDFromContext returns the tenant resolved by the Tenant middleware.
func CustomerIDFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(customerContextKey).(uuid.UUID)
	return id
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// SessionAuth accepts a session token from the Authorization header or the
// session cookie, re-resolves the principal it names and stores that in the
// request context.
func SessionAuth(tokens TokenParser, principals PrincipalResolver, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				if c, err := r.Cookie(cookieName); err == nil {
					token = c.Value
				}
			}
			if token == "" {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			claims, err := tokens.Parse(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid or expired session")
				return
			}
			p, err := principals.Resolve(r.Context(), claims)
			switch {
			case errors.Is(err, access.ErrRevoked):
				writeError(w, http.StatusUnauthorized, "session is no longer valid")
				return
			case err != nil:
				writeError(w, http.StatusInternalServerError, "failed to resolve session")
				return
			}

			annotate(r.Context(), func(info *requestInfo) {
				info.userID = p.UserID.String()
				if p.CustomerID != uuid.Nil {
					info.customerID = p.CustomerID.String()
				}
			})
			next.ServeHTTP(w, r.WithContext(access.WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole rejects principals ranked below role.
func RequireRole(role domain.Role) func(http.Handler) http.Handler {
	spec := access.HasRoleAtLeast(role)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := access.PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if err := access.Require(spec, p); err != nil {
				writeError(w, http.StatusForbidden, err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Tenant resolves the customer a request operates on. Regular users are
// pinned to their own customer; a SUPERADMIN names one with the
// X-Customer-ID header or the customer_id query parameter.
func Tenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := access.PrincipalFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		requested := uuid.Nil
		raw := r.Header.Get(CustomerIDHeader)
		if raw == "" {
			raw = r.URL.Query().Get("customer_id")
		}
		if raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid customer id")
				return
			}
			requested = id
		}

		customerID, err := access.ResolveCustomer(p, requested)
		switch {
		case errors.Is(err, access.ErrCustomerRequired):
			writeError(w, http.StatusBadRequest, "customer id required: set "+CustomerIDHeader)
			return
		case err != nil:
			writeError(w, http.StatusForbidden, err.Error())
			return
		}

		annotate(r.Context(), func(info *requestInfo) { info.customerID = customerID.String() })
		ctx := context.WithValue(r.Context(), customerContextKey, customerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// DeviceKeyAuth authenticates a device by its API key.
func DeviceKeyAuth(devices DeviceAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(DeviceKeyHeader)
			if key == "" {
				key = bearerToken(r)
			}
			if key == "" {
				writeError(w, http.StatusUnauthorized, "missing device key")
				return
			}

			device, err := devices.Authenticate(r.Context(), key)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid device key")
				return
			}

			annotate(r.Context(), func(info *requestInfo) {
				info.customerID = device.CustomerID.String()
				info.deviceID = device.ID.String()
			})
			ctx := context.WithValue(r.Context(), deviceContextKey, device)
			ctx = context.WithValue(ctx, customerContextKey, device.CustomerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
