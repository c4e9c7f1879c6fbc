package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/Harshitk-cp/iotpilot/internal/access"
	"github.com/Harshitk-cp/iotpilot/internal/api/middleware"
	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/Harshitk-cp/iotpilot/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	return decodeJSONLimit(w, r, v, maxBodyBytes)
}

func decodeJSONLimit(w http.ResponseWriter, r *http.Request, v any, limit int64) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "request body is empty")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func urlUUID(w http.ResponseWriter, r *http.Request, param, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+what+" id")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

// requestScope returns the caller and the tenant resolved by middleware.
func requestScope(w http.ResponseWriter, r *http.Request) (access.Principal, uuid.UUID, bool) {
	p, ok := access.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return access.Principal{}, uuid.Nil, false
	}
	return p, middleware.CustomerIDFromContext(r.Context()), true
}

func principal(w http.ResponseWriter, r *http.Request) (access.Principal, bool) {
	p, ok := access.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
	}
	return p, ok
}

var (
	notFoundErrors = []error{
		service.ErrCustomerNotFound, service.ErrUserNotFound, service.ErrDeviceNotFound,
		service.ErrSessionNotFound,
	}
	conflictErrors = []error{
		service.ErrCustomerConflict, service.ErrUserConflict, service.ErrDeviceConflict,
		service.ErrSessionClosed,
	}
	badRequestErrors = []error{
		service.ErrValidation, service.ErrInvalidCustomerName, service.ErrWeakPassword,
		service.ErrInvalidRole, service.ErrTenantSuperAdmin, service.ErrCannotDeleteSelf,
		service.ErrInvalidStatus, service.ErrInvalidDeviceQuery, service.ErrEmptyCommand, service.ErrSSHUsernameRequired,
		service.ErrInvalidSessionStatus, service.ErrInvalidMetric, service.ErrInvalidMetricQuery,
		access.ErrCustomerRequired,
		domain.ErrInvalidDeviceName, domain.ErrInvalidIPAddress, domain.ErrInvalidMACAddress,
		domain.ErrInvalidEmail, domain.ErrInvalidSSHPort,
		domain.ErrInvalidTimezone, domain.ErrInvalidOfflineAfter, domain.ErrInvalidSSHIdleTimeout,
		domain.ErrInvalidRetention,
	}
)

func matches(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// errorStatus maps service errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, access.ErrForbidden), errors.Is(err, service.ErrCustomerInactive):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrInvalidDeviceKey):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrMetricBatchTooBig):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, service.ErrSSHConnect):
		return http.StatusBadGateway
	case matches(err, notFoundErrors):
		return http.StatusNotFound
	case matches(err, conflictErrors):
		return http.StatusConflict
	case matches(err, badRequestErrors):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respondError writes err as JSON. Unexpected errors are logged and hidden
// behind a generic message.
func respondError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error, action string) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error("failed to "+action,
			zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
			zap.Error(err))
		writeError(w, status, "failed to "+action)
		return
	}
	writeError(w, status, err.Error())
}
