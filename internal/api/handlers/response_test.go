package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Harshitk-cp/iotpilot/internal/access"
	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/Harshitk-cp/iotpilot/internal/service"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{access.ErrForbidden, http.StatusForbidden},
		{service.ErrCustomerInactive, http.StatusForbidden},
		{service.ErrTenantSuperAdmin, http.StatusBadRequest},
		{service.ErrInvalidCredentials, http.StatusUnauthorized},
		{service.ErrInvalidDeviceKey, http.StatusUnauthorized},
		{service.ErrMetricBatchTooBig, http.StatusRequestEntityTooLarge},
		{fmt.Errorf("%w: dial tcp: refused", service.ErrSSHConnect), http.StatusBadGateway},
		{service.ErrDeviceNotFound, http.StatusNotFound},
		{service.ErrSessionNotFound, http.StatusNotFound},
		{service.ErrSessionClosed, http.StatusConflict},
		{service.ErrUserConflict, http.StatusConflict},
		{fmt.Errorf("%w: %w", service.ErrValidation, domain.ErrInvalidMACAddress), http.StatusBadRequest},
		{access.ErrCustomerRequired, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorStatus(tt.err), tt.err.Error())
	}
}

func TestRespondErrorHidesInternalErrors(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	logger := zap.New(core)

	rec := httptest.NewRecorder()
	respondError(rec, httptest.NewRequest(http.MethodGet, "/", nil), logger, errors.New("pq: connection reset"), "list devices")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"failed to list devices"}`, rec.Body.String())
	assert.Equal(t, 1, logs.Len())

	rec = httptest.NewRecorder()
	respondError(rec, httptest.NewRequest(http.MethodGet, "/", nil), logger, service.ErrDeviceNotFound, "get device")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"device not found"}`, rec.Body.String())
	assert.Equal(t, 1, logs.Len(), "expected errors are not logged")
}

func TestDecodeJSONLimit(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	tests := []struct {
		name   string
		body   string
		limit  int64
		ok     bool
		status int
	}{
		{"valid", `{"name":"pi"}`, 64, true, http.StatusOK},
		{"empty", ``, 64, false, http.StatusBadRequest},
		{"unknown field", `{"name":"pi","extra":1}`, 64, false, http.StatusBadRequest},
		{"malformed", `{"name":`, 64, false, http.StatusBadRequest},
		{"too large", `{"name":"` + strings.Repeat("a", 100) + `"}`, 32, false, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var p payload
			ok := decodeJSONLimit(rec, req, &p, tt.limit)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, "pi", p.Name)
				return
			}
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}
