package domain

import (
	"errors"
	"time"
	// Timezone validation must not depend on the host's zoneinfo.
	_ "time/tzdata"

	"github.com/google/uuid"
)

// TenantSettings are the per-customer preferences editable from the admin panel.
type TenantSettings struct {
	CustomerID                uuid.UUID      `json:"customer_id"`
	Timezone                  string         `json:"timezone"`
	DeviceOfflineAfterSeconds int            `json:"device_offline_after_seconds"`
	SSHIdleTimeoutSeconds     int            `json:"ssh_idle_timeout_seconds"`
	MetricsRetentionDays      int            `json:"metrics_retention_days"`
	Extra                     map[string]any `json:"extra,omitempty"`
	UpdatedAt                 time.Time      `json:"updated_at"`
}

func DefaultTenantSettings(customerID uuid.UUID) *TenantSettings {
	return &TenantSettings{
		CustomerID:                customerID,
		Timezone:                  "UTC",
		DeviceOfflineAfterSeconds: 300,
		SSHIdleTimeoutSeconds:     900,
		MetricsRetentionDays:      30,
		Extra:                     map[string]any{},
	}
}

var (
	ErrInvalidTimezone       = errors.New("timezone is not a valid IANA location")
	ErrInvalidOfflineAfter   = errors.New("device_offline_after_seconds must be between 30 and 86400")
	ErrInvalidSSHIdleTimeout = errors.New("ssh_idle_timeout_seconds must be between 60 and 86400")
	ErrInvalidRetention      = errors.New("metrics_retention_days must be between 1 and 3650")
)

func (s *TenantSettings) Validate() error {
	// LoadLocation maps "" to UTC and "Local" to the server's zone; neither
	// names an IANA location.
	if s.Timezone == "" || s.Timezone == "Local" {
		return ErrInvalidTimezone
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return ErrInvalidTimezone
	}
	if s.DeviceOfflineAfterSeconds < 30 || s.DeviceOfflineAfterSeconds > 86400 {
		return ErrInvalidOfflineAfter
	}
	if s.SSHIdleTimeoutSeconds < 60 || s.SSHIdleTimeoutSeconds > 86400 {
		return ErrInvalidSSHIdleTimeout
	}
	if s.MetricsRetentionDays < 1 || s.MetricsRetentionDays > 3650 {
		return ErrInvalidRetention
	}
	return nil
}

func (s *TenantSettings) OfflineAfter() time.Duration {
	return time.Duration(s.DeviceOfflineAfterSeconds) * time.Second
}

func (s *TenantSettings) SSHIdleTimeout() time.Duration {
	return time.Duration(s.SSHIdleTimeoutSeconds) * time.Second
}
