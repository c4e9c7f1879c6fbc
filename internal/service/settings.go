package service

import (
	"context"
	"errors"
	"maps"
	"strings"
	"time"

	"github.com/Harshitk-cp/iotpilot/internal/access"
	"github.com/Harshitk-cp/iotpilot/internal/bus"
	"github.com/Harshitk-cp/iotpilot/internal/cache"
	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/Harshitk-cp/iotpilot/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const settingsCacheKey = "settings"

type SettingsService struct {
	store  domain.SettingsStore
	cache  cache.Cache
	ttl    time.Duration
	events *bus.EventBus
	logger *zap.Logger
}

func NewSettingsService(ss domain.SettingsStore, c cache.Cache, ttl time.Duration, events *bus.EventBus, logger *zap.Logger) *SettingsService {
	return &SettingsService{store: ss, cache: c, ttl: ttl, events: events, logger: logger}
}

func (s *SettingsService) Get(ctx context.Context, p access.Principal, customerID uuid.UUID) (*domain.TenantSettings, error) {
	if !access.CanAccessCustomer(p, customerID) {
		return nil, access.ErrForbidden
	}
	return s.ForCustomer(ctx, customerID)
}

// ForCustomer loads settings without an access check, falling back to
// defaults when the customer never saved any. Used by background workers.
func (s *SettingsService) ForCustomer(ctx context.Context, customerID uuid.UUID) (*domain.TenantSettings, error) {
	if cached, ok, err := cache.GetJSON[domain.TenantSettings](ctx, s.cache, customerID, settingsCacheKey); err != nil {
		s.logger.Warn("settings cache read failed", zap.String("customer_id", customerID.String()), zap.Error(err))
	} else if ok {
		return &cached, nil
	}

	ts, err := s.store.Get(ctx, customerID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		ts = domain.DefaultTenantSettings(customerID)
	}
	if err := cache.SetJSON(ctx, s.cache, customerID, settingsCacheKey, ts, s.ttl); err != nil {
		s.logger.Warn("settings cache write failed", zap.String("customer_id", customerID.String()), zap.Error(err))
	}
	return ts, nil
}

// SettingsPatch changes only the fields that are set.
type SettingsPatch struct {
	Timezone                  *string        `json:"timezone,omitempty"`
	DeviceOfflineAfterSeconds *int           `json:"device_offline_after_seconds,omitempty"`
	SSHIdleTimeoutSeconds     *int           `json:"ssh_idle_timeout_seconds,omitempty"`
	MetricsRetentionDays      *int           `json:"metrics_retention_days,omitempty"`
	Extra                     map[string]any `json:"extra,omitempty"`
}

func (s *SettingsService) Update(ctx context.Context, p access.Principal, customerID uuid.UUID, patch SettingsPatch) (*domain.TenantSettings, error) {
	if !access.CanManageCustomer(p, customerID) {
		return nil, access.ErrForbidden
	}
	current, err := s.ForCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	next := *current
	next.Extra = maps.Clone(current.Extra)
	if patch.Timezone != nil {
		next.Timezone = strings.TrimSpace(*patch.Timezone)
	}
	if patch.DeviceOfflineAfterSeconds != nil {
		next.DeviceOfflineAfterSeconds = *patch.DeviceOfflineAfterSeconds
	}
	if patch.SSHIdleTimeoutSeconds != nil {
		next.SSHIdleTimeoutSeconds = *patch.SSHIdleTimeoutSeconds
	}
	if patch.MetricsRetentionDays != nil {
		next.MetricsRetentionDays = *patch.MetricsRetentionDays
	}
	if len(patch.Extra) > 0 {
		if next.Extra == nil {
			next.Extra = make(map[string]any, len(patch.Extra))
		}
		for k, v := range patch.Extra {
			// A null value removes the key.
			if v == nil {
				delete(next.Extra, k)
				continue
			}
			next.Extra[k] = v
		}
	}
	if err := next.Validate(); err != nil {
		return nil, validationError(err)
	}

	if err := s.store.Upsert(ctx, &next); err != nil {
		return nil, err
	}
	if err := s.cache.Delete(ctx, customerID, settingsCacheKey); err != nil {
		s.logger.Warn("settings cache invalidation failed", zap.String("customer_id", customerID.String()), zap.Error(err))
	}

	publish(ctx, s.events, s.logger, domain.SettingsUpdated{EventMeta: domain.NewEventMeta(customerID), Settings: next})
	return &next, nil
}
