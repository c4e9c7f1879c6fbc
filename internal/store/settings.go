package store

import (
	"context"
	"errors"

	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SettingsStore struct {
	db *pgxpool.Pool
}

func NewSettingsStore(db *pgxpool.Pool) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) Get(ctx context.Context, customerID uuid.UUID) (*domain.TenantSettings, error) {
	ts := &domain.TenantSettings{}
	err := s.db.QueryRow(ctx,
		`SELECT customer_id, timezone, device_offline_after_seconds, ssh_idle_timeout_seconds,
		        metrics_retention_days, extra, updated_at
		 FROM tenant_settings WHERE customer_id = $1`,
		customerID,
	).Scan(&ts.CustomerID, &ts.Timezone, &ts.DeviceOfflineAfterSeconds, &ts.SSHIdleTimeoutSeconds,
		&ts.MetricsRetentionDays, &ts.Extra, &ts.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return ts, nil
}

func (s *SettingsStore) Upsert(ctx context.Context, ts *domain.TenantSettings) error {
	extra := ts.Extra
	if extra == nil {
		extra = map[string]any{}
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO tenant_settings (customer_id, timezone, device_offline_after_seconds, ssh_idle_timeout_seconds, metrics_retention_days, extra, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 ON CONFLICT (customer_id) DO UPDATE SET
		     timezone = EXCLUDED.timezone,
		     device_offline_after_seconds = EXCLUDED.device_offline_after_seconds,
		     ssh_idle_timeout_seconds = EXCLUDED.ssh_idle_timeout_seconds,
		     metrics_retention_days = EXCLUDED.metrics_retention_days,
		     extra = EXCLUDED.extra,
		     updated_at = NOW()
		 RETURNING updated_at`,
		ts.CustomerID, ts.Timezone, ts.DeviceOfflineAfterSeconds, ts.SSHIdleTimeoutSeconds, ts.MetricsRetentionDays, extra,
	).Scan(&ts.UpdatedAt)
}
