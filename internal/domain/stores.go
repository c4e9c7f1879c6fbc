package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type CustomerStore interface {
	Create(ctx context.Context, c *Customer) error
	GetByID(ctx context.Context, id uuid.UUID) (*Customer, error)
	List(ctx context.Context) ([]Customer, error)
	Update(ctx context.Context, c *Customer) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type UserStore interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID, customerID uuid.UUID) (*User, error)
	// GetByEmail is unscoped: email is globally unique and used for login.
	GetByEmail(ctx context.Context, email string) (*User, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]User, error)
	Update(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID, customerID uuid.UUID) error
}

type DeviceStore interface {
	Create(ctx context.Context, d *Device) error
	GetByID(ctx context.Context, id uuid.UUID, customerID uuid.UUID) (*Device, error)
	GetByAPIKeyHash(ctx context.Context, apiKeyHash string) (*Device, error)
	List(ctx context.Context, customerID uuid.UUID, f DeviceFilter) ([]Device, error)
	Update(ctx context.Context, d *Device) error
	UpdateAPIKeyHash(ctx context.Context, id uuid.UUID, customerID uuid.UUID, apiKeyHash string) error
	Delete(ctx context.Context, id uuid.UUID, customerID uuid.UUID) error
	// MarkSeen records a heartbeat and returns the status the device had before.
	MarkSeen(ctx context.Context, id uuid.UUID, customerID uuid.UUID, at time.Time) (DeviceStatus, error)
	// MarkOfflineBefore flips online devices last seen before cutoff to offline
	// and returns the ids that changed.
	MarkOfflineBefore(ctx context.Context, customerID uuid.UUID, cutoff time.Time) ([]uuid.UUID, error)
	CountByStatus(ctx context.Context, customerID uuid.UUID) ([]DeviceStatusCount, error)
	ListRecentlySeen(ctx context.Context, customerID uuid.UUID, limit int) ([]Device, error)
}

type SSHSessionStore interface {
	Create(ctx context.Context, s *SSHSession) error
	GetByID(ctx context.Context, id uuid.UUID, customerID uuid.UUID) (*SSHSession, error)
	List(ctx context.Context, customerID uuid.UUID, f SSHSessionFilter) ([]SSHSession, error)
	Close(ctx context.Context, id uuid.UUID, status SSHSessionStatus, reason string, at time.Time) error
	// CloseAllActive marks every active session closed; used at start-up.
	CloseAllActive(ctx context.Context, reason string, at time.Time) (int64, error)
	CountActive(ctx context.Context, customerID uuid.UUID) (int, error)
	AddCommand(ctx context.Context, c *SSHCommand) error
	ListCommands(ctx context.Context, sessionID uuid.UUID) ([]SSHCommand, error)
}

type MetricStore interface {
	Insert(ctx context.Context, metrics []Metric) error
	Query(ctx context.Context, customerID uuid.UUID, q MetricQuery) ([]Metric, error)
	Latest(ctx context.Context, customerID uuid.UUID, deviceID uuid.UUID) ([]Metric, error)
	DeleteBefore(ctx context.Context, customerID uuid.UUID, cutoff time.Time) (int64, error)
}

type SettingsStore interface {
	// Get returns ErrNotFound-style errors from the store when no row exists.
	Get(ctx context.Context, customerID uuid.UUID) (*TenantSettings, error)
	Upsert(ctx context.Context, s *TenantSettings) error
}
