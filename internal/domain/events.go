package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event names published on the event bus.
const (
	EventDeviceRegistered    = "device.registered"
	EventDeviceUpdated       = "device.updated"
	EventDeviceDeleted       = "device.deleted"
	EventDeviceStatusChanged = "device.status_changed"
	EventSSHSessionStarted   = "ssh.session_started"
	EventSSHSessionEnded     = "ssh.session_ended"
	EventSSHCommandExecuted  = "ssh.command_executed"
	EventMetricRecorded      = "metric.recorded"
	EventSettingsUpdated     = "settings.updated"
	EventUserCreated         = "user.created"
	EventUserUpdated         = "user.updated"
	EventUserDeleted         = "user.deleted"
	EventCustomerCreated     = "customer.created"
	EventCustomerUpdated     = "customer.updated"
	EventCustomerDeleted     = "customer.deleted"
)

// Event is implemented by every domain event.
type Event interface {
	EventName() string
	Customer() uuid.UUID
	OccurredAt() time.Time
}

// EventMeta carries the fields common to all events.
type EventMeta struct {
	CustomerID uuid.UUID `json:"customer_id"`
	At         time.Time `json:"at"`
}

func NewEventMeta(customerID uuid.UUID) EventMeta {
	return EventMeta{CustomerID: customerID, At: time.Now().UTC()}
}

func (m EventMeta) Customer() uuid.UUID   { return m.CustomerID }
func (m EventMeta) OccurredAt() time.Time { return m.At }

type DeviceRegistered struct {
	EventMeta
	Device Device `json:"device"`
}

func (DeviceRegistered) EventName() string { return EventDeviceRegistered }

type DeviceUpdated struct {
	EventMeta
	Device Device `json:"device"`
}

func (DeviceUpdated) EventName() string { return EventDeviceUpdated }

type DeviceDeleted struct {
	EventMeta
	DeviceID uuid.UUID `json:"device_id"`
}

func (DeviceDeleted) EventName() string { return EventDeviceDeleted }

type DeviceStatusChanged struct {
	EventMeta
	DeviceID uuid.UUID    `json:"device_id"`
	From     DeviceStatus `json:"from"`
	To       DeviceStatus `json:"to"`
}

func (DeviceStatusChanged) EventName() string { return EventDeviceStatusChanged }

type SSHSessionStarted struct {
	EventMeta
	Session SSHSession `json:"session"`
}

func (SSHSessionStarted) EventName() string { return EventSSHSessionStarted }

type SSHSessionEnded struct {
	EventMeta
	Session SSHSession `json:"session"`
}

func (SSHSessionEnded) EventName() string { return EventSSHSessionEnded }

type SSHCommandExecuted struct {
	EventMeta
	DeviceID uuid.UUID  `json:"device_id"`
	UserID   uuid.UUID  `json:"user_id"`
	Command  SSHCommand `json:"command"`
}

func (SSHCommandExecuted) EventName() string { return EventSSHCommandExecuted }

type MetricRecorded struct {
	EventMeta
	Metric Metric `json:"metric"`
}

func (MetricRecorded) EventName() string { return EventMetricRecorded }

type SettingsUpdated struct {
	EventMeta
	Settings TenantSettings `json:"settings"`
}

func (SettingsUpdated) EventName() string { return EventSettingsUpdated }

type UserCreated struct {
	EventMeta
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Role   Role      `json:"role"`
}

func (UserCreated) EventName() string { return EventUserCreated }

type UserUpdated struct {
	EventMeta
	UserID uuid.UUID `json:"user_id"`
	Role   Role      `json:"role"`
}

func (UserUpdated) EventName() string { return EventUserUpdated }

type UserDeleted struct {
	EventMeta
	UserID uuid.UUID `json:"user_id"`
}

func (UserDeleted) EventName() string { return EventUserDeleted }

type CustomerCreated struct {
	EventMeta
	Name string `json:"name"`
}

func (CustomerCreated) EventName() string { return EventCustomerCreated }

type CustomerUpdated struct {
	EventMeta
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

func (CustomerUpdated) EventName() string { return EventCustomerUpdated }

type CustomerDeleted struct {
	EventMeta
}

func (CustomerDeleted) EventName() string { return EventCustomerDeleted }
