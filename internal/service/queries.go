package service

import (
	"github.com/Harshitk-cp/iotpilot/internal/access"
	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/google/uuid"
)

type ListCustomers struct {
	Actor access.Principal
}

func (ListCustomers) QueryName() string { return "customer.list" }

type GetCustomer struct {
	Actor      access.Principal
	CustomerID uuid.UUID
}

func (GetCustomer) QueryName() string { return "customer.get" }

type ListUsers struct {
	Actor      access.Principal
	CustomerID uuid.UUID
}

func (ListUsers) QueryName() string { return "user.list" }

type GetUser struct {
	Actor      access.Principal
	CustomerID uuid.UUID
	UserID     uuid.UUID
}

func (GetUser) QueryName() string { return "user.get" }

type GetSettings struct {
	Actor      access.Principal
	CustomerID uuid.UUID
}

func (GetSettings) QueryName() string { return "settings.get" }

type GetDevice struct {
	Actor      access.Principal
	CustomerID uuid.UUID
	DeviceID   uuid.UUID
}

func (GetDevice) QueryName() string { return "device.get" }

type ListDevices struct {
	Actor      access.Principal
	CustomerID uuid.UUID
	Filter     domain.DeviceFilter
}

func (ListDevices) QueryName() string { return "device.list" }

type GetSSHSession struct {
	Actor      access.Principal
	CustomerID uuid.UUID
	SessionID  uuid.UUID
}

func (GetSSHSession) QueryName() string { return "ssh.get" }

type ListSSHSessions struct {
	Actor      access.Principal
	CustomerID uuid.UUID
	Filter     domain.SSHSessionFilter
}

func (ListSSHSessions) QueryName() string { return "ssh.list" }

type QueryMetrics struct {
	Actor      access.Principal
	CustomerID uuid.UUID
	Query      domain.MetricQuery
}

func (QueryMetrics) QueryName() string { return "metrics.query" }

type LatestMetrics struct {
	Actor      access.Principal
	CustomerID uuid.UUID
	DeviceID   uuid.UUID
}

func (LatestMetrics) QueryName() string { return "metrics.latest" }

type ExportMetrics struct {
	Actor      access.Principal
	CustomerID uuid.UUID
	Query      domain.MetricQuery
}

func (ExportMetrics) QueryName() string { return "metrics.export" }

type GetDashboard struct {
	Actor      access.Principal
	CustomerID uuid.UUID
}

func (GetDashboard) QueryName() string { return "dashboard.get" }
