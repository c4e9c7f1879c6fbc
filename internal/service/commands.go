package service

import (
	"github.com/Harshitk-cp/iotpilot/internal/access"
	"github.com/google/uuid"
)

// Commands change state. Each carries the acting principal and the customer
// it was resolved against; device-originated commands carry no principal.

type CreateCustomer struct {
	Actor access.Principal
	Name  string
}

func (CreateCustomer) CommandName() string { return "customer.create" }

type UpdateCustomer struct {
	Actor      access.Principal
	CustomerID uuid.UUID
	Input      UpdateCustomerInput
}

func (UpdateCustomer) CommandName() string { return "customer.update" }

type DeleteCustomer struct {
	Actor      access.Principal
	CustomerID uuid.UUID
}

func (DeleteCustomer) CommandName() string { return "customer.delete" }

type CreateUser struct {
	Actor      access.Principal
	CustomerID uuid.UUID
	Input      CreateUserInput
}

func (CreateUser) CommandName() string { return "user.create" }

type UpdateUser struct {
	Actor      access.Principal
	CustomerID uuid.UUID
	UserID     uuid.UUID
	Input      UpdateUserInput
}

func (UpdateUser) CommandName() string { return "user.update" }

type DeleteUser struct {
	Actor      access.Principal
	CustomerID uuid.UUID
	UserID     uuid.UUID
}

func (DeleteUser) CommandName() string { return "user.delete" }

type ResetUserPassword struct {
	Actor      access.Principal
	CustomerID uuid.UUID
	UserID     uuid.UUID
	Password   string
}

func (ResetUserPassword) CommandName() string { return "user.reset_password" }

type UpdateSettings struct {
	Actor      access.Principal
	CustomerID uuid.UUID
	Patch      SettingsPatch
}

func (UpdateSettings) CommandName() string { return "settings.update" }

type RegisterDevice struct {
	Actor      access.Principal
	CustomerID uuid.UUID
	Input      RegisterDeviceInput
}

func (RegisterDevice) CommandName() string { return "device.register" }

type UpdateDevice struct {
	Actor      access.Principal
	CustomerID uuid.UUID
	DeviceID   uuid.UUID
	Input      UpdateDeviceInput
}

func (UpdateDevice) CommandName() string { return "device.update" }

type DeleteDevice struct {
	Actor      access.Principal
	CustomerID uuid.UUID
	DeviceID   uuid.UUID
}

func (DeleteDevice) CommandName() string { return "device.delete" }

type RotateDeviceKey struct {
	Actor      access.Principal
	CustomerID uuid.UUID
	DeviceID   uuid.UUID
}

func (RotateDeviceKey) CommandName() string { return "device.rotate_key" }

type RecordHeartbeat struct {
	CustomerID uuid.UUID
	DeviceID   uuid.UUID
}

func (RecordHeartbeat) CommandName() string { return "device.heartbeat" }

type RecordMetrics struct {
	CustomerID uuid.UUID
	DeviceID   uuid.UUID
	Points     []MetricPoint
}

func (RecordMetrics) CommandName() string { return "metrics.record" }

type IngestLineProtocol struct {
	CustomerID uuid.UUID
	DeviceID   uuid.UUID
	Body       []byte
}

func (IngestLineProtocol) CommandName() string { return "metrics.ingest_line_protocol" }

type StartSSHSession struct {
	Actor      access.Principal
	CustomerID uuid.UUID
	Input      StartSSHSessionInput
}

func (StartSSHSession) CommandName() string { return "ssh.start" }

type ExecuteSSHCommand struct {
	Actor      access.Principal
	CustomerID uuid.UUID
	SessionID  uuid.UUID
	Command    string
}

func (ExecuteSSHCommand) CommandName() string { return "ssh.execute" }

type EndSSHSession struct {
	Actor      access.Principal
	CustomerID uuid.UUID
	SessionID  uuid.UUID
}

func (EndSSHSession) CommandName() string { return "ssh.end" }
