package domain

import (
	"time"

	"github.com/google/uuid"
)

type DeviceStatus string

const (
	DeviceStatusUnknown     DeviceStatus = "unknown"
	DeviceStatusOnline      DeviceStatus = "online"
	DeviceStatusOffline     DeviceStatus = "offline"
	DeviceStatusMaintenance DeviceStatus = "maintenance"
)

func (s DeviceStatus) Valid() bool {
	switch s {
	case DeviceStatusUnknown, DeviceStatusOnline, DeviceStatusOffline, DeviceStatusMaintenance:
		return true
	}
	return false
}

const DefaultSSHPort = 22

type Device struct {
	ID          uuid.UUID    `json:"id"`
	CustomerID  uuid.UUID    `json:"customer_id"`
	Name        string       `json:"name"`
	IPAddress   string       `json:"ip_address"`
	MACAddress  string       `json:"mac_address,omitempty"`
	Description string       `json:"description,omitempty"`
	Location    string       `json:"location,omitempty"`
	Status      DeviceStatus `json:"status"`
	SSHPort     int          `json:"ssh_port"`
	SSHUsername string       `json:"ssh_username,omitempty"`
	APIKeyHash  string       `json:"-"`
	LastSeenAt  *time.Time   `json:"last_seen_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// DeviceFilter narrows a device listing. Zero values mean "no constraint".
type DeviceFilter struct {
	Status DeviceStatus
	Search string
	Limit  int
	Offset int
}

// DeviceStatusCount is one row of a per-status device tally.
type DeviceStatusCount struct {
	Status DeviceStatus `json:"status"`
	Count  int          `json:"count"`
}
