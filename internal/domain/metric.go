package domain

import (
	"time"

	"github.com/google/uuid"
)

// Metric is a single time-series point reported by a device.
type Metric struct {
	DeviceID    uuid.UUID          `json:"device_id"`
	CustomerID  uuid.UUID          `json:"customer_id"`
	Measurement string             `json:"measurement"`
	Tags        map[string]string  `json:"tags,omitempty"`
	Fields      map[string]float64 `json:"fields"`
	RecordedAt  time.Time          `json:"recorded_at"`
}

type MetricQuery struct {
	DeviceID    uuid.UUID
	Measurement string
	From        time.Time
	To          time.Time
	Limit       int
}

// Tags reserved for the server. Clients cannot override them.
const (
	MetricTagCustomerID = "customer_id"
	MetricTagDeviceID   = "device_id"
)
