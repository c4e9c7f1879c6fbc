package domain

import (
	"time"

	"github.com/google/uuid"
)

type SSHSessionStatus string

const (
	SSHSessionActive SSHSessionStatus = "active"
	SSHSessionClosed SSHSessionStatus = "closed"
	SSHSessionFailed SSHSessionStatus = "failed"
)

// Reasons recorded when a session ends.
const (
	EndReasonUser     = "user"
	EndReasonIdle     = "idle"
	EndReasonOrphaned = "orphaned"
	EndReasonError    = "error"
	EndReasonShutdown = "shutdown"
)

// SSHSession tracks one interactive connection from a user to a device.
type SSHSession struct {
	ID             uuid.UUID        `json:"id"`
	CustomerID     uuid.UUID        `json:"customer_id"`
	DeviceID       uuid.UUID        `json:"device_id"`
	UserID         uuid.UUID        `json:"user_id"`
	Username       string           `json:"username"`
	Status         SSHSessionStatus `json:"status"`
	StartedAt      time.Time        `json:"started_at"`
	LastActivityAt time.Time        `json:"last_activity_at"`
	EndedAt        *time.Time       `json:"ended_at,omitempty"`
	EndReason      string           `json:"end_reason,omitempty"`
	Error          string           `json:"error,omitempty"`
	CommandCount   int              `json:"command_count"`
}

type SSHCommand struct {
	ID        uuid.UUID     `json:"id"`
	SessionID uuid.UUID     `json:"session_id"`
	Command   string        `json:"command"`
	Output    string        `json:"output"`
	ExitCode  int           `json:"exit_code"`
	Truncated bool          `json:"truncated"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
}

type SSHSessionFilter struct {
	DeviceID *uuid.UUID
	Status   SSHSessionStatus
	Limit    int
}

// SSHSessionDetail is a session with its command history.
type SSHSessionDetail struct {
	SSHSession
	Commands []SSHCommand `json:"commands"`
}
