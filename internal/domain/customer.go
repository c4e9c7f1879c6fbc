package domain

import (
	"time"

	"github.com/google/uuid"
)

// Customer is the tenant boundary. Devices, users and settings all belong to
// exactly one customer.
type Customer struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
