// Package service holds the application logic behind the HTTP API: one
// service per module, each checking the caller's access before touching a
// store and publishing domain events once a change is committed.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Harshitk-cp/iotpilot/internal/bus"
	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/Harshitk-cp/iotpilot/internal/sshclient"
	"go.uber.org/zap"
)

var ErrValidation = errors.New("validation failed")

// SSHDialer opens connections to devices. *sshclient.Dialer satisfies it.
type SSHDialer interface {
	Dial(ctx context.Context, t sshclient.Target) (sshclient.Conn, error)
}

// publish emits e after the change it describes has been stored. Subscriber
// failures are logged and never undo the change.
func publish(ctx context.Context, events *bus.EventBus, logger *zap.Logger, e domain.Event) {
	if events == nil {
		return
	}
	if err := events.Publish(ctx, e); err != nil {
		logger.Warn("event subscriber failed",
			zap.String("event", e.EventName()),
			zap.String("customer_id", e.Customer().String()),
			zap.Error(err))
	}
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// validationError wraps a domain validation failure so callers can match
// both ErrValidation and the specific cause.
func validationError(err error) error {
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

func trimmedPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
