package service

import (
	"context"

	"github.com/Harshitk-cp/iotpilot/internal/bus"
	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"go.uber.org/zap"
)

// SubscribeAudit logs domain events at info level. Metric points are too
// frequent to audit and are skipped.
func SubscribeAudit(events *bus.EventBus, logger *zap.Logger) func() {
	logger = logger.Named("audit")
	return events.Subscribe(bus.Wildcard, func(_ context.Context, e bus.Event) error {
		if e.EventName() == domain.EventMetricRecorded {
			return nil
		}
		fields := []zap.Field{zap.String("event", e.EventName())}
		if de, ok := e.(domain.Event); ok {
			fields = append(fields,
				zap.String("customer_id", de.Customer().String()),
				zap.Time("at", de.OccurredAt()))
		}
		fields = append(fields, auditFields(e)...)
		logger.Info("domain event", fields...)
		return nil
	})
}

func auditFields(e bus.Event) []zap.Field {
	switch ev := e.(type) {
	case domain.DeviceRegistered:
		return []zap.Field{zap.String("device_id", ev.Device.ID.String()), zap.String("device_name", ev.Device.Name)}
	case domain.DeviceUpdated:
		return []zap.Field{zap.String("device_id", ev.Device.ID.String())}
	case domain.DeviceDeleted:
		return []zap.Field{zap.String("device_id", ev.DeviceID.String())}
	case domain.DeviceStatusChanged:
		return []zap.Field{
			zap.String("device_id", ev.DeviceID.String()),
			zap.String("from", string(ev.From)),
			zap.String("to", string(ev.To)),
		}
	case domain.SSHSessionStarted:
		return []zap.Field{
			zap.String("session_id", ev.Session.ID.String()),
			zap.String("device_id", ev.Session.DeviceID.String()),
			zap.String("user_id", ev.Session.UserID.String()),
		}
	case domain.SSHSessionEnded:
		return []zap.Field{
			zap.String("session_id", ev.Session.ID.String()),
			zap.String("status", string(ev.Session.Status)),
			zap.String("reason", ev.Session.EndReason),
		}
	case domain.SSHCommandExecuted:
		return []zap.Field{
			zap.String("session_id", ev.Command.SessionID.String()),
			zap.String("user_id", ev.UserID.String()),
			zap.String("command", ev.Command.Command),
			zap.Int("exit_code", ev.Command.ExitCode),
		}
	case domain.UserCreated:
		return []zap.Field{zap.String("user_id", ev.UserID.String()), zap.String("role", string(ev.Role))}
	case domain.UserUpdated:
		return []zap.Field{zap.String("user_id", ev.UserID.String()), zap.String("role", string(ev.Role))}
	case domain.UserDeleted:
		return []zap.Field{zap.String("user_id", ev.UserID.String())}
	case domain.CustomerCreated:
		return []zap.Field{zap.String("name", ev.Name)}
	case domain.CustomerUpdated:
		return []zap.Field{zap.String("name", ev.Name), zap.Bool("active", ev.Active)}
	}
	return nil
}
