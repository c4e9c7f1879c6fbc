package service

import (
	"context"
	"errors"

	"github.com/Harshitk-cp/iotpilot/internal/bus"
	"github.com/Harshitk-cp/iotpilot/internal/domain"
)

// Services groups the application services wired onto the buses.
type Services struct {
	Customers *CustomerService
	Users     *UserService
	Settings  *SettingsService
	Devices   *DeviceService
	SSH       *SSHSessionService
	Metrics   *MetricsService
	Dashboard *DashboardService
}

// RegisterHandlers binds every command and query to its service method.
func RegisterHandlers(cb *bus.CommandBus, qb *bus.QueryBus, s Services) error {
	return errors.Join(
		registerCommands(cb, s),
		registerQueries(qb, s),
	)
}

func registerCommands(cb *bus.CommandBus, s Services) error {
	return errors.Join(
		bus.HandleCommand(cb, func(ctx context.Context, c CreateCustomer) (*domain.Customer, error) {
			return s.Customers.Create(ctx, c.Actor, c.Name)
		}),
		bus.HandleCommand(cb, func(ctx context.Context, c UpdateCustomer) (*domain.Customer, error) {
			return s.Customers.Update(ctx, c.Actor, c.CustomerID, c.Input)
		}),
		bus.HandleCommand(cb, func(ctx context.Context, c DeleteCustomer) (struct{}, error) {
			return struct{}{}, s.Customers.Delete(ctx, c.Actor, c.CustomerID)
		}),

		bus.HandleCommand(cb, func(ctx context.Context, c CreateUser) (*domain.User, error) {
			return s.Users.Create(ctx, c.Actor, c.CustomerID, c.Input)
		}),
		bus.HandleCommand(cb, func(ctx context.Context, c UpdateUser) (*domain.User, error) {
			return s.Users.Update(ctx, c.Actor, c.CustomerID, c.UserID, c.Input)
		}),
		bus.HandleCommand(cb, func(ctx context.Context, c DeleteUser) (struct{}, error) {
			return struct{}{}, s.Users.Delete(ctx, c.Actor, c.CustomerID, c.UserID)
		}),
		bus.HandleCommand(cb, func(ctx context.Context, c ResetUserPassword) (struct{}, error) {
			return struct{}{}, s.Users.ResetPassword(ctx, c.Actor, c.CustomerID, c.UserID, c.Password)
		}),

		bus.HandleCommand(cb, func(ctx context.Context, c UpdateSettings) (*domain.TenantSettings, error) {
			return s.Settings.Update(ctx, c.Actor, c.CustomerID, c.Patch)
		}),

		bus.HandleCommand(cb, func(ctx context.Context, c RegisterDevice) (*RegisteredDevice, error) {
			return s.Devices.Register(ctx, c.Actor, c.CustomerID, c.Input)
		}),
		bus.HandleCommand(cb, func(ctx context.Context, c UpdateDevice) (*domain.Device, error) {
			return s.Devices.Update(ctx, c.Actor, c.CustomerID, c.DeviceID, c.Input)
		}),
		bus.HandleCommand(cb, func(ctx context.Context, c DeleteDevice) (struct{}, error) {
			return struct{}{}, s.Devices.Delete(ctx, c.Actor, c.CustomerID, c.DeviceID)
		}),
		bus.HandleCommand(cb, func(ctx context.Context, c RotateDeviceKey) (string, error) {
			return s.Devices.RotateKey(ctx, c.Actor, c.CustomerID, c.DeviceID)
		}),
		bus.HandleCommand(cb, func(ctx context.Context, c RecordHeartbeat) (domain.DeviceStatus, error) {
			return s.Devices.Heartbeat(ctx, c.CustomerID, c.DeviceID)
		}),

		bus.HandleCommand(cb, func(ctx context.Context, c RecordMetrics) (int, error) {
			return s.Metrics.Record(ctx, c.CustomerID, c.DeviceID, c.Points)
		}),
		bus.HandleCommand(cb, func(ctx context.Context, c IngestLineProtocol) (int, error) {
			return s.Metrics.RecordLineProtocol(ctx, c.CustomerID, c.DeviceID, c.Body)
		}),

		bus.HandleCommand(cb, func(ctx context.Context, c StartSSHSession) (*domain.SSHSession, error) {
			return s.SSH.Start(ctx, c.Actor, c.CustomerID, c.Input)
		}),
		bus.HandleCommand(cb, func(ctx context.Context, c ExecuteSSHCommand) (*domain.SSHCommand, error) {
			return s.SSH.Execute(ctx, c.Actor, c.CustomerID, c.SessionID, c.Command)
		}),
		bus.HandleCommand(cb, func(ctx context.Context, c EndSSHSession) (*domain.SSHSession, error) {
			return s.SSH.End(ctx, c.Actor, c.CustomerID, c.SessionID)
		}),
	)
}

func registerQueries(qb *bus.QueryBus, s Services) error {
	return errors.Join(
		bus.HandleQuery(qb, func(ctx context.Context, q ListCustomers) ([]domain.Customer, error) {
			return s.Customers.List(ctx, q.Actor)
		}),
		bus.HandleQuery(qb, func(ctx context.Context, q GetCustomer) (*domain.Customer, error) {
			return s.Customers.Get(ctx, q.Actor, q.CustomerID)
		}),

		bus.HandleQuery(qb, func(ctx context.Context, q ListUsers) ([]domain.User, error) {
			return s.Users.List(ctx, q.Actor, q.CustomerID)
		}),
		bus.HandleQuery(qb, func(ctx context.Context, q GetUser) (*domain.User, error) {
			return s.Users.Get(ctx, q.Actor, q.CustomerID, q.UserID)
		}),

		bus.HandleQuery(qb, func(ctx context.Context, q GetSettings) (*domain.TenantSettings, error) {
			return s.Settings.Get(ctx, q.Actor, q.CustomerID)
		}),

		bus.HandleQuery(qb, func(ctx context.Context, q GetDevice) (*domain.Device, error) {
			return s.Devices.Get(ctx, q.Actor, q.CustomerID, q.DeviceID)
		}),
		bus.HandleQuery(qb, func(ctx context.Context, q ListDevices) ([]domain.Device, error) {
			return s.Devices.List(ctx, q.Actor, q.CustomerID, q.Filter)
		}),

		bus.HandleQuery(qb, func(ctx context.Context, q GetSSHSession) (*domain.SSHSessionDetail, error) {
			return s.SSH.Get(ctx, q.Actor, q.CustomerID, q.SessionID)
		}),
		bus.HandleQuery(qb, func(ctx context.Context, q ListSSHSessions) ([]domain.SSHSession, error) {
			return s.SSH.List(ctx, q.Actor, q.CustomerID, q.Filter)
		}),

		bus.HandleQuery(qb, func(ctx context.Context, q QueryMetrics) ([]domain.Metric, error) {
			return s.Metrics.Query(ctx, q.Actor, q.CustomerID, q.Query)
		}),
		bus.HandleQuery(qb, func(ctx context.Context, q LatestMetrics) ([]domain.Metric, error) {
			return s.Metrics.Latest(ctx, q.Actor, q.CustomerID, q.DeviceID)
		}),
		bus.HandleQuery(qb, func(ctx context.Context, q ExportMetrics) ([]byte, error) {
			return s.Metrics.Export(ctx, q.Actor, q.CustomerID, q.Query)
		}),

		bus.HandleQuery(qb, func(ctx context.Context, q GetDashboard) (*Dashboard, error) {
			return s.Dashboard.Get(ctx, q.Actor, q.CustomerID)
		}),
	)
}
