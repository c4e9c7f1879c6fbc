package service

import (
	"context"
	"testing"
	"time"

	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDeviceMonitor_RunOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cust := env.mustCustomer(t, "Acme")
	clock := newFixedClock()
	env.svc.Devices.now = clock.Now

	stale := env.mustDevice(t, cust.ID, "stale", "10.0.0.1").Device
	fresh := env.mustDevice(t, cust.ID, "fresh", "10.0.0.2").Device
	_, err := env.svc.Devices.Heartbeat(ctx, cust.ID, stale.ID)
	require.NoError(t, err)
	clock.Advance(4 * time.Minute)
	_, err = env.svc.Devices.Heartbeat(ctx, cust.ID, fresh.ID)
	require.NoError(t, err)

	monitor := NewDeviceMonitor(env.customers, env.svc.Settings, env.svc.Devices, zap.NewNop())
	monitor.now = func() time.Time { return clock.Now().Add(2 * time.Minute) }
	monitor.RunOnce(ctx)

	got, err := env.devices.GetByID(ctx, stale.ID, cust.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceStatusOffline, got.Status, "silent for 6m with a 5m threshold")

	got, err = env.devices.GetByID(ctx, fresh.ID, cust.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceStatusOnline, got.Status)

	ev, ok := env.log.last(domain.EventDeviceStatusChanged).(domain.DeviceStatusChanged)
	require.True(t, ok)
	assert.Equal(t, stale.ID, ev.DeviceID)
	assert.Equal(t, domain.DeviceStatusOffline, ev.To)
}

func TestDeviceMonitor_UsesTenantThreshold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cust := env.mustCustomer(t, "Acme")
	clock := newFixedClock()
	env.svc.Devices.now = clock.Now

	_, err := env.svc.Settings.Update(ctx, adminOf(cust.ID), cust.ID, SettingsPatch{DeviceOfflineAfterSeconds: intPtr(60)})
	require.NoError(t, err)

	dev := env.mustDevice(t, cust.ID, "sensor", "10.0.0.1").Device
	_, err = env.svc.Devices.Heartbeat(ctx, cust.ID, dev.ID)
	require.NoError(t, err)

	monitor := NewDeviceMonitor(env.customers, env.svc.Settings, env.svc.Devices, zap.NewNop())
	monitor.now = func() time.Time { return clock.Now().Add(2 * time.Minute) }
	monitor.RunOnce(ctx)

	got, err := env.devices.GetByID(ctx, dev.ID, cust.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceStatusOffline, got.Status)
}

func TestSessionReaper_RunOnce(t *testing.T) {
	f := newSSHFixture(t)
	sess := f.start(t)
	reaper := NewSessionReaper(f.env.svc.SSH, f.env.svc.Settings, zap.NewNop())

	reaper.RunOnce(context.Background())
	assert.Equal(t, 1, f.env.svc.SSH.LiveCount())

	f.clock.Advance(16 * time.Minute)
	reaper.RunOnce(context.Background())
	assert.Zero(t, f.env.svc.SSH.LiveCount())
	assert.Equal(t, domain.EndReasonIdle, f.env.sessions.get(sess.ID).EndReason)
}

func TestSessionReaper_CloseOrphaned(t *testing.T) {
	f := newSSHFixture(t)
	ctx := context.Background()
	orphan := &domain.SSHSession{CustomerID: f.cust, DeviceID: f.device.ID, Status: domain.SSHSessionActive}
	require.NoError(t, f.env.sessions.Create(ctx, orphan))

	NewSessionReaper(f.env.svc.SSH, f.env.svc.Settings, zap.NewNop()).CloseOrphaned(ctx)
	assert.Equal(t, domain.SSHSessionClosed, f.env.sessions.get(orphan.ID).Status)
}

func TestRetentionService_RunOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cust := env.mustCustomer(t, "Acme")
	dev := env.mustDevice(t, cust.ID, "sensor", "10.0.0.1").Device
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	old := now.AddDate(0, 0, -31)
	recent := now.AddDate(0, 0, -29)
	_, err := env.svc.Metrics.Record(ctx, cust.ID, dev.ID, []MetricPoint{
		{Measurement: "cpu", Fields: map[string]float64{"v": 1}, Time: &old},
		{Measurement: "cpu", Fields: map[string]float64{"v": 2}, Time: &recent},
	})
	require.NoError(t, err)

	retention := NewRetentionService(env.customers, env.svc.Settings, env.svc.Metrics, zap.NewNop())
	retention.now = func() time.Time { return now }
	retention.RunOnce(ctx)

	require.Len(t, env.metrics.metrics, 1)
	assert.Equal(t, recent, env.metrics.metrics[0].RecordedAt)
}

func TestWorkers_StartStop(t *testing.T) {
	env := newTestEnv(t)
	logger := zap.NewNop()

	monitor := NewDeviceMonitor(env.customers, env.svc.Settings, env.svc.Devices, logger)
	reaper := NewSessionReaper(env.svc.SSH, env.svc.Settings, logger)
	retention := NewRetentionService(env.customers, env.svc.Settings, env.svc.Metrics, logger)

	monitor.SetInterval(5 * time.Millisecond)
	reaper.SetInterval(5 * time.Millisecond)
	retention.SetInterval(5 * time.Millisecond)
	retention.SetInterval(0)
	assert.Equal(t, 5*time.Millisecond, retention.loop.interval, "non-positive intervals are ignored")

	monitor.Start()
	reaper.Start()
	retention.Start()
	time.Sleep(20 * time.Millisecond)

	monitor.Stop()
	reaper.Stop()
	retention.Stop()
	monitor.Stop()
}
