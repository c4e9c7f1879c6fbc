package service

import (
	"context"
	"testing"
	"time"

	"github.com/Harshitk-cp/iotpilot/internal/access"
	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashboardService_Get(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cust := uuid.New()
	clock := newFixedClock()
	env.svc.Devices.now = clock.Now

	seen := env.mustDevice(t, cust, "seen", "10.0.0.1").Device
	env.mustDevice(t, cust, "never-seen", "10.0.0.2")
	env.mustDevice(t, uuid.New(), "foreign", "10.0.0.3")

	_, err := env.svc.Devices.Heartbeat(ctx, cust, seen.ID)
	require.NoError(t, err)
	_, err = env.svc.Metrics.Record(ctx, cust, seen.ID, []MetricPoint{{Measurement: "cpu", Fields: map[string]float64{"usage": 5}}})
	require.NoError(t, err)
	require.NoError(t, env.sessions.Create(ctx, &domain.SSHSession{CustomerID: cust, DeviceID: seen.ID, Status: domain.SSHSessionActive}))

	d, err := env.svc.Dashboard.Get(ctx, userOf(cust), cust)
	require.NoError(t, err)

	assert.Equal(t, cust, d.CustomerID)
	assert.Equal(t, 2, d.TotalDevices)
	assert.ElementsMatch(t, []domain.DeviceStatusCount{
		{Status: domain.DeviceStatusOnline, Count: 1},
		{Status: domain.DeviceStatusUnknown, Count: 1},
	}, d.DeviceCounts)
	assert.Equal(t, 1, d.ActiveSSHSessions)

	require.Len(t, d.RecentDevices, 1)
	assert.Equal(t, seen.ID, d.RecentDevices[0].Device.ID)
	require.Len(t, d.RecentDevices[0].Latest, 1)
	assert.Equal(t, "cpu", d.RecentDevices[0].Latest[0].Measurement)
}

func TestDashboardService_EmptyTenant(t *testing.T) {
	env := newTestEnv(t)
	cust := uuid.New()

	d, err := env.svc.Dashboard.Get(context.Background(), adminOf(cust), cust)
	require.NoError(t, err)
	assert.Zero(t, d.TotalDevices)
	assert.NotNil(t, d.DeviceCounts)
	assert.Empty(t, d.RecentDevices)
	assert.WithinDuration(t, time.Now(), d.GeneratedAt, time.Minute)
}

func TestDashboardService_Forbidden(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Dashboard.Get(context.Background(), userOf(uuid.New()), uuid.New())
	assert.ErrorIs(t, err, access.ErrForbidden)
}
