package service

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/Harshitk-cp/iotpilot/internal/access"
	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/Harshitk-cp/iotpilot/internal/lineproto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timePtr(t time.Time) *time.Time { return &t }

func TestMetricsService_Record(t *testing.T) {
	env := newTestEnv(t)
	cust := uuid.New()
	dev := env.mustDevice(t, cust, "sensor", "10.0.0.1").Device
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	env.svc.Metrics.now = func() time.Time { return now }

	n, err := env.svc.Metrics.Record(context.Background(), cust, dev.ID, []MetricPoint{
		{
			Measurement: " cpu ",
			Tags:        map[string]string{"core": "0", "device_id": "spoofed", "customer_id": "spoofed", "empty": ""},
			Fields:      map[string]float64{"usage": 12.5, "bad": math.NaN()},
		},
		{Measurement: "mem", Fields: map[string]float64{"free": 1024}, Time: timePtr(now.Add(-time.Minute))},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, env.metrics.metrics, 2)
	cpu := env.metrics.metrics[0]
	assert.Equal(t, "cpu", cpu.Measurement)
	assert.Equal(t, map[string]string{"core": "0"}, cpu.Tags)
	assert.Equal(t, map[string]float64{"usage": 12.5}, cpu.Fields)
	assert.Equal(t, now, cpu.RecordedAt)
	assert.Equal(t, cust, cpu.CustomerID)
	assert.Equal(t, now.Add(-time.Minute), env.metrics.metrics[1].RecordedAt)
	assert.Equal(t, 2, env.log.count(domain.EventMetricRecorded))
}

func TestMetricsService_RecordRejects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cust := uuid.New()
	dev := env.mustDevice(t, cust, "sensor", "10.0.0.1").Device

	_, err := env.svc.Metrics.Record(ctx, cust, dev.ID, nil)
	assert.ErrorIs(t, err, ErrInvalidMetric)

	_, err = env.svc.Metrics.Record(ctx, cust, dev.ID, []MetricPoint{{Measurement: "", Fields: map[string]float64{"v": 1}}})
	assert.ErrorIs(t, err, ErrInvalidMetric)

	_, err = env.svc.Metrics.Record(ctx, cust, dev.ID, []MetricPoint{
		{Measurement: "ok", Fields: map[string]float64{"v": 1}},
		{Measurement: "inf", Fields: map[string]float64{"v": math.Inf(1)}},
	})
	assert.ErrorIs(t, err, ErrInvalidMetric)
	assert.Empty(t, env.metrics.metrics, "a bad point rejects the whole batch")

	_, err = env.svc.Metrics.Record(ctx, uuid.New(), dev.ID, []MetricPoint{{Measurement: "cpu", Fields: map[string]float64{"v": 1}}})
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	big := make([]MetricPoint, maxMetricBatch+1)
	_, err = env.svc.Metrics.Record(ctx, cust, dev.ID, big)
	assert.ErrorIs(t, err, ErrMetricBatchTooBig)
}

func TestMetricsService_RecordRejectsUnexportablePoints(t *testing.T) {
	env := newTestEnv(t)
	cust := uuid.New()
	dev := env.mustDevice(t, cust, "sensor", "10.0.0.1").Device
	future := time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := map[string]MetricPoint{
		"newline in tag value":    {Measurement: "cpu", Tags: map[string]string{"host": "a\nb"}, Fields: map[string]float64{"v": 1}},
		"carriage return in key":  {Measurement: "cpu", Tags: map[string]string{"ho\rst": "a"}, Fields: map[string]float64{"v": 1}},
		"newline in field key":    {Measurement: "cpu", Fields: map[string]float64{"a\nb": 1}},
		"newline in measurement":  {Measurement: "cp\nu", Fields: map[string]float64{"v": 1}},
		"invalid utf-8 tag value": {Measurement: "cpu", Tags: map[string]string{"host": "\xff\xfe"}, Fields: map[string]float64{"v": 1}},
		"trailing backslash":      {Measurement: "cpu\\", Fields: map[string]float64{"v": 1}},
		"timestamp out of range":  {Measurement: "cpu", Fields: map[string]float64{"v": 1}, Time: &future},
	}
	for name, p := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := env.svc.Metrics.Record(context.Background(), cust, dev.ID, []MetricPoint{p})
			assert.ErrorIs(t, err, ErrInvalidMetric)
		})
	}
	assert.Empty(t, env.metrics.metrics)
}

func TestMetricsService_RecordLineProtocol(t *testing.T) {
	env := newTestEnv(t)
	cust := uuid.New()
	dev := env.mustDevice(t, cust, "sensor", "10.0.0.1").Device

	body := "temperature,room=lab value=21.5 1700000000000000000\nhumidity,room=lab value=40i\n"
	n, err := env.svc.Metrics.RecordLineProtocol(context.Background(), cust, dev.ID, []byte(body))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	temp := env.metrics.metrics[0]
	assert.Equal(t, "temperature", temp.Measurement)
	assert.Equal(t, "lab", temp.Tags["room"])
	assert.Equal(t, time.Unix(0, 1700000000000000000).UTC(), temp.RecordedAt)
	assert.Equal(t, 40.0, env.metrics.metrics[1].Fields["value"])

	_, err = env.svc.Metrics.RecordLineProtocol(context.Background(), cust, dev.ID, []byte("garbage line without fields"))
	assert.ErrorIs(t, err, ErrInvalidMetric)
}

func seedMetrics(t *testing.T, env *testEnv, cust, deviceID uuid.UUID, base time.Time) {
	t.Helper()
	var points []MetricPoint
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		points = append(points,
			MetricPoint{Measurement: "cpu", Fields: map[string]float64{"usage": float64(10 * (i + 1))}, Time: &at},
			MetricPoint{Measurement: "mem", Fields: map[string]float64{"free": float64(100 * (i + 1))}, Time: &at},
		)
	}
	_, err := env.svc.Metrics.Record(context.Background(), cust, deviceID, points)
	require.NoError(t, err)
}

func TestMetricsService_QueryAndLatest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cust := uuid.New()
	dev := env.mustDevice(t, cust, "sensor", "10.0.0.1").Device
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	seedMetrics(t, env, cust, dev.ID, base)
	p := userOf(cust)

	cpu, err := env.svc.Metrics.Query(ctx, p, cust, domain.MetricQuery{DeviceID: dev.ID, Measurement: "cpu"})
	require.NoError(t, err)
	require.Len(t, cpu, 3)
	assert.Equal(t, 30.0, cpu[0].Fields["usage"], "newest first")

	window, err := env.svc.Metrics.Query(ctx, p, cust, domain.MetricQuery{
		DeviceID: dev.ID, From: base.Add(time.Minute), To: base.Add(2 * time.Minute),
	})
	require.NoError(t, err)
	assert.Len(t, window, 2)

	_, err = env.svc.Metrics.Query(ctx, p, cust, domain.MetricQuery{DeviceID: dev.ID, From: base.Add(time.Hour), To: base})
	assert.ErrorIs(t, err, ErrInvalidMetricQuery)

	latest, err := env.svc.Metrics.Latest(ctx, p, cust, dev.ID)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, 30.0, latest[0].Fields["usage"])
	assert.Equal(t, 300.0, latest[1].Fields["free"])

	_, err = env.svc.Metrics.Latest(ctx, userOf(uuid.New()), cust, dev.ID)
	assert.ErrorIs(t, err, access.ErrForbidden)
}

func TestMetricsService_Export(t *testing.T) {
	env := newTestEnv(t)
	cust := uuid.New()
	dev := env.mustDevice(t, cust, "sensor", "10.0.0.1").Device
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	seedMetrics(t, env, cust, dev.ID, base)

	out, err := env.svc.Metrics.Export(context.Background(), userOf(cust), cust, domain.MetricQuery{DeviceID: dev.ID, Measurement: "cpu"})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "cpu,customer_id="+cust.String()+",device_id="+dev.ID.String()+" usage=10 "+
		"1735689600000000000", lines[0], "oldest first, nanosecond timestamps")
}

func TestMetricsService_IngestedPointsStayExportable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cust := uuid.New()
	dev := env.mustDevice(t, cust, "sensor", "10.0.0.1").Device

	_, err := env.svc.Metrics.Record(ctx, cust, dev.ID, []MetricPoint{
		{Measurement: "cpu", Tags: map[string]string{"host": "gw 1", "rack": "a,b=c"}, Fields: map[string]float64{"usage pct": 12}},
		{Measurement: "température", Fields: map[string]float64{"°C": 21.5}},
	})
	require.NoError(t, err)
	_, err = env.svc.Metrics.Record(ctx, cust, dev.ID, []MetricPoint{{Measurement: "cpu", Tags: map[string]string{"host": "a\nb"}, Fields: map[string]float64{"v": 1}}})
	require.ErrorIs(t, err, ErrInvalidMetric)
	_, err = env.svc.Metrics.RecordLineProtocol(ctx, cust, dev.ID, []byte("mem,host=gw\\ 2 free=3i\n"))
	require.NoError(t, err)

	out, err := env.svc.Metrics.Export(ctx, userOf(cust), cust, domain.MetricQuery{DeviceID: dev.ID})
	require.NoError(t, err)
	points, err := lineproto.Decode(out, time.Time{})
	require.NoError(t, err)
	require.Len(t, points, 3)

	byMeasurement := map[string]lineproto.Point{}
	for _, p := range points {
		byMeasurement[p.Measurement] = p
	}
	assert.Equal(t, "a,b=c", byMeasurement["cpu"].Tags["rack"])
	assert.Equal(t, 12.0, byMeasurement["cpu"].Fields["usage pct"])
	assert.Equal(t, 21.5, byMeasurement["température"].Fields["°C"])
	assert.Equal(t, "gw 2", byMeasurement["mem"].Tags["host"])
}

func TestMetricsService_ExportSkipsUnencodableRows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cust := uuid.New()
	dev := env.mustDevice(t, cust, "sensor", "10.0.0.1").Device
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, env.metrics.Insert(ctx, []domain.Metric{
		{CustomerID: cust, DeviceID: dev.ID, Measurement: "cpu", Fields: map[string]float64{"v": 1}, RecordedAt: base},
		{CustomerID: cust, DeviceID: dev.ID, Measurement: "cpu", Tags: map[string]string{"host": "a\nb"}, Fields: map[string]float64{"v": 2}, RecordedAt: base.Add(time.Second)},
		{CustomerID: cust, DeviceID: dev.ID, Measurement: "cpu", Fields: map[string]float64{"v": 3}, RecordedAt: base.Add(2 * time.Second)},
	}))

	out, err := env.svc.Metrics.Export(ctx, userOf(cust), cust, domain.MetricQuery{DeviceID: dev.ID})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], " v=1 ")
	assert.Contains(t, lines[1], " v=3 ")
}

func TestMetricsService_Subscribe(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cust := uuid.New()
	dev := env.mustDevice(t, cust, "sensor", "10.0.0.1").Device
	other := env.mustDevice(t, cust, "other", "10.0.0.2").Device

	ch, cancel := env.svc.Metrics.Subscribe(cust, dev.ID, 4)

	_, err := env.svc.Metrics.Record(ctx, cust, other.ID, []MetricPoint{{Measurement: "cpu", Fields: map[string]float64{"v": 1}}})
	require.NoError(t, err)
	_, err = env.svc.Metrics.Record(ctx, cust, dev.ID, []MetricPoint{{Measurement: "cpu", Fields: map[string]float64{"v": 2}}})
	require.NoError(t, err)

	select {
	case m := <-ch:
		assert.Equal(t, dev.ID, m.DeviceID)
		assert.Equal(t, 2.0, m.Fields["v"])
	default:
		t.Fatal("expected a metric for the subscribed device")
	}
	select {
	case m := <-ch:
		t.Fatalf("unexpected metric %+v", m)
	default:
	}

	cancel()
	cancel()
	_, err = env.svc.Metrics.Record(ctx, cust, dev.ID, []MetricPoint{{Measurement: "cpu", Fields: map[string]float64{"v": 3}}})
	require.NoError(t, err)
	assert.Empty(t, ch)
}
