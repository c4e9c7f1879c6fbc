package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Harshitk-cp/iotpilot/internal/access"
	"github.com/Harshitk-cp/iotpilot/internal/bus"
	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/Harshitk-cp/iotpilot/internal/lineproto"
	"github.com/Harshitk-cp/iotpilot/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	maxMetricBatch      = 5000
	maxMetricQueryLimit = 10000
	maxMeasurementLen   = 128
)

var (
	ErrInvalidMetric      = errors.New("metric needs a measurement and at least one finite field")
	ErrMetricBatchTooBig  = errors.New("metric batch exceeds 5000 points")
	ErrInvalidMetricQuery = errors.New("from must not be after to")
)

type MetricsService struct {
	metrics domain.MetricStore
	devices domain.DeviceStore
	events  *bus.EventBus
	logger  *zap.Logger
	now     func() time.Time
}

func NewMetricsService(ms domain.MetricStore, ds domain.DeviceStore, events *bus.EventBus, logger *zap.Logger) *MetricsService {
	return &MetricsService{metrics: ms, devices: ds, events: events, logger: logger, now: utcNow}
}

// MetricPoint is one point as submitted by a device.
type MetricPoint struct {
	Measurement string             `json:"measurement"`
	Tags        map[string]string  `json:"tags,omitempty"`
	Fields      map[string]float64 `json:"fields"`
	Time        *time.Time         `json:"time,omitempty"`
}

// normalize rejects anything line protocol cannot carry, so every stored
// point stays exportable.
func (s *MetricsService) normalize(customerID, deviceID uuid.UUID, p MetricPoint, now time.Time) (domain.Metric, error) {
	measurement := strings.TrimSpace(p.Measurement)
	if len(measurement) > maxMeasurementLen || !lineproto.ValidName(measurement) {
		return domain.Metric{}, fmt.Errorf("%w: invalid measurement %q", ErrInvalidMetric, measurement)
	}
	fields := make(map[string]float64, len(p.Fields))
	for k, v := range p.Fields {
		if k == "" || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if !lineproto.ValidName(k) {
			return domain.Metric{}, fmt.Errorf("%w: invalid field key %q", ErrInvalidMetric, k)
		}
		fields[k] = v
	}
	if len(fields) == 0 {
		return domain.Metric{}, fmt.Errorf("%w: %s", ErrInvalidMetric, measurement)
	}
	tags := make(map[string]string, len(p.Tags))
	for k, v := range p.Tags {
		if k == "" || v == "" || k == domain.MetricTagCustomerID || k == domain.MetricTagDeviceID {
			continue
		}
		if !lineproto.ValidName(k) || !lineproto.ValidName(v) {
			return domain.Metric{}, fmt.Errorf("%w: invalid tag %q=%q", ErrInvalidMetric, k, v)
		}
		tags[k] = v
	}
	at := now
	if p.Time != nil && !p.Time.IsZero() {
		at = p.Time.UTC()
	}
	if !lineproto.ValidTime(at) {
		return domain.Metric{}, fmt.Errorf("%w: timestamp %s out of range", ErrInvalidMetric, at.Format(time.RFC3339))
	}
	return domain.Metric{
		DeviceID:    deviceID,
		CustomerID:  customerID,
		Measurement: measurement,
		Tags:        tags,
		Fields:      fields,
		RecordedAt:  at,
	}, nil
}

// Record validates and stores a batch for one device. Either every point is
// stored or none is.
func (s *MetricsService) Record(ctx context.Context, customerID, deviceID uuid.UUID, points []MetricPoint) (int, error) {
	if len(points) == 0 {
		return 0, ErrInvalidMetric
	}
	if len(points) > maxMetricBatch {
		return 0, ErrMetricBatchTooBig
	}
	if _, err := s.devices.GetByID(ctx, deviceID, customerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, ErrDeviceNotFound
		}
		return 0, err
	}

	now := s.now()
	batch := make([]domain.Metric, 0, len(points))
	for _, p := range points {
		m, err := s.normalize(customerID, deviceID, p, now)
		if err != nil {
			return 0, err
		}
		batch = append(batch, m)
	}
	if err := s.metrics.Insert(ctx, batch); err != nil {
		return 0, err
	}

	for _, m := range batch {
		publish(ctx, s.events, s.logger, domain.MetricRecorded{EventMeta: domain.NewEventMeta(customerID), Metric: m})
	}
	return len(batch), nil
}

// RecordLineProtocol decodes an InfluxDB line protocol body and records it.
func (s *MetricsService) RecordLineProtocol(ctx context.Context, customerID, deviceID uuid.UUID, body []byte) (int, error) {
	decoded, err := lineproto.Decode(body, s.now())
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidMetric, err)
	}
	points := make([]MetricPoint, 0, len(decoded))
	for _, p := range decoded {
		at := p.Time
		points = append(points, MetricPoint{Measurement: p.Measurement, Tags: p.Tags, Fields: p.Fields, Time: &at})
	}
	return s.Record(ctx, customerID, deviceID, points)
}

func (s *MetricsService) checkDevice(ctx context.Context, p access.Principal, customerID, deviceID uuid.UUID) error {
	if !access.CanAccessCustomer(p, customerID) {
		return access.ErrForbidden
	}
	if _, err := s.devices.GetByID(ctx, deviceID, customerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrDeviceNotFound
		}
		return err
	}
	return nil
}

// Query returns points newest first.
func (s *MetricsService) Query(ctx context.Context, p access.Principal, customerID uuid.UUID, q domain.MetricQuery) ([]domain.Metric, error) {
	if err := s.checkDevice(ctx, p, customerID, q.DeviceID); err != nil {
		return nil, err
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.From.After(q.To) {
		return nil, ErrInvalidMetricQuery
	}
	if q.Limit <= 0 || q.Limit > maxMetricQueryLimit {
		q.Limit = maxMetricQueryLimit
	}
	out, err := s.metrics.Query(ctx, customerID, q)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Metric{}
	}
	return out, nil
}

func (s *MetricsService) Latest(ctx context.Context, p access.Principal, customerID, deviceID uuid.UUID) ([]domain.Metric, error) {
	if err := s.checkDevice(ctx, p, customerID, deviceID); err != nil {
		return nil, err
	}
	out, err := s.metrics.Latest(ctx, customerID, deviceID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Metric{}
	}
	return out, nil
}

// Export renders the query result as line protocol, oldest point first.
func (s *MetricsService) Export(ctx context.Context, p access.Principal, customerID uuid.UUID, q domain.MetricQuery) ([]byte, error) {
	points, err := s.Query(ctx, p, customerID, q)
	if err != nil {
		return nil, err
	}
	slices.Reverse(points)
	out, skipped := lineproto.EncodeSkipping(points)
	if len(skipped) > 0 {
		s.logger.Warn("skipped metrics that cannot be exported",
			zap.String("customer_id", customerID.String()),
			zap.String("device_id", q.DeviceID.String()),
			zap.Int("count", len(skipped)),
			zap.Error(skipped[0]))
	}
	if out == nil {
		out = []byte{}
	}
	return out, nil
}

// PurgeBefore drops a customer's points recorded before cutoff.
func (s *MetricsService) PurgeBefore(ctx context.Context, customerID uuid.UUID, cutoff time.Time) (int64, error) {
	return s.metrics.DeleteBefore(ctx, customerID, cutoff)
}

// Subscribe delivers metrics recorded for one device until cancel is called.
// Points are dropped when the reader falls more than buf points behind.
func (s *MetricsService) Subscribe(customerID, deviceID uuid.UUID, buf int) (<-chan domain.Metric, func()) {
	if buf <= 0 {
		buf = 64
	}
	ch := make(chan domain.Metric, buf)
	done := make(chan struct{})

	unsubscribe := s.events.Subscribe(domain.EventMetricRecorded, func(_ context.Context, e bus.Event) error {
		mr, ok := e.(domain.MetricRecorded)
		if !ok || mr.Metric.CustomerID != customerID || mr.Metric.DeviceID != deviceID {
			return nil
		}
		m := mr.Metric
		m.Tags = maps.Clone(m.Tags)
		m.Fields = maps.Clone(m.Fields)
		select {
		case <-done:
		case ch <- m:
		default:
		}
		return nil
	})

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			unsubscribe()
			close(done)
		})
	}
}
