package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultMetricQueryLimit = 1000

type MetricStore struct {
	db *pgxpool.Pool
}

func NewMetricStore(db *pgxpool.Pool) *MetricStore {
	return &MetricStore{db: db}
}

// Insert writes all points in a single batch round-trip.
func (s *MetricStore) Insert(ctx context.Context, metrics []domain.Metric) error {
	if len(metrics) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, m := range metrics {
		tags := m.Tags
		if tags == nil {
			tags = map[string]string{}
		}
		b.Queue(
			`INSERT INTO device_metrics (customer_id, device_id, measurement, tags, fields, recorded_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			m.CustomerID, m.DeviceID, m.Measurement, tags, m.Fields, m.RecordedAt,
		)
	}

	br := s.db.SendBatch(ctx, b)
	defer br.Close()
	for range metrics {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func scanMetrics(rows pgx.Rows) ([]domain.Metric, error) {
	defer rows.Close()
	var out []domain.Metric
	for rows.Next() {
		var m domain.Metric
		if err := rows.Scan(&m.DeviceID, &m.CustomerID, &m.Measurement, &m.Tags, &m.Fields, &m.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Query returns the newest points first.
func (s *MetricStore) Query(ctx context.Context, customerID uuid.UUID, q domain.MetricQuery) ([]domain.Metric, error) {
	query := `SELECT device_id, customer_id, measurement, tags, fields, recorded_at
		FROM device_metrics WHERE customer_id = $1 AND device_id = $2`
	args := []any{customerID, q.DeviceID}

	if q.Measurement != "" {
		args = append(args, q.Measurement)
		query += fmt.Sprintf(" AND measurement = $%d", len(args))
	}
	if !q.From.IsZero() {
		args = append(args, q.From)
		query += fmt.Sprintf(" AND recorded_at >= $%d", len(args))
	}
	if !q.To.IsZero() {
		args = append(args, q.To)
		query += fmt.Sprintf(" AND recorded_at < $%d", len(args))
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultMetricQueryLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY recorded_at DESC LIMIT $%d", len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanMetrics(rows)
}

// Latest returns the most recent point of each measurement for a device.
func (s *MetricStore) Latest(ctx context.Context, customerID uuid.UUID, deviceID uuid.UUID) ([]domain.Metric, error) {
	rows, err := s.db.Query(ctx,
		`SELECT DISTINCT ON (measurement) device_id, customer_id, measurement, tags, fields, recorded_at
		 FROM device_metrics
		 WHERE customer_id = $1 AND device_id = $2
		 ORDER BY measurement, recorded_at DESC`,
		customerID, deviceID,
	)
	if err != nil {
		return nil, err
	}
	return scanMetrics(rows)
}

func (s *MetricStore) DeleteBefore(ctx context.Context, customerID uuid.UUID, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM device_metrics WHERE customer_id = $1 AND recorded_at < $2`,
		customerID, cutoff,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
