package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DeviceStore struct {
	db *pgxpool.Pool
}

func NewDeviceStore(db *pgxpool.Pool) *DeviceStore {
	return &DeviceStore{db: db}
}

const deviceColumns = `id, customer_id, name, ip_address, mac_address, description, location, status,
	ssh_port, ssh_username, api_key_hash, last_seen_at, created_at, updated_at`

func scanDevice(row pgx.Row) (*domain.Device, error) {
	d := &domain.Device{}
	err := row.Scan(&d.ID, &d.CustomerID, &d.Name, &d.IPAddress, &d.MACAddress, &d.Description, &d.Location, &d.Status,
		&d.SSHPort, &d.SSHUsername, &d.APIKeyHash, &d.LastSeenAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func collectDevices(rows pgx.Rows) ([]domain.Device, error) {
	defer rows.Close()
	var out []domain.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *DeviceStore) Create(ctx context.Context, d *domain.Device) error {
	if d.Status == "" {
		d.Status = domain.DeviceStatusUnknown
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO devices (customer_id, name, ip_address, mac_address, description, location, status, ssh_port, ssh_username, api_key_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at, updated_at`,
		d.CustomerID, d.Name, d.IPAddress, d.MACAddress, d.Description, d.Location, d.Status, d.SSHPort, d.SSHUsername, d.APIKeyHash,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *DeviceStore) GetByID(ctx context.Context, id uuid.UUID, customerID uuid.UUID) (*domain.Device, error) {
	d, err := scanDevice(s.db.QueryRow(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE id = $1 AND customer_id = $2`,
		id, customerID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

func (s *DeviceStore) GetByAPIKeyHash(ctx context.Context, apiKeyHash string) (*domain.Device, error) {
	d, err := scanDevice(s.db.QueryRow(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE api_key_hash = $1`,
		apiKeyHash,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

// likeEscaper makes user input match literally inside an ILIKE pattern
// declared with ESCAPE '\'.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func deviceListQuery(customerID uuid.UUID, f domain.DeviceFilter) (string, []any) {
	var conditions []string
	args := []any{customerID}
	conditions = append(conditions, "customer_id = $1")

	if f.Status != "" {
		args = append(args, f.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, containsPattern(f.Search))
		n := len(args)
		conditions = append(conditions, fmt.Sprintf(
			`(name ILIKE $%[1]d ESCAPE '\' OR ip_address ILIKE $%[1]d ESCAPE '\' OR mac_address ILIKE $%[1]d ESCAPE '\' OR location ILIKE $%[1]d ESCAPE '\')`, n))
	}

	query := `SELECT ` + deviceColumns + ` FROM devices WHERE ` + strings.Join(conditions, " AND ") + ` ORDER BY name`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

func (s *DeviceStore) List(ctx context.Context, customerID uuid.UUID, f domain.DeviceFilter) ([]domain.Device, error) {
	query, args := deviceListQuery(customerID, f)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectDevices(rows)
}

func (s *DeviceStore) Update(ctx context.Context, d *domain.Device) error {
	err := s.db.QueryRow(ctx,
		`UPDATE devices SET name = $3, ip_address = $4, mac_address = $5, description = $6, location = $7,
		        status = $8, ssh_port = $9, ssh_username = $10, updated_at = NOW()
		 WHERE id = $1 AND customer_id = $2
		 RETURNING updated_at`,
		d.ID, d.CustomerID, d.Name, d.IPAddress, d.MACAddress, d.Description, d.Location, d.Status, d.SSHPort, d.SSHUsername,
	).Scan(&d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *DeviceStore) UpdateAPIKeyHash(ctx context.Context, id uuid.UUID, customerID uuid.UUID, apiKeyHash string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE devices SET api_key_hash = $3, updated_at = NOW() WHERE id = $1 AND customer_id = $2`,
		id, customerID, apiKeyHash,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *DeviceStore) Delete(ctx context.Context, id uuid.UUID, customerID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM devices WHERE id = $1 AND customer_id = $2`,
		id, customerID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkSeen sets last_seen_at and flips the device online unless it is in
// maintenance. The status before the update is returned.
func (s *DeviceStore) MarkSeen(ctx context.Context, id uuid.UUID, customerID uuid.UUID, at time.Time) (domain.DeviceStatus, error) {
	var prev domain.DeviceStatus
	err := s.db.QueryRow(ctx,
		`WITH prev AS (
		     SELECT status FROM devices WHERE id = $1 AND customer_id = $2 FOR UPDATE
		 )
		 UPDATE devices d
		 SET last_seen_at = $3,
		     status = CASE WHEN d.status = 'maintenance' THEN d.status ELSE 'online' END,
		     updated_at = NOW()
		 FROM prev
		 WHERE d.id = $1 AND d.customer_id = $2
		 RETURNING prev.status`,
		id, customerID, at,
	).Scan(&prev)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return prev, nil
}

func (s *DeviceStore) MarkOfflineBefore(ctx context.Context, customerID uuid.UUID, cutoff time.Time) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx,
		`UPDATE devices SET status = 'offline', updated_at = NOW()
		 WHERE customer_id = $1 AND status = 'online'
		   AND (last_seen_at IS NULL OR last_seen_at < $2)
		 RETURNING id`,
		customerID, cutoff,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func (s *DeviceStore) CountByStatus(ctx context.Context, customerID uuid.UUID) ([]domain.DeviceStatusCount, error) {
	rows, err := s.db.Query(ctx,
		`SELECT status, COUNT(*) FROM devices WHERE customer_id = $1
		 GROUP BY status ORDER BY status`,
		customerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DeviceStatusCount
	for rows.Next() {
		var c domain.DeviceStatusCount
		if err := rows.Scan(&c.Status, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *DeviceStore) ListRecentlySeen(ctx context.Context, customerID uuid.UUID, limit int) ([]domain.Device, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+deviceColumns+` FROM devices
		 WHERE customer_id = $1 AND last_seen_at IS NOT NULL
		 ORDER BY last_seen_at DESC
		 LIMIT $2`,
		customerID, limit,
	)
	if err != nil {
		return nil, err
	}
	return collectDevices(rows)
}
