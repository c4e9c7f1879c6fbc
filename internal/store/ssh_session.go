package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SSHSessionStore struct {
	db *pgxpool.Pool
}

func NewSSHSessionStore(db *pgxpool.Pool) *SSHSessionStore {
	return &SSHSessionStore{db: db}
}

const sshSessionColumns = `id, customer_id, device_id, user_id, username, status, started_at, last_activity_at,
	ended_at, end_reason, error, command_count`

func scanSSHSession(row pgx.Row) (*domain.SSHSession, error) {
	s := &domain.SSHSession{}
	err := row.Scan(&s.ID, &s.CustomerID, &s.DeviceID, &s.UserID, &s.Username, &s.Status, &s.StartedAt, &s.LastActivityAt,
		&s.EndedAt, &s.EndReason, &s.Error, &s.CommandCount)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SSHSessionStore) Create(ctx context.Context, sess *domain.SSHSession) error {
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now().UTC()
	}
	if sess.LastActivityAt.IsZero() {
		sess.LastActivityAt = sess.StartedAt
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO ssh_sessions (customer_id, device_id, user_id, username, status, started_at, last_activity_at, ended_at, end_reason, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		sess.CustomerID, sess.DeviceID, sess.UserID, sess.Username, sess.Status, sess.StartedAt, sess.LastActivityAt,
		sess.EndedAt, sess.EndReason, sess.Error,
	).Scan(&sess.ID)
}

func (s *SSHSessionStore) GetByID(ctx context.Context, id uuid.UUID, customerID uuid.UUID) (*domain.SSHSession, error) {
	sess, err := scanSSHSession(s.db.QueryRow(ctx,
		`SELECT `+sshSessionColumns+` FROM ssh_sessions WHERE id = $1 AND customer_id = $2`,
		id, customerID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sess, nil
}

func (s *SSHSessionStore) List(ctx context.Context, customerID uuid.UUID, f domain.SSHSessionFilter) ([]domain.SSHSession, error) {
	query := `SELECT ` + sshSessionColumns + ` FROM ssh_sessions WHERE customer_id = $1`
	args := []any{customerID}

	if f.DeviceID != nil {
		args = append(args, *f.DeviceID)
		query += fmt.Sprintf(" AND device_id = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d", len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SSHSession
	for rows.Next() {
		sess, err := scanSSHSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

// Close ends an active session. Closing an already-ended session is a no-op
// reported as ErrNotFound.
func (s *SSHSessionStore) Close(ctx context.Context, id uuid.UUID, status domain.SSHSessionStatus, reason string, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE ssh_sessions SET status = $2, end_reason = $3, ended_at = $4
		 WHERE id = $1 AND status = 'active'`,
		id, status, reason, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SSHSessionStore) CloseAllActive(ctx context.Context, reason string, at time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE ssh_sessions SET status = 'closed', end_reason = $1, ended_at = $2
		 WHERE status = 'active'`,
		reason, at,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *SSHSessionStore) CountActive(ctx context.Context, customerID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM ssh_sessions WHERE customer_id = $1 AND status = 'active'`,
		customerID,
	).Scan(&n)
	return n, err
}

// AddCommand stores a command and bumps the parent session's activity
// counters in one transaction.
func (s *SSHSessionStore) AddCommand(ctx context.Context, c *domain.SSHCommand) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`INSERT INTO ssh_commands (session_id, command, output, exit_code, truncated, started_at, duration_ns)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		c.SessionID, c.Command, c.Output, c.ExitCode, c.Truncated, c.StartedAt, c.Duration.Nanoseconds(),
	).Scan(&c.ID)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx,
		`UPDATE ssh_sessions SET command_count = command_count + 1, last_activity_at = $2
		 WHERE id = $1`,
		c.SessionID, c.StartedAt.Add(c.Duration),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

func (s *SSHSessionStore) ListCommands(ctx context.Context, sessionID uuid.UUID) ([]domain.SSHCommand, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, session_id, command, output, exit_code, truncated, started_at, duration_ns
		 FROM ssh_commands WHERE session_id = $1
		 ORDER BY started_at`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SSHCommand
	for rows.Next() {
		var c domain.SSHCommand
		var durationNS int64
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Command, &c.Output, &c.ExitCode, &c.Truncated, &c.StartedAt, &durationNS); err != nil {
			return nil, err
		}
		c.Duration = time.Duration(durationNS)
		out = append(out, c)
	}
	return out, rows.Err()
}
