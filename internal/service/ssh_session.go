package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/iotpilot/internal/access"
	"github.com/Harshitk-cp/iotpilot/internal/bus"
	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/Harshitk-cp/iotpilot/internal/sshclient"
	"github.com/Harshitk-cp/iotpilot/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultCommandTimeout = 60 * time.Second
	maxSessionListLimit   = 200
)

var (
	ErrSessionNotFound      = errors.New("ssh session not found")
	ErrSessionClosed        = errors.New("ssh session is not active")
	ErrSSHConnect           = errors.New("ssh connection failed")
	ErrEmptyCommand         = errors.New("command must not be empty")
	ErrSSHUsernameRequired  = errors.New("ssh username is required (set one on the device or in the request)")
	ErrInvalidSessionStatus = errors.New("status must be active, closed or failed")
)

// liveSession is an open connection held in the registry. mu serializes
// commands on the connection and guards closed.
type liveSession struct {
	mu           sync.Mutex
	conn         sshclient.Conn
	closed       bool
	customerID   uuid.UUID
	lastActivity atomic.Int64
}

func (l *liveSession) touch(t time.Time) { l.lastActivity.Store(t.UnixNano()) }

func (l *liveSession) idleSince() time.Time { return time.Unix(0, l.lastActivity.Load()) }

// shut closes the connection once. Callers hold l.mu.
func (l *liveSession) shut() {
	if l.closed {
		return
	}
	l.closed = true
	_ = l.conn.Close()
}

type SSHSessionService struct {
	sessions       domain.SSHSessionStore
	devices        domain.DeviceStore
	dialer         SSHDialer
	events         *bus.EventBus
	logger         *zap.Logger
	commandTimeout time.Duration
	now            func() time.Time

	mu   sync.Mutex
	live map[uuid.UUID]*liveSession
}

func NewSSHSessionService(ss domain.SSHSessionStore, ds domain.DeviceStore, dialer SSHDialer, events *bus.EventBus, logger *zap.Logger) *SSHSessionService {
	return &SSHSessionService{
		sessions:       ss,
		devices:        ds,
		dialer:         dialer,
		events:         events,
		logger:         logger,
		commandTimeout: defaultCommandTimeout,
		now:            utcNow,
		live:           make(map[uuid.UUID]*liveSession),
	}
}

func (s *SSHSessionService) SetCommandTimeout(d time.Duration) {
	if d > 0 {
		s.commandTimeout = d
	}
}

type StartSSHSessionInput struct {
	DeviceID uuid.UUID `json:"device_id"`
	Username string    `json:"username,omitempty"`
	Password string    `json:"password,omitempty"`
}

// Start dials the device and registers a live session. A failed dial is
// still recorded, as a failed session.
func (s *SSHSessionService) Start(ctx context.Context, p access.Principal, customerID uuid.UUID, in StartSSHSessionInput) (*domain.SSHSession, error) {
	if !access.CanManageCustomer(p, customerID) {
		return nil, access.ErrForbidden
	}
	d, err := s.devices.GetByID(ctx, in.DeviceID, customerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}
	username := strings.TrimSpace(in.Username)
	if username == "" {
		username = d.SSHUsername
	}
	if username == "" {
		return nil, ErrSSHUsernameRequired
	}

	started := s.now()
	sess := &domain.SSHSession{
		CustomerID:     customerID,
		DeviceID:       d.ID,
		UserID:         p.UserID,
		Username:       username,
		Status:         domain.SSHSessionActive,
		StartedAt:      started,
		LastActivityAt: started,
	}

	conn, dialErr := s.dialer.Dial(ctx, sshclient.Target{
		Host:     d.IPAddress,
		Port:     d.SSHPort,
		Username: username,
		Password: in.Password,
	})
	if dialErr != nil {
		ended := s.now()
		sess.Status = domain.SSHSessionFailed
		sess.EndedAt = &ended
		sess.EndReason = domain.EndReasonError
		sess.Error = dialErr.Error()
		if err := s.sessions.Create(ctx, sess); err != nil {
			s.logger.Error("failed to record failed ssh session", zap.String("device_id", d.ID.String()), zap.Error(err))
		}
		return nil, fmt.Errorf("%w: %v", ErrSSHConnect, dialErr)
	}

	if err := s.sessions.Create(ctx, sess); err != nil {
		_ = conn.Close()
		return nil, err
	}

	l := &liveSession{conn: conn, customerID: customerID}
	l.touch(started)
	s.mu.Lock()
	s.live[sess.ID] = l
	s.mu.Unlock()

	publish(ctx, s.events, s.logger, domain.SSHSessionStarted{EventMeta: domain.NewEventMeta(customerID), Session: *sess})
	return sess, nil
}

func (s *SSHSessionService) lookup(id uuid.UUID) *liveSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live[id]
}

func (s *SSHSessionService) detach(id uuid.UUID) {
	s.mu.Lock()
	delete(s.live, id)
	s.mu.Unlock()
}

// Execute runs one command on an active session and records it. A command
// that exceeds the timeout is killed and recorded with exit code -1.
func (s *SSHSessionService) Execute(ctx context.Context, p access.Principal, customerID, sessionID uuid.UUID, command string) (*domain.SSHCommand, error) {
	if !access.CanManageCustomer(p, customerID) {
		return nil, access.ErrForbidden
	}
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, ErrEmptyCommand
	}
	sess, err := s.getSession(ctx, customerID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != domain.SSHSessionActive {
		return nil, ErrSessionClosed
	}
	l := s.lookup(sessionID)
	if l == nil {
		return nil, ErrSessionClosed
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrSessionClosed
	}

	runCtx, cancel := context.WithTimeout(ctx, s.commandTimeout)
	defer cancel()
	started := s.now()
	res, runErr := l.conn.Run(runCtx, command)
	if runErr != nil && !errors.Is(runErr, context.DeadlineExceeded) && !errors.Is(runErr, context.Canceled) {
		// The transport is gone; the session cannot be used again.
		l.shut()
		s.detach(sessionID)
		s.finish(context.WithoutCancel(ctx), sess, domain.SSHSessionFailed, domain.EndReasonError)
		return nil, fmt.Errorf("%w: %v", ErrSSHConnect, runErr)
	}

	cmd := &domain.SSHCommand{
		SessionID: sessionID,
		Command:   command,
		Output:    sanitizeOutput(res.Output),
		ExitCode:  res.ExitCode,
		Truncated: res.Truncated,
		StartedAt: started,
		Duration:  res.Duration,
	}
	if err := s.sessions.AddCommand(context.WithoutCancel(ctx), cmd); err != nil {
		return nil, err
	}
	l.touch(started.Add(res.Duration))

	publish(ctx, s.events, s.logger, domain.SSHCommandExecuted{
		EventMeta: domain.NewEventMeta(customerID),
		DeviceID:  sess.DeviceID,
		UserID:    p.UserID,
		Command:   *cmd,
	})
	return cmd, nil
}

// sanitizeOutput makes remote output storable as TEXT.
func sanitizeOutput(b []byte) string {
	return strings.ReplaceAll(strings.ToValidUTF8(string(b), "\uFFFD"), "\x00", "")
}

// End closes a session. Ending a session that is already over returns it
// unchanged.
func (s *SSHSessionService) End(ctx context.Context, p access.Principal, customerID, sessionID uuid.UUID) (*domain.SSHSession, error) {
	if !access.CanManageCustomer(p, customerID) {
		return nil, access.ErrForbidden
	}
	sess, err := s.getSession(ctx, customerID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != domain.SSHSessionActive {
		return sess, nil
	}
	if l := s.lookup(sessionID); l != nil {
		l.mu.Lock()
		l.shut()
		l.mu.Unlock()
		s.detach(sessionID)
	}
	s.finish(ctx, sess, domain.SSHSessionClosed, domain.EndReasonUser)
	return sess, nil
}

// finish persists the end of a session and announces it. sess is updated in
// place.
func (s *SSHSessionService) finish(ctx context.Context, sess *domain.SSHSession, status domain.SSHSessionStatus, reason string) {
	at := s.now()
	if err := s.sessions.Close(ctx, sess.ID, status, reason, at); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return
		}
		s.logger.Error("failed to close ssh session", zap.String("session_id", sess.ID.String()), zap.Error(err))
		return
	}
	sess.Status = status
	sess.EndReason = reason
	sess.EndedAt = &at
	publish(ctx, s.events, s.logger, domain.SSHSessionEnded{EventMeta: domain.NewEventMeta(sess.CustomerID), Session: *sess})
}

func (s *SSHSessionService) getSession(ctx context.Context, customerID, id uuid.UUID) (*domain.SSHSession, error) {
	sess, err := s.sessions.GetByID(ctx, id, customerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return sess, nil
}

func (s *SSHSessionService) Get(ctx context.Context, p access.Principal, customerID, id uuid.UUID) (*domain.SSHSessionDetail, error) {
	if !access.CanAccessCustomer(p, customerID) {
		return nil, access.ErrForbidden
	}
	sess, err := s.getSession(ctx, customerID, id)
	if err != nil {
		return nil, err
	}
	cmds, err := s.sessions.ListCommands(ctx, id)
	if err != nil {
		return nil, err
	}
	if cmds == nil {
		cmds = []domain.SSHCommand{}
	}
	return &domain.SSHSessionDetail{SSHSession: *sess, Commands: cmds}, nil
}

func (s *SSHSessionService) List(ctx context.Context, p access.Principal, customerID uuid.UUID, f domain.SSHSessionFilter) ([]domain.SSHSession, error) {
	if !access.CanAccessCustomer(p, customerID) {
		return nil, access.ErrForbidden
	}
	switch f.Status {
	case "", domain.SSHSessionActive, domain.SSHSessionClosed, domain.SSHSessionFailed:
	default:
		return nil, ErrInvalidSessionStatus
	}
	if f.Limit <= 0 || f.Limit > maxSessionListLimit {
		f.Limit = maxSessionListLimit
	}
	out, err := s.sessions.List(ctx, customerID, f)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.SSHSession{}
	}
	return out, nil
}

// LiveCustomers lists customers that currently hold open connections.
func (s *SSHSessionService) LiveCustomers() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	for _, l := range s.live {
		if _, ok := seen[l.customerID]; ok {
			continue
		}
		seen[l.customerID] = struct{}{}
		out = append(out, l.customerID)
	}
	return out
}

func (s *SSHSessionService) LiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// ReapIdle closes the customer's sessions with no activity for longer than
// idle. Sessions running a command are skipped.
func (s *SSHSessionService) ReapIdle(ctx context.Context, customerID uuid.UUID, idle time.Duration) int {
	cutoff := s.now().Add(-idle)

	s.mu.Lock()
	var candidates []uuid.UUID
	for id, l := range s.live {
		if l.customerID == customerID && l.idleSince().Before(cutoff) {
			candidates = append(candidates, id)
		}
	}
	s.mu.Unlock()

	reaped := 0
	for _, id := range candidates {
		l := s.lookup(id)
		if l == nil || !l.mu.TryLock() {
			continue
		}
		if l.closed || !l.idleSince().Before(cutoff) {
			l.mu.Unlock()
			continue
		}
		l.shut()
		l.mu.Unlock()
		s.detach(id)

		sess, err := s.getSession(ctx, customerID, id)
		if err != nil {
			s.logger.Warn("idle ssh session vanished", zap.String("session_id", id.String()), zap.Error(err))
			continue
		}
		s.finish(ctx, sess, domain.SSHSessionClosed, domain.EndReasonIdle)
		reaped++
	}
	return reaped
}

// CloseOrphaned marks sessions left active by a previous process as closed.
// It must run before any session is started.
func (s *SSHSessionService) CloseOrphaned(ctx context.Context) (int64, error) {
	return s.sessions.CloseAllActive(ctx, domain.EndReasonOrphaned, s.now())
}

// Shutdown closes every live connection.
func (s *SSHSessionService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	ids := make([]uuid.UUID, 0, len(s.live))
	for id := range s.live {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		l := s.lookup(id)
		if l == nil {
			continue
		}
		l.mu.Lock()
		l.shut()
		customerID := l.customerID
		l.mu.Unlock()
		s.detach(id)

		sess, err := s.getSession(ctx, customerID, id)
		if err != nil {
			continue
		}
		s.finish(ctx, sess, domain.SSHSessionClosed, domain.EndReasonShutdown)
	}
}
