package service

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/Harshitk-cp/iotpilot/internal/sshclient"
	"github.com/Harshitk-cp/iotpilot/internal/store"
	"github.com/google/uuid"
)

// mockCustomerStore implements domain.CustomerStore for testing.
type mockCustomerStore struct {
	mu        sync.Mutex
	customers map[uuid.UUID]*domain.Customer
}

func newMockCustomerStore() *mockCustomerStore {
	return &mockCustomerStore{customers: make(map[uuid.UUID]*domain.Customer)}
}

func (m *mockCustomerStore) Create(_ context.Context, c *domain.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.customers {
		if existing.Slug == c.Slug {
			return store.ErrConflict
		}
	}
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	m.customers[c.ID] = &cp
	return nil
}

func (m *mockCustomerStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockCustomerStore) List(_ context.Context) ([]domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Customer
	for _, c := range m.customers {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockCustomerStore) Update(_ context.Context, c *domain.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.customers[c.ID]; !ok {
		return store.ErrNotFound
	}
	for id, existing := range m.customers {
		if id != c.ID && existing.Slug == c.Slug {
			return store.ErrConflict
		}
	}
	cp := *c
	m.customers[c.ID] = &cp
	return nil
}

func (m *mockCustomerStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.customers[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.customers, id)
	return nil
}

// mockUserStore implements domain.UserStore for testing.
type mockUserStore struct {
	mu     sync.Mutex
	users  map[uuid.UUID]*domain.User
	getErr error
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{users: make(map[uuid.UUID]*domain.User)}
}

func (m *mockUserStore) Create(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return store.ErrConflict
		}
	}
	u.ID = uuid.New()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockUserStore) GetByID(_ context.Context, id uuid.UUID, customerID uuid.UUID) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	u, ok := m.users[id]
	if !ok || u.CustomerID != customerID {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockUserStore) ListByCustomer(_ context.Context, customerID uuid.UUID) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.User
	for _, u := range m.users {
		if u.CustomerID == customerID {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (m *mockUserStore) Update(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.users[u.ID]
	if !ok || existing.CustomerID != u.CustomerID {
		return store.ErrNotFound
	}
	existing.Name = u.Name
	existing.Role = u.Role
	return nil
}

func (m *mockUserStore) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *mockUserStore) UpdateLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.LastLoginAt = &at
	return nil
}

func (m *mockUserStore) Delete(_ context.Context, id uuid.UUID, customerID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.CustomerID != customerID {
		return store.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

// mockDeviceStore implements domain.DeviceStore for testing.
type mockDeviceStore struct {
	mu        sync.Mutex
	devices   map[uuid.UUID]*domain.Device
	listCalls int
}

func newMockDeviceStore() *mockDeviceStore {
	return &mockDeviceStore{devices: make(map[uuid.UUID]*domain.Device)}
}

func (m *mockDeviceStore) Create(_ context.Context, d *domain.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.devices {
		if existing.CustomerID == d.CustomerID && existing.Name == d.Name {
			return store.ErrConflict
		}
	}
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	cp := *d
	m.devices[d.ID] = &cp
	return nil
}

func (m *mockDeviceStore) GetByID(_ context.Context, id uuid.UUID, customerID uuid.UUID) (*domain.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok || d.CustomerID != customerID {
		return nil, store.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockDeviceStore) GetByAPIKeyHash(_ context.Context, hash string) (*domain.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if d.APIKeyHash == hash {
			cp := *d
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockDeviceStore) List(_ context.Context, customerID uuid.UUID, f domain.DeviceFilter) ([]domain.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	var out []domain.Device
	for _, d := range m.devices {
		if d.CustomerID != customerID {
			continue
		}
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(d.Name+" "+d.IPAddress+" "+d.MACAddress), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *mockDeviceStore) Update(_ context.Context, d *domain.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.devices[d.ID]
	if !ok || existing.CustomerID != d.CustomerID {
		return store.ErrNotFound
	}
	for id, other := range m.devices {
		if id != d.ID && other.CustomerID == d.CustomerID && other.Name == d.Name {
			return store.ErrConflict
		}
	}
	cp := *d
	cp.APIKeyHash = existing.APIKeyHash
	m.devices[d.ID] = &cp
	return nil
}

func (m *mockDeviceStore) UpdateAPIKeyHash(_ context.Context, id uuid.UUID, customerID uuid.UUID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok || d.CustomerID != customerID {
		return store.ErrNotFound
	}
	d.APIKeyHash = hash
	return nil
}

func (m *mockDeviceStore) Delete(_ context.Context, id uuid.UUID, customerID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok || d.CustomerID != customerID {
		return store.ErrNotFound
	}
	delete(m.devices, id)
	return nil
}

func (m *mockDeviceStore) MarkSeen(_ context.Context, id uuid.UUID, customerID uuid.UUID, at time.Time) (domain.DeviceStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok || d.CustomerID != customerID {
		return "", store.ErrNotFound
	}
	prev := d.Status
	d.LastSeenAt = &at
	if d.Status != domain.DeviceStatusMaintenance {
		d.Status = domain.DeviceStatusOnline
	}
	return prev, nil
}

func (m *mockDeviceStore) MarkOfflineBefore(_ context.Context, customerID uuid.UUID, cutoff time.Time) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for _, d := range m.devices {
		if d.CustomerID != customerID || d.Status != domain.DeviceStatusOnline {
			continue
		}
		if d.LastSeenAt == nil || d.LastSeenAt.Before(cutoff) {
			d.Status = domain.DeviceStatusOffline
			ids = append(ids, d.ID)
		}
	}
	return ids, nil
}

func (m *mockDeviceStore) CountByStatus(_ context.Context, customerID uuid.UUID) ([]domain.DeviceStatusCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[domain.DeviceStatus]int{}
	for _, d := range m.devices {
		if d.CustomerID == customerID {
			counts[d.Status]++
		}
	}
	var out []domain.DeviceStatusCount
	for s, n := range counts {
		out = append(out, domain.DeviceStatusCount{Status: s, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out, nil
}

func (m *mockDeviceStore) ListRecentlySeen(_ context.Context, customerID uuid.UUID, limit int) ([]domain.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Device
	for _, d := range m.devices {
		if d.CustomerID == customerID && d.LastSeenAt != nil {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeenAt.After(*out[j].LastSeenAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// mockSSHSessionStore implements domain.SSHSessionStore for testing.
type mockSSHSessionStore struct {
	mu        sync.Mutex
	sessions  map[uuid.UUID]*domain.SSHSession
	commands  []domain.SSHCommand
	createErr error
}

func newMockSSHSessionStore() *mockSSHSessionStore {
	return &mockSSHSessionStore{sessions: make(map[uuid.UUID]*domain.SSHSession)}
}

func (m *mockSSHSessionStore) Create(_ context.Context, s *domain.SSHSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	s.ID = uuid.New()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *mockSSHSessionStore) GetByID(_ context.Context, id uuid.UUID, customerID uuid.UUID) (*domain.SSHSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.CustomerID != customerID {
		return nil, store.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockSSHSessionStore) List(_ context.Context, customerID uuid.UUID, f domain.SSHSessionFilter) ([]domain.SSHSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SSHSession
	for _, s := range m.sessions {
		if s.CustomerID != customerID {
			continue
		}
		if f.DeviceID != nil && s.DeviceID != *f.DeviceID {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

func (m *mockSSHSessionStore) Close(_ context.Context, id uuid.UUID, status domain.SSHSessionStatus, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status != domain.SSHSessionActive {
		return store.ErrNotFound
	}
	s.Status = status
	s.EndReason = reason
	s.EndedAt = &at
	return nil
}

func (m *mockSSHSessionStore) CloseAllActive(_ context.Context, reason string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.sessions {
		if s.Status == domain.SSHSessionActive {
			s.Status = domain.SSHSessionClosed
			s.EndReason = reason
			s.EndedAt = &at
			n++
		}
	}
	return n, nil
}

func (m *mockSSHSessionStore) CountActive(_ context.Context, customerID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.CustomerID == customerID && s.Status == domain.SSHSessionActive {
			n++
		}
	}
	return n, nil
}

func (m *mockSSHSessionStore) AddCommand(_ context.Context, c *domain.SSHCommand) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[c.SessionID]
	if !ok {
		return store.ErrNotFound
	}
	c.ID = uuid.New()
	m.commands = append(m.commands, *c)
	s.CommandCount++
	s.LastActivityAt = c.StartedAt.Add(c.Duration)
	return nil
}

func (m *mockSSHSessionStore) ListCommands(_ context.Context, sessionID uuid.UUID) ([]domain.SSHCommand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SSHCommand
	for _, c := range m.commands {
		if c.SessionID == sessionID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockSSHSessionStore) get(id uuid.UUID) domain.SSHSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.sessions[id]
}

// mockMetricStore implements domain.MetricStore for testing.
type mockMetricStore struct {
	mu      sync.Mutex
	metrics []domain.Metric
}

func newMockMetricStore() *mockMetricStore {
	return &mockMetricStore{}
}

func (m *mockMetricStore) Insert(_ context.Context, metrics []domain.Metric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = append(m.metrics, metrics...)
	return nil
}

func (m *mockMetricStore) Query(_ context.Context, customerID uuid.UUID, q domain.MetricQuery) ([]domain.Metric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Metric
	for _, p := range m.metrics {
		if p.CustomerID != customerID || p.DeviceID != q.DeviceID {
			continue
		}
		if q.Measurement != "" && p.Measurement != q.Measurement {
			continue
		}
		if !q.From.IsZero() && p.RecordedAt.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && !p.RecordedAt.Before(q.To) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *mockMetricStore) Latest(_ context.Context, customerID uuid.UUID, deviceID uuid.UUID) ([]domain.Metric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	latest := map[string]domain.Metric{}
	for _, p := range m.metrics {
		if p.CustomerID != customerID || p.DeviceID != deviceID {
			continue
		}
		if cur, ok := latest[p.Measurement]; !ok || p.RecordedAt.After(cur.RecordedAt) {
			latest[p.Measurement] = p
		}
	}
	var out []domain.Metric
	for _, p := range latest {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Measurement < out[j].Measurement })
	return out, nil
}

func (m *mockMetricStore) DeleteBefore(_ context.Context, customerID uuid.UUID, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	m.metrics = slices.DeleteFunc(m.metrics, func(p domain.Metric) bool {
		if p.CustomerID == customerID && p.RecordedAt.Before(cutoff) {
			n++
			return true
		}
		return false
	})
	return n, nil
}

// mockSettingsStore implements domain.SettingsStore for testing.
type mockSettingsStore struct {
	mu       sync.Mutex
	settings map[uuid.UUID]domain.TenantSettings
	gets     int
}

func newMockSettingsStore() *mockSettingsStore {
	return &mockSettingsStore{settings: make(map[uuid.UUID]domain.TenantSettings)}
}

func (m *mockSettingsStore) Get(_ context.Context, customerID uuid.UUID) (*domain.TenantSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	s, ok := m.settings[customerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

func (m *mockSettingsStore) Upsert(_ context.Context, s *domain.TenantSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.UpdatedAt = time.Now()
	m.settings[s.CustomerID] = *s
	return nil
}

// fakeConn implements sshclient.Conn with scripted results.
type fakeConn struct {
	mu      sync.Mutex
	ran     []string
	closed  bool
	result  sshclient.Result
	err     error
	block   chan struct{}
	entered chan struct{}
}

func (c *fakeConn) Run(ctx context.Context, command string) (sshclient.Result, error) {
	c.mu.Lock()
	c.ran = append(c.ran, command)
	res, err, block, entered := c.result, c.err, c.block, c.entered
	c.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return sshclient.Result{ExitCode: -1}, ctx.Err()
		}
	}
	return res, err
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeDialer hands out conn, or fails with err.
type fakeDialer struct {
	mu      sync.Mutex
	conn    *fakeConn
	err     error
	targets []sshclient.Target
}

func (d *fakeDialer) Dial(_ context.Context, t sshclient.Target) (sshclient.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.targets = append(d.targets, t)
	if d.err != nil {
		return nil, d.err
	}
	if d.conn == nil {
		return nil, errors.New("no conn scripted")
	}
	return d.conn, nil
}
