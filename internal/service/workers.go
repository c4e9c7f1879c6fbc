package service

import (
	"context"
	"sync"
	"time"

	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultMonitorInterval   = 1 * time.Minute
	defaultReaperInterval    = 1 * time.Minute
	defaultRetentionInterval = 1 * time.Hour
	workerPassTimeout        = 30 * time.Second
)

// periodic runs a pass on a ticker in a background goroutine until stopped.
type periodic struct {
	name     string
	interval time.Duration
	logger   *zap.Logger
	pass     func(ctx context.Context)

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newPeriodic(name string, interval time.Duration, logger *zap.Logger, pass func(ctx context.Context)) *periodic {
	return &periodic{name: name, interval: interval, logger: logger, pass: pass, stopCh: make(chan struct{})}
}

func (p *periodic) setInterval(d time.Duration) {
	if d > 0 {
		p.interval = d
	}
}

func (p *periodic) start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.logger.Info(p.name+" started", zap.Duration("interval", p.interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), workerPassTimeout)
				p.pass(ctx)
				cancel()
			case <-p.stopCh:
				p.logger.Info(p.name + " stopped")
				return
			}
		}
	}()
}

func (p *periodic) stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

// DeviceMonitor marks devices offline once they miss heartbeats for longer
// than their customer's offline threshold.
type DeviceMonitor struct {
	customers domain.CustomerStore
	settings  *SettingsService
	devices   *DeviceService
	logger    *zap.Logger
	now       func() time.Time
	loop      *periodic
}

func NewDeviceMonitor(cs domain.CustomerStore, settings *SettingsService, devices *DeviceService, logger *zap.Logger) *DeviceMonitor {
	m := &DeviceMonitor{customers: cs, settings: settings, devices: devices, logger: logger, now: utcNow}
	m.loop = newPeriodic("device monitor", defaultMonitorInterval, logger, m.RunOnce)
	return m
}

func (m *DeviceMonitor) SetInterval(d time.Duration) { m.loop.setInterval(d) }
func (m *DeviceMonitor) Start()                      { m.loop.start() }
func (m *DeviceMonitor) Stop()                       { m.loop.stop() }

func (m *DeviceMonitor) RunOnce(ctx context.Context) {
	customers, err := m.customers.List(ctx)
	if err != nil {
		m.logger.Error("failed to list customers for device monitor", zap.Error(err))
		return
	}
	now := m.now()
	for _, c := range customers {
		ts, err := m.settings.ForCustomer(ctx, c.ID)
		if err != nil {
			m.logger.Warn("failed to load settings for device monitor",
				zap.String("customer_id", c.ID.String()),
				zap.Error(err))
			continue
		}
		n, err := m.devices.MarkOffline(ctx, c.ID, now.Add(-ts.OfflineAfter()))
		if err != nil {
			m.logger.Warn("failed to mark devices offline",
				zap.String("customer_id", c.ID.String()),
				zap.Error(err))
		} else if n > 0 {
			m.logger.Info("marked devices offline",
				zap.String("customer_id", c.ID.String()),
				zap.Int("count", n))
		}
	}
}

// SessionReaper closes SSH sessions idle for longer than the customer's
// idle timeout.
type SessionReaper struct {
	sessions *SSHSessionService
	settings *SettingsService
	logger   *zap.Logger
	loop     *periodic
}

func NewSessionReaper(sessions *SSHSessionService, settings *SettingsService, logger *zap.Logger) *SessionReaper {
	r := &SessionReaper{sessions: sessions, settings: settings, logger: logger}
	r.loop = newPeriodic("ssh session reaper", defaultReaperInterval, logger, r.RunOnce)
	return r
}

func (r *SessionReaper) SetInterval(d time.Duration) { r.loop.setInterval(d) }
func (r *SessionReaper) Start()                      { r.loop.start() }
func (r *SessionReaper) Stop()                       { r.loop.stop() }

// CloseOrphaned runs once at start-up, before the reaper starts.
func (r *SessionReaper) CloseOrphaned(ctx context.Context) {
	n, err := r.sessions.CloseOrphaned(ctx)
	if err != nil {
		r.logger.Error("failed to close orphaned ssh sessions", zap.Error(err))
		return
	}
	if n > 0 {
		r.logger.Info("closed orphaned ssh sessions", zap.Int64("count", n))
	}
}

func (r *SessionReaper) RunOnce(ctx context.Context) {
	for _, customerID := range r.sessions.LiveCustomers() {
		ts, err := r.settings.ForCustomer(ctx, customerID)
		if err != nil {
			r.logger.Warn("failed to load settings for session reaper",
				zap.String("customer_id", customerID.String()),
				zap.Error(err))
			continue
		}
		if n := r.sessions.ReapIdle(ctx, customerID, ts.SSHIdleTimeout()); n > 0 {
			r.logger.Info("closed idle ssh sessions",
				zap.String("customer_id", customerID.String()),
				zap.Int("count", n))
		}
	}
}

// RetentionService deletes metrics older than each customer's retention.
type RetentionService struct {
	customers domain.CustomerStore
	settings  *SettingsService
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
	loop      *periodic
}

func NewRetentionService(cs domain.CustomerStore, settings *SettingsService, metrics *MetricsService, logger *zap.Logger) *RetentionService {
	s := &RetentionService{customers: cs, settings: settings, metrics: metrics, logger: logger, now: utcNow}
	s.loop = newPeriodic("metrics retention", defaultRetentionInterval, logger, s.RunOnce)
	return s
}

func (s *RetentionService) SetInterval(d time.Duration) { s.loop.setInterval(d) }
func (s *RetentionService) Start()                      { s.loop.start() }
func (s *RetentionService) Stop()                       { s.loop.stop() }

func (s *RetentionService) RunOnce(ctx context.Context) {
	customers, err := s.customers.List(ctx)
	if err != nil {
		s.logger.Error("failed to list customers for retention", zap.Error(err))
		return
	}
	now := s.now()
	for _, c := range customers {
		ts, err := s.settings.ForCustomer(ctx, c.ID)
		if err != nil {
			s.logger.Warn("failed to load settings for retention",
				zap.String("customer_id", c.ID.String()),
				zap.Error(err))
			continue
		}
		cutoff := now.AddDate(0, 0, -ts.MetricsRetentionDays)
		deleted, err := s.metrics.PurgeBefore(ctx, c.ID, cutoff)
		if err != nil {
			s.logger.Warn("failed to delete metrics past retention",
				zap.String("customer_id", c.ID.String()),
				zap.Error(err))
		} else if deleted > 0 {
			s.logger.Info("deleted metrics past retention",
				zap.String("customer_id", c.ID.String()),
				zap.Int("retention_days", ts.MetricsRetentionDays),
				zap.Int64("count", deleted))
		}
	}
}
