package service

import (
	"context"
	"time"

	"github.com/Harshitk-cp/iotpilot/internal/access"
	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	dashboardRecentDevices = 10
	dashboardFetchLimit    = 4
)

type DeviceSnapshot struct {
	Device domain.Device   `json:"device"`
	Latest []domain.Metric `json:"latest"`
}

type Dashboard struct {
	CustomerID        uuid.UUID                  `json:"customer_id"`
	DeviceCounts      []domain.DeviceStatusCount `json:"device_counts"`
	TotalDevices      int                        `json:"total_devices"`
	ActiveSSHSessions int                        `json:"active_ssh_sessions"`
	RecentDevices     []DeviceSnapshot           `json:"recent_devices"`
	GeneratedAt       time.Time                  `json:"generated_at"`
}

type DashboardService struct {
	devices  domain.DeviceStore
	sessions domain.SSHSessionStore
	metrics  domain.MetricStore
	now      func() time.Time
}

func NewDashboardService(ds domain.DeviceStore, ss domain.SSHSessionStore, ms domain.MetricStore) *DashboardService {
	return &DashboardService{devices: ds, sessions: ss, metrics: ms, now: utcNow}
}

func (s *DashboardService) Get(ctx context.Context, p access.Principal, customerID uuid.UUID) (*Dashboard, error) {
	if !access.CanAccessCustomer(p, customerID) {
		return nil, access.ErrForbidden
	}

	d := &Dashboard{CustomerID: customerID, GeneratedAt: s.now()}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		counts, err := s.devices.CountByStatus(gctx, customerID)
		if err != nil {
			return err
		}
		for _, c := range counts {
			d.TotalDevices += c.Count
		}
		d.DeviceCounts = counts
		return nil
	})

	g.Go(func() error {
		n, err := s.sessions.CountActive(gctx, customerID)
		if err != nil {
			return err
		}
		d.ActiveSSHSessions = n
		return nil
	})

	g.Go(func() error {
		recent, err := s.devices.ListRecentlySeen(gctx, customerID, dashboardRecentDevices)
		if err != nil {
			return err
		}
		snaps := make([]DeviceSnapshot, len(recent))
		inner, ictx := errgroup.WithContext(gctx)
		inner.SetLimit(dashboardFetchLimit)
		for i, dev := range recent {
			inner.Go(func() error {
				latest, err := s.metrics.Latest(ictx, customerID, dev.ID)
				if err != nil {
					return err
				}
				if latest == nil {
					latest = []domain.Metric{}
				}
				snaps[i] = DeviceSnapshot{Device: dev, Latest: latest}
				return nil
			})
		}
		if err := inner.Wait(); err != nil {
			return err
		}
		d.RecentDevices = snaps
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if d.DeviceCounts == nil {
		d.DeviceCounts = []domain.DeviceStatusCount{}
	}
	return d, nil
}
