package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Harshitk-cp/iotpilot/internal/access"
	"github.com/Harshitk-cp/iotpilot/internal/auth"
	"github.com/Harshitk-cp/iotpilot/internal/bus"
	"github.com/Harshitk-cp/iotpilot/internal/cache"
	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/Harshitk-cp/iotpilot/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DeviceKeyPrefix marks device API keys so they are recognisable in logs
// and config files.
const DeviceKeyPrefix = "dk_"

const (
	deviceListGenKey   = "devices:gen"
	maxDeviceListLimit = 500
)

var (
	ErrDeviceNotFound     = errors.New("device not found")
	ErrDeviceConflict     = errors.New("device with this name already exists")
	ErrInvalidDeviceKey   = errors.New("invalid device key")
	ErrInvalidStatus      = errors.New("status must be unknown, online, offline or maintenance")
	ErrInvalidDeviceQuery = errors.New("limit and offset must not be negative")
)

type DeviceService struct {
	devices domain.DeviceStore
	gate    customerGate
	cache   cache.Cache
	ttl     time.Duration
	events  *bus.EventBus
	logger  *zap.Logger
	now     func() time.Time
}

func NewDeviceService(ds domain.DeviceStore, cs domain.CustomerStore, c cache.Cache, ttl time.Duration, events *bus.EventBus, logger *zap.Logger) *DeviceService {
	return &DeviceService{
		devices: ds,
		gate:    customerGate{customers: cs, cache: c, ttl: ttl, logger: logger},
		cache:   c,
		ttl:     ttl,
		events:  events,
		logger:  logger,
		now:     utcNow,
	}
}

type RegisterDeviceInput struct {
	Name        string `json:"name"`
	IPAddress   string `json:"ip_address"`
	MACAddress  string `json:"mac_address,omitempty"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	SSHPort     int    `json:"ssh_port,omitempty"`
	SSHUsername string `json:"ssh_username,omitempty"`
}

// RegisteredDevice carries the plaintext API key, which is shown only once.
type RegisteredDevice struct {
	Device *domain.Device `json:"device"`
	APIKey string         `json:"api_key"`
}

func (s *DeviceService) Register(ctx context.Context, p access.Principal, customerID uuid.UUID, in RegisterDeviceInput) (*RegisteredDevice, error) {
	if !access.CanManageCustomer(p, customerID) {
		return nil, access.ErrForbidden
	}
	return s.register(ctx, customerID, in)
}

// Import registers a device on behalf of the admin CLI.
func (s *DeviceService) Import(ctx context.Context, customerID uuid.UUID, in RegisterDeviceInput) (*RegisteredDevice, error) {
	return s.register(ctx, customerID, in)
}

func (s *DeviceService) register(ctx context.Context, customerID uuid.UUID, in RegisterDeviceInput) (*RegisteredDevice, error) {
	name, err := domain.NewDeviceName(in.Name)
	if err != nil {
		return nil, validationError(err)
	}
	ip, err := domain.NewIPAddress(in.IPAddress)
	if err != nil {
		return nil, validationError(err)
	}
	var mac domain.MACAddress
	if strings.TrimSpace(in.MACAddress) != "" {
		if mac, err = domain.NewMACAddress(in.MACAddress); err != nil {
			return nil, validationError(err)
		}
	}
	port := in.SSHPort
	if port == 0 {
		port = domain.DefaultSSHPort
	}
	if err := domain.ValidateSSHPort(port); err != nil {
		return nil, validationError(err)
	}

	key, err := auth.GenerateAPIKey(DeviceKeyPrefix)
	if err != nil {
		return nil, err
	}

	d := &domain.Device{
		CustomerID:  customerID,
		Name:        name.String(),
		IPAddress:   ip.String(),
		MACAddress:  mac.String(),
		Description: strings.TrimSpace(in.Description),
		Location:    strings.TrimSpace(in.Location),
		Status:      domain.DeviceStatusUnknown,
		SSHPort:     port,
		SSHUsername: strings.TrimSpace(in.SSHUsername),
		APIKeyHash:  auth.HashAPIKey(key),
	}
	if err := s.devices.Create(ctx, d); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrDeviceConflict
		}
		return nil, err
	}

	publish(ctx, s.events, s.logger, domain.DeviceRegistered{EventMeta: domain.NewEventMeta(customerID), Device: *d})
	return &RegisteredDevice{Device: d, APIKey: key}, nil
}

type UpdateDeviceInput struct {
	Name        *string              `json:"name,omitempty"`
	IPAddress   *string              `json:"ip_address,omitempty"`
	MACAddress  *string              `json:"mac_address,omitempty"`
	Description *string              `json:"description,omitempty"`
	Location    *string              `json:"location,omitempty"`
	Status      *domain.DeviceStatus `json:"status,omitempty"`
	SSHPort     *int                 `json:"ssh_port,omitempty"`
	SSHUsername *string              `json:"ssh_username,omitempty"`
}

func (s *DeviceService) Update(ctx context.Context, p access.Principal, customerID, id uuid.UUID, in UpdateDeviceInput) (*domain.Device, error) {
	if !access.CanManageCustomer(p, customerID) {
		return nil, access.ErrForbidden
	}
	d, err := s.get(ctx, customerID, id)
	if err != nil {
		return nil, err
	}
	prevStatus := d.Status

	if in.Name != nil {
		name, err := domain.NewDeviceName(*in.Name)
		if err != nil {
			return nil, validationError(err)
		}
		d.Name = name.String()
	}
	if in.IPAddress != nil {
		ip, err := domain.NewIPAddress(*in.IPAddress)
		if err != nil {
			return nil, validationError(err)
		}
		d.IPAddress = ip.String()
	}
	if mac := trimmedPtr(in.MACAddress); mac != nil {
		d.MACAddress = ""
		if *mac != "" {
			m, err := domain.NewMACAddress(*mac)
			if err != nil {
				return nil, validationError(err)
			}
			d.MACAddress = m.String()
		}
	}
	if v := trimmedPtr(in.Description); v != nil {
		d.Description = *v
	}
	if v := trimmedPtr(in.Location); v != nil {
		d.Location = *v
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, ErrInvalidStatus
		}
		d.Status = *in.Status
	}
	if in.SSHPort != nil {
		if err := domain.ValidateSSHPort(*in.SSHPort); err != nil {
			return nil, validationError(err)
		}
		d.SSHPort = *in.SSHPort
	}
	if v := trimmedPtr(in.SSHUsername); v != nil {
		d.SSHUsername = *v
	}

	if err := s.devices.Update(ctx, d); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrDeviceNotFound
		case errors.Is(err, store.ErrConflict):
			return nil, ErrDeviceConflict
		}
		return nil, err
	}

	meta := domain.NewEventMeta(customerID)
	publish(ctx, s.events, s.logger, domain.DeviceUpdated{EventMeta: meta, Device: *d})
	if d.Status != prevStatus {
		publish(ctx, s.events, s.logger, domain.DeviceStatusChanged{EventMeta: meta, DeviceID: d.ID, From: prevStatus, To: d.Status})
	}
	return d, nil
}

func (s *DeviceService) Delete(ctx context.Context, p access.Principal, customerID, id uuid.UUID) error {
	if !access.CanManageCustomer(p, customerID) {
		return access.ErrForbidden
	}
	if err := s.devices.Delete(ctx, id, customerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrDeviceNotFound
		}
		return err
	}
	publish(ctx, s.events, s.logger, domain.DeviceDeleted{EventMeta: domain.NewEventMeta(customerID), DeviceID: id})
	return nil
}

// RotateKey replaces the device's API key; the old key stops working at once.
func (s *DeviceService) RotateKey(ctx context.Context, p access.Principal, customerID, id uuid.UUID) (string, error) {
	if !access.CanManageCustomer(p, customerID) {
		return "", access.ErrForbidden
	}
	key, err := auth.GenerateAPIKey(DeviceKeyPrefix)
	if err != nil {
		return "", err
	}
	if err := s.devices.UpdateAPIKeyHash(ctx, id, customerID, auth.HashAPIKey(key)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrDeviceNotFound
		}
		return "", err
	}
	return key, nil
}

// Authenticate resolves a device from its plaintext API key.
func (s *DeviceService) Authenticate(ctx context.Context, key string) (*domain.Device, error) {
	if !strings.HasPrefix(key, DeviceKeyPrefix) {
		return nil, ErrInvalidDeviceKey
	}
	d, err := s.devices.GetByAPIKeyHash(ctx, auth.HashAPIKey(key))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidDeviceKey
		}
		return nil, err
	}
	// Devices of a deactivated customer are refused like unknown keys.
	if err := s.gate.requireActive(ctx, d.CustomerID); err != nil {
		if errors.Is(err, ErrCustomerInactive) {
			return nil, ErrInvalidDeviceKey
		}
		return nil, err
	}
	return d, nil
}

// Heartbeat marks the device as seen now. A device in maintenance keeps
// its status.
func (s *DeviceService) Heartbeat(ctx context.Context, customerID, deviceID uuid.UUID) (domain.DeviceStatus, error) {
	prev, err := s.devices.MarkSeen(ctx, deviceID, customerID, s.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrDeviceNotFound
		}
		return "", err
	}
	if prev != domain.DeviceStatusMaintenance && prev != domain.DeviceStatusOnline {
		// The status event invalidates cached lists through InvalidateOn.
		publish(ctx, s.events, s.logger, domain.DeviceStatusChanged{
			EventMeta: domain.NewEventMeta(customerID),
			DeviceID:  deviceID,
			From:      prev,
			To:        domain.DeviceStatusOnline,
		})
		return domain.DeviceStatusOnline, nil
	}
	// Only last_seen_at moved, which no event reports.
	if err := s.invalidateList(ctx, customerID); err != nil {
		s.logger.Warn("device list cache invalidation failed", zap.String("customer_id", customerID.String()), zap.Error(err))
	}
	return prev, nil
}

// MarkOffline flips online devices not seen since cutoff to offline.
func (s *DeviceService) MarkOffline(ctx context.Context, customerID uuid.UUID, cutoff time.Time) (int, error) {
	ids, err := s.devices.MarkOfflineBefore(ctx, customerID, cutoff)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		publish(ctx, s.events, s.logger, domain.DeviceStatusChanged{
			EventMeta: domain.NewEventMeta(customerID),
			DeviceID:  id,
			From:      domain.DeviceStatusOnline,
			To:        domain.DeviceStatusOffline,
		})
	}
	return len(ids), nil
}

func (s *DeviceService) Get(ctx context.Context, p access.Principal, customerID, id uuid.UUID) (*domain.Device, error) {
	if !access.CanAccessCustomer(p, customerID) {
		return nil, access.ErrForbidden
	}
	return s.get(ctx, customerID, id)
}

func (s *DeviceService) get(ctx context.Context, customerID, id uuid.UUID) (*domain.Device, error) {
	d, err := s.devices.GetByID(ctx, id, customerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}
	return d, nil
}

func (s *DeviceService) List(ctx context.Context, p access.Principal, customerID uuid.UUID, f domain.DeviceFilter) ([]domain.Device, error) {
	if !access.CanAccessCustomer(p, customerID) {
		return nil, access.ErrForbidden
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	if f.Limit < 0 || f.Offset < 0 {
		return nil, ErrInvalidDeviceQuery
	}
	if f.Limit == 0 || f.Limit > maxDeviceListLimit {
		f.Limit = maxDeviceListLimit
	}
	f.Search = strings.TrimSpace(f.Search)

	key := s.listKey(ctx, customerID, f)
	if devices, ok, err := cache.GetJSON[[]domain.Device](ctx, s.cache, customerID, key); err != nil {
		s.logger.Warn("device list cache read failed", zap.Error(err))
	} else if ok {
		return devices, nil
	}

	devices, err := s.devices.List(ctx, customerID, f)
	if err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []domain.Device{}
	}
	if err := cache.SetJSON(ctx, s.cache, customerID, key, devices, s.ttl); err != nil {
		s.logger.Warn("device list cache write failed", zap.Error(err))
	}
	return devices, nil
}

// Cached lists are keyed by a per-tenant generation. Bumping the generation
// orphans every cached list of that tenant; the orphans age out by TTL.
func (s *DeviceService) listKey(ctx context.Context, customerID uuid.UUID, f domain.DeviceFilter) string {
	gen := "0"
	if b, ok, err := s.cache.Get(ctx, customerID, deviceListGenKey); err == nil && ok {
		gen = string(b)
	}
	return fmt.Sprintf("devices:list:%s:%s:%d:%d:%s", gen, f.Status, f.Limit, f.Offset, strings.ToLower(f.Search))
}

func (s *DeviceService) invalidateList(ctx context.Context, customerID uuid.UUID) error {
	return s.cache.Set(ctx, customerID, deviceListGenKey, []byte(uuid.NewString()), 0)
}

// InvalidateOn subscribes the device list cache to every device event. The
// returned func removes the subscriptions.
func (s *DeviceService) InvalidateOn(events *bus.EventBus) func() {
	names := []string{
		domain.EventDeviceRegistered,
		domain.EventDeviceUpdated,
		domain.EventDeviceDeleted,
		domain.EventDeviceStatusChanged,
	}
	unsubs := make([]func(), 0, len(names))
	for _, name := range names {
		unsubs = append(unsubs, events.Subscribe(name, func(ctx context.Context, e bus.Event) error {
			de, ok := e.(domain.Event)
			if !ok {
				return nil
			}
			return s.invalidateList(ctx, de.Customer())
		}))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
