package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/Harshitk-cp/iotpilot/internal/access"
	"github.com/Harshitk-cp/iotpilot/internal/bus"
	"github.com/Harshitk-cp/iotpilot/internal/cache"
	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/Harshitk-cp/iotpilot/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrCustomerNotFound    = errors.New("customer not found")
	ErrCustomerConflict    = errors.New("customer with this name already exists")
	ErrInvalidCustomerName = errors.New("customer name must be 1 to 100 characters and contain a letter or digit")
	ErrCustomerInactive    = errors.New("customer account is deactivated")
)

const customerCacheKey = "customer"

type CustomerService struct {
	customers domain.CustomerStore
	settings  domain.SettingsStore
	cache     cache.Cache
	events    *bus.EventBus
	logger    *zap.Logger
}

func NewCustomerService(cs domain.CustomerStore, ss domain.SettingsStore, c cache.Cache, events *bus.EventBus, logger *zap.Logger) *CustomerService {
	return &CustomerService{customers: cs, settings: ss, cache: c, events: events, logger: logger}
}

// Slugify lower-cases name and collapses every run of non-alphanumerics into
// a single dash.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func normalizeCustomerName(name string) (string, string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > 100 {
		return "", "", ErrInvalidCustomerName
	}
	slug := Slugify(name)
	if slug == "" {
		return "", "", ErrInvalidCustomerName
	}
	return name, slug, nil
}

// Create adds a customer together with its default settings.
func (s *CustomerService) Create(ctx context.Context, p access.Principal, name string) (*domain.Customer, error) {
	if err := access.Require(access.IsSuperAdmin, p); err != nil {
		return nil, err
	}
	return s.create(ctx, name)
}

// Bootstrap creates a customer without a caller; used by the admin CLI.
func (s *CustomerService) Bootstrap(ctx context.Context, name string) (*domain.Customer, error) {
	return s.create(ctx, name)
}

func (s *CustomerService) create(ctx context.Context, name string) (*domain.Customer, error) {
	name, slug, err := normalizeCustomerName(name)
	if err != nil {
		return nil, err
	}
	c := &domain.Customer{Name: name, Slug: slug, Active: true}
	if err := s.customers.Create(ctx, c); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrCustomerConflict
		}
		return nil, err
	}
	if err := s.settings.Upsert(ctx, domain.DefaultTenantSettings(c.ID)); err != nil {
		return nil, err
	}

	publish(ctx, s.events, s.logger, domain.CustomerCreated{EventMeta: domain.NewEventMeta(c.ID), Name: c.Name})
	return c, nil
}

func (s *CustomerService) List(ctx context.Context, p access.Principal) ([]domain.Customer, error) {
	if err := access.Require(access.IsSuperAdmin, p); err != nil {
		return nil, err
	}
	return s.customers.List(ctx)
}

func (s *CustomerService) Get(ctx context.Context, p access.Principal, id uuid.UUID) (*domain.Customer, error) {
	if err := access.Require(access.IsSuperAdmin, p); err != nil {
		return nil, err
	}
	c, err := s.customers.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}
	return c, nil
}

type UpdateCustomerInput struct {
	Name   *string `json:"name,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

func (s *CustomerService) Update(ctx context.Context, p access.Principal, id uuid.UUID, in UpdateCustomerInput) (*domain.Customer, error) {
	c, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		name, slug, err := normalizeCustomerName(*in.Name)
		if err != nil {
			return nil, err
		}
		c.Name, c.Slug = name, slug
	}
	if in.Active != nil {
		c.Active = *in.Active
	}
	if err := s.customers.Update(ctx, c); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrCustomerNotFound
		case errors.Is(err, store.ErrConflict):
			return nil, ErrCustomerConflict
		}
		return nil, err
	}
	// Cached principals and the cached customer row both carry the old state.
	if err := s.cache.ClearTenant(ctx, id); err != nil {
		s.logger.Warn("failed to clear tenant cache", zap.String("customer_id", id.String()), zap.Error(err))
	}
	publish(ctx, s.events, s.logger, domain.CustomerUpdated{EventMeta: domain.NewEventMeta(id), Name: c.Name, Active: c.Active})
	return c, nil
}

// Delete removes a customer and everything it owns.
func (s *CustomerService) Delete(ctx context.Context, p access.Principal, id uuid.UUID) error {
	if err := access.Require(access.IsSuperAdmin, p); err != nil {
		return err
	}
	if err := s.customers.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrCustomerNotFound
		}
		return err
	}
	if err := s.cache.ClearTenant(ctx, id); err != nil {
		s.logger.Warn("failed to clear tenant cache", zap.String("customer_id", id.String()), zap.Error(err))
	}
	publish(ctx, s.events, s.logger, domain.CustomerDeleted{EventMeta: domain.NewEventMeta(id)})
	return nil
}

// customerGate decides whether a customer's users and devices may still
// authenticate. The customer row is cached per tenant and dropped whenever
// the customer changes.
type customerGate struct {
	customers domain.CustomerStore
	cache     cache.Cache
	ttl       time.Duration
	logger    *zap.Logger
}

func (g customerGate) requireActive(ctx context.Context, id uuid.UUID) error {
	c, ok, err := cache.GetJSON[domain.Customer](ctx, g.cache, id, customerCacheKey)
	if err != nil {
		g.logger.Warn("customer cache read failed", zap.String("customer_id", id.String()), zap.Error(err))
	}
	if !ok {
		fresh, err := g.customers.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrCustomerInactive
			}
			return err
		}
		c = *fresh
		if err := cache.SetJSON(ctx, g.cache, id, customerCacheKey, c, g.ttl); err != nil {
			g.logger.Warn("customer cache write failed", zap.String("customer_id", id.String()), zap.Error(err))
		}
	}
	if !c.Active {
		return ErrCustomerInactive
	}
	return nil
}
