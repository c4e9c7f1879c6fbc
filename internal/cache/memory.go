package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type entry struct {
	value     []byte
	expiresAt time.Time // zero: no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Memory is a process-local Cache. Expiry is checked lazily on read; Sweep
// (or the janitor) reclaims entries nobody reads again.
type Memory struct {
	mu      sync.RWMutex
	tenants map[uuid.UUID]map[string]entry
	now     func() time.Time
	logger  *zap.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewMemory(logger *zap.Logger) *Memory {
	return &Memory{
		tenants: make(map[uuid.UUID]map[string]entry),
		now:     time.Now,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

// SetClock overrides the time source (tests).
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

func (m *Memory) Get(_ context.Context, tenantID uuid.UUID, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.tenants[tenantID][key]
	now := m.now()
	m.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if e.expired(now) {
		m.mu.Lock()
		// Re-check: a concurrent Set may have refreshed the entry.
		if cur, ok := m.tenants[tenantID][key]; ok && cur.expired(m.now()) {
			m.deleteLocked(tenantID, key)
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	return clone(e.value), true, nil
}

func (m *Memory) Set(_ context.Context, tenantID uuid.UUID, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := entry{value: clone(value)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	bucket, ok := m.tenants[tenantID]
	if !ok {
		bucket = make(map[string]entry)
		m.tenants[tenantID] = bucket
	}
	bucket[key] = e
	return nil
}

func (m *Memory) Delete(_ context.Context, tenantID uuid.UUID, key string) error {
	m.mu.Lock()
	m.deleteLocked(tenantID, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) ClearTenant(_ context.Context, tenantID uuid.UUID) error {
	m.mu.Lock()
	delete(m.tenants, tenantID)
	m.mu.Unlock()
	return nil
}

func (m *Memory) deleteLocked(tenantID uuid.UUID, key string) {
	bucket, ok := m.tenants[tenantID]
	if !ok {
		return
	}
	delete(bucket, key)
	if len(bucket) == 0 {
		delete(m.tenants, tenantID)
	}
}

// Sweep removes expired entries and empty tenants. Returns the number of
// entries removed.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for tenantID, bucket := range m.tenants {
		for key, e := range bucket {
			if e.expired(now) {
				delete(bucket, key)
				removed++
			}
		}
		if len(bucket) == 0 {
			delete(m.tenants, tenantID)
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, bucket := range m.tenants {
		n += len(bucket)
	}
	return n
}

// StartJanitor runs Sweep every interval until Stop is called.
func (m *Memory) StartJanitor(interval time.Duration) {
	if interval <= 0 {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if n := m.Sweep(); n > 0 {
					m.logger.Debug("cache sweep", zap.Int("removed", n))
				}
			case <-m.stopCh:
				return
			}
		}
	}()
}

func (m *Memory) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
