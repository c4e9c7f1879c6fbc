// Package app assembles the stores, services and buses shared by the
// server and the admin CLI.
package app

import (
	"context"
	"fmt"

	"github.com/Harshitk-cp/iotpilot/internal/auth"
	"github.com/Harshitk-cp/iotpilot/internal/bus"
	"github.com/Harshitk-cp/iotpilot/internal/cache"
	"github.com/Harshitk-cp/iotpilot/internal/config"
	"github.com/Harshitk-cp/iotpilot/internal/service"
	"github.com/Harshitk-cp/iotpilot/internal/sshclient"
	"github.com/Harshitk-cp/iotpilot/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a production logger at the configured level.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// Container holds every long-lived component of a running instance.
type Container struct {
	Config *config.Config
	Logger *zap.Logger
	Pool   *pgxpool.Pool
	Cache  cache.Cache

	Events   *bus.EventBus
	Commands *bus.CommandBus
	Queries  *bus.QueryBus

	Services service.Services
	Auth     *service.AuthService
	Tokens   *auth.TokenIssuer

	Monitor   *service.DeviceMonitor
	Reaper    *service.SessionReaper
	Retention *service.RetentionService

	closers []func()
}

// Build connects to Postgres and the cache backend and wires the services
// onto the buses. Callers must Close the container.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	c.Pool = pool
	if err := pool.Ping(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := c.buildCache(ctx); err != nil {
		c.Close()
		return nil, err
	}

	dialer, err := sshclient.NewDialer(sshclient.Options{
		KnownHostsPath:        cfg.SSHKnownHosts,
		InsecureIgnoreHostKey: cfg.SSHInsecureIgnoreHostKey,
		PrivateKeyPath:        cfg.SSHPrivateKeyPath,
		DialTimeout:           cfg.SSHDialTimeout,
		MaxOutputBytes:        cfg.SSHMaxOutputBytes,
	})
	if err != nil {
		c.Close()
		return nil, err
	}
	if cfg.SSHInsecureIgnoreHostKey {
		logger.Warn("ssh host key verification is disabled")
	}

	customerStore := store.NewCustomerStore(pool)
	userStore := store.NewUserStore(pool)
	settingsStore := store.NewSettingsStore(pool)
	deviceStore := store.NewDeviceStore(pool)
	sessionStore := store.NewSSHSessionStore(pool)
	metricStore := store.NewMetricStore(pool)

	hasher := auth.NewHasher(cfg.BcryptCost)
	c.Tokens = auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.JWTTTL)
	c.Events = bus.NewEventBus()

	settings := service.NewSettingsService(settingsStore, c.Cache, cfg.CacheTTL, c.Events, logger)
	devices := service.NewDeviceService(deviceStore, customerStore, c.Cache, cfg.CacheTTL, c.Events, logger)
	ssh := service.NewSSHSessionService(sessionStore, deviceStore, dialer, c.Events, logger)
	ssh.SetCommandTimeout(cfg.SSHCommandTimeout)
	metrics := service.NewMetricsService(metricStore, deviceStore, c.Events, logger)

	c.Services = service.Services{
		Customers: service.NewCustomerService(customerStore, settingsStore, c.Cache, c.Events, logger),
		Users:     service.NewUserService(userStore, hasher, c.Events, logger),
		Settings:  settings,
		Devices:   devices,
		SSH:       ssh,
		Metrics:   metrics,
		Dashboard: service.NewDashboardService(deviceStore, sessionStore, metricStore),
	}
	c.Auth = service.NewAuthService(userStore, customerStore, c.Cache, cfg.CacheTTL, hasher, c.Tokens, logger)

	c.Commands = bus.NewCommandBus()
	c.Queries = bus.NewQueryBus()
	if err := service.RegisterHandlers(c.Commands, c.Queries, c.Services); err != nil {
		c.Close()
		return nil, fmt.Errorf("register handlers: %w", err)
	}
	c.closers = append(c.closers,
		service.SubscribeAudit(c.Events, logger),
		devices.InvalidateOn(c.Events),
		c.Auth.InvalidateOn(c.Events),
	)

	c.Monitor = service.NewDeviceMonitor(customerStore, settings, devices, logger)
	c.Monitor.SetInterval(cfg.DeviceMonitorInterval)
	c.Reaper = service.NewSessionReaper(ssh, settings, logger)
	c.Reaper.SetInterval(cfg.SessionReaperInterval)
	c.Retention = service.NewRetentionService(customerStore, settings, metrics, logger)
	c.Retention.SetInterval(cfg.MetricsRetentionInterval)

	return c, nil
}

func (c *Container) buildCache(ctx context.Context) error {
	switch c.Config.CacheBackend {
	case "redis":
		r, err := cache.NewRedisFromURL(ctx, c.Config.RedisURL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		c.Cache = r
		c.closers = append(c.closers, func() { _ = r.Close() })
		c.Logger.Info("using redis cache")
	default:
		m := cache.NewMemory(c.Logger)
		m.StartJanitor(c.Config.CacheSweepInterval)
		c.Cache = m
		c.closers = append(c.closers, m.Stop)
	}
	return nil
}

// StartWorkers closes sessions left active by a previous process and starts
// the background loops.
func (c *Container) StartWorkers(ctx context.Context) {
	c.Reaper.CloseOrphaned(ctx)
	c.Monitor.Start()
	c.Reaper.Start()
	c.Retention.Start()
}

// StopWorkers stops the background loops and closes live SSH sessions.
func (c *Container) StopWorkers(ctx context.Context) {
	c.Monitor.Stop()
	c.Reaper.Stop()
	c.Retention.Stop()
	c.Services.SSH.Shutdown(ctx)
}

// Close releases subscriptions, the cache and the pool, in reverse order of
// acquisition.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
	if c.Pool != nil {
		c.Pool.Close()
	}
}
