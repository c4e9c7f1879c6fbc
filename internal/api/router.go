package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/Harshitk-cp/iotpilot/internal/api/handlers"
	mw "github.com/Harshitk-cp/iotpilot/internal/api/middleware"
	"github.com/Harshitk-cp/iotpilot/internal/buildconfig"
	"github.com/Harshitk-cp/iotpilot/internal/bus"
	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/Harshitk-cp/iotpilot/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const (
	rateLimitCleanupInterval = 10 * time.Minute
	rateLimitIdleAge         = 10 * time.Minute
	healthPingTimeout        = 2 * time.Second
)

// Pinger reports whether the database is reachable. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options are the HTTP-level settings taken from config.
type Options struct {
	CookieName       string
	CookieSecure     bool
	RateLimitRPS     float64
	RateLimitBurst   int
	WSOriginPatterns []string
}

// Deps are the collaborators the router dispatches to.
type Deps struct {
	DB       Pinger
	Commands *bus.CommandBus
	Queries  *bus.QueryBus
	Auth     *service.AuthService
	Tokens   mw.TokenParser
	Devices  mw.DeviceAuthenticator
	Metrics  handlers.MetricSubscriber
}

// App holds the router and the pieces that need shutting down.
type App struct {
	Router    *chi.Mux
	collector *mw.MetricsCollector
	limiter   *mw.RateLimiter
	db        Pinger
	startTime time.Time
}

func NewApp(deps Deps, opts Options, logger *zap.Logger) *App {
	authHandler := handlers.NewAuthHandler(deps.Auth, handlers.CookieConfig{Name: opts.CookieName, Secure: opts.CookieSecure}, logger)
	customerHandler := handlers.NewCustomerHandler(deps.Commands, deps.Queries, logger)
	userHandler := handlers.NewUserHandler(deps.Commands, deps.Queries, logger)
	settingsHandler := handlers.NewSettingsHandler(deps.Commands, deps.Queries, logger)
	deviceHandler := handlers.NewDeviceHandler(deps.Commands, deps.Queries, logger)
	ingestHandler := handlers.NewIngestHandler(deps.Commands, logger)
	metricsHandler := handlers.NewMetricsHandler(deps.Queries, deps.Metrics, opts.WSOriginPatterns, logger)
	sshHandler := handlers.NewSSHHandler(deps.Commands, deps.Queries, logger)
	dashboardHandler := handlers.NewDashboardHandler(deps.Queries, logger)

	r := chi.NewRouter()
	app := &App{
		Router:    r,
		collector: mw.NewMetricsCollector(),
		limiter:   mw.NewRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		db:        deps.DB,
		startTime: time.Now(),
	}
	app.limiter.StartCleanup(rateLimitCleanupInterval, rateLimitIdleAge)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(app.collector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(app.limiter.Middleware)

	r.Get("/health", app.healthHandler)
	r.Get("/metrics", app.metricsHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)

		// Device-key routes
		r.Route("/ingest", func(r chi.Router) {
			r.Use(mw.DeviceKeyAuth(deps.Devices))
			r.Post("/heartbeat", ingestHandler.Heartbeat)
			r.Post("/metrics", ingestHandler.Metrics)
		})

		// Session routes
		r.Group(func(r chi.Router) {
			r.Use(mw.SessionAuth(deps.Tokens, deps.Auth, opts.CookieName))

			r.Get("/auth/me", authHandler.Me)
			r.Put("/auth/password", authHandler.ChangePassword)

			r.Route("/customers", func(r chi.Router) {
				r.Use(mw.RequireRole(domain.RoleSuperAdmin))
				r.Get("/", customerHandler.List)
				r.Post("/", customerHandler.Create)
				r.Get("/{id}", customerHandler.Get)
				r.Patch("/{id}", customerHandler.Update)
				r.Delete("/{id}", customerHandler.Delete)
			})

			// Tenant-scoped routes
			r.Group(func(r chi.Router) {
				r.Use(mw.Tenant)

				r.Route("/users", func(r chi.Router) {
					r.Use(mw.RequireRole(domain.RoleAdmin))
					r.Get("/", userHandler.List)
					r.Post("/", userHandler.Create)
					r.Get("/{id}", userHandler.Get)
					r.Patch("/{id}", userHandler.Update)
					r.Delete("/{id}", userHandler.Delete)
					r.Post("/{id}/password", userHandler.ResetPassword)
				})

				r.Get("/settings", settingsHandler.Get)
				r.Patch("/settings", settingsHandler.Update)

				r.Route("/devices", func(r chi.Router) {
					r.Get("/", deviceHandler.List)
					r.Post("/", deviceHandler.Register)
					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", deviceHandler.Get)
						r.Patch("/", deviceHandler.Update)
						r.Delete("/", deviceHandler.Delete)
						r.Post("/key", deviceHandler.RotateKey)
						r.Get("/metrics", metricsHandler.Query)
						r.Get("/metrics/latest", metricsHandler.Latest)
						r.Get("/metrics/export", metricsHandler.Export)
						r.Get("/metrics/stream", metricsHandler.Stream)
						r.Get("/ssh/sessions", sshHandler.ListForDevice)
						r.Post("/ssh/sessions", sshHandler.Start)
					})
				})

				r.Route("/ssh/sessions", func(r chi.Router) {
					r.Get("/", sshHandler.List)
					r.Get("/{id}", sshHandler.Get)
					r.Post("/{id}/commands", sshHandler.Execute)
					r.Delete("/{id}", sshHandler.End)
				})

				r.Get("/dashboard", dashboardHandler.Get)
			})
		})
	})

	return app
}

// Close stops the rate limiter's cleanup loop.
func (app *App) Close() {
	app.limiter.Stop()
}

func (app *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()

	build := buildconfig.Current()
	body := map[string]any{
		"status":  "ok",
		"version": build.Version,
		"commit":  build.Commit,
	}
	status := http.StatusOK
	if app.db != nil {
		if err := app.db.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "error"
			body["error"] = err.Error()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (app *App) metricsHandler(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	uptime := time.Since(app.startTime)

	response := map[string]any{
		"uptime_seconds": uptime.Seconds(),
		"uptime_human":   uptime.Round(time.Second).String(),
		"requests":       app.collector.Snapshot(),
		"goroutines":     runtime.NumGoroutine(),
		"memory": map[string]any{
			"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
			"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
			"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
			"num_gc":         memStats.NumGC,
		},
		"go_version": runtime.Version(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}
