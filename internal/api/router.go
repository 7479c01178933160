package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/xtremeprotocol/accrual-service/internal/api/handler"
	"github.com/xtremeprotocol/accrual-service/internal/api/middleware"
	"github.com/xtremeprotocol/accrual-service/internal/core/service"
)

// Handlers groups the HTTP handlers mounted by NewRouter.
type Handlers struct {
	Account *handler.AccountHandler
	Reward  *handler.RewardHandler
	Admin   *handler.AdminHandler
	Health  *handler.HealthHandler
}

// Options configures the router.
type Options struct {
	JWTSecret   string
	CORSOrigins []string
	Logger      zerolog.Logger
	// Registry receives the HTTP request metrics. Defaults to the global
	// Prometheus registry.
	Registry *prometheus.Registry
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(h Handlers, opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(opts.Logger)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(opts.Logger))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: opts.CORSOrigins,
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			handler.IdempotencyHeader,
		},
	}))

	promMW := echoprometheus.MiddlewareConfig{Namespace: "accrual", Subsystem: "http"}
	promHandler := echoprometheus.HandlerConfig{}
	if opts.Registry != nil {
		promMW.Registerer = opts.Registry
		promHandler.Gatherer = opts.Registry
	}
	e.Use(echoprometheus.NewMiddlewareWithConfig(promMW))

	// --- Ops (no auth required) ---
	e.GET("/health", h.Health.Liveness)        // liveness  – is the process alive?
	e.GET("/health/ready", h.Health.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(promHandler))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	api := e.Group("/api")

	// --- Accounts ---
	api.POST("/register", h.Account.Register)
	api.POST("/login", h.Account.Login)

	// --- Rewards ---
	api.POST("/sync", h.Reward.Sync)
	api.POST("/verify-code", h.Reward.VerifyCode)
	api.POST("/withdraw", h.Reward.Withdraw)
	api.GET("/transactions/:userId", h.Reward.Transactions)

	// --- Admin ---
	api.POST("/admin/auth", h.Admin.Auth)

	admin := api.Group("/admin", middleware.Auth(opts.JWTSecret), middleware.RequireRole(service.RoleAdmin))
	admin.GET("/users", h.Admin.Users)
	admin.POST("/generate-code", h.Admin.GenerateCode)
	admin.POST("/update-user", h.Admin.UpdateUser)
	admin.POST("/delete-user", h.Admin.DeleteUser)
	admin.GET("/logs", h.Admin.Logs)
	admin.POST("/clear-logs", h.Admin.ClearLogs)
	admin.GET("/stats", h.Admin.Stats)

	return e
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			switch {
			case v.Status >= 500:
				ev = log.Error().Err(v.Error)
			case v.Status >= 400:
				ev = log.Warn()
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
