// Package server assembles the HTTP surface.
package server

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/sudo-init-do/fieldhub/internal/catalog"
	"github.com/sudo-init-do/fieldhub/internal/logging"
	"github.com/sudo-init-do/fieldhub/internal/metrics"
	mware "github.com/sudo-init-do/fieldhub/internal/middleware"
	"github.com/sudo-init-do/fieldhub/internal/requests"
)

type Options struct {
	JWTSecret    string
	RateLimitRPS float64
	Log          logrus.FieldLogger
	Engine       *requests.Engine
	Catalog      catalog.Store
	Metrics      *metrics.Metrics
	// Pool is nil when running on the memory stores.
	Pool *pgxpool.Pool
}

func New(opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()

	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(logging.RequestLogger(opts.Log))
	if opts.Metrics != nil {
		e.Use(opts.Metrics.Middleware())
		e.GET("/metrics", opts.Metrics.Handler())
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/ready", readiness(opts.Pool))

	api := e.Group("")
	if opts.RateLimitRPS > 0 {
		api.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(opts.RateLimitRPS))))
	}
	api.Use(mware.JWTMiddleware(opts.JWTSecret))

	services := catalog.NewHandler(opts.Catalog, opts.Log)
	api.GET("/services", services.ListServices)
	api.GET("/services/:id", services.GetService)

	rh := requests.NewHandler(opts.Engine)
	rh.Routes(api)

	admin := e.Group("/admin")
	admin.Use(mware.JWTMiddleware(opts.JWTSecret))
	admin.Use(mware.AdminGuard)
	rh.AdminRoutes(admin)
	return e
}

func readiness(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		if pool == nil {
			return c.JSON(http.StatusOK, echo.Map{"status": "ready", "storage": "memory"})
		}
		if err := pool.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "db unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	}
}
