// Package server assembles the echo applications served by the registry and
// the gateway.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/renandw/anesthesiaReports-sub000/internal/domain/patient"
	"github.com/renandw/anesthesiaReports-sub000/internal/domain/surgery"
	"github.com/renandw/anesthesiaReports-sub000/internal/gateway"
	"github.com/renandw/anesthesiaReports-sub000/internal/platform/db"
	"github.com/renandw/anesthesiaReports-sub000/internal/platform/metrics"
	"github.com/renandw/anesthesiaReports-sub000/internal/platform/middleware"
)

// Common is the middleware stack both applications share.
type Common struct {
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics
	Auth        echo.MiddlewareFunc
	CORSOrigins []string
	RateLimit   middleware.RateLimitConfig
	BodyLimit   string
	Checks      []db.Check
}

// RegistryDeps are the collaborators of the registry server.
type RegistryDeps struct {
	Common
	Patients  *patient.Service
	Surgeries *surgery.Service
}

// GatewayDeps are the collaborators of the gateway server.
type GatewayDeps struct {
	Common
	Gateway *gateway.Gateway
}

func newEcho(c Common) (*echo.Echo, *echo.Group) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(c.Logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(c.Logger))
	e.Use(c.Metrics.Middleware())
	if len(c.CORSOrigins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins: c.CORSOrigins,
			AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		}))
	}
	if c.BodyLimit != "" {
		e.Use(middleware.BodyLimit(c.BodyLimit))
	}

	e.GET("/health", db.HealthHandler(c.Checks...))
	e.GET("/metrics", echo.WrapHandler(c.Metrics.Handler()))

	api := e.Group("/api/v1", c.Auth, middleware.RateLimit(c.RateLimit))
	return e, api
}

// NewRegistry builds the registry application: patient and surgery records
// with precheck, claim and access control.
func NewRegistry(d RegistryDeps) *echo.Echo {
	e, api := newEcho(d.Common)
	patient.NewHandler(d.Patients).RegisterRoutes(api)
	surgery.NewHandler(d.Surgeries).RegisterRoutes(api)
	return e
}

// NewGateway builds the workflow gateway application.
func NewGateway(d GatewayDeps) *echo.Echo {
	e, api := newEcho(d.Common)
	d.Gateway.RegisterRoutes(api)
	return e
}

// Serve runs e on addr until ctx is done, then shuts it down gracefully.
func Serve(ctx context.Context, e *echo.Echo, addr string, log zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Str("addr", addr).Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
