package main

import (
	"context"
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/renandw/anesthesiaReports-sub000/internal/config"
	"github.com/renandw/anesthesiaReports-sub000/internal/dedup"
	"github.com/renandw/anesthesiaReports-sub000/internal/domain/patient"
	"github.com/renandw/anesthesiaReports-sub000/internal/domain/surgery"
	"github.com/renandw/anesthesiaReports-sub000/internal/entitycache"
	"github.com/renandw/anesthesiaReports-sub000/internal/gateway"
	"github.com/renandw/anesthesiaReports-sub000/internal/platform/auth"
	"github.com/renandw/anesthesiaReports-sub000/internal/platform/db"
	"github.com/renandw/anesthesiaReports-sub000/internal/platform/events"
	"github.com/renandw/anesthesiaReports-sub000/internal/platform/metrics"
	"github.com/renandw/anesthesiaReports-sub000/internal/platform/middleware"
	"github.com/renandw/anesthesiaReports-sub000/internal/platform/redis"
	"github.com/renandw/anesthesiaReports-sub000/internal/platform/webhook"
	"github.com/renandw/anesthesiaReports-sub000/internal/registry"
	"github.com/renandw/anesthesiaReports-sub000/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a service",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "registry",
		Short: "Serve the patient and surgery registry API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegistry(cmd.Context())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "gateway",
		Short: "Serve the workflow gateway for UI clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateway(cmd.Context())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "all",
		Short: "Serve the registry and the gateway together",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAll(cmd.Context())
		},
	})
	return cmd
}

func common(cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics) server.Common {
	var authMW echo.MiddlewareFunc
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware(jwtConfig(cfg))
	} else {
		authMW = auth.JWTMiddleware(jwtConfig(cfg))
	}
	rl := middleware.RateLimitConfig{RequestsPerSecond: cfg.RateLimitRPS, BurstSize: cfg.RateLimitBurst}
	if rl.RequestsPerSecond <= 0 {
		rl = middleware.DefaultRateLimitConfig()
	}
	return server.Common{
		Logger:      logger,
		Metrics:     m,
		Auth:        authMW,
		CORSOrigins: cfg.CORSOrigins,
		RateLimit:   rl,
		BodyLimit:   cfg.BodyLimit,
	}
}

func runRegistry(ctx context.Context) error {
	cfg, err := loadConfig(config.RoleRegistry)
	if err != nil {
		return err
	}
	logger := newLogger(cfg).With().Str("service", "registry").Logger()
	deps := server.RegistryDeps{Common: common(cfg, logger, metrics.New())}

	switch cfg.RegistryStore {
	case config.StoreMemory:
		logger.Warn().Msg("using in-memory store, records are lost on exit")
		deps.Patients = patient.NewService(patient.NewMemoryRepo())
		deps.Surgeries = surgery.NewService(surgery.NewMemoryRepo(), deps.Patients)
	default:
		pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
		if err != nil {
			return err
		}
		defer pool.Close()
		logger.Info().Msg("connected to database")

		deps.Patients = patient.NewService(patient.NewRepoPG(pool))
		deps.Surgeries = surgery.NewService(surgery.NewRepoPG(pool), deps.Patients)
		deps.Checks = append(deps.Checks, db.Check{Name: "postgres", Pinger: pool})
	}

	return server.Serve(ctx, server.NewRegistry(deps), ":"+cfg.Port, logger)
}

func runGateway(ctx context.Context) error {
	cfg, err := loadConfig(config.RoleGateway)
	if err != nil {
		return err
	}
	logger := newLogger(cfg).With().Str("service", "gateway").Logger()
	m := metrics.New()
	c := common(cfg, logger, m)

	client, err := registry.New(registry.Config{
		BaseURL:           cfg.RegistryURL,
		Tokens:            auth.ForwardedToken{},
		Timeout:           cfg.RegistryTimeout,
		RequestsPerSecond: cfg.RegistryRPS,
		Burst:             cfg.RegistryBurst,
		Logger:            logger,
		Metrics:           m,
	})
	if err != nil {
		return err
	}
	c.Checks = append(c.Checks, db.Check{Name: "registry", Pinger: client})

	var cache entitycache.Cache = entitycache.NewMemory(cfg.CacheLimit)
	rdb, err := redis.New(ctx, redis.Config{URL: cfg.RedisURL})
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		cache = entitycache.NewRedis(rdb.Client, cfg.CacheLimit, cfg.CacheTTL)
		c.Checks = append(c.Checks, db.Check{Name: "redis", Pinger: rdb})
	}

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(ctx, cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			return err
		}
		publisher = kp
	}
	defer publisher.Close()

	patientSinks := []dedup.Sink[dedup.Patient]{
		entitycache.Sink(cache, entitycache.PatientLabel),
		events.Sink[dedup.Patient](publisher),
	}
	surgerySinks := []dedup.Sink[dedup.Surgery]{
		entitycache.Sink(cache, entitycache.SurgeryLabel),
		events.Sink[dedup.Surgery](publisher),
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.WebhookURL != "" {
		notifier, err := webhook.NewNotifier(cfg.WebhookURL, cfg.WebhookSecret, logger)
		if err != nil {
			return err
		}
		patientSinks = append(patientSinks, webhook.Sink[dedup.Patient](notifier))
		surgerySinks = append(surgerySinks, webhook.Sink[dedup.Surgery](notifier))
		g.Go(func() error { return notifier.Run(gctx) })
	}

	gw := gateway.New(gateway.Config{
		Patients: dedup.NewPatientWorkflow(client.Patients(), dedup.PatientConfig{
			Logger:   &logger,
			Recorder: m,
			Sinks:    patientSinks,
		}),
		Surgeries: dedup.NewSurgeryWorkflow(client.Surgeries(), dedup.SurgeryConfig{
			Logger:   &logger,
			Recorder: m,
			Sinks:    surgerySinks,
		}),
		Cache:           cache,
		Logger:          logger,
		DecisionTimeout: cfg.DecisionTimeout,
	})
	defer gw.Close()

	g.Go(func() error {
		return server.Serve(gctx, server.NewGateway(server.GatewayDeps{Common: c, Gateway: gw}), ":"+cfg.GatewayPort, logger)
	})
	return g.Wait()
}

// runAll serves the registry and the gateway from one process. Either
// failing stops both.
func runAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := runRegistry(gctx); err != nil {
			return fmt.Errorf("registry: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := runGateway(gctx); err != nil {
			return fmt.Errorf("gateway: %w", err)
		}
		return nil
	})
	return g.Wait()
}
