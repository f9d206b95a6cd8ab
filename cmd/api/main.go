package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/aprovia/aprovia-backend/api/controllers"
	"github.com/aprovia/aprovia-backend/api/routes"
	"github.com/aprovia/aprovia-backend/internal/escalation"
	"github.com/aprovia/aprovia-backend/internal/experiments"
	"github.com/aprovia/aprovia-backend/internal/featureflags"
	"github.com/aprovia/aprovia-backend/internal/plans"
	"github.com/aprovia/aprovia-backend/internal/quota"
	"github.com/aprovia/aprovia-backend/internal/subscriptions"
	"github.com/aprovia/aprovia-backend/internal/usage"
	"github.com/aprovia/aprovia-backend/pkg/config"
	"github.com/aprovia/aprovia-backend/pkg/db"
	"github.com/aprovia/aprovia-backend/pkg/logger"
	"github.com/aprovia/aprovia-backend/pkg/metrics"
	"github.com/aprovia/aprovia-backend/pkg/migrate"
	"github.com/aprovia/aprovia-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	entitlementMetrics := metrics.NewEntitlementMetrics(registry)

	location := cfg.Entitlements.Location()

	planRepo := plans.NewRepository(dbClient.DB())
	planService, err := plans.NewService(plans.ServiceParams{Repo: planRepo})
	if err != nil {
		logg.Error(context.Background(), "failed to create plan service", err)
		os.Exit(1)
	}

	subscriptionService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:  subscriptions.NewRepository(dbClient.DB()),
		Plans: planRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription resolver", err)
		os.Exit(1)
	}

	usageService, err := usage.NewService(usage.ServiceParams{
		Repo:     usage.NewRepository(dbClient.DB()),
		Location: location,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create usage service", err)
		os.Exit(1)
	}

	flagService, err := featureflags.NewService(featureflags.ServiceParams{
		Repo: featureflags.NewRepository(dbClient.DB()),
		Log:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create feature flag service", err)
		os.Exit(1)
	}

	escalationService, err := escalation.NewService(escalation.ServiceParams{
		Repo:          escalation.NewRepository(dbClient.DB()),
		Subscriptions: subscriptionService,
		Usage:         usageService,
		Flags:         flagService,
		WindowDays:    cfg.Entitlements.HeavyUserWindow,
		Ratio:         cfg.Entitlements.HeavyUserRatio,
		Location:      location,
		Log:           logg,
		Metrics:       entitlementMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create escalation service", err)
		os.Exit(1)
	}

	experimentService, err := experiments.NewService(experiments.ServiceParams{
		Repo:    experiments.NewRepository(dbClient.DB()),
		Log:     logg,
		Metrics: entitlementMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create experiment service", err)
		os.Exit(1)
	}

	quotaService, err := quota.NewService(quota.ServiceParams{
		Subscriptions: subscriptionService,
		Usage:         usageService,
		Escalation:    escalationService,
		Experiments:   experimentService,
		Locker: quota.NewRedisLocker(
			redisClient,
			cfg.Entitlements.DecisionLockTTL,
			cfg.Entitlements.DecisionLockWait,
		),
		Log:     logg,
		Metrics: entitlementMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create quota service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Services{
			Quota:            quotaService,
			Usage:            usageService,
			Escalation:       escalationService,
			Experiments:      experimentService,
			Plans:            planService,
			FeatureFlags:     flagService,
			ExperimentsAdmin: experimentService,
			Location:         location,
			Pingers: map[string]controllers.Pinger{
				"database": dbClient,
				"redis":    redisClient,
			},
			Registry: registry,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
