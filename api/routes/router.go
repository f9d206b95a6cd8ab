package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aprovia/aprovia-backend/api/controllers"
	"github.com/aprovia/aprovia-backend/api/middleware"
	"github.com/aprovia/aprovia-backend/pkg/config"
	"github.com/aprovia/aprovia-backend/pkg/logger"
)

// Services bundles everything the HTTP surface depends on.
type Services struct {
	Quota            controllers.QuotaService
	Usage            controllers.UsageService
	Escalation       controllers.EscalationService
	Experiments      controllers.ExperimentService
	Plans            controllers.PlanService
	FeatureFlags     controllers.FeatureFlagService
	ExperimentsAdmin controllers.ExperimentAdminService

	Location *time.Location
	Pingers  map[string]controllers.Pinger
	Registry *prometheus.Registry
}

func NewRouter(cfg *config.Config, logg *logger.Logger, svcs Services) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, svcs.Pingers))
	})

	if svcs.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(svcs.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Post("/sessions/can-start", controllers.CanStartSession(svcs.Quota, logg))
		r.Get("/limits/{resource}", controllers.CheckLimit(svcs.Quota, logg))
		r.Get("/usage/today", controllers.UsageToday(svcs.Usage, logg, svcs.Location))
		r.Post("/usage/events", controllers.RecordUsageEvent(svcs.Usage, logg))
		r.Post("/escalation/check", controllers.EscalationCheck(svcs.Escalation, logg))
		r.Get("/escalation/status", controllers.EscalationStatus(svcs.Escalation, logg))

		r.Route("/experiments/{name}", func(r chi.Router) {
			r.Post("/assignment", controllers.ExperimentAssign(svcs.Experiments, logg))
			r.Get("/config", controllers.ExperimentConfig(svcs.Experiments, logg))
			r.Post("/metrics", controllers.ExperimentRecordMetric(svcs.Experiments, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole("admin", logg))

		r.Route("/plans", func(r chi.Router) {
			r.Get("/", controllers.AdminPlansList(svcs.Plans, logg))
			r.Post("/", controllers.AdminPlanCreate(svcs.Plans, logg))
			r.Put("/{planId}", controllers.AdminPlanUpdate(svcs.Plans, logg))
		})

		r.Route("/feature-flags", func(r chi.Router) {
			r.Get("/", controllers.AdminFeatureFlagsList(svcs.FeatureFlags, logg))
			r.Put("/{name}", controllers.AdminFeatureFlagSet(svcs.FeatureFlags, logg))
			r.Delete("/{name}", controllers.AdminFeatureFlagDelete(svcs.FeatureFlags, logg))
		})

		r.Route("/experiments", func(r chi.Router) {
			r.Get("/", controllers.AdminExperimentsList(svcs.ExperimentsAdmin, logg))
			r.Post("/", controllers.AdminExperimentCreate(svcs.ExperimentsAdmin, logg))
			r.Put("/{name}", controllers.AdminExperimentUpdate(svcs.ExperimentsAdmin, logg))
		})
	})

	return r
}
