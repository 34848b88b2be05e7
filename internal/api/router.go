package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/solidus-pim/server/internal/api/handlers"
	"github.com/solidus-pim/server/internal/api/middleware"
	"github.com/solidus-pim/server/internal/auth"
	"github.com/solidus-pim/server/internal/config"
	"github.com/solidus-pim/server/internal/domain/assets"
	"github.com/solidus-pim/server/internal/domain/feeds"
	"github.com/solidus-pim/server/internal/domain/products"
	"github.com/solidus-pim/server/internal/domain/users"
	"github.com/solidus-pim/server/internal/jobs"
	"github.com/solidus-pim/server/internal/metrics"
)

// Deps carries everything the router needs. Construction happens in the
// serve command so the router stays testable with fakes.
type Deps struct {
	Config   config.Config
	Logger   zerolog.Logger
	JWT      *auth.JWTManager
	Products *products.Service
	Assets   *assets.Service
	Feeds    *feeds.Service
	Users    *users.Service
	Audit    *handlers.AuditHandler
	Health   *handlers.HealthChecker
	Enqueuer *jobs.EnqueuerHolder

	Version   string
	GitCommit string
	BuildDate string
}

func NewRouter(deps Deps) http.Handler {
	env := deps.Config.Environment

	productsHandler := handlers.NewProductsHandler(deps.Products, env)
	assetsHandler := handlers.NewAssetsHandler(deps.Assets, env)
	feedsHandler := handlers.NewFeedsHandler(deps.Feeds, deps.Enqueuer, env)
	usersHandler := handlers.NewUsersHandler(deps.Users, env)
	authHandler := handlers.NewAuthHandler(deps.Users, env)

	requireAuth := middleware.RequireAuth(deps.JWT, env)
	staffOnly := middleware.RequireStaff(env)
	adminOnly := middleware.RequireRole(env, auth.RoleAdmin)
	rateLimit := middleware.RateLimit(deps.Config.RateLimit)
	var requestAudit func(http.Handler) http.Handler
	if deps.Audit != nil {
		requestAudit = middleware.RequestAudit(deps.Audit.Recorder)
	} else {
		requestAudit = func(next http.Handler) http.Handler { return next }
	}
	tierAPI := middleware.WithRateLimitTierHandler(middleware.TierAPI)
	tierAdmin := middleware.WithRateLimitTierHandler(middleware.TierAdmin)
	tierLogin := middleware.WithRateLimitTierHandler(middleware.TierLogin)

	// authenticated wraps a handler for any signed-in user. The tier wrapper
	// sits outside the limiter so the limiter sees the tier in context.
	authenticated := func(h http.HandlerFunc) http.Handler {
		return tierAPI(rateLimit(requireAuth(requestAudit(h))))
	}
	// staff wraps a handler for admin and employee users.
	staff := func(h http.HandlerFunc) http.Handler {
		return tierAPI(rateLimit(requireAuth(staffOnly(requestAudit(h)))))
	}
	// admin wraps a handler for admin users only.
	admin := func(h http.HandlerFunc) http.Handler {
		return tierAdmin(rateLimit(requireAuth(adminOnly(requestAudit(h)))))
	}
	login := func(h http.HandlerFunc) http.Handler {
		return tierLogin(rateLimit(h))
	}

	mux := http.NewServeMux()

	mux.Handle("/healthz", handlers.Healthz())
	mux.Handle("/readyz", handlers.Readyz())
	if deps.Health != nil {
		mux.Handle("/health", deps.Health.Health())
	}
	mux.Handle("/version", VersionHandler(deps.Version, deps.GitCommit, deps.BuildDate))
	mux.Handle("/metrics", metrics.Handler())

	mux.Handle("/api/v1/auth/login", methodMux(map[string]http.Handler{
		http.MethodPost: login(authHandler.Login),
	}))
	mux.Handle("/api/v1/auth/me", methodMux(map[string]http.Handler{
		http.MethodGet: authenticated(authHandler.Me),
	}))
	mux.Handle("/api/v1/auth/password", methodMux(map[string]http.Handler{
		http.MethodPost: authenticated(authHandler.ChangePassword),
	}))

	mux.Handle("/api/v1/products", methodMux(map[string]http.Handler{
		http.MethodGet:  authenticated(productsHandler.List),
		http.MethodPost: staff(productsHandler.Create),
	}))
	mux.Handle("/api/v1/products/{id}", methodMux(map[string]http.Handler{
		http.MethodGet:    authenticated(productsHandler.Get),
		http.MethodPut:    staff(productsHandler.Update),
		http.MethodDelete: staff(productsHandler.Delete),
	}))
	mux.Handle("/api/v1/products/{id}/fitments", methodMux(map[string]http.Handler{
		http.MethodGet:  authenticated(productsHandler.ListFitments),
		http.MethodPost: staff(productsHandler.AddFitment),
	}))
	mux.Handle("/api/v1/products/{id}/fitments/count", methodMux(map[string]http.Handler{
		http.MethodGet: authenticated(productsHandler.FitmentCount),
	}))
	mux.Handle("/api/v1/products/{id}/fitments/{fitmentID}", methodMux(map[string]http.Handler{
		http.MethodDelete: staff(productsHandler.DeleteFitment),
	}))
	mux.Handle("/api/v1/products/{id}/price", methodMux(map[string]http.Handler{
		http.MethodGet: authenticated(productsHandler.EffectivePrice),
	}))
	mux.Handle("/api/v1/products/{id}/customer-price", methodMux(map[string]http.Handler{
		http.MethodPut: staff(productsHandler.SetCustomerPrice),
	}))
	mux.Handle("/api/v1/products/{id}/assets", methodMux(map[string]http.Handler{
		http.MethodGet:  authenticated(assetsHandler.ListProductAssets),
		http.MethodPost: staff(assetsHandler.LinkToProduct),
	}))
	mux.Handle("/api/v1/products/{id}/assets/{assetID}", methodMux(map[string]http.Handler{
		http.MethodDelete: staff(assetsHandler.UnlinkFromProduct),
	}))
	mux.Handle("/api/v1/products/{id}/assets/{assetID}/primary", methodMux(map[string]http.Handler{
		http.MethodPut: staff(assetsHandler.SetPrimaryImage),
	}))

	mux.Handle("/api/v1/brands", methodMux(map[string]http.Handler{
		http.MethodGet: authenticated(productsHandler.ListBrands),
	}))
	mux.Handle("/api/v1/categories", methodMux(map[string]http.Handler{
		http.MethodGet: authenticated(productsHandler.ListCategories),
	}))

	mux.Handle("/api/v1/assets", methodMux(map[string]http.Handler{
		http.MethodGet:  authenticated(assetsHandler.List),
		http.MethodPost: staff(assetsHandler.Upload),
	}))
	mux.Handle("/api/v1/assets/{id}", methodMux(map[string]http.Handler{
		http.MethodGet: authenticated(assetsHandler.Get),
	}))
	mux.Handle("/api/v1/assets/{id}/download", methodMux(map[string]http.Handler{
		http.MethodGet: authenticated(assetsHandler.Download),
	}))
	mux.Handle("/api/v1/assets/{id}/view", methodMux(map[string]http.Handler{
		http.MethodPost: authenticated(assetsHandler.RecordView),
	}))
	mux.Handle("/api/v1/assets/{id}/files", methodMux(map[string]http.Handler{
		http.MethodGet: staff(assetsHandler.ListFiles),
	}))

	mux.Handle("/api/v1/feeds", methodMux(map[string]http.Handler{
		http.MethodGet:  authenticated(feedsHandler.List),
		http.MethodPost: staff(feedsHandler.Create),
	}))
	mux.Handle("/api/v1/feeds/{id}", methodMux(map[string]http.Handler{
		http.MethodGet:    authenticated(feedsHandler.Get),
		http.MethodPut:    staff(feedsHandler.Update),
		http.MethodDelete: staff(feedsHandler.Delete),
	}))
	mux.Handle("/api/v1/feeds/{id}/run", methodMux(map[string]http.Handler{
		http.MethodPost: authenticated(feedsHandler.Run),
	}))
	mux.Handle("/api/v1/feeds/{id}/generations", methodMux(map[string]http.Handler{
		http.MethodGet: authenticated(feedsHandler.ListGenerations),
	}))
	mux.Handle("/api/v1/feeds/{id}/generations/{generationID}/download", methodMux(map[string]http.Handler{
		http.MethodGet: authenticated(feedsHandler.DownloadGeneration),
	}))

	mux.Handle("/api/v1/users", methodMux(map[string]http.Handler{
		http.MethodGet:  admin(usersHandler.List),
		http.MethodPost: admin(usersHandler.Create),
	}))
	mux.Handle("/api/v1/users/{id}", methodMux(map[string]http.Handler{
		http.MethodGet: admin(usersHandler.Get),
		http.MethodPut: admin(usersHandler.Update),
	}))
	mux.Handle("/api/v1/users/{id}/activate", methodMux(map[string]http.Handler{
		http.MethodPost: admin(usersHandler.Activate),
	}))
	mux.Handle("/api/v1/users/{id}/deactivate", methodMux(map[string]http.Handler{
		http.MethodPost: admin(usersHandler.Deactivate),
	}))

	if deps.Audit != nil {
		mux.Handle("/api/v1/audit", methodMux(map[string]http.Handler{
			http.MethodGet: admin(deps.Audit.List),
		}))
	}

	var handler http.Handler = mux
	handler = metrics.HTTPMiddleware(handler)
	handler = middleware.RequestLogging(deps.Logger)(handler)
	handler = middleware.CorrelationID(deps.Logger)(handler)
	return handler
}

func methodMux(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", allowedMethods(handlers))
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
}

func allowedMethods(handlers map[string]http.Handler) string {
	methods := make([]string, 0, len(handlers))
	for method := range handlers {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
