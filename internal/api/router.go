// Package api assembles the places HTTP surface.
package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/Togather-Foundation/places/internal/api/handlers"
	"github.com/Togather-Foundation/places/internal/api/middleware"
	"github.com/Togather-Foundation/places/internal/assets"
	"github.com/Togather-Foundation/places/internal/auth"
	"github.com/Togather-Foundation/places/internal/config"
	"github.com/Togather-Foundation/places/internal/domain/places"
	"github.com/Togather-Foundation/places/internal/metrics"
	"github.com/rs/zerolog"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Places   handlers.PlaceService
	Users    handlers.UserLister
	Assets   assets.Store
	Releaser places.AssetReleaser
	// Uploads serves local asset files; nil when assets live elsewhere.
	Uploads     assets.Store
	JWT         *auth.JWTManager
	Health      *handlers.HealthChecker
	RateLimiter *middleware.RateLimiter
	Config      config.Config
	Version     string
	GitCommit   string
	BuildDate   string
	Logger      zerolog.Logger
}

func NewRouter(deps Deps) http.Handler {
	env := deps.Config.Environment
	maxUpload := deps.Config.Assets.MaxUploadBytes

	placesHandler := handlers.NewPlacesHandler(deps.Places, deps.Assets, deps.Releaser, maxUpload, env)
	usersHandler := handlers.NewUsersHandler(deps.Users, env)
	requireUser := middleware.RequireUser(deps.JWT, env)
	jsonBody := middleware.RequestSize(middleware.DefaultMaxBodySize)
	uploadBody := middleware.UploadRequestSize(maxUpload)

	mux := http.NewServeMux()
	mux.Handle("/healthz", handlers.Healthz())
	if deps.Health != nil {
		mux.Handle("/readyz", deps.Health.Readyz())
	}
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/version", VersionHandler(deps.Version, deps.GitCommit, deps.BuildDate))

	mux.Handle("/api/v1/places", methodMux(map[string]http.Handler{
		http.MethodPost: requireUser(uploadBody(http.HandlerFunc(placesHandler.Create))),
	}))
	mux.Handle("/api/v1/places/user/{uid}", methodMux(map[string]http.Handler{
		http.MethodGet: http.HandlerFunc(placesHandler.ListByUser),
	}))
	mux.Handle("/api/v1/places/{pid}", methodMux(map[string]http.Handler{
		http.MethodGet:    http.HandlerFunc(placesHandler.Get),
		http.MethodPatch:  requireUser(jsonBody(http.HandlerFunc(placesHandler.Update))),
		http.MethodDelete: requireUser(http.HandlerFunc(placesHandler.Delete)),
	}))
	mux.Handle("/api/v1/users", methodMux(map[string]http.Handler{
		http.MethodGet: http.HandlerFunc(usersHandler.List),
	}))
	if deps.Uploads != nil {
		mux.Handle("/"+assets.LocalPrefix+"{name}", methodMux(map[string]http.Handler{
			http.MethodGet: handlers.NewUploadsHandler(deps.Uploads, env),
		}))
	}

	var handler http.Handler = mux
	if deps.RateLimiter != nil {
		handler = deps.RateLimiter.Middleware(handler)
	}
	handler = middleware.SecurityHeaders(env == "production")(handler)
	handler = metrics.HTTPMiddleware(handler)
	handler = middleware.RequestLogging(handler)
	handler = middleware.CorrelationID(deps.Logger)(handler)
	return middleware.Tracing(handler)
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
