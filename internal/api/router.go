// Package api assembles the HTTP surface of the job board.
package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jobboard/server/internal/api/handlers"
	"github.com/jobboard/server/internal/api/middleware"
	"github.com/jobboard/server/internal/api/render"
	"github.com/jobboard/server/internal/audit"
	"github.com/jobboard/server/internal/auth"
	"github.com/jobboard/server/internal/config"
	"github.com/jobboard/server/internal/metrics"
	"github.com/jobboard/server/internal/ratelimit"
)

type Deps struct {
	Config  config.Config
	Logger  zerolog.Logger
	Users   handlers.UserService
	Jobs    handlers.JobService
	Tokens  *auth.JWTManager
	Limiter ratelimit.Limiter
	Health  *handlers.HealthChecker
	Audit   *audit.Logger
	Build   BuildInfo
}

// NewRouter wires routes behind the shared middleware chain. The rate limiter
// runs ahead of authentication and every handler.
func NewRouter(d Deps) http.Handler {
	authHandler := handlers.NewAuthHandler(d.Users, d.Tokens).WithAudit(d.Audit)
	jobsHandler := handlers.NewJobsHandler(d.Jobs)
	requireAuth := middleware.RequireAuth(d.Tokens)

	health := d.Health
	if health == nil {
		health = handlers.NewHealthChecker(d.Build.Version, d.Build.GitCommit)
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", health.Healthz())
	mux.Handle("/readyz", health.Readyz())
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/version", methodMux(map[string]http.Handler{
		http.MethodGet: VersionHandler(d.Build),
	}))

	mux.Handle("/register", methodMux(map[string]http.Handler{
		http.MethodPost: http.HandlerFunc(authHandler.Register),
	}))
	mux.Handle("/login", methodMux(map[string]http.Handler{
		http.MethodPost: http.HandlerFunc(authHandler.Login),
	}))
	mux.Handle("/jobs", methodMux(map[string]http.Handler{
		http.MethodGet:  http.HandlerFunc(jobsHandler.List),
		http.MethodPost: requireAuth(http.HandlerFunc(jobsHandler.Create)),
	}))
	mux.Handle("/jobs/{id}/apply", methodMux(map[string]http.Handler{
		http.MethodPost: requireAuth(http.HandlerFunc(jobsHandler.Apply)),
	}))
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		render.Message(w, r, http.StatusNotFound, "Not Found", nil)
	}))

	var h http.Handler = mux
	h = middleware.RequestSize(middleware.DefaultMaxBodySize)(h)
	h = middleware.RateLimit(d.Limiter, middleware.RateLimitOptions{
		TrustedProxyCIDRs: d.Config.RateLimit.TrustedProxyCIDRs,
		Logger:            d.Logger,
	})(h)
	h = middleware.SecurityHeaders(d.Config.IsProduction())(h)
	h = middleware.RequestLogging(d.Logger)(h)
	h = metrics.HTTPMiddleware(h)
	if d.Config.Tracing.Enabled {
		h = middleware.Tracing(h)
	}
	h = middleware.Recover(h)
	h = middleware.CorrelationID(d.Logger)(h)
	return h
}

// methodMux dispatches on method and answers anything else with a JSON 405.
func methodMux(handlers map[string]http.Handler) http.Handler {
	allow := allowedMethods(handlers)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", allow)
		render.Message(w, r, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
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
