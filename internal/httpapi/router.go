package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/isfo/attestation-service/internal/httpapi/handlers"
	"github.com/isfo/attestation-service/internal/httpapi/middleware"
	"github.com/isfo/attestation-service/internal/model"
)

// RouterDeps defines router construction dependencies.
type RouterDeps struct {
	AllowedOrigins     []string
	HealthHandler      http.HandlerFunc
	MetricsHandler     http.Handler
	RequireAuthHandler func(http.Handler) http.Handler
	RateLimitLogin     func(http.Handler) http.Handler
	RateLimitCode      func(http.Handler) http.Handler

	Auth          *handlers.AuthHandler
	Requests      *handlers.RequestHandler
	Students      *handlers.StudentHandler
	Security      *handlers.SecurityHandler
	Notifications *handlers.NotificationHandler
	Admin         *handlers.AdminHandler
}

// NewRouter wires HTTP routes.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if deps.HealthHandler != nil {
		r.Get("/healthz", deps.HealthHandler)
	}
	if deps.MetricsHandler != nil {
		r.Method("GET", "/metrics", deps.MetricsHandler)
	}

	r.Get("/v1/docs/*", handlers.SwaggerUI)

	loginLimit := orPassthrough(deps.RateLimitLogin)
	codeLimit := orPassthrough(deps.RateLimitCode)
	requireAuth := orPassthrough(deps.RequireAuthHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/openapi.json", handlers.OpenAPIJSON)

		r.Route("/auth", func(r chi.Router) {
			r.With(loginLimit).Post("/staff/login", deps.Auth.StaffLogin)
			r.With(loginLimit).Post("/student/login", deps.Auth.StudentLogin)
			r.With(codeLimit).Post("/student/verify", deps.Auth.VerifyCode)
			r.Post("/oauth/google/start", deps.Auth.GoogleOAuthStart)
			r.Get("/oauth/google/callback", deps.Auth.GoogleOAuthCallback)
			r.With(requireAuth).Get("/me", deps.Auth.Me)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.With(codeLimit).Post("/verification", deps.Notifications.SendVerification)
			r.With(requireAuth, middleware.RequireRole(model.UserTypeAdmin)).
				Post("/status", deps.Notifications.SendStatus)
		})

		r.Route("/student", func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(middleware.RequireRole(model.UserTypeStudent))
			r.Post("/requests", deps.Requests.Submit)
			r.Get("/requests", deps.Requests.Mine)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(middleware.RequireRole(model.UserTypeAdmin))

			r.Route("/requests", func(r chi.Router) {
				r.Get("/", deps.Requests.List)
				r.Get("/statistics", deps.Requests.Statistics)
				r.Get("/export", deps.Requests.Export)
				r.Get("/{id}", deps.Requests.Get)
				r.Post("/{id}/approve", deps.Requests.Approve)
				r.Post("/{id}/reject", deps.Requests.Reject)
				r.Delete("/{id}", deps.Requests.Delete)
			})

			r.Route("/students", func(r chi.Router) {
				r.Get("/", deps.Students.List)
				r.Post("/", deps.Students.Create)
				r.Post("/import", deps.Students.Import)
				r.Get("/export", deps.Students.Export)
				r.Get("/{id}", deps.Students.Get)
				r.Put("/{id}", deps.Students.Update)
				r.Put("/{id}/password", deps.Students.SetPassword)
				r.Delete("/{id}", deps.Students.Delete)
			})

			r.Get("/security/logins", deps.Security.Dashboard)
			r.Get("/security/logins/export", deps.Security.Export)

			r.Post("/staff", deps.Admin.SyncStaff)
			r.Get("/activity", deps.Admin.Activity)
		})
	})

	return r
}

func orPassthrough(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw != nil {
		return mw
	}
	return func(next http.Handler) http.Handler { return next }
}
