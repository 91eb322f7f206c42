package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/licensebot/licensebot/internal/health"
	"github.com/licensebot/licensebot/internal/http/handler"
	"github.com/licensebot/licensebot/internal/http/middleware"
	"github.com/licensebot/licensebot/internal/http/response"
)

type Dependencies struct {
	AuthHandler    *handler.AuthHandler
	LicenseHandler *handler.LicenseHandler
	Sessions       middleware.SessionAuthenticator
	Readiness      *health.ProbeRunner
	// StaticDir, when set, is served at / for the dashboard page.
	StaticDir      string
	EnableOTelHTTP bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.BodyLimit(1 << 20))

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		status := http.StatusOK
		label := "ready"
		if !ready {
			status = http.StatusServiceUnavailable
			label = "unready"
		}
		response.JSON(w, r, status, map[string]any{"status": label, "checks": results})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NoStore)

		r.Post("/login", dep.AuthHandler.Login)
		r.Post("/logout", dep.AuthHandler.Logout)
		r.Get("/check-auth", dep.AuthHandler.CheckAuth)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(dep.Sessions))
			r.Get("/licenses", dep.LicenseHandler.List)
			r.Get("/stats", dep.LicenseHandler.Stats)
			r.Post("/revoke/{userId}", dep.LicenseHandler.Revoke)
		})
	})

	if dep.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(dep.StaticDir)))
	}

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
