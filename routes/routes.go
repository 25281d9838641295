package routes

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/inference-router/app"
	"github.com/upb/inference-router/handlers"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(deps.Config.Server.WriteTimeout))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	var db *sql.DB
	if deps.DB != nil {
		db = deps.DB.DB
	}
	healthHandler := handlers.NewHealthHandler(db, deps.Logger)
	routeHandler := handlers.NewRouteHandler(deps.Router, deps.Logger)
	backendsHandler := handlers.NewBackendsHandler(deps.Router, deps.Logger)
	statusHandler := handlers.NewStatusHandler(deps.Router, deps.Logger)
	adminHandler := handlers.NewAdminHandler(deps.Router, deps.Logger)

	// Health check endpoints
	r.Get("/healthz", healthHandler.HandleHealth)
	r.Get("/readyz", healthHandler.HandleReadiness)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/route", routeHandler.HandleRoute)

		r.Get("/status", statusHandler.HandleStatus)
		r.Get("/backends", backendsHandler.HandleList)
		r.Get("/backends/{id}", backendsHandler.HandleGet)

		// Administrative endpoints (require admin JWT)
		r.Route("/admin", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAdmin)
			r.Post("/backends/{id}/reset", adminHandler.HandleReset)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not_found","message":"Route not found"}`))
	})

	return r
}

// NewServer builds the HTTP server around the configured routes.
func NewServer(deps *app.Dependencies) *http.Server {
	return &http.Server{
		Addr:              deps.Config.Server.Address(),
		Handler:           SetupRoutes(deps),
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
