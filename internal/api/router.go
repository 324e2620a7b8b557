package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/isdelr/records-be/internal/api/handlers"
	"github.com/isdelr/records-be/internal/auth"
	"github.com/isdelr/records-be/internal/models"
	"github.com/isdelr/records-be/internal/services"
	"github.com/isdelr/records-be/internal/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Hub          *websocket.Hub
	Tokens       *auth.Manager
	Conn         handlers.ConnectionState
	Users        services.UserServiceProvider
	Events       services.EventServiceProvider
	Sources      []services.CollectionSource
	Backups      services.BackupServiceProvider
	Restores     services.RestoreServiceProvider
	Jobs         handlers.JobRunner
	CORSOrigins  []string
	SecureCookie bool
}

// NewRouter creates and configures a new Chi router.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	healthHandler := handlers.NewHealthHandler(d.Conn)
	userHandler := handlers.NewUserHandler(d.Users, d.Tokens, d.SecureCookie)
	eventHandler := handlers.NewEventHandler(d.Events)
	recordHandler := handlers.NewRecordHandler(d.Sources)
	backupHandler := handlers.NewBackupHandler(d.Backups, d.Restores, d.Jobs)
	wsHandler := handlers.NewWebSocketHandler(d.Hub, d.CORSOrigins)

	requireAdmin := auth.RequireRole(models.RoleAdmin)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthz", healthHandler.Get)
		r.Get("/ws", wsHandler.Serve)
		r.Get("/events", eventHandler.GetRecent)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", userHandler.Register)
			r.Post("/login", userHandler.Login)
			r.With(d.Tokens.Middleware).Get("/me", userHandler.GetMe)
		})

		r.Route("/records/{collection}", func(r chi.Router) {
			r.Get("/", recordHandler.List)
			r.With(d.Tokens.Middleware).Post("/", recordHandler.Create)
			r.With(d.Tokens.Middleware, requireAdmin).Delete("/", recordHandler.Clear)
		})

		r.Route("/backups", func(r chi.Router) {
			r.Get("/", backupHandler.GetAll)
			r.Get("/jobs", backupHandler.Jobs)
			r.With(d.Tokens.Middleware).Post("/", backupHandler.Create)
			r.With(d.Tokens.Middleware, requireAdmin).Post("/restore", backupHandler.Restore)
			r.Get("/{id}", backupHandler.Get)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not found", http.StatusNotFound)
	})

	return r
}
