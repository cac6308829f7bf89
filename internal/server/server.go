// internal/server/server.go

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nats-io/nats.go"

	"spotit/internal/adapter/auth"
	"spotit/internal/config"
	"spotit/internal/domain/identity"
	"spotit/internal/server/handlers"
)

// Dependencies are the services the HTTP surface is built on
type Dependencies struct {
	Accounts identity.Service
	Tokens   identity.TokenManager
	Sessions handlers.Sessions
	Friends  handlers.FriendStore
	Presence handlers.Presence
	NATS     *nats.Conn
	Radius   handlers.RadiusBounds
	Logger   *slog.Logger
}

// Server represents the HTTP server
type Server struct {
	server *http.Server
	router *chi.Mux
}

// NewServer creates a new HTTP server
func NewServer(cfg config.ServerConfig, deps Dependencies) *Server {
	router := NewRouter(cfg, deps)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Server{
		server: httpServer,
		router: router,
	}
}

// NewRouter wires every route onto a chi router
func NewRouter(cfg config.ServerConfig, deps Dependencies) *chi.Mux {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		router.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Create handler dependencies
	authHandler := handlers.NewAuthHandler(deps.Accounts, deps.Logger)
	spotHandler := handlers.NewSpotHandler(deps.Sessions, deps.Radius, deps.Logger)
	notificationHandler := handlers.NewNotificationHandler(deps.Sessions, deps.Logger)
	friendHandler := handlers.NewFriendHandler(deps.Friends, deps.Presence, deps.Sessions, deps.Logger)
	requireAuth := auth.Authenticate(deps.Tokens, handlers.Unauthorized)

	// Routes
	router.Route("/api", func(r chi.Router) {
		// Health check
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		// API version
		r.Route("/v1", func(r chi.Router) {
			r.Route("/auth", func(r chi.Router) {
				r.Post("/signup", authHandler.SignUp)
				r.Post("/signin", authHandler.SignIn)
				r.With(requireAuth).Get("/me", authHandler.Me)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)

				// Spots API
				r.Route("/spots", func(r chi.Router) {
					r.Get("/", spotHandler.ListSpots)
					r.Post("/", spotHandler.CreateSpot)
					r.Post("/refresh", spotHandler.RefreshSpots)
					r.Get("/{id}", spotHandler.GetSpot)
					r.Delete("/{id}", spotHandler.DeleteSpot)
					r.Post("/{id}/replies", spotHandler.ReplyToSpot)
				})

				// Notifications API
				r.Route("/notifications", func(r chi.Router) {
					r.Get("/", notificationHandler.ListNotifications)
					r.Get("/next", notificationHandler.NextNotification)
					r.Post("/dismiss", notificationHandler.DismissNotification)
				})

				// Friends API
				r.Route("/friends", func(r chi.Router) {
					r.Get("/", friendHandler.ListFriends)
					r.Get("/requests", friendHandler.ListRequests)
					r.Post("/requests", friendHandler.SendRequest)
					r.Post("/requests/{id}/{decision}", friendHandler.RespondToRequest)
				})

				r.Post("/blocks/{id}", friendHandler.BlockUser)
				r.Delete("/blocks/{id}", friendHandler.UnblockUser)
				r.Post("/presence/heartbeat", friendHandler.Heartbeat)
			})
		})
	})

	// WebSocket endpoint for sink messages
	router.With(requireAuth).Get("/ws/notifications", handlers.NotificationStream(deps.NATS, deps.Sessions, deps.Logger))

	return router
}

// Handler returns the server's router
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
