package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/peerchat-io/peerchat/internal/api/middleware"
	"github.com/peerchat-io/peerchat/internal/config"
	"github.com/peerchat-io/peerchat/internal/handlers"
	"github.com/peerchat-io/peerchat/internal/hub"
	"github.com/peerchat-io/peerchat/internal/store"
)

// NewRouter creates and configures the HTTP router, including the websocket
// endpoint that the hub serves.
func NewRouter(
	cfg *config.Config,
	logger zerolog.Logger,
	db store.DataStore,
	redisStore *store.RedisStore,
	ws *hub.Server,
	delivery *hub.Delivery,
) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(16 * 1024))

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting (requires Redis)
	if redisStore != nil && cfg.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(redisStore, cfg.RateLimit, logger)
		r.Use(limiter.Middleware)
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.IdentityHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(db, redisStore, delivery)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no identity required)
	r.Get("/health", h.Health)
	r.Post("/api/auth/register", h.Register)
	r.Post("/api/auth/login", h.Login)

	// Websocket transport; identity is presented in the auth frame
	r.Handle("/ws", ws)

	// Identified routes (User-Id header)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Identity(db))

		r.Get("/api/users/me", h.Me)

		r.Post("/api/friends/request", h.RequestFriend)
		r.Post("/api/friends/accept", h.AcceptFriend)
		r.Get("/api/friends", h.ListFriends)

		r.Post("/api/messages", h.SendMessage)
		r.Get("/api/messages/pending", h.PendingMessages)
		r.Get("/api/messages/{friendId}", h.Conversation)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Get("/api/admin/users", h.AdminUsers)
			r.Get("/api/admin/messages", h.AdminMessages)
		})
	})

	return r
}
