package router

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/tezro-seeds/api/internal/config"
	"github.com/tezro-seeds/api/internal/database"
	"github.com/tezro-seeds/api/internal/enum"
	"github.com/tezro-seeds/api/internal/handler"
	mw "github.com/tezro-seeds/api/internal/middleware"
	"github.com/tezro-seeds/api/internal/service"
	"github.com/tezro-seeds/api/internal/workflow"
	"github.com/tezro-seeds/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
// Applies authentication and role-based middleware as needed.
func New(cfg *config.Config, queries *database.Queries, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173",         // dashboard dev server
			"https://orders.tezroseeds.com", // production dashboard
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		// Orders
		orderService := service.NewOrderService(queries)
		engine := workflow.NewEngine(queries)
		orderHandler := handler.NewOrderHandler(orderService, engine, queries, hub)
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", orderHandler.Create)
			r.Get("/", orderHandler.List)
			r.Get("/{id}", orderHandler.Get)
			r.Post("/{id}/transition", orderHandler.Transition)

			// Hard deletes bypass the workflow; admin only.
			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRole(enum.RoleAdmin))
				r.Delete("/{id}", orderHandler.Delete)
				r.Delete("/", orderHandler.DeleteByParty)
			})
		})

		// Parties
		partyHandler := handler.NewPartyHandler(queries)
		r.Route("/parties", partyHandler.RegisterRoutes)

		// Seed catalog
		productHandler := handler.NewProductHandler(queries)
		r.Route("/products", func(r chi.Router) {
			r.Get("/", productHandler.List)
			r.Get("/{id}", productHandler.Get)
			r.With(mw.RequireRole(enum.RoleAdmin)).Post("/", productHandler.Create)
		})

		// Users (admin only)
		userHandler := handler.NewUserHandler(queries)
		r.Route("/users", func(r chi.Router) {
			r.Use(mw.RequireRole(enum.RoleAdmin))
			userHandler.RegisterRoutes(r)
		})

		// Reports (back-office roles)
		reportsHandler := handler.NewReportsHandler(queries)
		r.Route("/reports", func(r chi.Router) {
			r.Use(mw.RequireRole(enum.RoleOwner, enum.RoleLogistic, enum.RoleAdmin))
			reportsHandler.RegisterRoutes(r)
		})
	})

	log.Println("Router initialized with all handlers")
	return r
}
