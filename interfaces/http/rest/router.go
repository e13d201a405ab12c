// Package rest wires the HTTP API: routing, middleware, and the
// WebSocket upgrade endpoint.
package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"flopods-backend/infrastructure/di"
	"flopods-backend/interfaces/http/rest/handlers"
	"flopods-backend/interfaces/http/rest/middleware"
	pkgerrors "flopods-backend/pkg/errors"
)

// Router builds the HTTP handler tree from the container
type Router struct {
	container *di.Container
	logger    *zap.Logger
}

// NewRouter creates a router over the wired container
func NewRouter(container *di.Container) *Router {
	return &Router{
		container: container,
		logger:    container.Logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	c := rt.container
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger, c.Metrics))

	if c.Config.Features.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"http://localhost:3000", "https://*.flopods.com"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if c.Config.Features.EnableMetrics {
		router.Handle("/metrics", promhttp.HandlerFor(c.Metrics.Registry(), promhttp.HandlerOpts{}))
	}

	// WebSocket upgrade authenticates inside the handler, before hub
	// registration, so it sits outside the HTTP auth middleware.
	router.Get("/ws", c.WSServer.HandleWebSocket)

	errHandler := pkgerrors.NewErrorHandler(rt.logger, c.Config.IsDevelopment())
	flowHandler := handlers.NewFlowHandler(c.FlowService, errHandler, rt.logger)
	podHandler := handlers.NewPodHandler(c.CanvasService, c.MoveService, errHandler, rt.logger)
	edgeHandler := handlers.NewEdgeHandler(c.CanvasService, errHandler, rt.logger)
	notifHandler := handlers.NewNotificationHandler(c.NotificationService, errHandler, rt.logger)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(c.JWTService, rt.logger))

		r.Route("/flows", func(r chi.Router) {
			r.Post("/", flowHandler.Create)
			r.Get("/", flowHandler.List)
			r.Get("/{flowID}", flowHandler.Get)
			r.Delete("/{flowID}", flowHandler.Delete)
			r.Get("/{flowID}/canvas", podHandler.Canvas)

			r.Route("/{flowID}/pods", func(r chi.Router) {
				r.Post("/", podHandler.Create)
				r.Get("/{podID}", podHandler.Get)
				r.Put("/{podID}", podHandler.Update)
				r.Delete("/{podID}", podHandler.Delete)
			})

			r.Route("/{flowID}/edges", func(r chi.Router) {
				r.Post("/", edgeHandler.Create)
				r.Delete("/{edgeID}", edgeHandler.Delete)
			})
		})

		// Pod-level operations addressed by bare pod id
		r.Route("/pods/{podID}", func(r chi.Router) {
			r.Post("/move", podHandler.Move)
			r.Post("/lock", podHandler.Lock)
			r.Delete("/lock", podHandler.Unlock)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", notifHandler.List)
			r.Get("/unread-count", notifHandler.UnreadCount)
			r.Post("/read-all", notifHandler.MarkAllRead)
			r.Post("/{notificationID}/read", notifHandler.MarkRead)
			r.Delete("/{notificationID}", notifHandler.Delete)
		})
	})

	return router
}

func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}
