// Package api assembles the admin HTTP+WebSocket surface around a Pool:
// task submission/status/cancellation, worker/pool status, a live event
// feed, and Prometheus metrics.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NageshMashette/execpool/internal/api/handlers"
	apimw "github.com/NageshMashette/execpool/internal/api/middleware"
	"github.com/NageshMashette/execpool/internal/api/websocket"
	"github.com/NageshMashette/execpool/internal/config"
	"github.com/NageshMashette/execpool/internal/events"
	"github.com/NageshMashette/execpool/internal/pool"
)

// Server wraps a chi router around a Pool and its optional event bus.
type Server struct {
	router       *chi.Mux
	cfg          *config.Config
	taskHandler  *handlers.TaskHandler
	adminHandler *handlers.AdminHandler
	wsHub        *websocket.Hub
	wsHandler    *websocket.Handler
	bus          *events.Bus
}

func NewServer(cfg *config.Config, p *pool.Pool, bus *events.Bus) *Server {
	hub := websocket.NewHub(bus)

	s := &Server{
		router:       chi.NewRouter(),
		cfg:          cfg,
		taskHandler:  handlers.NewTaskHandler(p),
		adminHandler: handlers.NewAdminHandler(p),
		wsHub:        hub,
		wsHandler:    websocket.NewHandler(hub),
		bus:          bus,
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(apimw.RequestLogger())
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Heartbeat("/health"))
}

func (s *Server) setupRoutes() {
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.AllowContentType("application/json"))
		if s.cfg.Server.RateLimitRPS > 0 {
			r.Use(apimw.ClientRateLimit(s.cfg.Server.RateLimitRPS))
		}

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", s.taskHandler.Create)
			r.Get("/{taskID}", s.taskHandler.Get)
			r.Delete("/{taskID}", s.taskHandler.Cancel)
		})
	})

	s.router.Route("/admin", func(r chi.Router) {
		r.Use(chimw.AllowContentType("application/json"))
		r.Get("/status", s.adminHandler.Status)
		r.Get("/workers", s.adminHandler.ListWorkers)
	})

	s.router.Get("/ws", s.wsHandler.ServeWS)

	if s.cfg.Metrics.Enabled {
		s.router.Handle(s.cfg.Metrics.Path, promhttp.Handler())
	}
}

// Start launches the WebSocket hub's background relay.
func (s *Server) Start(ctx context.Context) {
	go s.wsHub.Run(ctx)
}

// Stop shuts the WebSocket hub down.
func (s *Server) Stop() {
	s.wsHub.Stop()
}

func (s *Server) Router() *chi.Mux { return s.router }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
