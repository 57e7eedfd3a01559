package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"routinely/internal/coordinator"
	"routinely/internal/core"
	"routinely/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server holds the HTTP server state.
type Server struct {
	httpServer  *http.Server
	router      *chi.Mux
	store       *store.Store
	engine      *core.Engine
	coordinator *coordinator.Coordinator
	notifier    core.Notifier
	logger      *slog.Logger
	authToken   string
}

// NewServer constructs the HTTP API server.
func NewServer(addr string, authToken string, st *store.Store, engine *core.Engine, coord *coordinator.Coordinator, notifier core.Notifier, logger *slog.Logger) (*Server, error) {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:      router,
		store:       st,
		engine:      engine,
		coordinator: coord,
		notifier:    notifier,
		logger:      logger,
		authToken:   authToken,
	}
	s.registerRoutes()

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	s.httpServer = httpServer
	return s, nil
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)

	s.router.Route("/v1", func(r chi.Router) {
		if s.authToken != "" {
			r.Use(AuthMiddleware(s.authToken))
		}

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Post("/", s.handleCreateTask)

			r.Route("/{taskID}", func(r chi.Router) {
				r.Get("/", s.handleGetTask)
				r.Patch("/", s.handleUpdateTask)
				r.Delete("/", s.handleDeleteTask)
			})
		})

		r.Route("/routines", func(r chi.Router) {
			r.Get("/", s.handleListRoutines)
			r.Post("/", s.handleCreateRoutine)

			r.Route("/{routineID}", func(r chi.Router) {
				r.Get("/", s.handleGetRoutine)
				r.Patch("/", s.handleUpdateRoutine)
				r.Delete("/", s.handleDeleteRoutine)
				r.Post("/tasks", s.handleRoutineAddTask)
				r.Delete("/tasks/{taskID}", s.handleRoutineRemoveTask)
				r.Put("/tasks", s.handleRoutineReorderTasks)
				r.Post("/start", s.handleStartRoutine)
				r.Get("/schedule", s.handleSchedulePreview)
			})
		})

		r.Route("/session", func(r chi.Router) {
			r.Get("/", s.handleSnapshot)
			r.Post("/pause", s.handlePause)
			r.Post("/resume", s.handleResume)
			r.Post("/skip", s.handleSkip)
			r.Post("/complete", s.handleComplete)
			r.Post("/confirm", s.handleConfirm)
			r.Post("/snooze", s.handleSnooze)
			r.Post("/cancel", s.handleCancel)
			r.Post("/adjust", s.handleAdjustTime)
		})

		r.Get("/history", s.handleListHistory)

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", s.handleGetSettings)
			r.Patch("/", s.handleUpdateSettings)
		})

		r.Post("/notify/test", s.handleTestNotification)
	})
}
