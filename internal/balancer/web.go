package balancer

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"anvil/internal/codec"
	"anvil/internal/web"
	"anvil/internal/web/middleware"
	"anvil/model"
)

type Server struct {
	router   chi.Router
	balancer *Balancer
}

func NewServer(b *Balancer, limiter *middleware.Limiter) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		balancer: b,
	}

	s.routes(limiter)
	return s
}

// Router exposes the handler for main.go and the httptest harness.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) routes(limiter *middleware.Limiter) {
	r := s.router

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	if limiter != nil {
		r.Use(limiter.Limit)
	}

	r.Post("/rest/v1/tasks", s.handleCreateTask)
	r.Get("/rest/v1/tasks/{ticket}", s.handleGetStatus)
	r.Get("/rest/v1/projects/{name}", s.handleGetProject)
	r.Get("/health", s.handleHealth)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		web.WriteBadRequest(w, "unreadable body: "+err.Error())
		return
	}
	var req model.CreateTaskRequest
	if err := codec.Decode(body, &req); err != nil {
		web.WriteBadRequest(w, "invalid JSON: "+err.Error())
		return
	}
	if req.Project == "" {
		web.WriteBadRequest(w, "project is required")
		return
	}

	resp, err := s.balancer.CreateTask(ctx, req)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	resp, err := s.balancer.GetStatus(ctx, chi.URLParam(r, "ticket"))
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	resp, err := s.balancer.GetProject(ctx, chi.URLParam(r, "name"))
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	healthy := s.balancer.HealthyWorkers(ctx)
	status := http.StatusOK
	if healthy == 0 {
		status = http.StatusServiceUnavailable
	}
	web.WriteJSON(w, status, map[string]int{"healthyWorkers": healthy})
}
