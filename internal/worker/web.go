package worker

import (
	"context"
	"errors"
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
	router  chi.Router
	service *Service
}

func NewServer(service *Service) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		service: service,
	}

	s.routes()
	return s
}

// Router exposes the handler for main.go and the httptest harness.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Post("/rest/v1/tasks", s.handleAcceptTask)
	r.Get("/rest/v1/tasks/{ticket}", s.handlePollStatus)
	r.Get("/rest/v1/projects/{name}", s.handleGetProject)
	r.Get("/health", s.handleHealth)
}

func (s *Server) handleAcceptTask(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
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

	resp, err := s.service.AcceptTask(ctx, req)
	if err != nil {
		if errors.Is(err, ErrUnknownProject) {
			web.WriteBadRequest(w, err.Error())
			return
		}
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePollStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rec, err := s.service.PollStatus(ctx, chi.URLParam(r, "ticket"))
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, model.StatusResponse{
		Status:  rec.Status,
		Detail:  rec.Detail,
		Payload: rec.Payload,
	})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp, err := s.service.Project(ctx, chi.URLParam(r, "name"))
	if err != nil {
		if errors.Is(err, ErrUnknownProject) {
			web.WriteBadRequest(w, err.Error())
			return
		}
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, resp)
}

// handleHealth answers 200 only when the worker can take a task right now.
// The balancer uses it to skip busy workers without burning an accept call.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.service.Busy() {
		web.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "busy", "ticket": s.service.HeldBy()})
		return
	}
	web.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
