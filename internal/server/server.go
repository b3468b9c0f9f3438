// Package server exposes the engine over HTTP. Every data operation is a
// POST with the uniform request body; the response is always the uniform
// envelope with HTTP 200 unless the body itself cannot be decoded.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/heraerp/hera-core/internal/engine"
	"github.com/heraerp/hera-core/internal/errcode"
	internalhttp "github.com/heraerp/hera-core/internal/http"
	"github.com/heraerp/hera-core/internal/logger"
)

// Server wraps the engine behind the HTTP API.
type Server struct {
	engine         *engine.Engine
	allowedOrigins []string
}

// NewServer creates a new server around an engine.
func NewServer(eng *engine.Engine, allowedOrigins []string) *Server {
	return &Server{engine: eng, allowedOrigins: allowedOrigins}
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler(log zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(internalhttp.ClientIPMiddleware())
	r.Use(logger.Requests(log))

	// Health check endpoint for load balancer
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/entities", s.operation(engine.TableEntities))
		r.Post("/relationships", s.operation(engine.TableRelationships))
		r.Post("/transactions", s.operation(engine.TableTransactions))
		r.Post("/workflow/transition", s.transition)
	})

	return withCORS(s.allowedOrigins, r)
}

func (s *Server) operation(table engine.Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req engine.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, badBody(err))
			return
		}
		resp := s.engine.Execute(r.Context(), table, req)
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request) {
	var req engine.TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, badBody(err))
		return
	}
	resp := s.engine.Transition(r.Context(), req)
	writeJSON(w, http.StatusOK, resp)
}

func badBody(err error) engine.Response {
	return engine.Response{
		Success: false,
		Items:   []any{},
		Error:   errcode.Newf(errcode.InvalidRequest, "undecodable request body: %v", err),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// withCORS adds CORS support to the API handler.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return middleware.Handler(h)
}
