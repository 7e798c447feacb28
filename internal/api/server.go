// Package api exposes the HTTP surface: the WebSocket entry point, teacher
// auth, diagnostics, health, and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"classrelay/internal/auth"
	"classrelay/internal/logging"
	"classrelay/pkg/interfaces"
)

// Server assembles the chi router over the relay's services.
type Server struct {
	auth       *auth.Service
	repository interfaces.SessionRepository
	state      interfaces.ActiveStateProvider
	wsHandler  http.HandlerFunc
	log        zerolog.Logger
}

// NewServer wires the HTTP layer.
func NewServer(authSvc *auth.Service, repository interfaces.SessionRepository, state interfaces.ActiveStateProvider, wsHandler http.HandlerFunc) *Server {
	return &Server{
		auth:       authSvc,
		repository: repository,
		state:      state,
		wsHandler:  wsHandler,
		log:        logging.WithComponent("api"),
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.wsHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireToken)
			r.Post("/auth/logout", s.handleLogout)
			r.Get("/diagnostics", s.handleDiagnostics)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.repository.HealthCheck(ctx); err != nil {
		s.log.Error().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, interfaces.ErrUsernameTaken) {
			writeError(w, http.StatusConflict, "username already taken")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"id":       user.ID,
		"username": user.Username,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, user, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.log.Error().Err(err).Msg("login failed")
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"token":    token,
		"id":       user.ID,
		"username": user.Username,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.auth.Revoke(bearerToken(r))
	w.WriteHeader(http.StatusNoContent)
}

// handleDiagnostics reports live connection state alongside durable session
// counts.
func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	snap := s.state.Snapshot()

	active, total, err := s.repository.CountSessions(r.Context())
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to count sessions")
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"live": map[string]any{
			"sessions":  snap.ActiveSessions,
			"students":  snap.Students,
			"teachers":  snap.Teachers,
			"languages": snap.LanguagesInUse,
		},
		"stored": map[string]int{
			"active_sessions": active,
			"total_sessions":  total,
		},
	})
}

// requireToken guards endpoints behind a valid bearer token.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.auth.Verify(bearerToken(r)); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
