// Package server exposes the HTTP API: authentication, meal and water
// logging, summaries, the food catalog and photo analysis. Each
// authenticated user gets one long-lived domain store instance that all
// their requests share.
package server

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"calorieai/internal/events"
	"calorieai/internal/gateway"
	"calorieai/internal/ratelimit"
	"calorieai/internal/session"
	"calorieai/internal/store"
	"calorieai/pkg/auth"
	"calorieai/pkg/storage"
	"calorieai/pkg/vision"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	Gateway  gateway.Gateway
	Sessions *session.Store
	Vision   *vision.Client

	// Optional integrations.
	Photos         storage.ObjectStore
	Events         events.Publisher
	AuthLimiter    *ratelimit.FixedWindowLimiter
	AnalyzeLimiter *ratelimit.FixedWindowLimiter

	// APIKeyDir, when set, persists each user's vision credential to a
	// file under it.
	APIKeyDir string
}

// Server exposes the HTTP endpoints.
type Server struct {
	cfg Config
	mux *http.ServeMux

	regMu  sync.Mutex
	stores map[string]*store.Store // userID -> shared store
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	if cfg.Events == nil {
		cfg.Events = events.NopPublisher{}
	}
	s := &Server{
		cfg:    cfg,
		mux:    http.NewServeMux(),
		stores: make(map[string]*store.Store),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/auth/signup", s.handleSignup)
	s.mux.HandleFunc("/auth/login", s.handleLogin)
	s.mux.HandleFunc("/auth/logout", s.handleLogout)

	// profile
	s.mux.Handle("/profile", s.authenticated(s.handleProfile))

	// meals + water
	s.mux.Handle("/meals", s.authenticated(s.handleMeals))
	s.mux.Handle("/meals/", s.authenticated(s.handleMealByID))
	s.mux.Handle("/water", s.authenticated(s.handleWater))
	s.mux.Handle("/water/", s.authenticated(s.handleWaterByID))

	// summaries + catalog
	s.mux.Handle("/summary/today", s.authenticated(s.handleSummaryToday))
	s.mux.Handle("/summary/week", s.authenticated(s.handleSummaryWeek))
	s.mux.Handle("/history", s.authenticated(s.handleHistory))
	s.mux.HandleFunc("/catalog", s.handleCatalog)

	// photo analysis
	s.mux.Handle("/analyze", s.authenticated(s.handleAnalyze))

	// data management
	s.mux.Handle("/data", s.authenticated(s.handleData))
	s.mux.Handle("/data/demo", s.authenticated(s.handleDemo))
	s.mux.Handle("/data/export", s.authenticated(s.handleExport))
	s.mux.Handle("/data/import", s.authenticated(s.handleImport))
	s.mux.Handle("/settings/api-key", s.authenticated(s.handleAPIKey))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type storeHandler func(http.ResponseWriter, *http.Request, *store.Store)

func (s *Server) authenticated(next storeHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		userID, err := s.cfg.Sessions.UserIDByToken(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		st, err := s.storeFor(r, userID)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, st)
	})
}

// storeFor returns the user's shared store, creating and loading it on
// first use after a restart.
func (s *Server) storeFor(r *http.Request, userID string) (*store.Store, error) {
	s.regMu.Lock()
	st, ok := s.stores[userID]
	s.regMu.Unlock()
	if ok {
		return st, nil
	}

	st = store.New(s.cfg.Gateway, store.WithEvents(s.cfg.Events))
	_, found, err := st.Restore(r.Context(), userID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, gateway.ErrNotFound
	}
	return s.adopt(userID, st), nil
}

// adopt registers the store for the user, binding the API key file and
// deduplicating concurrent creations.
func (s *Server) adopt(userID string, st *store.Store) *store.Store {
	if s.cfg.APIKeyDir != "" {
		st.BindAPIKeyFile(filepath.Join(s.cfg.APIKeyDir, userID+".key"))
	}
	s.regMu.Lock()
	defer s.regMu.Unlock()
	if existing, ok := s.stores[userID]; ok {
		return existing
	}
	s.stores[userID] = st
	return st
}

func (s *Server) dropStore(userID string) {
	s.regMu.Lock()
	if st, ok := s.stores[userID]; ok {
		st.Logout()
		delete(s.stores, userID)
	}
	s.regMu.Unlock()
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

// clientIP extracts the caller address for rate limiting.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps domain errors onto HTTP statuses; unknown errors
// become an opaque 500.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotAuthenticated),
		errors.Is(err, gateway.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, gateway.ErrDuplicateUser):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, gateway.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrNameRequired),
		errors.Is(err, store.ErrInvalidEmail),
		errors.Is(err, store.ErrInvalidAmount),
		errors.Is(err, store.ErrInvalidImport),
		errors.Is(err, auth.ErrPasswordTooShort):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrRemoteWrite):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
