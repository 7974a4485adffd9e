package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"calorieai/internal/store"
	"calorieai/pkg/domain"
)

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowAuth(r) {
		writeError(w, http.StatusTooManyRequests, "too many attempts, try again later")
		return
	}
	var req signupRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	st := store.New(s.cfg.Gateway, store.WithEvents(s.cfg.Events))
	user, err := st.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	st = s.adopt(user.ID, st)

	token, err := s.cfg.Sessions.NewSession(r.Context(), user.ID)
	if err != nil {
		slog.Error("issue session", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowAuth(r) {
		writeError(w, http.StatusTooManyRequests, "too many attempts, try again later")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	st := store.New(s.cfg.Gateway, store.WithEvents(s.cfg.Events))
	user, err := st.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	st = s.adopt(user.ID, st)

	token, err := s.cfg.Sessions.NewSession(r.Context(), user.ID)
	if err != nil {
		slog.Error("issue session", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	userID, err := s.cfg.Sessions.UserIDByToken(r.Context(), token)
	if err == nil {
		s.dropStore(userID)
	}
	if err := s.cfg.Sessions.DeleteSession(r.Context(), token); err != nil {
		slog.Error("revoke session", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) allowAuth(r *http.Request) bool {
	if s.cfg.AuthLimiter == nil {
		return true
	}
	return s.cfg.AuthLimiter.Allow(clientIP(r))
}
