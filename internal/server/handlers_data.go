package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"calorieai/internal/store"
	"calorieai/internal/util"
	"calorieai/pkg/aggregate"
	"calorieai/pkg/catalog"
	"calorieai/pkg/domain"
	"calorieai/pkg/vision"
)

// profile

type profileResponse struct {
	User domain.User `json:"user"`
	BMI  float64     `json:"bmi"`
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, st *store.Store) {
	switch r.Method {
	case http.MethodGet:
		user, ok := st.CurrentUser()
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeJSON(w, http.StatusOK, profileResponse{User: user, BMI: aggregate.BMI(user.WeightKG, user.HeightCM)})
	case http.MethodPatch:
		var patch domain.ProfilePatch
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		user, err := st.UpdateProfile(r.Context(), patch)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, profileResponse{User: user, BMI: aggregate.BMI(user.WeightKG, user.HeightCM)})
	default:
		methodNotAllowed(w)
	}
}

// meals

func (s *Server) handleMeals(w http.ResponseWriter, r *http.Request, st *store.Store) {
	switch r.Method {
	case http.MethodGet:
		meals := st.Meals()
		writeJSON(w, http.StatusOK, map[string]any{"items": meals, "count": len(meals)})
	case http.MethodPost:
		var draft domain.MealDraft
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&draft); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		meal, err := st.AddMeal(r.Context(), draft)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, meal)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleMealByID(w http.ResponseWriter, r *http.Request, st *store.Store) {
	id := strings.TrimPrefix(r.URL.Path, "/meals/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	if err := st.DeleteMeal(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// water

type addWaterRequest struct {
	Amount int `json:"amount"`
}

func (s *Server) handleWater(w http.ResponseWriter, r *http.Request, st *store.Store) {
	switch r.Method {
	case http.MethodGet:
		entries := st.Water()
		writeJSON(w, http.StatusOK, map[string]any{"items": entries, "count": len(entries)})
	case http.MethodPost:
		var req addWaterRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		entry, err := st.AddWater(r.Context(), req.Amount)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, entry)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleWaterByID(w http.ResponseWriter, r *http.Request, st *store.Store) {
	id := strings.TrimPrefix(r.URL.Path, "/water/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	if err := st.DeleteWater(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// catalog

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	items := catalog.Search(r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

// photo analysis

const maxUploadBytes = 10 << 20

type analyzeResponse struct {
	vision.Result
	PhotoURL string `json:"photoUrl,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request, st *store.Store) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.cfg.AnalyzeLimiter != nil && !s.cfg.AnalyzeLimiter.Allow(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "too many requests, try again later")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()
	image, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read image")
		return
	}

	result, err := s.cfg.Vision.Analyze(r.Context(), st.APIKey(), image)
	if err != nil {
		writeVisionError(w, err)
		return
	}

	resp := analyzeResponse{Result: result}
	if s.cfg.Photos != nil && result.IsFood {
		resp.PhotoURL = s.archivePhoto(r, st, image)
	}
	writeJSON(w, http.StatusOK, resp)
}

// archivePhoto uploads the analyzed image and returns a presigned URL.
// Failures are logged only; analysis already succeeded.
func (s *Server) archivePhoto(r *http.Request, st *store.Store, image []byte) string {
	user, ok := st.CurrentUser()
	if !ok {
		return ""
	}
	key := fmt.Sprintf("%s/%s/%s.jpg", user.ID, time.Now().UTC().Format("2006-01-02"), util.NewID())
	ctx := r.Context()
	if err := s.cfg.Photos.Put(ctx, key, bytes.NewReader(image), int64(len(image)), "image/jpeg"); err != nil {
		slog.Warn("archive photo", "err", err)
		return ""
	}
	url, err := s.cfg.Photos.PresignGet(ctx, key, 24*time.Hour)
	if err != nil {
		slog.Warn("presign photo", "err", err)
		// The object is unreachable without a URL; don't leave it behind.
		if derr := s.cfg.Photos.Delete(ctx, key); derr != nil {
			slog.Warn("delete orphaned photo", "key", key, "err", derr)
		}
		return ""
	}
	return url
}

func writeVisionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, vision.ErrMissingCredential):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, vision.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, vision.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, vision.ErrSchema), errors.Is(err, vision.ErrRemoteService):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

// data management

func (s *Server) handleData(w http.ResponseWriter, r *http.Request, st *store.Store) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	if err := st.ClearUserData(r.Context()); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDemo(w http.ResponseWriter, r *http.Request, st *store.Store) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := st.LoadMockData(r.Context()); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, st *store.Store) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	snap, err := st.ExportData()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="calorieai-export.json"`)
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request, st *store.Store) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var snap domain.Snapshot
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&snap); err != nil {
		writeError(w, http.StatusBadRequest, store.ErrInvalidImport.Error())
		return
	}
	if err := st.ImportData(r.Context(), snap); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type apiKeyRequest struct {
	APIKey string `json:"apiKey"`
}

func (s *Server) handleAPIKey(w http.ResponseWriter, r *http.Request, st *store.Store) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	var req apiKeyRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	st.SetAPIKey(req.APIKey)
	w.WriteHeader(http.StatusNoContent)
}
