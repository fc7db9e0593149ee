// internal/api/handler.go
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5"

	"github-trends/internal/storage"
)

// Handler is the container for API dependencies.
type Handler struct {
	store  *storage.Storage
	logger *slog.Logger
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(store *storage.Storage, logger *slog.Logger) http.Handler {
	h := &Handler{
		store:  store,
		logger: logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger) // Chi's default logger
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// API Routes
	r.Get("/health", h.healthCheck)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/repos/{owner}/{name}/snapshots", h.getRepositorySnapshots)
		r.Get("/owners/{login}/snapshots", h.getOwnerSnapshots)
	})

	return r
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// getRepositorySnapshots returns the metric history for one repository.
// GET /v1/repos/{owner}/{name}/snapshots
func (h *Handler) getRepositorySnapshots(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	name := chi.URLParam(r, "name")

	repo, err := h.store.GetRepositoryByFullName(r.Context(), owner+"/"+name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondWithError(w, http.StatusNotFound, "Repository not found")
			return
		}
		h.logger.Error("Failed to get repository", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	snapshots, err := h.store.RepositorySnapshots(r.Context(), repo.RepoID)
	if err != nil {
		h.logger.Error("Failed to get repository snapshots", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"repository": repo,
		"snapshots":  snapshots,
	})
}

// getOwnerSnapshots returns the metric history for one owner.
// GET /v1/owners/{login}/snapshots
func (h *Handler) getOwnerSnapshots(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "login")

	owner, err := h.store.GetOwnerByLogin(r.Context(), login)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondWithError(w, http.StatusNotFound, "Owner not found")
			return
		}
		h.logger.Error("Failed to get owner", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	snapshots, err := h.store.OwnerSnapshots(r.Context(), owner.OwnerID)
	if err != nil {
		h.logger.Error("Failed to get owner snapshots", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"owner":     owner,
		"snapshots": snapshots,
	})
}

func respondWithJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, map[string]string{"error": message})
}
