package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Siddarth2230/shortlink/internal/models"
	"github.com/Siddarth2230/shortlink/internal/service"
)

// LinkService is the part of service.LinkService the HTTP layer drives.
type LinkService interface {
	Create(ctx context.Context, originalURL string, expiresAt *time.Time) (*models.ShortenResponse, error)
	Resolve(ctx context.Context, code string, rc *models.RequestContext) (string, error)
	Stats(ctx context.Context, code string) (*models.StatsResponse, error)
	Delete(ctx context.Context, code string) error
	Visits(ctx context.Context, code string, limit int) ([]models.Visit, error)
	Health(ctx context.Context) (bool, map[string]string)
}

type LinkHandler struct {
	service LinkService
	logger  *zap.Logger
}

func NewLinkHandler(svc LinkService, logger *zap.Logger) *LinkHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LinkHandler{service: svc, logger: logger}
}

// POST /api/urls
func (h *LinkHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req models.ShortenRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	resp, err := h.service.Create(r.Context(), req.URL, req.ExpiresAt)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// GET /{code}
func (h *LinkHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	rc := &models.RequestContext{
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
	}

	dest, err := h.service.Resolve(r.Context(), code, rc)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	http.Redirect(w, r, dest, http.StatusFound)
}

// GET /api/urls/{code}/stats
func (h *LinkHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GET /api/urls/{code}/visits?limit=N
func (h *LinkHandler) Visits(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	visits, err := h.service.Visits(r.Context(), mux.Vars(r)["code"], limit)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if visits == nil {
		visits = []models.Visit{}
	}
	writeJSON(w, http.StatusOK, visits)
}

// DELETE /api/urls/{code}
func (h *LinkHandler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), mux.Vars(r)["code"]); err != nil {
		h.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /health
func (h *LinkHandler) Health(w http.ResponseWriter, r *http.Request) {
	healthy, deps := h.service.Health(r.Context())

	body := map[string]interface{}{"status": "healthy", "dependencies": deps}
	code := http.StatusOK
	if !healthy {
		body["status"] = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, body)
}

// GET /
func (h *LinkHandler) Home(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"service": "shortlink", "status": "running"})
}

// handleError maps service errors to HTTP responses.
func (h *LinkHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidURL):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "short code not found")
	case errors.Is(err, service.ErrStoreUnavailable):
		h.logger.Error("store unavailable", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	// headers are already out, nothing left to report to
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes { "error": "msg" }.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
