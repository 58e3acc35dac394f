package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/harrier/internal/detect"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/features"
	"github.com/opensource-finance/harrier/internal/pipeline"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	engine    *pipeline.Engine
	screening *detect.ScreeningEngine
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(engine *pipeline.Engine, screening *detect.ScreeningEngine, repo domain.Repository, cache domain.Cache, bus domain.EventBus, version string) *Handler {
	return &Handler{
		engine:    engine,
		screening: screening,
		repo:      repo,
		cache:     cache,
		bus:       bus,
		version:   version,
	}
}

// ScoreRequest is the request body for POST /score.
type ScoreRequest struct {
	Address string `json:"address"`
}

// Score handles POST /score requests: runs the full pipeline for one
// address and returns the decision with its supporting evidence.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.Address == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "address is required",
		})
		return
	}

	result, err := h.engine.Score(ctx, req.Address)
	if err != nil {
		if errors.Is(err, domain.ErrNoEvidence) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "reference population is empty, load labeled vectors first",
			})
			return
		}
		slog.Error("scoring failed", "address", req.Address, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "scoring failed",
		})
		return
	}

	slog.Debug("score request served",
		"address", req.Address,
		"label", result.Evaluation.Decision.Label,
		"total_ms", time.Since(start).Milliseconds(),
	)
	writeJSON(w, http.StatusOK, result)
}

// GetScore handles GET /scores/{reference}: scoring-ledger lookup.
func (h *Handler) GetScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reference := chi.URLParam(r, "reference")

	if reference == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "reference is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	entry, err := h.repo.GetScore(ctx, reference)
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no score for reference",
		})
		return
	}
	if err != nil {
		slog.Error("failed to get score", "reference", reference, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get score",
		})
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

// GetEvaluation retrieves an evaluation by ID.
func (h *Handler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	evalID := chi.URLParam(r, "id")

	if evalID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "evaluation id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	eval, err := h.repo.GetEvaluation(ctx, evalID)
	if err != nil {
		slog.Error("failed to get evaluation", "id", evalID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "evaluation not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, eval)
}

// ListEvaluations returns recent evaluations for an address, newest first.
func (h *Handler) ListEvaluations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	address := chi.URLParam(r, "address")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	evals, err := h.repo.ListEvaluationsByAddress(ctx, address, 50)
	if err != nil {
		slog.Error("failed to list evaluations", "address", address, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list evaluations",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"evaluations": evals,
		"count":       len(evals),
	})
}

// LoadReferenceRequest is the request body for POST /reference/load.
type LoadReferenceRequest struct {
	Vectors []*domain.ReferenceVector `json:"vectors"`
}

// LoadReference handles POST /reference/load: fits a new scaler over the
// labeled batch and upserts it into the index and the repository.
func (h *Handler) LoadReference(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LoadReferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Vectors) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "vectors are required",
		})
		return
	}
	for _, v := range req.Vectors {
		if v.Reference == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "every vector needs a reference",
			})
			return
		}
		if len(v.Vector) != features.Dimensions {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "vector dimension mismatch",
			})
			return
		}
	}

	count, err := h.engine.LoadReference(ctx, req.Vectors)
	if err != nil {
		slog.Error("reference load failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "reference load failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"loaded": count,
	})
}

// ListRules returns all screening rules loaded in the engine.
// Rules are loaded from the database at startup and can be reloaded via
// POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	if h.screening == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "screening engine not available",
		})
		return
	}

	loadedRules := h.screening.LoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// CreateRuleRequest is the request body for creating a screening rule.
type CreateRuleRequest struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Expression  string  `json:"expression"`
	Tag         string  `json:"tag"`
	Weight      float64 `json:"weight"`
	Enabled     bool    `json:"enabled"`
}

// CreateRule creates a new screening rule and saves it to the database.
// The CEL expression is compiled up front so a broken rule never lands.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.screening == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "screening engine not available",
		})
		return
	}

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}
	if req.Weight < 0 || req.Weight > 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "weight must be between 0 and 1",
		})
		return
	}

	rule := &domain.ScreeningRule{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Tag:         req.Tag,
		Weight:      req.Weight,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression by attempting to load
	if err := h.screening.LoadRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveScreeningRule(ctx, rule); err != nil {
			slog.Error("failed to save screening rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("screening rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    rule,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules reloads all screening rules from the database into the
// engine. This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}
	if h.screening == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "screening engine not available",
		})
		return
	}

	dbRules, err := h.repo.ListScreeningRules(ctx)
	if err != nil {
		slog.Error("failed to list screening rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.screening.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload screening rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("screening rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   h.screening.RulesCount(),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
