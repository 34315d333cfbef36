package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/stratops/stratroll/internal/rollout"
)

// Handlers serves the read-only rollout endpoints.
type Handlers struct {
	manager   *rollout.Manager
	version   string
	startedAt time.Time
}

// NewHandlers wires the handlers to a rollout manager.
func NewHandlers(manager *rollout.Manager, version string) *Handlers {
	return &Handlers{manager: manager, version: version, startedAt: time.Now()}
}

type errorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

type healthResponse struct {
	Status        string         `json:"status"`
	Version       string         `json:"version"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	Timestamp     time.Time      `json:"timestamp"`
	ActiveRollout *activeSummary `json:"active_rollout"`
}

type activeSummary struct {
	RolloutID    string        `json:"rollout_id"`
	State        rollout.State `json:"state"`
	Phase        string        `json:"phase,omitempty"`
	Mode         string        `json:"mode"`
	CandidatePct int           `json:"candidate_pct"`
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "healthy",
		Version:       h.version,
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		Timestamp:     time.Now().UTC(),
	}
	if rec, err := h.manager.Status(r.Context(), ""); err == nil {
		resp.ActiveRollout = &activeSummary{
			RolloutID:    rec.RolloutID,
			State:        rec.State,
			Phase:        rec.CurrentPhase,
			Mode:         rec.Routing.Mode,
			CandidatePct: rec.Weights.CandidatePct,
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ActiveRollout handles GET /rollout: the full record of the active
// rollout.
func (h *Handlers) ActiveRollout(w http.ResponseWriter, r *http.Request) {
	rec, err := h.manager.Status(r.Context(), "")
	if err != nil {
		h.writeLookupError(w, r, "", err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// RolloutByID handles GET /rollout/{id}.
func (h *Handlers) RolloutByID(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := h.manager.Status(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, r, id, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

type rolloutSummary struct {
	RolloutID    string        `json:"rollout_id"`
	State        rollout.State `json:"state"`
	Phase        string        `json:"phase,omitempty"`
	Candidate    string        `json:"candidate"`
	Baseline     string        `json:"baseline"`
	CandidatePct int           `json:"candidate_pct"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// ListRollouts handles GET /rollouts?limit=N, newest first.
func (h *Handlers) ListRollouts(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, r, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	records, err := h.manager.History(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}
	summaries := make([]rolloutSummary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, rolloutSummary{
			RolloutID:    rec.RolloutID,
			State:        rec.State,
			Phase:        rec.CurrentPhase,
			Candidate:    rec.CandidateVersion.StrategyID,
			Baseline:     rec.BaselineVersion.StrategyID,
			CandidatePct: rec.Weights.CandidatePct,
			CreatedAt:    rec.CreatedAt,
			UpdatedAt:    rec.UpdatedAt,
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"rollouts": summaries, "count": len(summaries)})
}

// Evaluations handles GET /rollout/{id}/evaluations.
func (h *Handlers) Evaluations(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := h.manager.Status(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, r, id, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"rollout_id":  rec.RolloutID,
		"state":       rec.State,
		"evaluations": rec.PhaseEvaluations,
		"phase_kpis":  rec.PhaseKPIs,
	})
}

// RolloutHistory handles GET /rollout/{id}/history.
func (h *Handlers) RolloutHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := h.manager.Status(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, r, id, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"rollout_id": rec.RolloutID,
		"state":      rec.State,
		"history":    rec.History.Items(),
	})
}

// Signals handles GET /rollout/{id}/signals.
func (h *Handlers) Signals(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := h.manager.Status(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, r, id, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"rollout_id": rec.RolloutID,
		"state":      rec.State,
		"telemetry":  rec.LiveSignals,
	})
}

// Routing handles GET /routing: the active rollout's routing directive,
// the one endpoint the execution fast path polls.
func (h *Handlers) Routing(w http.ResponseWriter, r *http.Request) {
	rec, err := h.manager.Status(r.Context(), "")
	if err != nil {
		h.writeLookupError(w, r, "", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"rollout_id": rec.RolloutID,
		"state":      rec.State,
		"routing":    rec.Routing,
		"weights":    rec.Weights,
		"blending":   rec.Blending,
	})
}

// NotFound handles unmatched routes.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	h.writeError(w, r, http.StatusNotFound, "endpoint_not_found", "the requested endpoint does not exist")
}

func (h *Handlers) writeLookupError(w http.ResponseWriter, r *http.Request, id string, err error) {
	switch {
	case errors.Is(err, rollout.ErrNoActiveRollout):
		h.writeError(w, r, http.StatusNotFound, "no_active_rollout", "no rollout is currently active")
	case errors.Is(err, rollout.ErrRecordNotFound):
		h.writeError(w, r, http.StatusNotFound, "rollout_not_found", "no rollout with id "+id)
	default:
		h.writeError(w, r, http.StatusInternalServerError, "lookup_failed", err.Error())
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"json_encoding_failed"}`, http.StatusInternalServerError)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	h.writeJSON(w, status, errorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: requestIDFrom(r.Context()),
		Timestamp: time.Now().UTC(),
	})
}
