// Package api is the engine's client-facing HTTP surface. Every request is
// validated here before any core component is touched.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Sebdysart/hustlexp-engine/internal/arbiter"
	"github.com/Sebdysart/hustlexp-engine/internal/domain"
	"github.com/Sebdysart/hustlexp-engine/internal/geo"
	"github.com/Sebdysart/hustlexp-engine/internal/heatmap"
	"github.com/Sebdysart/hustlexp-engine/internal/live"
	"github.com/Sebdysart/hustlexp-engine/internal/proof"
	redisstore "github.com/Sebdysart/hustlexp-engine/internal/redis"
	"github.com/Sebdysart/hustlexp-engine/internal/session"
	"github.com/Sebdysart/hustlexp-engine/pkg/telemetry"
)

// Publisher emits domain events.
type Publisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// REST handles HTTP requests for the engine.
type REST struct {
	live    *live.Registry
	claims  *arbiter.Arbiter
	quests  *arbiter.Registry
	tracker *session.Tracker
	heat    *heatmap.Aggregator
	scorer  *proof.Scorer
	limiter redisstore.RateLimiter
	events  Publisher
	logger  *slog.Logger
}

// NewREST creates a new REST handler. limiter and events may be nil.
func NewREST(
	liveReg *live.Registry,
	claims *arbiter.Arbiter,
	quests *arbiter.Registry,
	tracker *session.Tracker,
	heat *heatmap.Aggregator,
	scorer *proof.Scorer,
	limiter redisstore.RateLimiter,
	events Publisher,
	logger *slog.Logger,
) *REST {
	return &REST{
		live:    liveReg,
		claims:  claims,
		quests:  quests,
		tracker: tracker,
		heat:    heat,
		scorer:  scorer,
		limiter: limiter,
		events:  events,
		logger:  logger,
	}
}

// Routes mounts every client operation on the router.
func (h *REST) Routes(r chi.Router) {
	r.Post("/live", h.ToggleLive)
	r.Get("/quests", h.ListVisibleQuests)
	r.Post("/quests/{id}/claim", h.ClaimQuest)
	r.Post("/claims/{id}/navigation", h.StartNavigation)
	r.Post("/claims/{id}/location", h.ReportLocation)
	r.Post("/claims/{id}/arrival", h.MarkArrived)
	r.Post("/claims/{id}/cancel", h.CancelClaim)
	r.Post("/claims/{id}/proof", h.SubmitProof)
	r.Get("/heatmap", h.GetHeatMap)
}

// ToggleLiveRequest is the JSON body for POST /api/v1/live.
type ToggleLiveRequest struct {
	WorkerID   string          `json:"worker_id"`
	Enabled    bool            `json:"enabled"`
	Location   domain.Location `json:"location"`
	Categories []string        `json:"categories,omitempty"`
}

// ToggleLive handles POST /api/v1/live.
func (h *REST) ToggleLive(w http.ResponseWriter, r *http.Request) {
	var req ToggleLiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.WorkerID == "" {
		writeError(w, http.StatusBadRequest, "field 'worker_id' is required")
		return
	}

	if !req.Enabled {
		h.live.Disable(r.Context(), req.WorkerID)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	sess, err := h.live.Enable(r.Context(), req.WorkerID, req.Location, req.Categories)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// ListVisibleQuests handles GET /api/v1/quests.
func (h *REST) ListVisibleQuests(w http.ResponseWriter, r *http.Request) {
	workerID := workerFrom(r)
	if workerID == "" {
		writeError(w, http.StatusBadRequest, "worker_id is required")
		return
	}

	alerts, err := h.live.VisibleQuests(r.Context(), workerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quests": alerts})
}

// ClaimQuest handles POST /api/v1/quests/{id}/claim. Contention outcomes
// (lost, expired) are well-formed responses, not errors.
func (h *REST) ClaimQuest(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("engine").Start(r.Context(), "api.claim_quest")
	defer span.End()

	questID := chi.URLParam(r, "id")
	workerID := workerFrom(r)
	if workerID == "" {
		writeError(w, http.StatusBadRequest, "worker_id is required")
		return
	}
	span.SetAttributes(
		attribute.String("quest.id", questID),
		attribute.String("worker.id", workerID),
	)

	outcome, err := h.claims.TryClaim(ctx, questID, workerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	status := http.StatusOK
	switch outcome.Result {
	case domain.ClaimResultLost, domain.ClaimResultExpired:
		status = http.StatusConflict
	case domain.ClaimResultNotEligible:
		status = http.StatusForbidden
	}
	writeJSON(w, status, outcome)
}

// StartNavigation handles POST /api/v1/claims/{id}/navigation.
func (h *REST) StartNavigation(w http.ResponseWriter, r *http.Request) {
	sess, err := h.tracker.StartNavigation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// LocationRequest is the JSON body for location reports.
type LocationRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ReportLocation handles POST /api/v1/claims/{id}/location. Reports are
// rate limited per claim so a hot client cannot flood the tracker.
func (h *REST) ReportLocation(w http.ResponseWriter, r *http.Request) {
	claimID := chi.URLParam(r, "id")

	var req LocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	loc := domain.Location{Lat: req.Lat, Lng: req.Lng}
	if !loc.Valid() {
		writeError(w, http.StatusBadRequest, "invalid location")
		return
	}

	if h.limiter != nil {
		allowed, err := h.limiter.Allow(r.Context(), claimID)
		if err != nil {
			h.logger.Error("rate limiter error", slog.String("claim_id", claimID), slog.String("error", err.Error()))
			// Fail open; dropping a location report ghosts honest workers.
		} else if !allowed {
			telemetry.RateLimitedTotal.Inc()
			writeError(w, http.StatusTooManyRequests, "too many location reports")
			return
		}
	}

	sess, err := h.tracker.ReportLocation(r.Context(), claimID, loc)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// MarkArrived handles POST /api/v1/claims/{id}/arrival.
func (h *REST) MarkArrived(w http.ResponseWriter, r *http.Request) {
	sess, err := h.tracker.MarkArrived(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// CancelClaim handles POST /api/v1/claims/{id}/cancel. A voluntary
// cancellation reopens the quest without a ghosting strike.
func (h *REST) CancelClaim(w http.ResponseWriter, r *http.Request) {
	sess, err := h.tracker.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// SubmitProofRequest carries the externally-computed proof signals plus
// the GPS fix taken at submission.
type SubmitProofRequest struct {
	Liveness     *int            `json:"liveness,omitempty"`
	Authenticity *int            `json:"authenticity,omitempty"`
	GPS          domain.Location `json:"gps"`
}

// SubmitProof handles POST /api/v1/claims/{id}/proof. Distance to the
// quest location is computed server-side from the submitted fix.
func (h *REST) SubmitProof(w http.ResponseWriter, r *http.Request) {
	claimID := chi.URLParam(r, "id")

	var req SubmitProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.GPS.Valid() {
		writeError(w, http.StatusBadRequest, "invalid gps fix")
		return
	}

	sess, err := h.tracker.Get(claimID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	quest, ok := h.quests.Snapshot(sess.QuestID)
	if !ok {
		writeDomainError(w, &domain.QuestNotFoundError{QuestID: sess.QuestID})
		return
	}

	result := h.scorer.Score(domain.ProofSubmission{
		ClaimID:        claimID,
		Liveness:       req.Liveness,
		Authenticity:   req.Authenticity,
		DistanceMeters: geo.Distance(req.GPS, quest.Location),
		SubmittedAt:    time.Now().UTC(),
	})

	h.publishProofScored(r.Context(), &sess, &result)
	writeJSON(w, http.StatusOK, result)
}

// GetHeatMap handles GET /api/v1/heatmap.
func (h *REST) GetHeatMap(w http.ResponseWriter, r *http.Request) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if errLat != nil || errLng != nil {
		writeError(w, http.StatusBadRequest, "lat and lng query parameters are required")
		return
	}

	zones, err := h.heat.Snapshot(r.Context(), domain.Location{Lat: lat, Lng: lng})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"zones": zones})
}

// Healthz handles GET /healthz.
func (h *REST) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// Readyz handles GET /readyz. Ready once the quest registry is loaded.
func (h *REST) Readyz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

func (h *REST) publishProofScored(ctx context.Context, sess *domain.OnTheWaySession, result *domain.ProofValidationResult) {
	if h.events == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		h.logger.Error("failed to marshal proof result", slog.String("claim_id", sess.ClaimID), slog.String("error", err.Error()))
		return
	}
	ev := domain.Event{
		ID:         uuid.New().String(),
		Type:       domain.EventProofScored,
		OccurredAt: time.Now().UTC(),
		QuestID:    sess.QuestID,
		WorkerID:   sess.WorkerID,
		ClaimID:    sess.ClaimID,
		Payload:    payload,
	}
	if err := h.events.Publish(ctx, ev); err != nil {
		h.logger.Error("failed to publish proof.scored",
			slog.String("claim_id", sess.ClaimID),
			slog.String("error", err.Error()),
		)
	}
}

// workerFrom resolves the caller's worker ID from the X-Worker-ID header
// or the worker_id query parameter. Auth proper lives at the edge proxy.
func workerFrom(r *http.Request) string {
	if id := r.Header.Get("X-Worker-ID"); id != "" {
		return id
	}
	return r.URL.Query().Get("worker_id")
}

func writeDomainError(w http.ResponseWriter, err error) {
	var (
		questNotFound *domain.QuestNotFoundError
		claimNotFound *domain.ClaimNotFoundError
		noSession     *domain.NoLiveSessionError
		stateErr      *domain.SessionStateError
		locErr        *domain.InvalidLocationError
	)
	switch {
	case errors.As(err, &questNotFound), errors.As(err, &claimNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &noSession):
		writeError(w, http.StatusPreconditionFailed, err.Error())
	case errors.As(err, &stateErr):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &locErr):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
