package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Sebdysart/hustlexp-engine/internal/domain"
)

// QuestWriter persists quests to the source of record.
type QuestWriter interface {
	UpsertQuest(ctx context.Context, q *domain.Quest) error
}

// Broadcaster registers a persisted quest with the running engine so live
// workers see it without waiting for the next boot.
type Broadcaster interface {
	AddQuest(q *domain.Quest)
}

// Internal is the marketplace-facing surface. It is mounted on a separate
// route prefix so deployments can keep it off the public listener.
type Internal struct {
	writer      QuestWriter
	broadcaster Broadcaster
	logger      *slog.Logger
}

// NewInternal creates the internal handler.
func NewInternal(writer QuestWriter, broadcaster Broadcaster, logger *slog.Logger) *Internal {
	return &Internal{writer: writer, broadcaster: broadcaster, logger: logger}
}

// Routes mounts the internal operations on the router.
func (h *Internal) Routes(r chi.Router) {
	r.Post("/quests", h.BroadcastQuest)
}

// BroadcastQuestRequest is the JSON body for POST /internal/v1/quests.
type BroadcastQuestRequest struct {
	ID             string           `json:"id,omitempty"`
	Title          string           `json:"title"`
	Category       string           `json:"category"`
	Location       domain.Location  `json:"location"`
	RequiredTier   domain.TrustTier `json:"required_tier"`
	RequiredSkills []string         `json:"required_skills,omitempty"`
	PaymentCents   int64            `json:"payment_cents"`
	ExpiresAt      time.Time        `json:"expires_at"`
}

// BroadcastQuest handles POST /internal/v1/quests. The quest is written to
// the source of record first; only a persisted quest is broadcast.
func (h *Internal) BroadcastQuest(w http.ResponseWriter, r *http.Request) {
	var req BroadcastQuestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "field 'title' is required")
		return
	}
	if req.Category == "" {
		writeError(w, http.StatusBadRequest, "field 'category' is required")
		return
	}
	if !req.Location.Valid() {
		writeError(w, http.StatusBadRequest, "location out of range")
		return
	}
	if req.PaymentCents <= 0 {
		writeError(w, http.StatusBadRequest, "field 'payment_cents' must be positive")
		return
	}
	if req.RequiredTier < domain.TierRookie || req.RequiredTier > domain.TierElite {
		writeError(w, http.StatusBadRequest, "required_tier out of range")
		return
	}
	now := time.Now().UTC()
	if !req.ExpiresAt.IsZero() && !req.ExpiresAt.After(now) {
		writeError(w, http.StatusBadRequest, "expires_at must be in the future")
		return
	}

	q := &domain.Quest{
		ID:             req.ID,
		Title:          req.Title,
		Category:       req.Category,
		Location:       req.Location,
		RequiredTier:   req.RequiredTier,
		RequiredSkills: req.RequiredSkills,
		PaymentCents:   req.PaymentCents,
		State:          domain.QuestOpen,
		CreatedAt:      now,
		ExpiresAt:      req.ExpiresAt,
	}
	if q.ID == "" {
		q.ID = uuid.New().String()
	}

	if err := h.writer.UpsertQuest(r.Context(), q); err != nil {
		h.logger.Error("failed to persist quest",
			slog.String("quest_id", q.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to persist quest")
		return
	}
	h.broadcaster.AddQuest(q)

	writeJSON(w, http.StatusCreated, q)
}
