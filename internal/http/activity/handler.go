package activity

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/commonpurse/commonpurse/internal/activity"
	"github.com/commonpurse/commonpurse/internal/http/respond"
	"github.com/commonpurse/commonpurse/internal/treasury"
)

type Handler struct {
	svc *treasury.Service
}

func NewHandler(svc *treasury.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
}

type activityResponse struct {
	ID            uuid.UUID             `json:"id"`
	CommunityID   uuid.UUID             `json:"community_id"`
	CommunityName string                `json:"community_name"`
	ProposalID    *uuid.UUID            `json:"proposal_id,omitempty"`
	ProposalTitle string                `json:"proposal_title,omitempty"`
	Kind          treasury.ActivityKind `json:"kind"`
	Actor         string                `json:"actor"`
	Amount        *decimal.Decimal      `json:"amount,omitempty"`
	Summary       string                `json:"summary"`
	Metadata      map[string]string     `json:"metadata,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
}

func toResponse(a *treasury.Activity) activityResponse {
	resp := activityResponse{
		ID:            a.ID,
		CommunityID:   a.CommunityID,
		CommunityName: a.CommunityName,
		ProposalID:    a.ProposalID,
		ProposalTitle: a.ProposalTitle,
		Kind:          a.Kind,
		Actor:         a.Actor,
		Summary:       activity.Summary(a),
		Metadata:      a.Metadata,
		CreatedAt:     a.CreatedAt,
	}

	if a.Amount.Valid {
		resp.Amount = new(a.Amount.Decimal)
	}

	return resp
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	var filter treasury.ActivityFilter

	if s := r.URL.Query().Get("community_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			respond.BadRequest(w, "invalid community_id")
			return
		}

		filter.CommunityID = new(id)
	}

	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 1 {
			respond.BadRequest(w, "limit must be a positive integer")
			return
		}

		filter.Limit = limit
	}

	activities, err := h.svc.ListActivities(r.Context(), filter)
	if err != nil {
		respond.Error(w, err)
		return
	}

	resp := make([]activityResponse, 0, len(activities))
	for _, a := range activities {
		resp = append(resp, toResponse(a))
	}

	respond.JSON(w, http.StatusOK, resp)
}
