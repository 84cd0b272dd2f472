package proposal

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/commonpurse/commonpurse/internal/http/auth"
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
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/execute", h.execute)
	r.Post("/{id}/proof", h.attachProof)
}

type approvalResponse struct {
	LeaderAddress string    `json:"leader_address"`
	ApprovedAt    time.Time `json:"approved_at"`
}

type proposalResponse struct {
	ID               uuid.UUID          `json:"id"`
	CommunityID      uuid.UUID          `json:"community_id"`
	CommunityName    string             `json:"community_name,omitempty"`
	Title            string             `json:"title"`
	Description      string             `json:"description"`
	Amount           decimal.Decimal    `json:"amount"`
	RecipientAddress string             `json:"recipient_address"`
	Status           treasury.Status    `json:"status"`
	Category         string             `json:"category,omitempty"`
	ProofRef         string             `json:"proof_ref,omitempty"`
	CreatedBy        string             `json:"created_by"`
	CreatedAt        time.Time          `json:"created_at"`
	ExecutedAt       *time.Time         `json:"executed_at,omitempty"`
	Approvals        []approvalResponse `json:"approvals"`
}

func toResponse(p *treasury.Proposal) proposalResponse {
	resp := proposalResponse{
		ID:               p.ID,
		CommunityID:      p.CommunityID,
		CommunityName:    p.CommunityName,
		Title:            p.Title,
		Description:      p.Description,
		Amount:           p.Amount,
		RecipientAddress: p.RecipientAddress,
		Status:           p.Status,
		Category:         p.Category,
		ProofRef:         p.ProofRef,
		CreatedBy:        p.CreatedBy,
		CreatedAt:        p.CreatedAt,
		ExecutedAt:       p.ExecutedAt,
		Approvals:        make([]approvalResponse, 0, len(p.Approvals)),
	}

	for _, a := range p.Approvals {
		resp.Approvals = append(resp.Approvals, approvalResponse{LeaderAddress: a.LeaderAddress, ApprovedAt: a.ApprovedAt})
	}

	return resp
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	var filter treasury.ProposalFilter

	if s := r.URL.Query().Get("community_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			respond.BadRequest(w, "invalid community_id")
			return
		}

		filter.CommunityID = new(id)
	}

	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = new(treasury.Status(s))
	}

	proposals, err := h.svc.ListProposals(r.Context(), filter)
	if err != nil {
		respond.Error(w, err)
		return
	}

	resp := make([]proposalResponse, 0, len(proposals))
	for _, p := range proposals {
		resp = append(resp, toResponse(p))
	}

	respond.JSON(w, http.StatusOK, resp)
}

type createProposalRequest struct {
	CommunityID      uuid.UUID       `json:"community_id"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Amount           decimal.Decimal `json:"amount"`
	RecipientAddress string          `json:"recipient_address"`
	CreatedBy        string          `json:"created_by"`
	Category         string          `json:"category"`
	ProofRef         string          `json:"proof_ref"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createProposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, err.Error())
		return
	}

	creator, err := auth.Actor(r.Context(), req.CreatedBy)
	if err != nil {
		respond.Error(w, err)
		return
	}

	p, err := h.svc.CreateProposal(r.Context(), treasury.CreateProposalRequest{
		CommunityID:      req.CommunityID,
		Title:            req.Title,
		Description:      req.Description,
		Amount:           req.Amount,
		RecipientAddress: req.RecipientAddress,
		CreatedBy:        creator,
		Category:         req.Category,
		ProofRef:         req.ProofRef,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toResponse(p))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.BadRequest(w, "invalid id")
		return
	}

	p, err := h.svc.GetProposal(r.Context(), id)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(p))
}

type approveRequest struct {
	LeaderAddress string `json:"leader_address"`
}

type approvalResultResponse struct {
	ProposalID    uuid.UUID       `json:"proposal_id"`
	ApprovalCount int             `json:"approval_count"`
	TotalLeaders  int             `json:"total_leaders"`
	Status        treasury.Status `json:"status"`
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.BadRequest(w, "invalid id")
		return
	}

	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, err.Error())
		return
	}

	leader, err := auth.Actor(r.Context(), req.LeaderAddress)
	if err != nil {
		respond.Error(w, err)
		return
	}

	res, err := h.svc.ApproveProposal(r.Context(), treasury.ApproveProposalRequest{
		ProposalID:    id,
		LeaderAddress: leader,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, approvalResultResponse{
		ProposalID:    res.ProposalID,
		ApprovalCount: res.ApprovalCount,
		TotalLeaders:  res.TotalLeaders,
		Status:        res.Status,
	})
}

type executeRequest struct {
	ExecutedBy     string `json:"executed_by"`
	SettlementHash string `json:"settlement_hash"`
}

type transactionResponse struct {
	ID               uuid.UUID       `json:"id"`
	ProposalID       uuid.UUID       `json:"proposal_id"`
	CommunityID      uuid.UUID       `json:"community_id"`
	Amount           decimal.Decimal `json:"amount"`
	RecipientAddress string          `json:"recipient_address"`
	ExecutedBy       string          `json:"executed_by"`
	SettlementHash   string          `json:"settlement_hash,omitempty"`
	ExecutedAt       time.Time       `json:"executed_at"`
}

func (h *Handler) execute(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.BadRequest(w, "invalid id")
		return
	}

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, err.Error())
		return
	}

	executor, err := auth.Actor(r.Context(), req.ExecutedBy)
	if err != nil {
		respond.Error(w, err)
		return
	}

	tx, err := h.svc.ExecuteProposal(r.Context(), treasury.ExecuteProposalRequest{
		ProposalID:     id,
		ExecutedBy:     executor,
		SettlementHash: req.SettlementHash,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, transactionResponse{
		ID:               tx.ID,
		ProposalID:       tx.ProposalID,
		CommunityID:      tx.CommunityID,
		Amount:           tx.Amount,
		RecipientAddress: tx.RecipientAddress,
		ExecutedBy:       tx.ExecutedBy,
		SettlementHash:   tx.SettlementHash,
		ExecutedAt:       tx.ExecutedAt,
	})
}

type attachProofRequest struct {
	ProofRef string `json:"proof_ref"`
	Actor    string `json:"actor"`
}

func (h *Handler) attachProof(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.BadRequest(w, "invalid id")
		return
	}

	var req attachProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, err.Error())
		return
	}

	actor, err := auth.Actor(r.Context(), req.Actor)
	if err != nil {
		respond.Error(w, err)
		return
	}

	err = h.svc.AttachProof(r.Context(), treasury.AttachProofRequest{
		ProposalID: id,
		ProofRef:   req.ProofRef,
		Actor:      actor,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
