package community

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
	r.Post("/{id}/members", h.addMember)
	r.Post("/{id}/fund", h.fund)
}

type createCommunityRequest struct {
	Name              string                 `json:"name"`
	Description       string                 `json:"description"`
	TreasuryAddress   string                 `json:"treasury_address"`
	InitialBalance    decimal.Decimal        `json:"initial_balance"`
	ApprovalThreshold int                    `json:"approval_threshold"`
	CreatedBy         string                 `json:"created_by"`
	Leaders           []treasury.LeaderInput `json:"leaders"`
	Members           []string               `json:"members"`
}

type leaderResponse struct {
	WalletAddress string    `json:"wallet_address"`
	Name          string    `json:"name,omitempty"`
	AddedAt       time.Time `json:"added_at"`
}

type memberResponse struct {
	WalletAddress string    `json:"wallet_address"`
	JoinedAt      time.Time `json:"joined_at"`
}

type communityResponse struct {
	ID                uuid.UUID        `json:"id"`
	Name              string           `json:"name"`
	Description       string           `json:"description"`
	TreasuryAddress   string           `json:"treasury_address"`
	InitialBalance    decimal.Decimal  `json:"initial_balance"`
	CurrentBalance    decimal.Decimal  `json:"current_balance"`
	ApprovalThreshold int              `json:"approval_threshold"`
	CreatedBy         string           `json:"created_by"`
	CreatedAt         time.Time        `json:"created_at"`
	LeaderCount       int              `json:"leader_count"`
	MemberCount       int              `json:"member_count"`
	Leaders           []leaderResponse `json:"leaders,omitempty"`
	Members           []memberResponse `json:"members,omitempty"`
}

func toResponse(c *treasury.Community) communityResponse {
	resp := communityResponse{
		ID:                c.ID,
		Name:              c.Name,
		Description:       c.Description,
		TreasuryAddress:   c.TreasuryAddress,
		InitialBalance:    c.InitialBalance,
		CurrentBalance:    c.CurrentBalance,
		ApprovalThreshold: c.ApprovalThreshold,
		CreatedBy:         c.CreatedBy,
		CreatedAt:         c.CreatedAt,
		LeaderCount:       c.LeaderCount,
		MemberCount:       c.MemberCount,
	}

	for _, l := range c.Leaders {
		resp.Leaders = append(resp.Leaders, leaderResponse{WalletAddress: l.WalletAddress, Name: l.Name, AddedAt: l.AddedAt})
	}

	for _, m := range c.Members {
		resp.Members = append(resp.Members, memberResponse{WalletAddress: m.WalletAddress, JoinedAt: m.JoinedAt})
	}

	return resp
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := treasury.CommunityFilter{
		CreatedBy: r.URL.Query().Get("created_by"),
		MemberOf:  r.URL.Query().Get("member_of"),
	}

	communities, err := h.svc.ListCommunities(r.Context(), filter)
	if err != nil {
		respond.Error(w, err)
		return
	}

	resp := make([]communityResponse, 0, len(communities))
	for _, c := range communities {
		resp = append(resp, toResponse(c))
	}

	respond.JSON(w, http.StatusOK, resp)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createCommunityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, err.Error())
		return
	}

	creator, err := auth.Actor(r.Context(), req.CreatedBy)
	if err != nil {
		respond.Error(w, err)
		return
	}

	c, err := h.svc.CreateCommunity(r.Context(), treasury.CreateCommunityRequest{
		Name:              req.Name,
		Description:       req.Description,
		TreasuryAddress:   req.TreasuryAddress,
		InitialBalance:    req.InitialBalance,
		ApprovalThreshold: req.ApprovalThreshold,
		CreatedBy:         creator,
		Leaders:           req.Leaders,
		Members:           req.Members,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toResponse(c))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.BadRequest(w, "invalid id")
		return
	}

	c, err := h.svc.GetCommunity(r.Context(), id)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(c))
}

type addMemberRequest struct {
	WalletAddress string `json:"wallet_address"`
	Name          string `json:"name"`
	IsLeader      bool   `json:"is_leader"`
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.BadRequest(w, "invalid id")
		return
	}

	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, err.Error())
		return
	}

	err = h.svc.AddMember(r.Context(), treasury.AddMemberRequest{
		CommunityID:   id,
		WalletAddress: req.WalletAddress,
		Name:          req.Name,
		IsLeader:      req.IsLeader,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

type fundRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	FundedBy string          `json:"funded_by"`
}

func (h *Handler) fund(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.BadRequest(w, "invalid id")
		return
	}

	var req fundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, err.Error())
		return
	}

	funder, err := auth.Actor(r.Context(), req.FundedBy)
	if err != nil {
		respond.Error(w, err)
		return
	}

	err = h.svc.FundTreasury(r.Context(), treasury.FundTreasuryRequest{
		CommunityID: id,
		Amount:      req.Amount,
		FundedBy:    funder,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}

	c, err := h.svc.GetCommunity(r.Context(), id)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(c))
}
