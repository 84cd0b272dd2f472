package export

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/commonpurse/commonpurse/internal/export"
	"github.com/commonpurse/commonpurse/internal/http/respond"
	"github.com/commonpurse/commonpurse/internal/treasury"
)

type Handler struct {
	svc *export.Service
}

func NewHandler(svc *export.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.metadata)
	r.Get("/download", h.download)
}

type transactionResponse struct {
	ID               uuid.UUID       `json:"id"`
	ProposalTitle    string          `json:"proposal_title"`
	Amount           decimal.Decimal `json:"amount"`
	RecipientAddress string          `json:"recipient_address"`
	ExecutedBy       string          `json:"executed_by"`
	ExecutedAt       time.Time       `json:"executed_at"`
	ProofRef         string          `json:"proof_ref,omitempty"`
	ProofFile        string          `json:"proof_file,omitempty"`
}

type exportMetadataResponse struct {
	CommunityID  uuid.UUID             `json:"community_id"`
	Transactions []transactionResponse `json:"transactions"`
	Summary      string                `json:"summary"`
}

func toTransactionResponse(item export.Item) transactionResponse {
	tx := item.Transaction

	resp := transactionResponse{
		ID:               tx.ID,
		ProposalTitle:    tx.ProposalTitle,
		Amount:           tx.Amount,
		RecipientAddress: tx.RecipientAddress,
		ExecutedBy:       tx.ExecutedBy,
		ExecutedAt:       tx.ExecutedAt,
		ProofRef:         tx.ProofRef,
	}

	if item.FilePath != "" {
		resp.ProofFile = filepath.Base(item.FilePath)
	}

	return resp
}

// run exports into a fresh temporary directory that the caller must remove.
func (h *Handler) run(w http.ResponseWriter, r *http.Request) (string, *treasury.Community, []export.Item, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.BadRequest(w, "invalid id")
		return "", nil, nil, false
	}

	tmpDir, err := os.MkdirTemp("", "commonpurse-export-*")
	if err != nil {
		respond.Error(w, err)
		return "", nil, nil, false
	}

	community, items, err := h.svc.Export(r.Context(), id, tmpDir)
	if err != nil {
		os.RemoveAll(tmpDir)
		respond.Error(w, err)

		return "", nil, nil, false
	}

	return tmpDir, community, items, true
}

func (h *Handler) metadata(w http.ResponseWriter, r *http.Request) {
	tmpDir, community, items, ok := h.run(w, r)
	if !ok {
		return
	}
	defer os.RemoveAll(tmpDir)

	txResponses := make([]transactionResponse, 0, len(items))
	for _, item := range items {
		txResponses = append(txResponses, toTransactionResponse(item))
	}

	respond.JSON(w, http.StatusOK, exportMetadataResponse{
		CommunityID:  community.ID,
		Transactions: txResponses,
		Summary:      h.svc.GenerateSummary(community, items),
	})
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	tmpDir, community, items, ok := h.run(w, r)
	if !ok {
		return
	}
	defer os.RemoveAll(tmpDir)

	summary := h.svc.GenerateSummary(community, items)
	if err := os.WriteFile(filepath.Join(tmpDir, "summary.txt"), []byte(summary), 0o644); err != nil {
		respond.Error(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=\"audit_%s_%s.zip\"", community.ID.String()[:8], time.Now().Format("20060102")))

	zipWriter := zip.NewWriter(w)
	defer zipWriter.Close()

	err := filepath.Walk(tmpDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}

		relPath, _ := filepath.Rel(tmpDir, path)

		zf, err := zipWriter.Create(relPath)
		if err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(zf, f)

		return err
	})
	if err != nil {
		slog.Error("failed to create zip", "error", err)
	}
}
