package transaction

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/commonpurse/commonpurse/internal/treasury"
)

type transactionResponse struct {
	ID               uuid.UUID       `json:"id"`
	ProposalID       uuid.UUID       `json:"proposal_id"`
	ProposalTitle    string          `json:"proposal_title"`
	CommunityID      uuid.UUID       `json:"community_id"`
	Amount           decimal.Decimal `json:"amount"`
	RecipientAddress string          `json:"recipient_address"`
	ExecutedBy       string          `json:"executed_by"`
	SettlementHash   string          `json:"settlement_hash,omitempty"`
	ProofRef         string          `json:"proof_ref,omitempty"`
	ExecutedAt       time.Time       `json:"executed_at"`
}

func toResponse(tx *treasury.Transaction) transactionResponse {
	return transactionResponse{
		ID:               tx.ID,
		ProposalID:       tx.ProposalID,
		ProposalTitle:    tx.ProposalTitle,
		CommunityID:      tx.CommunityID,
		Amount:           tx.Amount,
		RecipientAddress: tx.RecipientAddress,
		ExecutedBy:       tx.ExecutedBy,
		SettlementHash:   tx.SettlementHash,
		ProofRef:         tx.ProofRef,
		ExecutedAt:       tx.ExecutedAt,
	}
}

func toResponseList(txs []*treasury.Transaction) []transactionResponse {
	resp := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		resp = append(resp, toResponse(tx))
	}

	return resp
}
