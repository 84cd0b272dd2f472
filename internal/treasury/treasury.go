package treasury

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the lifecycle state of a proposal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExecuted Status = "executed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusExecuted:
		return true
	}

	return false
}

// ActivityKind names the state change an activity records.
type ActivityKind string

const (
	KindCommunityCreated ActivityKind = "community_created"
	KindProposalCreated  ActivityKind = "proposal_created"
	KindProposalApproved ActivityKind = "proposal_approved"
	KindProposalExecuted ActivityKind = "proposal_executed"
	KindTreasuryFunded   ActivityKind = "treasury_funded"
	KindProofAttached    ActivityKind = "proof_attached"
)

// Community is a group sharing one treasury.
//
// CurrentBalance only decreases through an executed proposal and only
// increases through FundTreasury.
type Community struct {
	ID                uuid.UUID
	Name              string
	Description       string
	TreasuryAddress   string
	InitialBalance    decimal.Decimal
	CurrentBalance    decimal.Decimal
	ApprovalThreshold int // Informational; execution always requires every leader.
	CreatedBy         string
	CreatedAt         time.Time

	Leaders     []*Leader // Loaded on Get
	Members     []*Member // Loaded on Get
	LeaderCount int
	MemberCount int
}

type Leader struct {
	CommunityID   uuid.UUID
	WalletAddress string
	Name          string
	AddedAt       time.Time
}

type Member struct {
	CommunityID   uuid.UUID
	WalletAddress string
	JoinedAt      time.Time
}

// Proposal is a request to disburse funds from a community treasury.
type Proposal struct {
	ID               uuid.UUID
	CommunityID      uuid.UUID
	CommunityName    string // Loaded via JOIN
	Title            string
	Description      string
	Amount           decimal.Decimal
	RecipientAddress string
	Status           Status
	Category         string
	ProofRef         string
	CreatedBy        string
	CreatedAt        time.Time
	ExecutedAt       *time.Time

	Approvals []*Approval
}

type Approval struct {
	ProposalID    uuid.UUID
	LeaderAddress string
	ApprovedAt    time.Time
}

// Transaction is the immutable record of an executed proposal.
type Transaction struct {
	ID               uuid.UUID
	ProposalID       uuid.UUID
	CommunityID      uuid.UUID
	Amount           decimal.Decimal
	RecipientAddress string
	ExecutedBy       string
	SettlementHash   string
	ExecutedAt       time.Time

	ProposalTitle string // Loaded via JOIN
	ProofRef      string // Loaded via JOIN
}

// Activity is an append-only audit entry.
type Activity struct {
	ID          uuid.UUID
	CommunityID uuid.UUID
	ProposalID  *uuid.UUID
	Kind        ActivityKind
	Actor       string
	Amount      decimal.NullDecimal
	Metadata    map[string]string
	CreatedAt   time.Time

	CommunityName string // Loaded via JOIN
	ProposalTitle string // Loaded via JOIN
}

// ApprovalResult reports the tally after an approval is recorded.
type ApprovalResult struct {
	ProposalID    uuid.UUID
	ApprovalCount int
	TotalLeaders  int
	Status        Status
}
