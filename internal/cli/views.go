package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/commonpurse/commonpurse/internal/activity"
	"github.com/commonpurse/commonpurse/internal/treasury"
)

type communityView struct {
	ID                uuid.UUID       `json:"id"`
	Name              string          `json:"name"`
	TreasuryAddress   string          `json:"treasury_address"`
	InitialBalance    decimal.Decimal `json:"initial_balance"`
	CurrentBalance    decimal.Decimal `json:"current_balance"`
	ApprovalThreshold int             `json:"approval_threshold"`
	Leaders           []string        `json:"leaders,omitempty"`
	LeaderCount       int             `json:"leader_count"`
	MemberCount       int             `json:"member_count"`
	CreatedAt         time.Time       `json:"created_at"`
}

func newCommunityView(c *treasury.Community) communityView {
	v := communityView{
		ID:                c.ID,
		Name:              c.Name,
		TreasuryAddress:   c.TreasuryAddress,
		InitialBalance:    c.InitialBalance,
		CurrentBalance:    c.CurrentBalance,
		ApprovalThreshold: c.ApprovalThreshold,
		LeaderCount:       c.LeaderCount,
		MemberCount:       c.MemberCount,
		CreatedAt:         c.CreatedAt,
	}

	for _, l := range c.Leaders {
		v.Leaders = append(v.Leaders, l.WalletAddress)
	}

	return v
}

func (v communityView) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s (%s)\n", v.Name, v.ID)
	fmt.Fprintf(&sb, "  treasury:  %s\n", v.TreasuryAddress)
	fmt.Fprintf(&sb, "  balance:   %s of %s\n", v.CurrentBalance.StringFixed(2), v.InitialBalance.StringFixed(2))
	fmt.Fprintf(&sb, "  leaders:   %d", v.LeaderCount)

	if len(v.Leaders) > 0 {
		fmt.Fprintf(&sb, " (%s)", strings.Join(v.Leaders, ", "))
	}

	fmt.Fprintf(&sb, "\n  members:   %d", v.MemberCount)

	return sb.String()
}

type communityList []communityView

func (l communityList) String() string {
	if len(l) == 0 {
		return "no communities"
	}

	lines := make([]string, 0, len(l))
	for _, c := range l {
		lines = append(lines, fmt.Sprintf("%s  %-24s %12s", c.ID, c.Name, c.CurrentBalance.StringFixed(2)))
	}

	return strings.Join(lines, "\n")
}

type proposalView struct {
	ID        uuid.UUID       `json:"id"`
	Title     string          `json:"title"`
	Amount    decimal.Decimal `json:"amount"`
	Recipient string          `json:"recipient_address"`
	Status    treasury.Status `json:"status"`
	Approvals []string        `json:"approvals"`
}

func newProposalView(p *treasury.Proposal) proposalView {
	v := proposalView{
		ID:        p.ID,
		Title:     p.Title,
		Amount:    p.Amount,
		Recipient: p.RecipientAddress,
		Status:    p.Status,
		Approvals: make([]string, 0, len(p.Approvals)),
	}

	for _, a := range p.Approvals {
		v.Approvals = append(v.Approvals, a.LeaderAddress)
	}

	return v
}

type proposalList []proposalView

func (l proposalList) String() string {
	if len(l) == 0 {
		return "no proposals"
	}

	lines := make([]string, 0, len(l))
	for _, p := range l {
		lines = append(lines, fmt.Sprintf("%s  %-9s %12s  %s (%d approvals)",
			p.ID, p.Status, p.Amount.StringFixed(2), p.Title, len(p.Approvals)))
	}

	return strings.Join(lines, "\n")
}

type approvalView struct {
	ProposalID    uuid.UUID       `json:"proposal_id"`
	ApprovalCount int             `json:"approval_count"`
	TotalLeaders  int             `json:"total_leaders"`
	Status        treasury.Status `json:"status"`
}

func (v approvalView) String() string {
	return fmt.Sprintf("proposal %s: %d/%d approvals, %s", v.ProposalID, v.ApprovalCount, v.TotalLeaders, v.Status)
}

type transactionView struct {
	ID             uuid.UUID       `json:"id"`
	ProposalID     uuid.UUID       `json:"proposal_id"`
	Amount         decimal.Decimal `json:"amount"`
	Recipient      string          `json:"recipient_address"`
	ExecutedBy     string          `json:"executed_by"`
	SettlementHash string          `json:"settlement_hash,omitempty"`
	ExecutedAt     time.Time       `json:"executed_at"`
}

func (v transactionView) String() string {
	return fmt.Sprintf("released %s to %s (transaction %s)", v.Amount.StringFixed(2), v.Recipient, v.ID)
}

type activityView struct {
	ID          uuid.UUID             `json:"id"`
	CommunityID uuid.UUID             `json:"community_id"`
	Kind        treasury.ActivityKind `json:"kind"`
	Actor       string                `json:"actor"`
	Summary     string                `json:"summary"`
	CreatedAt   time.Time             `json:"created_at"`
}

type activityList []activityView

func newActivityList(activities []*treasury.Activity) activityList {
	l := make(activityList, 0, len(activities))
	for _, a := range activities {
		l = append(l, activityView{
			ID:          a.ID,
			CommunityID: a.CommunityID,
			Kind:        a.Kind,
			Actor:       a.Actor,
			Summary:     activity.Summary(a),
			CreatedAt:   a.CreatedAt,
		})
	}

	return l
}

func (l activityList) String() string {
	if len(l) == 0 {
		return "no activity"
	}

	lines := make([]string, 0, len(l))
	for _, a := range l {
		lines = append(lines, fmt.Sprintf("%s  %s", a.CreatedAt.Format(time.DateTime), a.Summary))
	}

	return strings.Join(lines, "\n")
}
