package treasury

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
)

var (
	validate = validator.New(validator.WithRequiredStructEnabled())
	policy   = bluemonday.StrictPolicy()
)

type LeaderInput struct {
	WalletAddress string `json:"wallet_address" validate:"required,max=128"`
	Name          string `json:"name" validate:"max=100"`
}

type CreateCommunityRequest struct {
	Name              string          `validate:"required,max=200"`
	Description       string          `validate:"max=2000"`
	TreasuryAddress   string          `validate:"required,max=128"`
	InitialBalance    decimal.Decimal `validate:"-"`
	ApprovalThreshold int             `validate:"gte=1"`
	CreatedBy         string          `validate:"required,max=128"`
	Leaders           []LeaderInput   `validate:"required,min=1,dive"`
	Members           []string        `validate:"dive,required,max=128"`
}

type AddMemberRequest struct {
	CommunityID   uuid.UUID `validate:"required"`
	WalletAddress string    `validate:"required,max=128"`
	Name          string    `validate:"max=100"`
	IsLeader      bool
}

type CreateProposalRequest struct {
	CommunityID      uuid.UUID       `validate:"required"`
	Title            string          `validate:"required,max=200"`
	Description      string          `validate:"required,max=5000"`
	Amount           decimal.Decimal `validate:"-"`
	RecipientAddress string          `validate:"required,max=128"`
	CreatedBy        string          `validate:"required,max=128"`
	Category         string          `validate:"max=64"`
	ProofRef         string          `validate:"omitempty,max=2048"`
}

type ApproveProposalRequest struct {
	ProposalID    uuid.UUID `validate:"required"`
	LeaderAddress string    `validate:"required,max=128"`
}

type ExecuteProposalRequest struct {
	ProposalID     uuid.UUID `validate:"required"`
	ExecutedBy     string    `validate:"required,max=128"`
	SettlementHash string    `validate:"max=256"`
}

type FundTreasuryRequest struct {
	CommunityID uuid.UUID       `validate:"required"`
	Amount      decimal.Decimal `validate:"-"`
	FundedBy    string          `validate:"required,max=128"`
}

type AttachProofRequest struct {
	ProposalID uuid.UUID `validate:"required"`
	ProofRef   string    `validate:"required,max=2048"`
	Actor      string    `validate:"required,max=128"`
}

func (r *CreateCommunityRequest) normalize() error {
	r.Name = cleanText(r.Name)
	r.Description = cleanText(r.Description)
	r.TreasuryAddress = strings.TrimSpace(r.TreasuryAddress)
	r.CreatedBy = strings.TrimSpace(r.CreatedBy)

	for i := range r.Leaders {
		r.Leaders[i].WalletAddress = strings.TrimSpace(r.Leaders[i].WalletAddress)
		r.Leaders[i].Name = cleanText(r.Leaders[i].Name)
	}

	for i := range r.Members {
		r.Members[i] = strings.TrimSpace(r.Members[i])
	}

	if err := check(r); err != nil {
		return err
	}

	if r.InitialBalance.IsNegative() {
		return newError(KindValidation, "initial balance must not be negative")
	}

	if r.ApprovalThreshold > len(r.Leaders) {
		return newError(KindValidation, "approval threshold %d exceeds number of leaders %d",
			r.ApprovalThreshold, len(r.Leaders))
	}

	return nil
}

func (r *AddMemberRequest) normalize() error {
	r.WalletAddress = strings.TrimSpace(r.WalletAddress)
	r.Name = cleanText(r.Name)

	return check(r)
}

func (r *CreateProposalRequest) normalize() error {
	r.Title = cleanText(r.Title)
	r.Description = cleanText(r.Description)
	r.RecipientAddress = strings.TrimSpace(r.RecipientAddress)
	r.CreatedBy = strings.TrimSpace(r.CreatedBy)
	r.Category = cleanText(r.Category)
	r.ProofRef = strings.TrimSpace(r.ProofRef)

	if err := check(r); err != nil {
		return err
	}

	if !r.Amount.IsPositive() {
		return newError(KindValidation, "amount must be greater than zero")
	}

	return nil
}

func (r *ApproveProposalRequest) normalize() error {
	r.LeaderAddress = strings.TrimSpace(r.LeaderAddress)
	return check(r)
}

func (r *ExecuteProposalRequest) normalize() error {
	r.ExecutedBy = strings.TrimSpace(r.ExecutedBy)
	r.SettlementHash = strings.TrimSpace(r.SettlementHash)

	return check(r)
}

func (r *FundTreasuryRequest) normalize() error {
	r.FundedBy = strings.TrimSpace(r.FundedBy)

	if err := check(r); err != nil {
		return err
	}

	if !r.Amount.IsPositive() {
		return newError(KindValidation, "amount must be greater than zero")
	}

	return nil
}

func (r *AttachProofRequest) normalize() error {
	r.ProofRef = strings.TrimSpace(r.ProofRef)
	r.Actor = strings.TrimSpace(r.Actor)

	return check(r)
}

// cleanText strips markup from user supplied text.
func cleanText(s string) string {
	return strings.TrimSpace(html.UnescapeString(policy.Sanitize(s)))
}

func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &Error{Kind: KindValidation, Message: "invalid request", Err: err}
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
	}

	return newError(KindValidation, "invalid fields: %s", strings.Join(fields, ", "))
}
