package treasury

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultActivityLimit caps ListActivities when the filter leaves Limit unset.
const DefaultActivityLimit = 100

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=treasury
type Repository interface {
	Begin(ctx context.Context) (Tx, error)

	GetCommunity(ctx context.Context, id uuid.UUID) (*Community, error)
	ListCommunities(ctx context.Context, filter CommunityFilter) ([]*Community, error)
	GetProposal(ctx context.Context, id uuid.UUID) (*Proposal, error)
	ListProposals(ctx context.Context, filter ProposalFilter) ([]*Proposal, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]*Transaction, error)
	ListActivities(ctx context.Context, filter ActivityFilter) ([]*Activity, error)

	Ping(ctx context.Context) error
}

// Tx is one atomic unit of work against the ledger. Nothing written through a
// Tx is visible until Commit; Rollback after Commit is a no-op.
type Tx interface {
	CreateCommunity(ctx context.Context, c *Community) error
	GetCommunity(ctx context.Context, id uuid.UUID) (*Community, error)
	AddLeader(ctx context.Context, l *Leader) error
	AddMember(ctx context.Context, m *Member) error
	IsLeader(ctx context.Context, communityID uuid.UUID, wallet string) (bool, error)
	CountLeaders(ctx context.Context, communityID uuid.UUID) (int, error)

	// DebitBalance fails with ErrInsufficientFunds when the balance is below amount.
	DebitBalance(ctx context.Context, communityID uuid.UUID, amount decimal.Decimal) error
	CreditBalance(ctx context.Context, communityID uuid.UUID, amount decimal.Decimal) error

	CreateProposal(ctx context.Context, p *Proposal) error
	// LockProposal loads a proposal and holds it against concurrent writers
	// until the Tx ends.
	LockProposal(ctx context.Context, id uuid.UUID) (*Proposal, error)
	// TransitionProposal moves a proposal from one status to another and
	// fails with ErrInvalidState if it is no longer in from.
	TransitionProposal(ctx context.Context, id uuid.UUID, from, to Status, at time.Time) error
	SetProofRef(ctx context.Context, id uuid.UUID, ref string) error

	AddApproval(ctx context.Context, a *Approval) error
	CountApprovals(ctx context.Context, proposalID uuid.UUID) (int, error)

	CreateTransaction(ctx context.Context, t *Transaction) error
	RecordActivity(ctx context.Context, a *Activity) error

	Commit() error
	Rollback() error
}

// Notifier receives activities after they are committed. Failures are logged
// and never undo the operation.
type Notifier interface {
	Publish(ctx context.Context, a *Activity) error
}

type CommunityFilter struct {
	CreatedBy string
	MemberOf  string
}

type ProposalFilter struct {
	CommunityID *uuid.UUID
	Status      *Status
}

type TransactionFilter struct {
	CommunityID *uuid.UUID
}

type ActivityFilter struct {
	CommunityID *uuid.UUID
	Limit       int
}

type Service struct {
	repo     Repository
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Service) CreateCommunity(ctx context.Context, req CreateCommunityRequest) (*Community, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	if req.ApprovalThreshold < len(req.Leaders) {
		s.logger.Warn("approval threshold is informational, every leader must approve",
			"threshold", req.ApprovalThreshold, "leaders", len(req.Leaders))
	}

	now := s.now()
	c := &Community{
		ID:                uuid.New(),
		Name:              req.Name,
		Description:       req.Description,
		TreasuryAddress:   req.TreasuryAddress,
		InitialBalance:    req.InitialBalance,
		CurrentBalance:    req.InitialBalance,
		ApprovalThreshold: req.ApprovalThreshold,
		CreatedBy:         req.CreatedBy,
		CreatedAt:         now,
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create community: %w", err)
	}
	defer tx.Rollback()

	if err := tx.CreateCommunity(ctx, c); err != nil {
		return nil, fmt.Errorf("create community: %w", err)
	}

	leaders := make(map[string]struct{}, len(req.Leaders))

	for _, in := range req.Leaders {
		l := &Leader{CommunityID: c.ID, WalletAddress: in.WalletAddress, Name: in.Name, AddedAt: now}
		if err := tx.AddLeader(ctx, l); err != nil {
			return nil, fmt.Errorf("add leader %s: %w", in.WalletAddress, err)
		}

		leaders[in.WalletAddress] = struct{}{}
		c.Leaders = append(c.Leaders, l)
	}

	seen := make(map[string]struct{}, len(req.Members)+1)

	for _, addr := range append([]string{req.CreatedBy}, req.Members...) {
		if _, ok := leaders[addr]; ok {
			continue
		}

		if _, ok := seen[addr]; ok {
			continue
		}

		seen[addr] = struct{}{}

		m := &Member{CommunityID: c.ID, WalletAddress: addr, JoinedAt: now}
		if err := tx.AddMember(ctx, m); err != nil {
			return nil, fmt.Errorf("add member %s: %w", addr, err)
		}

		c.Members = append(c.Members, m)
	}

	c.LeaderCount = len(c.Leaders)
	c.MemberCount = len(c.Members)

	a := &Activity{
		ID:          uuid.New(),
		CommunityID: c.ID,
		Kind:        KindCommunityCreated,
		Actor:       c.CreatedBy,
		Amount:      decimal.NewNullDecimal(c.InitialBalance),
		Metadata:    map[string]string{"name": c.Name},
		CreatedAt:   now,
	}
	if err := tx.RecordActivity(ctx, a); err != nil {
		return nil, fmt.Errorf("record activity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create community: %w", err)
	}

	s.notify(ctx, a)

	return c, nil
}

func (s *Service) AddMember(ctx context.Context, req AddMemberRequest) error {
	if err := req.normalize(); err != nil {
		return err
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin add member: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.GetCommunity(ctx, req.CommunityID); err != nil {
		return err
	}

	now := s.now()

	if req.IsLeader {
		err = tx.AddLeader(ctx, &Leader{
			CommunityID:   req.CommunityID,
			WalletAddress: req.WalletAddress,
			Name:          req.Name,
			AddedAt:       now,
		})
	} else {
		err = tx.AddMember(ctx, &Member{
			CommunityID:   req.CommunityID,
			WalletAddress: req.WalletAddress,
			JoinedAt:      now,
		})
	}

	if err != nil {
		if errors.Is(err, ErrConflict) {
			role := "member"
			if req.IsLeader {
				role = "leader"
			}

			return &Error{Kind: KindConflict, Message: fmt.Sprintf("%s is already a %s", req.WalletAddress, role), Err: err}
		}

		return fmt.Errorf("add member: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit add member: %w", err)
	}

	return nil
}

func (s *Service) CreateProposal(ctx context.Context, req CreateProposalRequest) (*Proposal, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create proposal: %w", err)
	}
	defer tx.Rollback()

	c, err := tx.GetCommunity(ctx, req.CommunityID)
	if err != nil {
		return nil, err
	}

	if req.Amount.GreaterThan(c.CurrentBalance) {
		return nil, newError(KindInsufficientFunds, "requested %s exceeds treasury balance %s",
			req.Amount, c.CurrentBalance)
	}

	now := s.now()
	p := &Proposal{
		ID:               uuid.New(),
		CommunityID:      c.ID,
		CommunityName:    c.Name,
		Title:            req.Title,
		Description:      req.Description,
		Amount:           req.Amount,
		RecipientAddress: req.RecipientAddress,
		Status:           StatusPending,
		Category:         req.Category,
		ProofRef:         req.ProofRef,
		CreatedBy:        req.CreatedBy,
		CreatedAt:        now,
	}

	if err := tx.CreateProposal(ctx, p); err != nil {
		return nil, fmt.Errorf("create proposal: %w", err)
	}

	a := &Activity{
		ID:          uuid.New(),
		CommunityID: c.ID,
		ProposalID:  &p.ID,
		Kind:        KindProposalCreated,
		Actor:       p.CreatedBy,
		Amount:      decimal.NewNullDecimal(p.Amount),
		Metadata:    map[string]string{"title": p.Title},
		CreatedAt:   now,
	}
	if err := tx.RecordActivity(ctx, a); err != nil {
		return nil, fmt.Errorf("record activity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create proposal: %w", err)
	}

	s.notify(ctx, a)

	return p, nil
}

// ApproveProposal records one leader's approval and flips the proposal to
// approved once every current leader of the community has approved.
func (s *Service) ApproveProposal(ctx context.Context, req ApproveProposalRequest) (*ApprovalResult, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin approve proposal: %w", err)
	}
	defer tx.Rollback()

	p, err := tx.LockProposal(ctx, req.ProposalID)
	if err != nil {
		return nil, err
	}

	if p.Status != StatusPending {
		return nil, newError(KindInvalidState, "proposal is %s, only pending proposals can be approved", p.Status)
	}

	ok, err := tx.IsLeader(ctx, p.CommunityID, req.LeaderAddress)
	if err != nil {
		return nil, fmt.Errorf("check leader: %w", err)
	}

	if !ok {
		return nil, newError(KindAuthorization, "%s is not a leader of this community", req.LeaderAddress)
	}

	now := s.now()

	err = tx.AddApproval(ctx, &Approval{ProposalID: p.ID, LeaderAddress: req.LeaderAddress, ApprovedAt: now})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, &Error{Kind: KindConflict, Message: "leader has already approved this proposal", Err: err}
		}

		return nil, fmt.Errorf("add approval: %w", err)
	}

	approvals, err := tx.CountApprovals(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("count approvals: %w", err)
	}

	leaders, err := tx.CountLeaders(ctx, p.CommunityID)
	if err != nil {
		return nil, fmt.Errorf("count leaders: %w", err)
	}

	a := &Activity{
		ID:          uuid.New(),
		CommunityID: p.CommunityID,
		ProposalID:  &p.ID,
		Kind:        KindProposalApproved,
		Actor:       req.LeaderAddress,
		Amount:      decimal.NewNullDecimal(p.Amount),
		Metadata: map[string]string{
			"approvals": fmt.Sprint(approvals),
			"leaders":   fmt.Sprint(leaders),
		},
		CreatedAt: now,
	}
	if err := tx.RecordActivity(ctx, a); err != nil {
		return nil, fmt.Errorf("record activity: %w", err)
	}

	status := StatusPending

	if approvals >= leaders {
		if err := tx.TransitionProposal(ctx, p.ID, StatusPending, StatusApproved, now); err != nil {
			return nil, err
		}

		status = StatusApproved
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit approve proposal: %w", err)
	}

	s.notify(ctx, a)

	return &ApprovalResult{
		ProposalID:    p.ID,
		ApprovalCount: approvals,
		TotalLeaders:  leaders,
		Status:        status,
	}, nil
}

// ExecuteProposal releases an approved proposal's funds. It is the only
// operation that lowers a community balance.
func (s *Service) ExecuteProposal(ctx context.Context, req ExecuteProposalRequest) (*Transaction, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin execute proposal: %w", err)
	}
	defer tx.Rollback()

	p, err := tx.LockProposal(ctx, req.ProposalID)
	if err != nil {
		return nil, err
	}

	if p.Status != StatusApproved {
		return nil, newError(KindInvalidState, "proposal is %s, only approved proposals can be executed", p.Status)
	}

	approvals, err := tx.CountApprovals(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("count approvals: %w", err)
	}

	leaders, err := tx.CountLeaders(ctx, p.CommunityID)
	if err != nil {
		return nil, fmt.Errorf("count leaders: %w", err)
	}

	// The leader roster can grow after approval.
	if approvals < leaders {
		return nil, newError(KindInvalidState, "proposal has %d of %d required approvals", approvals, leaders)
	}

	now := s.now()

	if err := tx.TransitionProposal(ctx, p.ID, StatusApproved, StatusExecuted, now); err != nil {
		return nil, err
	}

	if err := tx.DebitBalance(ctx, p.CommunityID, p.Amount); err != nil {
		return nil, err
	}

	t := &Transaction{
		ID:               uuid.New(),
		ProposalID:       p.ID,
		CommunityID:      p.CommunityID,
		Amount:           p.Amount,
		RecipientAddress: p.RecipientAddress,
		ExecutedBy:       req.ExecutedBy,
		SettlementHash:   req.SettlementHash,
		ExecutedAt:       now,
		ProposalTitle:    p.Title,
		ProofRef:         p.ProofRef,
	}
	if err := tx.CreateTransaction(ctx, t); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	meta := map[string]string{"recipient": p.RecipientAddress}
	if t.SettlementHash != "" {
		meta["settlement_hash"] = t.SettlementHash
	}

	a := &Activity{
		ID:          uuid.New(),
		CommunityID: p.CommunityID,
		ProposalID:  &p.ID,
		Kind:        KindProposalExecuted,
		Actor:       req.ExecutedBy,
		Amount:      decimal.NewNullDecimal(p.Amount),
		Metadata:    meta,
		CreatedAt:   now,
	}
	if err := tx.RecordActivity(ctx, a); err != nil {
		return nil, fmt.Errorf("record activity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit execute proposal: %w", err)
	}

	s.notify(ctx, a)

	return t, nil
}

// FundTreasury credits a community balance.
func (s *Service) FundTreasury(ctx context.Context, req FundTreasuryRequest) error {
	if err := req.normalize(); err != nil {
		return err
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin fund treasury: %w", err)
	}
	defer tx.Rollback()

	if err := tx.CreditBalance(ctx, req.CommunityID, req.Amount); err != nil {
		return err
	}

	a := &Activity{
		ID:          uuid.New(),
		CommunityID: req.CommunityID,
		Kind:        KindTreasuryFunded,
		Actor:       req.FundedBy,
		Amount:      decimal.NewNullDecimal(req.Amount),
		CreatedAt:   s.now(),
	}
	if err := tx.RecordActivity(ctx, a); err != nil {
		return fmt.Errorf("record activity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit fund treasury: %w", err)
	}

	s.notify(ctx, a)

	return nil
}

// AttachProof links an opaque proof reference to a proposal. Only the
// proposal's creator or a community leader may attach it.
func (s *Service) AttachProof(ctx context.Context, req AttachProofRequest) error {
	if err := req.normalize(); err != nil {
		return err
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin attach proof: %w", err)
	}
	defer tx.Rollback()

	p, err := tx.LockProposal(ctx, req.ProposalID)
	if err != nil {
		return err
	}

	if p.Status == StatusRejected {
		return newError(KindInvalidState, "proof cannot be attached to a rejected proposal")
	}

	if p.CreatedBy != req.Actor {
		ok, err := tx.IsLeader(ctx, p.CommunityID, req.Actor)
		if err != nil {
			return fmt.Errorf("check leader: %w", err)
		}

		if !ok {
			return newError(KindAuthorization, "only the proposer or a leader can attach proof")
		}
	}

	if err := tx.SetProofRef(ctx, p.ID, req.ProofRef); err != nil {
		return fmt.Errorf("set proof: %w", err)
	}

	a := &Activity{
		ID:          uuid.New(),
		CommunityID: p.CommunityID,
		ProposalID:  &p.ID,
		Kind:        KindProofAttached,
		Actor:       req.Actor,
		Metadata:    map[string]string{"proof_ref": req.ProofRef},
		CreatedAt:   s.now(),
	}
	if err := tx.RecordActivity(ctx, a); err != nil {
		return fmt.Errorf("record activity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attach proof: %w", err)
	}

	s.notify(ctx, a)

	return nil
}

func (s *Service) GetCommunity(ctx context.Context, id uuid.UUID) (*Community, error) {
	return s.repo.GetCommunity(ctx, id)
}

func (s *Service) ListCommunities(ctx context.Context, filter CommunityFilter) ([]*Community, error) {
	return s.repo.ListCommunities(ctx, filter)
}

func (s *Service) GetProposal(ctx context.Context, id uuid.UUID) (*Proposal, error) {
	return s.repo.GetProposal(ctx, id)
}

func (s *Service) ListProposals(ctx context.Context, filter ProposalFilter) ([]*Proposal, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, newError(KindValidation, "unknown status %q", *filter.Status)
	}

	return s.repo.ListProposals(ctx, filter)
}

func (s *Service) ListTransactions(ctx context.Context, filter TransactionFilter) ([]*Transaction, error) {
	return s.repo.ListTransactions(ctx, filter)
}

func (s *Service) ListActivities(ctx context.Context, filter ActivityFilter) ([]*Activity, error) {
	if filter.Limit <= 0 || filter.Limit > DefaultActivityLimit {
		filter.Limit = DefaultActivityLimit
	}

	return s.repo.ListActivities(ctx, filter)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Service) notify(ctx context.Context, a *Activity) {
	if s.notifier == nil {
		return
	}

	if err := s.notifier.Publish(ctx, a); err != nil {
		s.logger.Warn("failed to publish activity", "kind", a.Kind, "community_id", a.CommunityID, "error", err)
	}
}
