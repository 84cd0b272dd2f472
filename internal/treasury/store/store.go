package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/commonpurse/commonpurse/internal/database"
	"github.com/commonpurse/commonpurse/internal/treasury"
)

type Store struct {
	db        *sql.DB
	forUpdate string
}

// New returns a ledger store for db. Queries use $N placeholders, which both
// drivers accept as long as each first appears in ascending order.
func New(db *sql.DB, driver database.Driver) *Store {
	s := &Store{db: db}

	// SQLite serializes writers on its single connection, so only
	// PostgreSQL needs explicit row locks.
	if driver == database.Postgres {
		s.forUpdate = " FOR UPDATE"
	}

	return s
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const selectCommunityColumns = `
	c.id, c.name, c.description, c.treasury_address, c.initial_balance, c.current_balance,
	c.approval_threshold, c.created_by, c.created_at
`

func scanCommunity(s scanner, extra ...any) (*treasury.Community, error) {
	var c treasury.Community

	dest := []any{
		&c.ID, &c.Name, &c.Description, &c.TreasuryAddress, &c.InitialBalance, &c.CurrentBalance,
		&c.ApprovalThreshold, &c.CreatedBy, &c.CreatedAt,
	}

	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	return &c, nil
}

const selectProposalColumns = `
	p.id, p.community_id, c.name, p.title, p.description, p.amount, p.recipient_address,
	p.status, p.category, p.proof_ref, p.created_by, p.created_at, p.executed_at
`

// scanProposal expects selectProposalColumns, joined against communities as c.
func scanProposal(s scanner) (*treasury.Proposal, error) {
	var p treasury.Proposal

	var status string

	var executedAt sql.NullTime

	if err := s.Scan(
		&p.ID, &p.CommunityID, &p.CommunityName, &p.Title, &p.Description, &p.Amount, &p.RecipientAddress,
		&status, &p.Category, &p.ProofRef, &p.CreatedBy, &p.CreatedAt, &executedAt,
	); err != nil {
		return nil, err
	}

	p.Status = treasury.Status(status)

	if executedAt.Valid {
		p.ExecutedAt = new(executedAt.Time)
	}

	return &p, nil
}

func getCommunity(ctx context.Context, q querier, id uuid.UUID) (*treasury.Community, error) {
	query := `SELECT ` + selectCommunityColumns + `,
			(SELECT COUNT(*) FROM community_leaders l WHERE l.community_id = c.id),
			(SELECT COUNT(*) FROM community_members m WHERE m.community_id = c.id)
		FROM communities c
		WHERE c.id = $1`

	var leaders, members int

	c, err := scanCommunity(q.QueryRowContext(ctx, query, id), &leaders, &members)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, treasury.NotFound("community")
		}

		return nil, fmt.Errorf("getting community: %w", err)
	}

	c.LeaderCount = leaders
	c.MemberCount = members

	return c, nil
}

func getProposal(ctx context.Context, q querier, id uuid.UUID, suffix string) (*treasury.Proposal, error) {
	query := `SELECT ` + selectProposalColumns + `
		FROM proposals p
		JOIN communities c ON c.id = p.community_id
		WHERE p.id = $1` + suffix

	p, err := scanProposal(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, treasury.NotFound("proposal")
		}

		return nil, fmt.Errorf("getting proposal: %w", err)
	}

	return p, nil
}

func (s *Store) GetCommunity(ctx context.Context, id uuid.UUID) (*treasury.Community, error) {
	c, err := getCommunity(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	leaders, err := s.db.QueryContext(ctx, `
		SELECT community_id, wallet_address, name, added_at
		FROM community_leaders
		WHERE community_id = $1
		ORDER BY added_at ASC, wallet_address ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("listing leaders: %w", err)
	}
	defer leaders.Close()

	for leaders.Next() {
		var l treasury.Leader
		if err := leaders.Scan(&l.CommunityID, &l.WalletAddress, &l.Name, &l.AddedAt); err != nil {
			return nil, fmt.Errorf("scanning leader: %w", err)
		}

		c.Leaders = append(c.Leaders, &l)
	}

	if err := leaders.Err(); err != nil {
		return nil, fmt.Errorf("iterating leaders: %w", err)
	}

	leaders.Close()

	members, err := s.db.QueryContext(ctx, `
		SELECT community_id, wallet_address, joined_at
		FROM community_members
		WHERE community_id = $1
		ORDER BY joined_at ASC, wallet_address ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	defer members.Close()

	for members.Next() {
		var m treasury.Member
		if err := members.Scan(&m.CommunityID, &m.WalletAddress, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scanning member: %w", err)
		}

		c.Members = append(c.Members, &m)
	}

	if err := members.Err(); err != nil {
		return nil, fmt.Errorf("iterating members: %w", err)
	}

	return c, nil
}

func (s *Store) ListCommunities(ctx context.Context, filter treasury.CommunityFilter) ([]*treasury.Community, error) {
	query := `SELECT ` + selectCommunityColumns + `,
			(SELECT COUNT(*) FROM community_leaders l WHERE l.community_id = c.id),
			(SELECT COUNT(*) FROM community_members m WHERE m.community_id = c.id)
		FROM communities c
		WHERE 1 = 1`

	var args []any

	argIdx := 1

	if filter.CreatedBy != "" {
		query += fmt.Sprintf(" AND c.created_by = $%d", argIdx)

		args = append(args, filter.CreatedBy)
		argIdx++
	}

	if filter.MemberOf != "" {
		query += fmt.Sprintf(` AND (
			EXISTS (SELECT 1 FROM community_members m WHERE m.community_id = c.id AND m.wallet_address = $%d)
			OR EXISTS (SELECT 1 FROM community_leaders l WHERE l.community_id = c.id AND l.wallet_address = $%d))`,
			argIdx, argIdx)

		args = append(args, filter.MemberOf)
		argIdx++
	}

	query += " ORDER BY c.created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing communities: %w", err)
	}
	defer rows.Close()

	var communities []*treasury.Community

	for rows.Next() {
		var leaders, members int

		c, err := scanCommunity(rows, &leaders, &members)
		if err != nil {
			return nil, fmt.Errorf("scanning community: %w", err)
		}

		c.LeaderCount = leaders
		c.MemberCount = members
		communities = append(communities, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating communities: %w", err)
	}

	return communities, nil
}

func (s *Store) GetProposal(ctx context.Context, id uuid.UUID) (*treasury.Proposal, error) {
	p, err := getProposal(ctx, s.db, id, "")
	if err != nil {
		return nil, err
	}

	if err := s.loadApprovals(ctx, []*treasury.Proposal{p}); err != nil {
		return nil, err
	}

	return p, nil
}

func (s *Store) ListProposals(ctx context.Context, filter treasury.ProposalFilter) ([]*treasury.Proposal, error) {
	query := `SELECT ` + selectProposalColumns + `
		FROM proposals p
		JOIN communities c ON c.id = p.community_id
		WHERE 1 = 1`

	var args []any

	argIdx := 1

	if filter.CommunityID != nil {
		query += fmt.Sprintf(" AND p.community_id = $%d", argIdx)

		args = append(args, *filter.CommunityID)
		argIdx++
	}

	if filter.Status != nil {
		query += fmt.Sprintf(" AND p.status = $%d", argIdx)

		args = append(args, string(*filter.Status))
		argIdx++
	}

	query += " ORDER BY p.created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing proposals: %w", err)
	}
	defer rows.Close()

	var proposals []*treasury.Proposal

	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning proposal: %w", err)
		}

		proposals = append(proposals, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating proposals: %w", err)
	}

	rows.Close()

	if err := s.loadApprovals(ctx, proposals); err != nil {
		return nil, err
	}

	return proposals, nil
}

func (s *Store) loadApprovals(ctx context.Context, proposals []*treasury.Proposal) error {
	if len(proposals) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*treasury.Proposal, len(proposals))
	placeholders := make([]string, 0, len(proposals))
	args := make([]any, 0, len(proposals))

	for i, p := range proposals {
		byID[p.ID] = p
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, p.ID)
	}

	query := `SELECT proposal_id, leader_address, approved_at
		FROM proposal_approvals
		WHERE proposal_id IN (` + strings.Join(placeholders, ", ") + `)
		ORDER BY approved_at ASC, leader_address ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("listing approvals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a treasury.Approval
		if err := rows.Scan(&a.ProposalID, &a.LeaderAddress, &a.ApprovedAt); err != nil {
			return fmt.Errorf("scanning approval: %w", err)
		}

		if p, ok := byID[a.ProposalID]; ok {
			p.Approvals = append(p.Approvals, &a)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating approvals: %w", err)
	}

	return nil
}

func (s *Store) ListTransactions(ctx context.Context, filter treasury.TransactionFilter) ([]*treasury.Transaction, error) {
	query := `SELECT t.id, t.proposal_id, t.community_id, t.amount, t.recipient_address, t.executed_by,
			t.settlement_hash, t.executed_at, p.title, p.proof_ref
		FROM transactions t
		JOIN proposals p ON p.id = t.proposal_id`

	var args []any

	if filter.CommunityID != nil {
		query += " WHERE t.community_id = $1"

		args = append(args, *filter.CommunityID)
	}

	query += " ORDER BY t.executed_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var txs []*treasury.Transaction

	for rows.Next() {
		var t treasury.Transaction
		if err := rows.Scan(
			&t.ID, &t.ProposalID, &t.CommunityID, &t.Amount, &t.RecipientAddress, &t.ExecutedBy,
			&t.SettlementHash, &t.ExecutedAt, &t.ProposalTitle, &t.ProofRef,
		); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}

		txs = append(txs, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transactions: %w", err)
	}

	return txs, nil
}

func (s *Store) ListActivities(ctx context.Context, filter treasury.ActivityFilter) ([]*treasury.Activity, error) {
	query := `SELECT a.id, a.community_id, a.proposal_id, a.kind, a.actor, a.amount, a.metadata, a.created_at,
			c.name, COALESCE(p.title, '')
		FROM activities a
		JOIN communities c ON c.id = a.community_id
		LEFT JOIN proposals p ON p.id = a.proposal_id`

	var args []any

	argIdx := 1

	if filter.CommunityID != nil {
		query += fmt.Sprintf(" WHERE a.community_id = $%d", argIdx)

		args = append(args, *filter.CommunityID)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY a.created_at DESC LIMIT $%d", argIdx)

	args = append(args, filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing activities: %w", err)
	}
	defer rows.Close()

	var activities []*treasury.Activity

	for rows.Next() {
		var (
			a        treasury.Activity
			kind     string
			metadata sql.NullString
		)

		if err := rows.Scan(
			&a.ID, &a.CommunityID, &a.ProposalID, &kind, &a.Actor, &a.Amount, &metadata, &a.CreatedAt,
			&a.CommunityName, &a.ProposalTitle,
		); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}

		a.Kind = treasury.ActivityKind(kind)

		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &a.Metadata); err != nil {
				return nil, fmt.Errorf("decoding activity metadata: %w", err)
			}
		}

		activities = append(activities, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activities: %w", err)
	}

	return activities, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type ledgerTx struct {
	tx        *sql.Tx
	forUpdate string
}

func (s *Store) Begin(ctx context.Context) (treasury.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}

	return &ledgerTx{tx: tx, forUpdate: s.forUpdate}, nil
}

func (t *ledgerTx) Commit() error { return t.tx.Commit() }

func (t *ledgerTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}

	return nil
}

// insert maps unique violations to treasury.ErrConflict.
func (t *ledgerTx) insert(ctx context.Context, what, query string, args ...any) error {
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			return treasury.Conflict(err)
		}

		return fmt.Errorf("inserting %s: %w", what, err)
	}

	return nil
}

func (t *ledgerTx) CreateCommunity(ctx context.Context, c *treasury.Community) error {
	return t.insert(ctx, "community", `
		INSERT INTO communities (id, name, description, treasury_address, initial_balance, current_balance,
			approval_threshold, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.Name, c.Description, c.TreasuryAddress, c.InitialBalance, c.CurrentBalance,
		c.ApprovalThreshold, c.CreatedBy, c.CreatedAt,
	)
}

func (t *ledgerTx) GetCommunity(ctx context.Context, id uuid.UUID) (*treasury.Community, error) {
	return getCommunity(ctx, t.tx, id)
}

func (t *ledgerTx) AddLeader(ctx context.Context, l *treasury.Leader) error {
	return t.insert(ctx, "leader", `
		INSERT INTO community_leaders (community_id, wallet_address, name, added_at)
		VALUES ($1, $2, $3, $4)`,
		l.CommunityID, l.WalletAddress, l.Name, l.AddedAt,
	)
}

func (t *ledgerTx) AddMember(ctx context.Context, m *treasury.Member) error {
	return t.insert(ctx, "member", `
		INSERT INTO community_members (community_id, wallet_address, joined_at)
		VALUES ($1, $2, $3)`,
		m.CommunityID, m.WalletAddress, m.JoinedAt,
	)
}

func (t *ledgerTx) IsLeader(ctx context.Context, communityID uuid.UUID, wallet string) (bool, error) {
	var n int

	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM community_leaders WHERE community_id = $1 AND wallet_address = $2`,
		communityID, wallet,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking leader: %w", err)
	}

	return n > 0, nil
}

func (t *ledgerTx) CountLeaders(ctx context.Context, communityID uuid.UUID) (int, error) {
	var n int

	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM community_leaders WHERE community_id = $1`, communityID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting leaders: %w", err)
	}

	return n, nil
}

func (t *ledgerTx) lockBalance(ctx context.Context, communityID uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal

	err := t.tx.QueryRowContext(ctx,
		`SELECT current_balance FROM communities WHERE id = $1`+t.forUpdate, communityID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, treasury.NotFound("community")
		}

		return decimal.Zero, fmt.Errorf("locking balance: %w", err)
	}

	return balance, nil
}

// setBalance writes next only while the row still holds prev.
func (t *ledgerTx) setBalance(ctx context.Context, communityID uuid.UUID, prev, next decimal.Decimal) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE communities SET current_balance = $1 WHERE id = $2 AND current_balance = $3`,
		next, communityID, prev,
	)
	if err != nil {
		if database.IsCheckViolation(err) {
			return &treasury.Error{Kind: treasury.KindInsufficientFunds, Message: "balance would become negative", Err: err}
		}

		return fmt.Errorf("updating balance: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating balance: %w", err)
	}

	if n == 0 {
		return &treasury.Error{Kind: treasury.KindConflict, Message: "treasury balance changed concurrently"}
	}

	return nil
}

func (t *ledgerTx) DebitBalance(ctx context.Context, communityID uuid.UUID, amount decimal.Decimal) error {
	balance, err := t.lockBalance(ctx, communityID)
	if err != nil {
		return err
	}

	if balance.LessThan(amount) {
		return &treasury.Error{
			Kind:    treasury.KindInsufficientFunds,
			Message: fmt.Sprintf("treasury balance %s is below %s", balance, amount),
		}
	}

	return t.setBalance(ctx, communityID, balance, balance.Sub(amount))
}

func (t *ledgerTx) CreditBalance(ctx context.Context, communityID uuid.UUID, amount decimal.Decimal) error {
	balance, err := t.lockBalance(ctx, communityID)
	if err != nil {
		return err
	}

	return t.setBalance(ctx, communityID, balance, balance.Add(amount))
}

func (t *ledgerTx) CreateProposal(ctx context.Context, p *treasury.Proposal) error {
	return t.insert(ctx, "proposal", `
		INSERT INTO proposals (id, community_id, title, description, amount, recipient_address, status,
			category, proof_ref, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.CommunityID, p.Title, p.Description, p.Amount, p.RecipientAddress, string(p.Status),
		p.Category, p.ProofRef, p.CreatedBy, p.CreatedAt,
	)
}

func (t *ledgerTx) LockProposal(ctx context.Context, id uuid.UUID) (*treasury.Proposal, error) {
	suffix := ""
	if t.forUpdate != "" {
		suffix = t.forUpdate + " OF p"
	}

	return getProposal(ctx, t.tx, id, suffix)
}

func (t *ledgerTx) TransitionProposal(ctx context.Context, id uuid.UUID, from, to treasury.Status, at time.Time) error {
	query := `UPDATE proposals SET status = $1 WHERE id = $2 AND status = $3`
	args := []any{string(to), id, string(from)}

	if to == treasury.StatusExecuted {
		query = `UPDATE proposals SET status = $1, executed_at = $2 WHERE id = $3 AND status = $4`
		args = []any{string(to), at, id, string(from)}
	}

	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating proposal status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating proposal status: %w", err)
	}

	if n == 0 {
		return &treasury.Error{
			Kind:    treasury.KindInvalidState,
			Message: fmt.Sprintf("proposal is no longer %s", from),
		}
	}

	return nil
}

func (t *ledgerTx) SetProofRef(ctx context.Context, id uuid.UUID, ref string) error {
	if _, err := t.tx.ExecContext(ctx, `UPDATE proposals SET proof_ref = $1 WHERE id = $2`, ref, id); err != nil {
		return fmt.Errorf("updating proof: %w", err)
	}

	return nil
}

func (t *ledgerTx) AddApproval(ctx context.Context, a *treasury.Approval) error {
	return t.insert(ctx, "approval", `
		INSERT INTO proposal_approvals (proposal_id, leader_address, approved_at)
		VALUES ($1, $2, $3)`,
		a.ProposalID, a.LeaderAddress, a.ApprovedAt,
	)
}

func (t *ledgerTx) CountApprovals(ctx context.Context, proposalID uuid.UUID) (int, error) {
	var n int

	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM proposal_approvals WHERE proposal_id = $1`, proposalID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting approvals: %w", err)
	}

	return n, nil
}

func (t *ledgerTx) CreateTransaction(ctx context.Context, tr *treasury.Transaction) error {
	return t.insert(ctx, "transaction", `
		INSERT INTO transactions (id, proposal_id, community_id, amount, recipient_address, executed_by,
			settlement_hash, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		tr.ID, tr.ProposalID, tr.CommunityID, tr.Amount, tr.RecipientAddress, tr.ExecutedBy,
		tr.SettlementHash, tr.ExecutedAt,
	)
}

func (t *ledgerTx) RecordActivity(ctx context.Context, a *treasury.Activity) error {
	var metadata sql.NullString

	if len(a.Metadata) > 0 {
		raw, err := json.Marshal(a.Metadata)
		if err != nil {
			return fmt.Errorf("encoding activity metadata: %w", err)
		}

		metadata = sql.NullString{String: string(raw), Valid: true}
	}

	return t.insert(ctx, "activity", `
		INSERT INTO activities (id, community_id, proposal_id, kind, actor, amount, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.CommunityID, a.ProposalID, string(a.Kind), a.Actor, a.Amount, metadata, a.CreatedAt,
	)
}
