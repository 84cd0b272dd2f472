package treasury_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/commonpurse/commonpurse/internal/treasury"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newService(repo treasury.Repository, opts ...treasury.Option) *treasury.Service {
	opts = append([]treasury.Option{treasury.WithClock(func() time.Time { return fixedNow })}, opts...)
	return treasury.NewService(repo, opts...)
}

func TestService_CreateCommunity(t *testing.T) {
	validReq := func() treasury.CreateCommunityRequest {
		return treasury.CreateCommunityRequest{
			Name:              "Garden Club",
			TreasuryAddress:   "treasury-1",
			InitialBalance:    decimal.NewFromInt(100),
			ApprovalThreshold: 2,
			CreatedBy:         "creator",
			Leaders: []treasury.LeaderInput{
				{WalletAddress: "L1", Name: "Ana"},
				{WalletAddress: "L2"},
			},
			Members: []string{"M1", "L1", "M1", "creator"},
		}
	}

	type testCase struct {
		name      string
		req       func() treasury.CreateCommunityRequest
		setupMock func(repo *treasury.MockRepository, tx *treasury.MockTx)
		wantKind  treasury.ErrorKind
		wantErr   bool
		check     func(t *testing.T, c *treasury.Community)
	}

	tests := []testCase{
		{
			name: "Success",
			req:  validReq,
			setupMock: func(repo *treasury.MockRepository, tx *treasury.MockTx) {
				repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
				tx.EXPECT().CreateCommunity(gomock.Any(), gomock.Any()).Return(nil)
				tx.EXPECT().AddLeader(gomock.Any(), gomock.Any()).Return(nil).Times(2)
				// creator and M1; L1 is a leader and the duplicate M1 is skipped.
				tx.EXPECT().AddMember(gomock.Any(), gomock.Any()).Return(nil).Times(2)
				tx.EXPECT().RecordActivity(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, a *treasury.Activity) error {
						assert.Equal(t, treasury.KindCommunityCreated, a.Kind)
						assert.Equal(t, "creator", a.Actor)
						return nil
					})
				tx.EXPECT().Commit().Return(nil)
				tx.EXPECT().Rollback().Return(nil)
			},
			check: func(t *testing.T, c *treasury.Community) {
				assert.NotEqual(t, uuid.Nil, c.ID)
				assert.True(t, c.CurrentBalance.Equal(decimal.NewFromInt(100)))
				assert.Len(t, c.Leaders, 2)
				require.Len(t, c.Members, 2)
				assert.Equal(t, "creator", c.Members[0].WalletAddress)
				assert.Equal(t, "M1", c.Members[1].WalletAddress)
				assert.Equal(t, fixedNow, c.CreatedAt)
			},
		},
		{
			name: "NoLeaders",
			req: func() treasury.CreateCommunityRequest {
				r := validReq()
				r.Leaders = nil
				return r
			},
			wantErr:  true,
			wantKind: treasury.KindValidation,
		},
		{
			name: "ThresholdAboveLeaders",
			req: func() treasury.CreateCommunityRequest {
				r := validReq()
				r.ApprovalThreshold = 3
				return r
			},
			wantErr:  true,
			wantKind: treasury.KindValidation,
		},
		{
			name: "NegativeBalance",
			req: func() treasury.CreateCommunityRequest {
				r := validReq()
				r.InitialBalance = decimal.NewFromInt(-1)
				return r
			},
			wantErr:  true,
			wantKind: treasury.KindValidation,
		},
		{
			name: "DuplicateLeader",
			req: func() treasury.CreateCommunityRequest {
				r := validReq()
				r.Leaders = append(r.Leaders, treasury.LeaderInput{WalletAddress: "L1"})
				return r
			},
			setupMock: func(repo *treasury.MockRepository, tx *treasury.MockTx) {
				repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
				tx.EXPECT().CreateCommunity(gomock.Any(), gomock.Any()).Return(nil)
				tx.EXPECT().AddLeader(gomock.Any(), gomock.Any()).Return(nil).Times(2)
				tx.EXPECT().AddLeader(gomock.Any(), gomock.Any()).Return(treasury.Conflict(errors.New("unique")))
				tx.EXPECT().Rollback().Return(nil)
			},
			wantErr:  true,
			wantKind: treasury.KindConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := treasury.NewMockRepository(ctrl)
			tx := treasury.NewMockTx(ctrl)

			if tt.setupMock != nil {
				tt.setupMock(repo, tx)
			}

			svc := newService(repo)
			got, err := svc.CreateCommunity(context.Background(), tt.req())

			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, got)
				assert.Equal(t, tt.wantKind, treasury.KindOf(err))

				return
			}

			require.NoError(t, err)
			tt.check(t, got)
		})
	}
}

func TestService_AddMember(t *testing.T) {
	communityID := uuid.New()

	type testCase struct {
		name      string
		req       treasury.AddMemberRequest
		setupMock func(repo *treasury.MockRepository, tx *treasury.MockTx)
		wantKind  treasury.ErrorKind
		wantErr   bool
	}

	tests := []testCase{
		{
			name: "Member",
			req:  treasury.AddMemberRequest{CommunityID: communityID, WalletAddress: "M9"},
			setupMock: func(repo *treasury.MockRepository, tx *treasury.MockTx) {
				repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
				tx.EXPECT().GetCommunity(gomock.Any(), communityID).Return(&treasury.Community{ID: communityID}, nil)
				tx.EXPECT().AddMember(gomock.Any(), &treasury.Member{
					CommunityID:   communityID,
					WalletAddress: "M9",
					JoinedAt:      fixedNow,
				}).Return(nil)
				tx.EXPECT().Commit().Return(nil)
				tx.EXPECT().Rollback().Return(nil)
			},
		},
		{
			name: "Leader",
			req:  treasury.AddMemberRequest{CommunityID: communityID, WalletAddress: "L9", Name: "<b>Bo</b>", IsLeader: true},
			setupMock: func(repo *treasury.MockRepository, tx *treasury.MockTx) {
				repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
				tx.EXPECT().GetCommunity(gomock.Any(), communityID).Return(&treasury.Community{ID: communityID}, nil)
				tx.EXPECT().AddLeader(gomock.Any(), &treasury.Leader{
					CommunityID:   communityID,
					WalletAddress: "L9",
					Name:          "Bo",
					AddedAt:       fixedNow,
				}).Return(nil)
				tx.EXPECT().Commit().Return(nil)
				tx.EXPECT().Rollback().Return(nil)
			},
		},
		{
			name: "CommunityMissing",
			req:  treasury.AddMemberRequest{CommunityID: communityID, WalletAddress: "M9"},
			setupMock: func(repo *treasury.MockRepository, tx *treasury.MockTx) {
				repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
				tx.EXPECT().GetCommunity(gomock.Any(), communityID).Return(nil, treasury.NotFound("community"))
				tx.EXPECT().Rollback().Return(nil)
			},
			wantErr:  true,
			wantKind: treasury.KindNotFound,
		},
		{
			name: "AlreadyMember",
			req:  treasury.AddMemberRequest{CommunityID: communityID, WalletAddress: "M1"},
			setupMock: func(repo *treasury.MockRepository, tx *treasury.MockTx) {
				repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
				tx.EXPECT().GetCommunity(gomock.Any(), communityID).Return(&treasury.Community{ID: communityID}, nil)
				tx.EXPECT().AddMember(gomock.Any(), gomock.Any()).Return(treasury.Conflict(errors.New("unique")))
				tx.EXPECT().Rollback().Return(nil)
			},
			wantErr:  true,
			wantKind: treasury.KindConflict,
		},
		{
			name:     "BlankWallet",
			req:      treasury.AddMemberRequest{CommunityID: communityID, WalletAddress: "  "},
			wantErr:  true,
			wantKind: treasury.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := treasury.NewMockRepository(ctrl)
			tx := treasury.NewMockTx(ctrl)

			if tt.setupMock != nil {
				tt.setupMock(repo, tx)
			}

			err := newService(repo).AddMember(context.Background(), tt.req)

			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, treasury.KindOf(err))

				return
			}

			assert.NoError(t, err)
		})
	}
}

func TestService_CreateProposal(t *testing.T) {
	communityID := uuid.New()
	community := &treasury.Community{ID: communityID, Name: "Garden Club", CurrentBalance: decimal.NewFromInt(100)}

	req := func(amount int64) treasury.CreateProposalRequest {
		return treasury.CreateProposalRequest{
			CommunityID:      communityID,
			Title:            "Seeds",
			Description:      "Spring planting",
			Amount:           decimal.NewFromInt(amount),
			RecipientAddress: "R1",
			CreatedBy:        "M1",
		}
	}

	type testCase struct {
		name      string
		req       treasury.CreateProposalRequest
		setupMock func(repo *treasury.MockRepository, tx *treasury.MockTx)
		wantKind  treasury.ErrorKind
		wantErr   bool
	}

	tests := []testCase{
		{
			name: "Success",
			req:  req(40),
			setupMock: func(repo *treasury.MockRepository, tx *treasury.MockTx) {
				repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
				tx.EXPECT().GetCommunity(gomock.Any(), communityID).Return(community, nil)
				tx.EXPECT().CreateProposal(gomock.Any(), gomock.Any()).Return(nil)
				tx.EXPECT().RecordActivity(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, a *treasury.Activity) error {
						assert.Equal(t, treasury.KindProposalCreated, a.Kind)
						assert.True(t, a.Amount.Valid)
						assert.True(t, a.Amount.Decimal.Equal(decimal.NewFromInt(40)))
						return nil
					})
				tx.EXPECT().Commit().Return(nil)
				tx.EXPECT().Rollback().Return(nil)
			},
		},
		{
			name: "AmountExceedsBalance",
			req:  req(150),
			setupMock: func(repo *treasury.MockRepository, tx *treasury.MockTx) {
				repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
				tx.EXPECT().GetCommunity(gomock.Any(), communityID).Return(community, nil)
				tx.EXPECT().Rollback().Return(nil)
			},
			wantErr:  true,
			wantKind: treasury.KindInsufficientFunds,
		},
		{
			name:     "ZeroAmount",
			req:      req(0),
			wantErr:  true,
			wantKind: treasury.KindValidation,
		},
		{
			name: "CommunityMissing",
			req:  req(10),
			setupMock: func(repo *treasury.MockRepository, tx *treasury.MockTx) {
				repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
				tx.EXPECT().GetCommunity(gomock.Any(), communityID).Return(nil, treasury.NotFound("community"))
				tx.EXPECT().Rollback().Return(nil)
			},
			wantErr:  true,
			wantKind: treasury.KindNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := treasury.NewMockRepository(ctrl)
			tx := treasury.NewMockTx(ctrl)

			if tt.setupMock != nil {
				tt.setupMock(repo, tx)
			}

			got, err := newService(repo).CreateProposal(context.Background(), tt.req)

			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, got)
				assert.Equal(t, tt.wantKind, treasury.KindOf(err))

				return
			}

			require.NoError(t, err)
			assert.Equal(t, treasury.StatusPending, got.Status)
			assert.Equal(t, "Garden Club", got.CommunityName)
		})
	}
}

func TestService_ApproveProposal(t *testing.T) {
	communityID := uuid.New()
	proposalID := uuid.New()

	pending := func() *treasury.Proposal {
		return &treasury.Proposal{
			ID:          proposalID,
			CommunityID: communityID,
			Amount:      decimal.NewFromInt(40),
			Status:      treasury.StatusPending,
		}
	}

	type testCase struct {
		name       string
		setupMock  func(repo *treasury.MockRepository, tx *treasury.MockTx)
		wantKind   treasury.ErrorKind
		wantErr    bool
		wantStatus treasury.Status
		wantCount  int
	}

	tests := []testCase{
		{
			name: "FirstOfTwo",
			setupMock: func(repo *treasury.MockRepository, tx *treasury.MockTx) {
				repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
				tx.EXPECT().LockProposal(gomock.Any(), proposalID).Return(pending(), nil)
				tx.EXPECT().IsLeader(gomock.Any(), communityID, "L1").Return(true, nil)
				tx.EXPECT().AddApproval(gomock.Any(), gomock.Any()).Return(nil)
				tx.EXPECT().CountApprovals(gomock.Any(), proposalID).Return(1, nil)
				tx.EXPECT().CountLeaders(gomock.Any(), communityID).Return(2, nil)
				tx.EXPECT().RecordActivity(gomock.Any(), gomock.Any()).Return(nil)
				tx.EXPECT().Commit().Return(nil)
				tx.EXPECT().Rollback().Return(nil)
			},
			wantStatus: treasury.StatusPending,
			wantCount:  1,
		},
		{
			name: "Unanimous",
			setupMock: func(repo *treasury.MockRepository, tx *treasury.MockTx) {
				repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
				tx.EXPECT().LockProposal(gomock.Any(), proposalID).Return(pending(), nil)
				tx.EXPECT().IsLeader(gomock.Any(), communityID, "L1").Return(true, nil)
				tx.EXPECT().AddApproval(gomock.Any(), gomock.Any()).Return(nil)
				tx.EXPECT().CountApprovals(gomock.Any(), proposalID).Return(2, nil)
				tx.EXPECT().CountLeaders(gomock.Any(), communityID).Return(2, nil)
				tx.EXPECT().RecordActivity(gomock.Any(), gomock.Any()).Return(nil)
				tx.EXPECT().TransitionProposal(gomock.Any(), proposalID, treasury.StatusPending, treasury.StatusApproved, fixedNow).Return(nil)
				tx.EXPECT().Commit().Return(nil)
				tx.EXPECT().Rollback().Return(nil)
			},
			wantStatus: treasury.StatusApproved,
			wantCount:  2,
		},
		{
			name: "NotPending",
			setupMock: func(repo *treasury.MockRepository, tx *treasury.MockTx) {
				p := pending()
				p.Status = treasury.StatusExecuted

				repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
				tx.EXPECT().LockProposal(gomock.Any(), proposalID).Return(p, nil)
				tx.EXPECT().Rollback().Return(nil)
			},
			wantErr:  true,
			wantKind: treasury.KindInvalidState,
		},
		{
			name: "NotLeader",
			setupMock: func(repo *treasury.MockRepository, tx *treasury.MockTx) {
				repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
				tx.EXPECT().LockProposal(gomock.Any(), proposalID).Return(pending(), nil)
				tx.EXPECT().IsLeader(gomock.Any(), communityID, "L1").Return(false, nil)
				tx.EXPECT().Rollback().Return(nil)
			},
			wantErr:  true,
			wantKind: treasury.KindAuthorization,
		},
		{
			name: "AlreadyApproved",
			setupMock: func(repo *treasury.MockRepository, tx *treasury.MockTx) {
				repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
				tx.EXPECT().LockProposal(gomock.Any(), proposalID).Return(pending(), nil)
				tx.EXPECT().IsLeader(gomock.Any(), communityID, "L1").Return(true, nil)
				tx.EXPECT().AddApproval(gomock.Any(), gomock.Any()).Return(treasury.Conflict(errors.New("unique")))
				tx.EXPECT().Rollback().Return(nil)
			},
			wantErr:  true,
			wantKind: treasury.KindConflict,
		},
		{
			name: "ProposalMissing",
			setupMock: func(repo *treasury.MockRepository, tx *treasury.MockTx) {
				repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
				tx.EXPECT().LockProposal(gomock.Any(), proposalID).Return(nil, treasury.NotFound("proposal"))
				tx.EXPECT().Rollback().Return(nil)
			},
			wantErr:  true,
			wantKind: treasury.KindNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := treasury.NewMockRepository(ctrl)
			tx := treasury.NewMockTx(ctrl)
			tt.setupMock(repo, tx)

			got, err := newService(repo).ApproveProposal(context.Background(), treasury.ApproveProposalRequest{
				ProposalID:    proposalID,
				LeaderAddress: "L1",
			})

			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, got)
				assert.Equal(t, tt.wantKind, treasury.KindOf(err))

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantCount, got.ApprovalCount)
			assert.Equal(t, 2, got.TotalLeaders)
		})
	}
}

func TestService_ExecuteProposal(t *testing.T) {
	communityID := uuid.New()
	proposalID := uuid.New()

	approved := func() *treasury.Proposal {
		return &treasury.Proposal{
			ID:               proposalID,
			CommunityID:      communityID,
			Title:            "Seeds",
			Amount:           decimal.NewFromInt(40),
			RecipientAddress: "R1",
			Status:           treasury.StatusApproved,
		}
	}

	type testCase struct {
		name      string
		setupMock func(repo *treasury.MockRepository, tx *treasury.MockTx)
		wantKind  treasury.ErrorKind
		wantErr   bool
	}

	tests := []testCase{
		{
			name: "Success",
			setupMock: func(repo *treasury.MockRepository, tx *treasury.MockTx) {
				repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
				tx.EXPECT().LockProposal(gomock.Any(), proposalID).Return(approved(), nil)
				tx.EXPECT().CountApprovals(gomock.Any(), proposalID).Return(2, nil)
				tx.EXPECT().CountLeaders(gomock.Any(), communityID).Return(2, nil)
				tx.EXPECT().TransitionProposal(gomock.Any(), proposalID, treasury.StatusApproved, treasury.StatusExecuted, fixedNow).Return(nil)
				tx.EXPECT().DebitBalance(gomock.Any(), communityID, decimal.NewFromInt(40)).Return(nil)
				tx.EXPECT().CreateTransaction(gomock.Any(), gomock.Any()).Return(nil)
				tx.EXPECT().RecordActivity(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, a *treasury.Activity) error {
						assert.Equal(t, treasury.KindProposalExecuted, a.Kind)
						assert.Equal(t, "0xabc", a.Metadata["settlement_hash"])
						return nil
					})
				tx.EXPECT().Commit().Return(nil)
				tx.EXPECT().Rollback().Return(nil)
			},
		},
		{
			name: "StillPending",
			setupMock: func(repo *treasury.MockRepository, tx *treasury.MockTx) {
				p := approved()
				p.Status = treasury.StatusPending

				repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
				tx.EXPECT().LockProposal(gomock.Any(), proposalID).Return(p, nil)
				tx.EXPECT().Rollback().Return(nil)
			},
			wantErr:  true,
			wantKind: treasury.KindInvalidState,
		},
		{
			name: "LeaderAddedAfterApproval",
			setupMock: func(repo *treasury.MockRepository, tx *treasury.MockTx) {
				repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
				tx.EXPECT().LockProposal(gomock.Any(), proposalID).Return(approved(), nil)
				tx.EXPECT().CountApprovals(gomock.Any(), proposalID).Return(2, nil)
				tx.EXPECT().CountLeaders(gomock.Any(), communityID).Return(3, nil)
				tx.EXPECT().Rollback().Return(nil)
			},
			wantErr:  true,
			wantKind: treasury.KindInvalidState,
		},
		{
			name: "InsufficientFunds",
			setupMock: func(repo *treasury.MockRepository, tx *treasury.MockTx) {
				repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
				tx.EXPECT().LockProposal(gomock.Any(), proposalID).Return(approved(), nil)
				tx.EXPECT().CountApprovals(gomock.Any(), proposalID).Return(2, nil)
				tx.EXPECT().CountLeaders(gomock.Any(), communityID).Return(2, nil)
				tx.EXPECT().TransitionProposal(gomock.Any(), proposalID, treasury.StatusApproved, treasury.StatusExecuted, fixedNow).Return(nil)
				tx.EXPECT().DebitBalance(gomock.Any(), communityID, gomock.Any()).
					Return(&treasury.Error{Kind: treasury.KindInsufficientFunds, Message: "low"})
				tx.EXPECT().Rollback().Return(nil)
			},
			wantErr:  true,
			wantKind: treasury.KindInsufficientFunds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := treasury.NewMockRepository(ctrl)
			tx := treasury.NewMockTx(ctrl)
			tt.setupMock(repo, tx)

			got, err := newService(repo).ExecuteProposal(context.Background(), treasury.ExecuteProposalRequest{
				ProposalID:     proposalID,
				ExecutedBy:     "L1",
				SettlementHash: "0xabc",
			})

			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, got)
				assert.Equal(t, tt.wantKind, treasury.KindOf(err))

				return
			}

			require.NoError(t, err)
			assert.Equal(t, proposalID, got.ProposalID)
			assert.True(t, got.Amount.Equal(decimal.NewFromInt(40)))
			assert.Equal(t, "0xabc", got.SettlementHash)
			assert.Equal(t, fixedNow, got.ExecutedAt)
		})
	}
}

func TestService_AttachProof(t *testing.T) {
	communityID := uuid.New()
	proposalID := uuid.New()

	proposal := func(status treasury.Status) *treasury.Proposal {
		return &treasury.Proposal{ID: proposalID, CommunityID: communityID, Status: status, CreatedBy: "M1"}
	}

	t.Run("Creator", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := treasury.NewMockRepository(ctrl)
		tx := treasury.NewMockTx(ctrl)

		repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
		tx.EXPECT().LockProposal(gomock.Any(), proposalID).Return(proposal(treasury.StatusExecuted), nil)
		tx.EXPECT().SetProofRef(gomock.Any(), proposalID, "ipfs://receipt").Return(nil)
		tx.EXPECT().RecordActivity(gomock.Any(), gomock.Any()).Return(nil)
		tx.EXPECT().Commit().Return(nil)
		tx.EXPECT().Rollback().Return(nil)

		err := newService(repo).AttachProof(context.Background(), treasury.AttachProofRequest{
			ProposalID: proposalID, ProofRef: "ipfs://receipt", Actor: "M1",
		})
		assert.NoError(t, err)
	})

	t.Run("Stranger", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := treasury.NewMockRepository(ctrl)
		tx := treasury.NewMockTx(ctrl)

		repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
		tx.EXPECT().LockProposal(gomock.Any(), proposalID).Return(proposal(treasury.StatusPending), nil)
		tx.EXPECT().IsLeader(gomock.Any(), communityID, "X").Return(false, nil)
		tx.EXPECT().Rollback().Return(nil)

		err := newService(repo).AttachProof(context.Background(), treasury.AttachProofRequest{
			ProposalID: proposalID, ProofRef: "ipfs://receipt", Actor: "X",
		})
		assert.ErrorIs(t, err, treasury.ErrUnauthorized)
	})

	t.Run("Rejected", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := treasury.NewMockRepository(ctrl)
		tx := treasury.NewMockTx(ctrl)

		repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
		tx.EXPECT().LockProposal(gomock.Any(), proposalID).Return(proposal(treasury.StatusRejected), nil)
		tx.EXPECT().Rollback().Return(nil)

		err := newService(repo).AttachProof(context.Background(), treasury.AttachProofRequest{
			ProposalID: proposalID, ProofRef: "ipfs://receipt", Actor: "M1",
		})
		assert.ErrorIs(t, err, treasury.ErrInvalidState)
	})
}

func TestService_FundTreasury(t *testing.T) {
	communityID := uuid.New()

	ctrl := gomock.NewController(t)
	repo := treasury.NewMockRepository(ctrl)
	tx := treasury.NewMockTx(ctrl)
	notifier := treasury.NewMockNotifier(ctrl)

	repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	tx.EXPECT().CreditBalance(gomock.Any(), communityID, decimal.NewFromInt(25)).Return(nil)
	tx.EXPECT().RecordActivity(gomock.Any(), gomock.Any()).Return(nil)
	tx.EXPECT().Commit().Return(nil)
	tx.EXPECT().Rollback().Return(nil)
	notifier.EXPECT().Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, a *treasury.Activity) error {
			assert.Equal(t, treasury.KindTreasuryFunded, a.Kind)
			return errors.New("broker down")
		})

	svc := newService(repo, treasury.WithNotifier(notifier))
	err := svc.FundTreasury(context.Background(), treasury.FundTreasuryRequest{
		CommunityID: communityID,
		Amount:      decimal.NewFromInt(25),
		FundedBy:    "donor",
	})

	// Notifier failures never fail a committed operation.
	assert.NoError(t, err)
}

func TestService_ListActivities_DefaultLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := treasury.NewMockRepository(ctrl)

	repo.EXPECT().ListActivities(gomock.Any(), treasury.ActivityFilter{Limit: treasury.DefaultActivityLimit}).Return(nil, nil)

	_, err := newService(repo).ListActivities(context.Background(), treasury.ActivityFilter{})
	assert.NoError(t, err)
}

func TestService_ListProposals_UnknownStatus(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := treasury.NewMockRepository(ctrl)

	status := treasury.Status("archived")

	_, err := newService(repo).ListProposals(context.Background(), treasury.ProposalFilter{Status: &status})
	assert.ErrorIs(t, err, treasury.ErrValidation)
}
