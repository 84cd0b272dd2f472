package cli

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/commonpurse/commonpurse/internal/treasury"
)

func NewProposalCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proposal",
		Short: "List, approve and execute spending proposals",
	}

	cmd.AddCommand(newProposalListCommand(rootOpts))
	cmd.AddCommand(newProposalApproveCommand(rootOpts))
	cmd.AddCommand(newProposalExecuteCommand(rootOpts))

	return cmd
}

func newProposalListCommand(rootOpts *RootOptions) *cobra.Command {
	var communityID, status string

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List proposals, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)

			var filter treasury.ProposalFilter

			if communityID != "" {
				id, err := uuid.Parse(communityID)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid community id", err)
				}

				filter.CommunityID = new(id)
			}

			if status != "" {
				filter.Status = new(treasury.Status(status))
			}

			_, a, err := rootOpts.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			proposals, err := a.Treasury.ListProposals(cmd.Context(), filter)
			if err != nil {
				return f.Fail(err)
			}

			list := make(proposalList, 0, len(proposals))
			for _, p := range proposals {
				list = append(list, newProposalView(p))
			}

			return f.Success(list)
		},
	}

	cmd.Flags().StringVar(&communityID, "community", "", "community id")
	cmd.Flags().StringVar(&status, "status", "", "pending|approved|rejected|executed")

	return cmd
}

func newProposalApproveCommand(rootOpts *RootOptions) *cobra.Command {
	var leader string

	cmd := &cobra.Command{
		Use:           "approve <proposal-id>",
		Short:         "Record a leader's approval",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)

			id, err := uuid.Parse(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid proposal id", err)
			}

			_, a, err := rootOpts.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Treasury.ApproveProposal(cmd.Context(), treasury.ApproveProposalRequest{
				ProposalID:    id,
				LeaderAddress: leader,
			})
			if err != nil {
				return f.Fail(err)
			}

			return f.Success(approvalView{
				ProposalID:    res.ProposalID,
				ApprovalCount: res.ApprovalCount,
				TotalLeaders:  res.TotalLeaders,
				Status:        res.Status,
			})
		},
	}

	cmd.Flags().StringVar(&leader, "as", "", "approving leader wallet")
	_ = cmd.MarkFlagRequired("as")

	return cmd
}

func newProposalExecuteCommand(rootOpts *RootOptions) *cobra.Command {
	var executor, settlementHash string

	cmd := &cobra.Command{
		Use:           "execute <proposal-id>",
		Short:         "Release the funds of an approved proposal",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)

			id, err := uuid.Parse(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid proposal id", err)
			}

			_, a, err := rootOpts.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			tx, err := a.Treasury.ExecuteProposal(cmd.Context(), treasury.ExecuteProposalRequest{
				ProposalID:     id,
				ExecutedBy:     executor,
				SettlementHash: settlementHash,
			})
			if err != nil {
				return f.Fail(err)
			}

			return f.Success(transactionView{
				ID:             tx.ID,
				ProposalID:     tx.ProposalID,
				Amount:         tx.Amount,
				Recipient:      tx.RecipientAddress,
				ExecutedBy:     tx.ExecutedBy,
				SettlementHash: tx.SettlementHash,
				ExecutedAt:     tx.ExecutedAt,
			})
		},
	}

	cmd.Flags().StringVar(&executor, "as", "", "executing wallet")
	cmd.Flags().StringVar(&settlementHash, "settlement-hash", "", "on-chain settlement reference")
	_ = cmd.MarkFlagRequired("as")

	return cmd
}
