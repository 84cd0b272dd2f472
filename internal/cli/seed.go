package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/commonpurse/commonpurse/internal/treasury"
)

// SeedFile describes communities and their proposal history to replay
// through the treasury service.
type SeedFile struct {
	Communities []SeedCommunity `yaml:"communities"`
}

type SeedCommunity struct {
	Name              string         `yaml:"name"`
	Description       string         `yaml:"description"`
	TreasuryAddress   string         `yaml:"treasury_address"`
	InitialBalance    string         `yaml:"initial_balance"`
	ApprovalThreshold int            `yaml:"approval_threshold"`
	CreatedBy         string         `yaml:"created_by"`
	Leaders           []SeedLeader   `yaml:"leaders"`
	Members           []string       `yaml:"members"`
	Proposals         []SeedProposal `yaml:"proposals"`
}

type SeedLeader struct {
	Wallet string `yaml:"wallet"`
	Name   string `yaml:"name"`
}

type SeedProposal struct {
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Amount      string   `yaml:"amount"`
	Recipient   string   `yaml:"recipient"`
	CreatedBy   string   `yaml:"created_by"`
	Category    string   `yaml:"category"`
	ApprovedBy  []string `yaml:"approved_by"`
	ExecutedBy  string   `yaml:"executed_by"`
}

type seedResult struct {
	Communities []uuid.UUID `json:"communities"`
	Proposals   int         `json:"proposals"`
	Executed    int         `json:"executed"`
}

func (r seedResult) String() string {
	ids := make([]string, 0, len(r.Communities))
	for _, id := range r.Communities {
		ids = append(ids, id.String())
	}

	return fmt.Sprintf("seeded %d communities (%s), %d proposals, %d executed",
		len(r.Communities), strings.Join(ids, ", "), r.Proposals, r.Executed)
}

func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load communities and proposals from a YAML file",
		Long: `Replay a YAML seed file through the treasury service.

Every community, proposal, approval and execution goes through the same
validation and balance checks as API calls, so a seed cannot produce a
ledger the service would reject.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)

			seed, err := LoadSeedFile(file)
			if err != nil {
				return WrapExitError(ExitCommandError, "reading seed file", err)
			}

			_, a, err := rootOpts.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := applySeed(cmd.Context(), a.Treasury, seed, f)
			if err != nil {
				return f.Fail(err)
			}

			return f.Success(res)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "seed file (YAML)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return &seed, nil
}

func parseAmount(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &treasury.Error{
			Kind:    treasury.KindValidation,
			Message: fmt.Sprintf("%s: invalid amount %q", field, s),
		}
	}

	return d, nil
}

func applySeed(ctx context.Context, svc *treasury.Service, seed *SeedFile, f *OutputFormatter) (*seedResult, error) {
	res := &seedResult{Communities: []uuid.UUID{}}

	for _, sc := range seed.Communities {
		balance, err := parseAmount(sc.Name, sc.InitialBalance)
		if err != nil {
			return nil, err
		}

		leaders := make([]treasury.LeaderInput, 0, len(sc.Leaders))
		for _, l := range sc.Leaders {
			leaders = append(leaders, treasury.LeaderInput{WalletAddress: l.Wallet, Name: l.Name})
		}

		creator := sc.CreatedBy
		if creator == "" && len(leaders) > 0 {
			creator = leaders[0].WalletAddress
		}

		threshold := sc.ApprovalThreshold
		if threshold == 0 {
			threshold = len(leaders)
		}

		c, err := svc.CreateCommunity(ctx, treasury.CreateCommunityRequest{
			Name:              sc.Name,
			Description:       sc.Description,
			TreasuryAddress:   sc.TreasuryAddress,
			InitialBalance:    balance,
			ApprovalThreshold: threshold,
			CreatedBy:         creator,
			Leaders:           leaders,
			Members:           sc.Members,
		})
		if err != nil {
			return nil, fmt.Errorf("community %q: %w", sc.Name, err)
		}

		f.VerboseLog("created community %s (%s)", c.Name, c.ID)
		res.Communities = append(res.Communities, c.ID)

		for _, sp := range sc.Proposals {
			executed, err := seedProposal(ctx, svc, c.ID, sp)
			if err != nil {
				return nil, fmt.Errorf("proposal %q: %w", sp.Title, err)
			}

			res.Proposals++

			if executed {
				res.Executed++
			}
		}
	}

	return res, nil
}

func seedProposal(ctx context.Context, svc *treasury.Service, communityID uuid.UUID, sp SeedProposal) (bool, error) {
	amount, err := parseAmount(sp.Title, sp.Amount)
	if err != nil {
		return false, err
	}

	p, err := svc.CreateProposal(ctx, treasury.CreateProposalRequest{
		CommunityID:      communityID,
		Title:            sp.Title,
		Description:      sp.Description,
		Amount:           amount,
		RecipientAddress: sp.Recipient,
		CreatedBy:        sp.CreatedBy,
		Category:         sp.Category,
	})
	if err != nil {
		return false, err
	}

	for _, leader := range sp.ApprovedBy {
		_, err := svc.ApproveProposal(ctx, treasury.ApproveProposalRequest{ProposalID: p.ID, LeaderAddress: leader})
		if err != nil {
			return false, err
		}
	}

	if sp.ExecutedBy == "" {
		return false, nil
	}

	_, err = svc.ExecuteProposal(ctx, treasury.ExecuteProposalRequest{ProposalID: p.ID, ExecutedBy: sp.ExecutedBy})
	if err != nil {
		return false, err
	}

	return true, nil
}
