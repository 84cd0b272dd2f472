package cli

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/commonpurse/commonpurse/internal/treasury"
)

func NewCommunityCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "community",
		Short: "Inspect communities",
	}

	cmd.AddCommand(newCommunityShowCommand(rootOpts))
	cmd.AddCommand(newCommunityListCommand(rootOpts))

	return cmd
}

func newCommunityShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <community-id>",
		Short:         "Show a community with its balance and leaders",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)

			id, err := uuid.Parse(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid community id", err)
			}

			_, a, err := rootOpts.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.Treasury.GetCommunity(cmd.Context(), id)
			if err != nil {
				return f.Fail(err)
			}

			return f.Success(newCommunityView(c))
		},
	}
}

func newCommunityListCommand(rootOpts *RootOptions) *cobra.Command {
	var filter treasury.CommunityFilter

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List communities, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)

			_, a, err := rootOpts.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			communities, err := a.Treasury.ListCommunities(cmd.Context(), filter)
			if err != nil {
				return f.Fail(err)
			}

			list := make(communityList, 0, len(communities))
			for _, c := range communities {
				list = append(list, newCommunityView(c))
			}

			return f.Success(list)
		},
	}

	cmd.Flags().StringVar(&filter.CreatedBy, "created-by", "", "only communities created by this wallet")
	cmd.Flags().StringVar(&filter.MemberOf, "member-of", "", "only communities this wallet belongs to")

	return cmd
}
