package cli

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/commonpurse/commonpurse/internal/treasury"
)

func NewActivityCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		communityID string
		limit       int
	)

	cmd := &cobra.Command{
		Use:           "activity",
		Short:         "Show the activity log, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)

			filter := treasury.ActivityFilter{Limit: limit}

			if communityID != "" {
				id, err := uuid.Parse(communityID)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid community id", err)
				}

				filter.CommunityID = new(id)
			}

			_, a, err := rootOpts.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			activities, err := a.Treasury.ListActivities(cmd.Context(), filter)
			if err != nil {
				return f.Fail(err)
			}

			return f.Success(newActivityList(activities))
		},
	}

	cmd.Flags().StringVar(&communityID, "community", "", "community id")
	cmd.Flags().IntVarP(&limit, "limit", "n", treasury.DefaultActivityLimit, "maximum entries")

	return cmd
}
