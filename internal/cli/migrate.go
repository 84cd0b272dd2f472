package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "migrate",
		Short:         "Create or update the ledger schema",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)

			cfg, a, err := rootOpts.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			return f.Success(migrateResult{Driver: cfg.DB.Driver})
		},
	}
}

type migrateResult struct {
	Driver string `json:"driver"`
}

func (r migrateResult) String() string {
	return fmt.Sprintf("schema up to date (%s)", r.Driver)
}
