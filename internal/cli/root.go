// Package cli implements the treasuryctl command tree.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/commonpurse/commonpurse/internal/app"
	"github.com/commonpurse/commonpurse/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	loadConfig func() (*config.Config, error)
}

var ValidFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{loadConfig: config.Load})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "treasuryctl",
		Short: "Operate CommonPurse community treasuries",
		Long:  "Administer communities, proposals and the activity log of a CommonPurse ledger.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}

			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewCommunityCommand(opts))
	cmd.AddCommand(NewProposalCommand(opts))
	cmd.AddCommand(NewActivityCommand(opts))

	return cmd
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// open loads configuration and connects. Engine logs go to stderr so they
// never mix with JSON output.
func (o *RootOptions) open(ctx context.Context, cmd *cobra.Command) (*config.Config, *app.App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "loading config", err)
	}

	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "opening ledger", err)
	}

	return cfg, a, nil
}
