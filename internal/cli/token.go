package cli

import (
	"github.com/spf13/cobra"

	"github.com/commonpurse/commonpurse/internal/http/auth"
)

func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var wallet string

	cmd := &cobra.Command{
		Use:           "token",
		Short:         "Issue an API session token for a wallet",
		Long:          "Issue a bearer token signed with AUTH_JWT_SECRET whose subject is the given wallet.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)

			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return WrapExitError(ExitCommandError, "loading config", err)
			}

			token, err := auth.New(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL).Issue(wallet)
			if err != nil {
				return WrapExitError(ExitCommandError, "issuing token", err)
			}

			f.VerboseLog("token for %s valid for %s", wallet, cfg.Auth.TokenTTL)

			return f.Success(token)
		},
	}

	cmd.Flags().StringVar(&wallet, "wallet", "", "wallet address the token acts as")
	_ = cmd.MarkFlagRequired("wallet")

	return cmd
}
