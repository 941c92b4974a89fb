package cli

import (
	"fmt"
	"time"

	"github.com/raphaelgruber/voxchat/internal/auth"
	"github.com/spf13/cobra"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <owner>",
	Short: "Issue a bearer token for an owner",
	Long: `Issue a bearer token signed with VOXCHAT_AUTH_SECRET. The owner becomes
the token subject and scopes every conversation and statistic.

Examples:
  voxchat token alice
  export VOXCHAT_TOKEN=$(voxchat token alice --ttl 720h)`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime (0 = no expiry)")
}

func runToken(cmd *cobra.Command, args []string) error {
	a := auth.NewAuthenticator(cfg.AuthSecret, cfg.AuthIssuer)
	signed, err := a.Issue(args[0], tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), signed)
	return nil
}
