package arg

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"attendance-backend/internal/auth"
	"attendance-backend/internal/model"
)

var (
	tokenRole string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Sign a bearer token for local testing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		authCfg := cfg.Auth
		authCfg.VerifyUser = false
		p, err := auth.NewProvider(&authCfg, nil)
		if err != nil {
			return err
		}
		token, err := p.Issue(args[0], tokenRole, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenRole, "role", model.RoleUser, "role claim (user or admin)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
