package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avatarctic/satcrack-offline/internal/application/services"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an admin token for the protected API routes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		subject, _ := cmd.Flags().GetString("subject")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		token, err := services.NewAuthService(&cfg.Admin, logger).GenerateToken(cmd.Context(), subject, ttl)
		if err != nil {
			return err
		}
		if raw, _ := cmd.Flags().GetBool("raw"); raw {
			fmt.Fprintln(cmd.OutOrStdout(), token.AccessToken)
			return nil
		}
		return printJSON(cmd, token)
	},
}

func init() {
	tokenCmd.Flags().String("subject", "operator", "Subject recorded in the token")
	tokenCmd.Flags().Duration("ttl", 0, "Token lifetime (defaults to ADMIN_TOKEN_TTL)")
	tokenCmd.Flags().Bool("raw", false, "Print only the token")
}
