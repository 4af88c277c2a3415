package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-engine/internal/service/auth"
	"github.com/spf13/cobra"
)

func (c *cli) newTokenCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for a user",
		Long: `token signs an access token with the configured JWT secret. The server
accepts it as a bearer token until the configured lifetime runs out.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, err := uuid.Parse(user)
			if err != nil || userID == uuid.Nil {
				return fmt.Errorf("invalid --user %q", user)
			}
			cfg, err := c.config()
			if err != nil {
				return err
			}
			jwtService, err := auth.NewJWTService(cfg.Auth)
			if err != nil {
				return err
			}
			token, err := jwtService.GenerateToken(cmd.Context(), userID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user ID the token identifies (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
