package commands

import (
	"fmt"
	"time"

	"github.com/nsvirk/attendanceapi/internal/api/middleware"
	"github.com/nsvirk/attendanceapi/internal/config"
	"github.com/nsvirk/attendanceapi/internal/models"
	"github.com/nsvirk/attendanceapi/internal/service"
	"github.com/spf13/cobra"
)

var tokenOpts struct {
	username   string
	role       string
	department string
	position   string
	ttl        time.Duration
}

var tokenCmd = &cobra.Command{
	Use:   "token [user-id]",
	Short: "Issue an access token signed with ATT_API_JWT_SECRET",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Get()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if tokenOpts.role != models.RoleStaff && tokenOpts.role != models.RoleAdmin {
			return fmt.Errorf("role must be %q or %q", models.RoleStaff, models.RoleAdmin)
		}
		username := tokenOpts.username
		if username == "" {
			username = args[0]
		}
		tok, err := middleware.IssueToken(cfg.JWTSecret, service.Actor{
			UserID:     args[0],
			Username:   username,
			Role:       tokenOpts.role,
			Department: tokenOpts.department,
			Position:   tokenOpts.position,
		}, tokenOpts.ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [service-key]",
	Short: "Print the bcrypt hash to store in ATT_API_SWEEPER_KEY_HASH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := middleware.HashServiceKey(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVarP(&tokenOpts.username, "username", "u", "", "display name, defaults to the user id")
	tokenCmd.Flags().StringVar(&tokenOpts.role, "role", models.RoleStaff, "staff or admin")
	tokenCmd.Flags().StringVar(&tokenOpts.department, "department", "", "department copied onto sessions")
	tokenCmd.Flags().StringVar(&tokenOpts.position, "position", "", "position copied onto sessions")
	tokenCmd.Flags().DurationVar(&tokenOpts.ttl, "ttl", 12*time.Hour, "token lifetime")
}
