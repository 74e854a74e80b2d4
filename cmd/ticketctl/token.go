package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/ticket-assist/internal/domain"
)

var (
	tokenRole  string
	tokenEmail string
)

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Mint a bearer token for a user",
	Long: `Mint a bearer token. With Postgres configured the user is looked up and
its stored role is used; otherwise --role and --email are taken as given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, cleanup, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		user := domain.User{ID: args[0], Email: tokenEmail, Role: domain.Role(tokenRole)}
		if application.Postgres.PoolHandle() != nil {
			stored, err := application.Users.GetByID(cmd.Context(), args[0])
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("user %s not found", args[0])
			}
			if err != nil {
				return err
			}
			user = *stored
		}
		switch user.Role {
		case domain.RoleUser, domain.RoleModerator, domain.RoleAdmin:
		default:
			return fmt.Errorf("unknown role %q", user.Role)
		}

		token, expiresAt, err := application.Tokens.GenerateToken(user)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format("2006-01-02T15:04:05Z07:00"))
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(domain.RoleUser), "role claim when no user store is configured")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email claim when no user store is configured")
	rootCmd.AddCommand(tokenCmd)
}
