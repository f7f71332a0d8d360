package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/BearBump/CargoLedger/internal/auth"
	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// NewTokenCommand issues a bearer token for local testing and scripted imports.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		secret string
		p      models.Principal
		role   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:          "token",
		Short:        "Issue a signed access token",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("--secret or JWT_SECRET env var is required")
			}
			p.Role = models.Role(role)
			if !p.Role.Valid() {
				return errors.Wrapf(models.ErrValidation, "unknown role %q", role)
			}
			if p.ID == "" {
				p.ID = p.Username
			}

			tok, err := auth.GenerateToken(secret, p, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "signing secret")
	cmd.Flags().StringVar(&p.ID, "user-id", "", "subject id (defaults to username)")
	cmd.Flags().StringVar(&p.Username, "username", "operator", "username")
	cmd.Flags().StringVar(&role, "role", string(models.RoleAdmin), "role: admin|manager|driver|clerk")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")

	return cmd
}
