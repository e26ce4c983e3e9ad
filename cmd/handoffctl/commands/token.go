package commands

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/ericfisherdev/handoff/internal/adapter/driven/identity"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		role    string
		email   string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with HANDOFF_JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := os.Getenv("HANDOFF_JWT_SECRET")
			if secret == "" {
				return errors.New("HANDOFF_JWT_SECRET is required")
			}
			if ttl <= 0 {
				return errors.New("--ttl must be positive")
			}

			now := time.Now()
			signer := identity.NewJWTVerifier([]byte(secret), os.Getenv("HANDOFF_JWT_ISSUER"))
			token, err := signer.Sign(identity.Claims{
				Role:  role,
				Email: email,
				RegisteredClaims: jwt.RegisteredClaims{
					Subject:   subject,
					IssuedAt:  jwt.NewNumericDate(now),
					ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
				},
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "user id the token asserts")
	cmd.Flags().StringVar(&role, "role", "", `platform role ("admin" or empty)`)
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}
