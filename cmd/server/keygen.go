package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/maheshrc27/reshare/pkg/utils"
	"github.com/spf13/cobra"
)

func NewKeygenCommand(opts *RootOptions) *cobra.Command {
	var (
		tenant    string
		jwtSecret string
		ttl       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate SECRET_KEY and JWT_SECRET, or a session token for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if tenant != "" {
				if jwtSecret == "" {
					jwtSecret = os.Getenv("JWT_SECRET")
				}
				if jwtSecret == "" {
					return errors.New("JWT_SECRET is required to sign a tenant token")
				}
				token, err := utils.GenerateToken(jwtSecret, tenant, ttl)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, token)
				return nil
			}

			for _, name := range []string{"SECRET_KEY", "JWT_SECRET"} {
				key, err := utils.GenerateRandomKey(32)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s=%s\n", name, key)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "sign a session token for this tenant instead")
	cmd.Flags().StringVar(&jwtSecret, "jwt-secret", "", "signing secret (defaults to JWT_SECRET)")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	return cmd
}
