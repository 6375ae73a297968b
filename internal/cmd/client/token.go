package clientcmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/claudeayi/kalyptia-ledger/internal/auth"
)

// NewTokenCommand mints a bearer token locally from the shared secret, for
// operators and scripts.
func NewTokenCommand() *cobra.Command {
	var secret, issuer, identity string
	var admin bool
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("--secret is required")
			}
			if identity == "" {
				return fmt.Errorf("--identity is required")
			}
			tok, err := auth.NewVerifier(secret, issuer).Sign(auth.Identity{ID: identity, Admin: admin}, ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "Shared signing secret")
	cmd.Flags().StringVar(&issuer, "issuer", "ledgerd", "Token issuer")
	cmd.Flags().StringVar(&identity, "identity", "", "Subject identity")
	cmd.Flags().BoolVar(&admin, "admin", false, "Grant admin standing")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
