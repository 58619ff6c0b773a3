package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"
)

func newVerifyCommitCmd(a *app) *cobra.Command {
	var allowed []string

	cmd := &cobra.Command{
		Use:   "verify-commit <commit>...",
		Short: "Check the SSH signatures of commits",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.openRepo()
			if err != nil {
				return err
			}
			if len(allowed) == 0 {
				allowed = a.settings.Signing.AllowedSigners
			}
			keys, err := loadAllowedSigners(allowed)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, spec := range args {
				h, err := resolveCommit(r, spec)
				if err != nil {
					return err
				}
				pub, err := r.VerifyCommitSignature(h, keys)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Good signature on %s with %s key %s\n", h.Short(7), pub.Type(), ssh.FingerprintSHA256(pub))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&allowed, "allowed-signers", nil, "authorized_keys style file of trusted keys (default: signing.allowed_signers)")

	return cmd
}
