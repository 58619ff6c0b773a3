package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gitcore/pkg/object"
)

func newCommitTreeCmd(a *app) *cobra.Command {
	var (
		parents  []string
		messages []string
		sign     bool
		keyPath  string
	)

	cmd := &cobra.Command{
		Use:   "commit-tree <tree> [-p <parent>]... [-m <message>]...",
		Short: "Create a commit object from a tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.openRepo()
			if err != nil {
				return err
			}
			h, err := r.RevParse(args[0])
			if err != nil {
				return err
			}
			tree, err := r.PeelTo(h, object.TypeTree)
			if err != nil {
				return err
			}

			var parentIDs []object.Hash
			for _, p := range parents {
				id, err := resolveCommit(r, p)
				if err != nil {
					return err
				}
				parentIDs = append(parentIDs, id)
			}

			message := messageFromFlags(messages)
			if len(messages) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read message: %w", err)
				}
				message = string(data)
			}

			signer, err := a.commitSigner(sign, keyPath)
			if err != nil {
				return err
			}
			who := r.Identity()
			commit, err := r.CreateCommit("", who, who, message, tree, parentIDs, signer)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), commit)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&parents, "parent", "p", nil, "parent commit (repeatable)")
	cmd.Flags().StringArrayVarP(&messages, "message", "m", nil, "commit message paragraph (default: read from stdin)")
	cmd.Flags().BoolVarP(&sign, "gpg-sign", "S", false, "sign the commit with an SSH key")
	cmd.Flags().StringVar(&keyPath, "signing-key", "", "SSH private key used with -S")

	return cmd
}
