package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gitcore/pkg/repo"
)

func newCommitCmd(a *app) *cobra.Command {
	var (
		messages []string
		sign     bool
		keyPath  string
	)

	cmd := &cobra.Command{
		Use:   "commit -m <message>",
		Short: "Record the index as a new commit on the current branch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.openRepo()
			if err != nil {
				return err
			}

			message := messageFromFlags(messages)
			if len(messages) == 0 {
				// Concluding a merge reuses the prepared message.
				state, err := r.State()
				if err != nil {
					return err
				}
				if state == repo.StateMerge {
					message, err = r.MergeMessage()
					if err != nil {
						return err
					}
					message = stripCommentLines(message)
				}
			}
			if strings.TrimSpace(message) == "" {
				return fmt.Errorf("commit message is required (-m)")
			}

			signer, err := a.commitSigner(sign, keyPath)
			if err != nil {
				return err
			}
			h, err := r.CommitWithSigner(message, signer)
			if err != nil {
				return err
			}

			c, err := r.Store.ReadCommit(h)
			if err != nil {
				return err
			}
			label := headLabel(r)
			if len(c.Parents) == 0 {
				label += " (root-commit)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s %s] %s\n", label, h.Short(7), c.Summary())
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&messages, "message", "m", nil, "commit message paragraph (repeatable)")
	cmd.Flags().BoolVarP(&sign, "gpg-sign", "S", false, "sign the commit with an SSH key")
	cmd.Flags().StringVar(&keyPath, "signing-key", "", "SSH private key used with -S")

	return cmd
}

// stripCommentLines drops "#" lines, as git does with the default
// cleanup mode.
func stripCommentLines(msg string) string {
	var b strings.Builder
	for _, line := range strings.SplitAfter(msg, "\n") {
		if strings.HasPrefix(line, "#") {
			continue
		}
		b.WriteString(line)
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
