package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gitcore/pkg/diff3"
	"github.com/odvcencio/gitcore/pkg/merge"
	"github.com/odvcencio/gitcore/pkg/repo"
)

func newMergeCmd(a *app) *cobra.Command {
	var (
		noFF      bool
		ffOnly    bool
		noCommit  bool
		abort     bool
		messages  []string
		strategy  string
		diff3Mode bool
		renames   int
		sign      bool
		keyPath   string
	)

	cmd := &cobra.Command{
		Use:   "merge [options] <commit>",
		Short: "Merge a commit into the current branch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.openRepo()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if abort {
				state, err := r.State()
				if err != nil {
					return err
				}
				if state != repo.StateMerge {
					return fmt.Errorf("there is no merge to abort (MERGE_HEAD missing)")
				}
				if err := r.Reset(nil); err != nil {
					return err
				}
				return r.StateCleanup()
			}
			if len(args) != 1 {
				return fmt.Errorf("merge: needs a commit to merge")
			}

			favor, err := parseFavor(strategy)
			if err != nil {
				return err
			}
			signer, err := a.commitSigner(sign, keyPath)
			if err != nil {
				return err
			}
			opts := repo.MergeOptions{
				Trees: merge.Options{
					FindRenames:     renames >= 0,
					RenameThreshold: renames,
					FileFavor:       favor,
					Logger:          a.logger,
				},
				NoCommit:        noCommit,
				NoFastForward:   noFF,
				FastForwardOnly: ffOnly,
				Signer:          signer,
			}
			if diff3Mode {
				opts.Trees.FileStyle = diff3.StyleDiff3
			}
			if len(messages) > 0 {
				opts.Message = messageFromFlags(messages)
			}

			before, err := r.HeadCommit()
			if err != nil {
				return err
			}
			report, err := r.Merge(args[0], opts)
			if err != nil {
				return err
			}

			switch {
			case report.Analysis.Has(merge.AnalysisUpToDate):
				fmt.Fprintln(out, "Already up to date.")
			case report.FastForward:
				after, err := r.HeadCommit()
				if err != nil {
					return err
				}
				if before != "" {
					fmt.Fprintf(out, "Updating %s..%s\n", before.Short(7), after.Short(7))
				}
				fmt.Fprintln(out, "Fast-forward")
			case report.HasConflicts:
				for _, f := range report.Files {
					fmt.Fprintf(out, "CONFLICT (%s): %s\n", f.Status, f.Path)
				}
				fmt.Fprintf(out, "Automatic merge failed with %s; fix conflicts and then commit the result.\n", plural(report.TotalConflicts, "conflict"))
				return exitError{code: 1}
			case noCommit:
				fmt.Fprintln(out, "Automatic merge went well; stopped before committing as requested")
			default:
				c, err := r.Store.ReadCommit(report.MergeCommit)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Merge made by the three-way strategy.\n[%s %s] %s\n", headLabel(r), report.MergeCommit.Short(7), c.Summary())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noFF, "no-ff", false, "create a merge commit even when a fast-forward is possible")
	cmd.Flags().BoolVar(&ffOnly, "ff-only", false, "refuse to merge unless it is a fast-forward")
	cmd.Flags().BoolVar(&noCommit, "no-commit", false, "stage the result without committing it")
	cmd.Flags().BoolVar(&abort, "abort", false, "abandon an in-progress merge and restore the index")
	cmd.Flags().StringArrayVarP(&messages, "message", "m", nil, "merge commit message")
	cmd.Flags().StringVarP(&strategy, "strategy-option", "X", "", "resolve conflicting hunks with ours, theirs or union")
	cmd.Flags().BoolVar(&diff3Mode, "diff3", false, "include the ancestor section in conflict markers")
	cmd.Flags().IntVar(&renames, "find-renames", merge.DefaultRenameThreshold, "rename similarity threshold in percent; negative disables rename detection")
	cmd.Flags().BoolVarP(&sign, "gpg-sign", "S", false, "sign the merge commit with an SSH key")
	cmd.Flags().StringVar(&keyPath, "signing-key", "", "SSH private key used with -S")

	return cmd
}

func parseFavor(s string) (diff3.Favor, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return diff3.FavorNormal, nil
	case "ours":
		return diff3.FavorOurs, nil
	case "theirs":
		return diff3.FavorTheirs, nil
	case "union":
		return diff3.FavorUnion, nil
	}
	return 0, fmt.Errorf("unknown strategy option %q (want ours, theirs or union)", s)
}
