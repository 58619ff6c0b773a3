package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMergeBaseCmd(a *app) *cobra.Command {
	var isAncestor, all bool

	cmd := &cobra.Command{
		Use:   "merge-base [--is-ancestor | --all] <commit> <commit>",
		Short: "Find the best common ancestor of two commits",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.openRepo()
			if err != nil {
				return err
			}
			one, err := resolveCommit(r, args[0])
			if err != nil {
				return err
			}
			two, err := resolveCommit(r, args[1])
			if err != nil {
				return err
			}

			if isAncestor {
				if one == two {
					return nil
				}
				ok, err := r.IsDescendantOf(two, one)
				if err != nil {
					return err
				}
				if !ok {
					return exitError{code: 1}
				}
				return nil
			}

			bases, err := r.MergeBases(one, two)
			if err != nil {
				return err
			}
			if len(bases) == 0 {
				return exitError{code: 1}
			}
			if !all {
				bases = bases[:1]
			}
			for _, base := range bases {
				fmt.Fprintln(cmd.OutOrStdout(), base)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&isAncestor, "is-ancestor", false, "exit 0 when the first commit is an ancestor of the second")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "print every best common ancestor")

	return cmd
}
