package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gitcore/pkg/index"
)

func newLsFilesCmd(a *app) *cobra.Command {
	var (
		stage    bool
		unmerged bool
	)

	cmd := &cobra.Command{
		Use:   "ls-files [-s] [-u] [<pathspec>...]",
		Short: "Show the entries of the index",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.openRepo()
			if err != nil {
				return err
			}
			idx, err := r.Index()
			if err != nil {
				return err
			}
			ps, err := index.ParsePathspec(args)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			last := ""
			for _, e := range idx.Entries() {
				if unmerged && e.Stage == index.StageNormal {
					continue
				}
				if _, ok := ps.Match(e.Path); !ok {
					continue
				}
				if stage || unmerged {
					fmt.Fprintf(out, "%06o %s %d\t%s\n", uint32(e.Mode), e.Hash, e.Stage, e.Path)
					continue
				}
				// Conflicted paths have several entries; list them once.
				if e.Path == last {
					continue
				}
				last = e.Path
				fmt.Fprintln(out, e.Path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&stage, "stage", "s", false, "show mode, id and stage of each entry")
	cmd.Flags().BoolVarP(&unmerged, "unmerged", "u", false, "show only conflicted entries")

	return cmd
}
