package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gitcore/pkg/object"
)

func newReadTreeCmd(a *app) *cobra.Command {
	var empty bool

	cmd := &cobra.Command{
		Use:   "read-tree (--empty | <tree-ish>)",
		Short: "Replace the index with the contents of a tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if empty == (len(args) == 1) {
				return fmt.Errorf("read-tree: give a tree-ish or --empty")
			}
			r, err := a.openRepo()
			if err != nil {
				return err
			}
			idx, err := r.Index()
			if err != nil {
				return err
			}

			if empty {
				idx.Clear()
				return idx.Write()
			}
			h, err := r.RevParse(args[0])
			if err != nil {
				return err
			}
			tree, err := r.PeelTo(h, object.TypeTree)
			if err != nil {
				return err
			}
			if err := idx.ReadTree(r.Store, tree); err != nil {
				return err
			}
			return idx.Write()
		},
	}

	cmd.Flags().BoolVar(&empty, "empty", false, "empty the index instead of reading a tree")

	return cmd
}
