package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBranchCmd(a *app) *cobra.Command {
	var (
		deleteBranch bool
		moveBranch   bool
		force        bool
		verbose      bool
	)

	cmd := &cobra.Command{
		Use:   "branch [-f] <name> [<start>] | -d <name> | -m [<old>] <new>",
		Short: "List, create, rename or delete branches",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.openRepo()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			switch {
			case deleteBranch:
				if len(args) != 1 {
					return fmt.Errorf("branch -d: needs one branch name")
				}
				h, err := r.ResolveRef("refs/heads/" + args[0])
				if err != nil {
					return err
				}
				if err := r.DeleteBranch(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(out, "Deleted branch %s (was %s).\n", args[0], h.Short(7))
				return nil

			case moveBranch:
				oldName, newName := "", ""
				switch len(args) {
				case 1:
					if oldName, err = r.CurrentBranch(); err != nil {
						return err
					}
					if oldName == "" {
						return fmt.Errorf("branch -m: HEAD is detached; name the branch to rename")
					}
					newName = args[0]
				case 2:
					oldName, newName = args[0], args[1]
				default:
					return fmt.Errorf("branch -m: needs a new name")
				}
				return r.RenameBranch(oldName, newName, force)

			case len(args) > 0:
				start := "HEAD"
				if len(args) == 2 {
					start = args[1]
				}
				target, err := resolveCommit(r, start)
				if err != nil {
					return fmt.Errorf("not a valid object name: %q: %w", start, err)
				}
				return r.CreateBranch(args[0], target, force)
			}

			branches, err := r.ListBranches()
			if err != nil {
				return err
			}
			current, _ := r.CurrentBranch()
			for _, b := range branches {
				marker := " "
				if b == current {
					marker = "*"
				}
				if !verbose {
					fmt.Fprintf(out, "%s %s\n", marker, b)
					continue
				}
				h, err := r.ResolveRef("refs/heads/" + b)
				if err != nil {
					return err
				}
				summary := ""
				if c, err := r.Store.ReadCommit(h); err == nil {
					summary = c.Summary()
				}
				fmt.Fprintf(out, "%s %s %s %s\n", marker, b, h.Short(7), summary)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&deleteBranch, "delete", "d", false, "delete the named branch")
	cmd.Flags().BoolVarP(&moveBranch, "move", "m", false, "rename a branch")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "reset or overwrite an existing branch")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show the id and subject of each tip")

	return cmd
}
