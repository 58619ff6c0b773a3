package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAddCmd(a *app) *cobra.Command {
	var (
		force   bool
		verbose bool
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "add <pathspec>...",
		Short: "Stage file contents for the next commit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.openRepo()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return r.AddAll(args, force, func(path, _ string) (bool, error) {
				if verbose || dryRun {
					fmt.Fprintf(out, "add '%s'\n", path)
				}
				return dryRun, nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "add ignored files too")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list staged paths")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "list the paths that would be staged without staging them")

	return cmd
}
