package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRmCmd(a *app) *cobra.Command {
	var (
		cached bool
		quiet  bool
	)

	cmd := &cobra.Command{
		Use:   "rm [--cached] <pathspec>...",
		Short: "Remove files from the index and the working tree",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.openRepo()
			if err != nil {
				return err
			}
			removed, err := r.Remove(args, cached)
			if err != nil {
				return err
			}
			if !quiet {
				for _, p := range removed {
					fmt.Fprintf(cmd.OutOrStdout(), "rm '%s'\n", p)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&cached, "cached", false, "only remove from the index")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not list removed files")

	return cmd
}
