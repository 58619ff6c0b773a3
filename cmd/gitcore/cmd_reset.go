package main

import (
	"github.com/spf13/cobra"
)

func newResetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset [<path>...]",
		Short: "Reset index entries to HEAD, leaving the working tree alone",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.openRepo()
			if err != nil {
				return err
			}
			return r.Reset(args)
		},
	}
}
