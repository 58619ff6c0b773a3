package main

import (
	"github.com/spf13/cobra"
)

func newPackRefsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pack-refs",
		Short: "Move loose references into packed-refs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.openRepo()
			if err != nil {
				return err
			}
			return r.PackRefs()
		},
	}
}
