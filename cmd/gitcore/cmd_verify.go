package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check object integrity and connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.openRepo()
			if err != nil {
				return err
			}

			report, err := r.Verify()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, h := range report.Corrupt {
				fmt.Fprintf(out, "corrupt %s\n", h)
			}
			for _, h := range report.Missing {
				fmt.Fprintf(out, "missing %s\n", h)
			}
			if !report.OK() {
				return fmt.Errorf("verify: %d corrupt and %d missing object(s)", len(report.Corrupt), len(report.Missing))
			}
			fmt.Fprintf(
				out,
				"ok: checked %d object(s), %d reachable from %d ref(s), %d dangling\n",
				report.Checked,
				report.Reachable,
				report.Refs,
				report.Dangling,
			)
			return nil
		},
	}
}
