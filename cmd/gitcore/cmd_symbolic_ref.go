package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gitcore/pkg/giterr"
	"github.com/odvcencio/gitcore/pkg/refs"
)

func newSymbolicRefCmd(a *app) *cobra.Command {
	var (
		message string
		short   bool
		del     bool
	)

	cmd := &cobra.Command{
		Use:   "symbolic-ref [-m <reason>] <name> [<ref>]",
		Short: "Read, modify or delete a symbolic reference",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.openRepo()
			if err != nil {
				return err
			}
			name := args[0]

			if del {
				if name == refs.HEAD {
					return giterr.Newf("symbolic-ref", name, giterr.ErrInvalidArgument, "refusing to delete HEAD")
				}
				return r.Refs.Delete(name)
			}

			if len(args) == 2 {
				if name == refs.HEAD {
					return r.SetHead(args[1])
				}
				_, err := r.Refs.CreateSymbolic(name, args[1], true, message)
				return err
			}

			ref, err := r.Refs.Lookup(name)
			if err != nil {
				return err
			}
			if !ref.IsSymbolic() {
				return giterr.Newf("symbolic-ref", name, giterr.ErrInvalidArgument, "not a symbolic ref")
			}
			target := ref.Symbolic
			if short {
				target = refs.ShortName(target)
			}
			fmt.Fprintln(cmd.OutOrStdout(), target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "reflog message")
	cmd.Flags().BoolVar(&short, "short", false, "print the target's short name")
	cmd.Flags().BoolVarP(&del, "delete", "d", false, "delete the symbolic reference")

	return cmd
}
