package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gitcore/pkg/giterr"
	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/repo"
)

func newUpdateRefCmd(a *app) *cobra.Command {
	var (
		message string
		del     bool
	)

	cmd := &cobra.Command{
		Use:   "update-ref [-m <reason>] (-d <ref> [<old>] | <ref> <new> [<old>])",
		Short: "Update the object a reference points at",
		Args:  cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.openRepo()
			if err != nil {
				return err
			}
			name := args[0]

			if del {
				if len(args) > 2 {
					return fmt.Errorf("update-ref -d: too many arguments")
				}
				if len(args) == 2 {
					old, err := parseRefValue(r, args[1])
					if err != nil {
						return err
					}
					current, err := r.Refs.ResolveName(name)
					if err != nil {
						return err
					}
					if current != old {
						return giterr.Newf("update-ref", name, giterr.ErrCASMismatch, "is at %s but expected %s", current, old)
					}
				}
				return r.Refs.Delete(name)
			}

			if len(args) < 2 {
				return fmt.Errorf("update-ref: missing new value")
			}
			target, err := parseRefValue(r, args[1])
			if err != nil {
				return err
			}
			var expected []object.Hash
			if len(args) == 3 {
				old, err := parseRefValue(r, args[2])
				if err != nil {
					return err
				}
				expected = append(expected, old)
			}
			return r.UpdateRef(name, target, message, expected...)
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "reflog message")
	cmd.Flags().BoolVarP(&del, "delete", "d", false, "delete the reference")

	return cmd
}

// parseRefValue resolves a revision, accepting the all-zero id as "must
// not exist".
func parseRefValue(r *repo.Repo, spec string) (object.Hash, error) {
	if spec != "" && strings.Trim(spec, "0") == "" {
		return r.Algorithm().ZeroHash(), nil
	}
	return r.RevParse(spec)
}
