package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gitcore/pkg/diff3"
	"github.com/odvcencio/gitcore/pkg/merge"
)

func newMergeFileCmd(a *app) *cobra.Command {
	var (
		stdout    bool
		ours      bool
		theirs    bool
		union     bool
		diff3Mode bool
		labels    []string
		markers   int
	)

	cmd := &cobra.Command{
		Use:   "merge-file [options] <current> <base> <other>",
		Short: "Three-way merge of files outside a repository",
		Long: "Merge the changes from <base> to <other> into <current>, writing the\n" +
			"result over <current> unless -p is given. The exit status is the\n" +
			"number of conflicts.",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			favor := diff3.FavorNormal
			picked := 0
			for _, f := range []struct {
				set   bool
				favor diff3.Favor
			}{{ours, diff3.FavorOurs}, {theirs, diff3.FavorTheirs}, {union, diff3.FavorUnion}} {
				if f.set {
					favor = f.favor
					picked++
				}
			}
			if picked > 1 {
				return fmt.Errorf("merge-file: --ours, --theirs and --union are exclusive")
			}
			if len(labels) > 3 {
				return fmt.Errorf("merge-file: at most three -L labels")
			}
			names := [3]string{args[0], args[1], args[2]}
			copy(names[:], labels)

			var inputs [3][]byte
			for i, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("merge-file: %w", err)
				}
				inputs[i] = data
			}

			opts := merge.FileOptions{
				OurLabel:      names[0],
				AncestorLabel: names[1],
				TheirLabel:    names[2],
				Favor:         favor,
				MarkerSize:    markers,
			}
			if diff3Mode {
				opts.Style = diff3.StyleDiff3
			}
			res, err := merge.File(
				merge.FileInput{Path: args[1], Content: inputs[1]},
				merge.FileInput{Path: args[0], Content: inputs[0]},
				merge.FileInput{Path: args[2], Content: inputs[2]},
				opts,
			)
			if err != nil {
				return err
			}

			if stdout {
				if _, err := cmd.OutOrStdout().Write(res.Content); err != nil {
					return err
				}
			} else {
				info, err := os.Stat(args[0])
				if err != nil {
					return err
				}
				if err := os.WriteFile(args[0], res.Content, info.Mode().Perm()); err != nil {
					return fmt.Errorf("merge-file: %w", err)
				}
			}
			if res.Conflicts > 0 {
				a.logger.Debug("merge-file conflicts", "path", args[0], "conflicts", res.Conflicts)
				return exitError{code: min(res.Conflicts, 127)}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&stdout, "stdout", "p", false, "write the result to standard output")
	cmd.Flags().BoolVar(&ours, "ours", false, "resolve conflicts with our side")
	cmd.Flags().BoolVar(&theirs, "theirs", false, "resolve conflicts with their side")
	cmd.Flags().BoolVar(&union, "union", false, "resolve conflicts by keeping both sides")
	cmd.Flags().BoolVar(&diff3Mode, "diff3", false, "include the base section in conflict markers")
	cmd.Flags().StringArrayVarP(&labels, "label", "L", nil, "conflict label for current, base and other, in that order")
	cmd.Flags().IntVar(&markers, "marker-size", diff3.DefaultMarkerSize, "width of conflict markers")

	return cmd
}
