package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gitcore/pkg/refs"
)

func newRevParseCmd(a *app) *cobra.Command {
	var (
		short     int
		abbrevRef bool
		verify    bool
		gitDir    bool
		topLevel  bool
		isBare    bool
	)

	cmd := &cobra.Command{
		Use:   "rev-parse [options] <rev>...",
		Short: "Resolve revisions to object ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.openRepo()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			switch {
			case gitDir:
				fmt.Fprintln(out, r.GitDir)
				return nil
			case topLevel:
				if r.Bare() {
					return fmt.Errorf("this operation must be run in a work tree")
				}
				fmt.Fprintln(out, r.RootDir)
				return nil
			case isBare:
				fmt.Fprintln(out, r.Bare())
				return nil
			}

			if verify && len(args) != 1 {
				return fmt.Errorf("rev-parse --verify: needs a single revision")
			}
			for _, spec := range args {
				if abbrevRef {
					name := spec
					if spec == refs.HEAD || spec == "@" {
						if name, err = r.HeadName(); err != nil {
							return err
						}
					}
					fmt.Fprintln(out, refs.ShortName(name))
					continue
				}
				h, err := r.RevParse(spec)
				if err != nil {
					if verify {
						return fmt.Errorf("needed a single revision: %w", err)
					}
					return err
				}
				s := string(h)
				if short > 0 && short < len(s) {
					s = s[:max(short, 4)]
				}
				fmt.Fprintln(out, s)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&short, "short", 0, "abbreviate ids to this many hex digits")
	cmd.Flags().Lookup("short").NoOptDefVal = "7"
	cmd.Flags().BoolVar(&abbrevRef, "abbrev-ref", false, "print short reference names instead of ids")
	cmd.Flags().BoolVar(&verify, "verify", false, "require exactly one resolvable revision")
	cmd.Flags().BoolVar(&gitDir, "git-dir", false, "print the git directory")
	cmd.Flags().BoolVar(&topLevel, "show-toplevel", false, "print the top of the work tree")
	cmd.Flags().BoolVar(&isBare, "is-bare-repository", false, "print whether the repository is bare")

	return cmd
}
