package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/revwalk"
)

func newLogCmd(a *app) *cobra.Command {
	var (
		oneline     bool
		limit       int
		firstParent bool
		reverse     bool
		topoOrder   bool
	)

	cmd := &cobra.Command{
		Use:   "log [<revision> | <a>..<b>]...",
		Short: "Show commit history",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.openRepo()
			if err != nil {
				return err
			}

			headHash, err := r.HeadCommit()
			if err != nil {
				return err
			}
			if headHash == "" && len(args) == 0 {
				return fmt.Errorf("your current branch '%s' does not have any commits yet", headLabel(r))
			}

			w := r.Walker()
			sorting := revwalk.SortTime
			if topoOrder {
				sorting |= revwalk.SortTopological
			}
			if reverse {
				sorting |= revwalk.SortReverse
			}
			w.Sorting(sorting)
			if firstParent {
				w.SimplifyFirstParent()
			}
			if len(args) == 0 {
				args = []string{"HEAD"}
			}
			for _, spec := range args {
				switch {
				case strings.Contains(spec, ".."):
					err = w.PushRange(spec)
				case strings.HasPrefix(spec, "^"):
					var h object.Hash
					if h, err = resolveCommit(r, spec[1:]); err == nil {
						err = w.Hide(h)
					}
				default:
					var h object.Hash
					if h, err = resolveCommit(r, spec); err == nil {
						err = w.Push(h)
					}
				}
				if err != nil {
					return err
				}
			}

			branchName := headLabel(r)
			out := cmd.OutOrStdout()
			n := 0
			return w.ForEach(func(h object.Hash, c *object.Commit) error {
				if limit > 0 && n >= limit {
					return revwalk.ErrStop
				}
				n++
				decoration := buildDecoration(h, headHash, branchName)
				if oneline {
					if decoration != "" {
						fmt.Fprintf(out, "%s %s %s\n", h.Short(7), decoration, c.Summary())
					} else {
						fmt.Fprintf(out, "%s %s\n", h.Short(7), c.Summary())
					}
					return nil
				}
				printCommit(out, h, c, decoration)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&oneline, "oneline", false, "compact one-line format")
	cmd.Flags().IntVarP(&limit, "max-count", "n", 0, "maximum number of commits to show")
	cmd.Flags().BoolVar(&firstParent, "first-parent", false, "follow only the first parent of merges")
	cmd.Flags().BoolVar(&reverse, "reverse", false, "show oldest commits first")
	cmd.Flags().BoolVar(&topoOrder, "topo-order", false, "never show a parent before its children")

	return cmd
}

func printCommit(out io.Writer, h object.Hash, c *object.Commit, decoration string) {
	if decoration != "" {
		fmt.Fprintf(out, "commit %s %s\n", h, decoration)
	} else {
		fmt.Fprintf(out, "commit %s\n", h)
	}
	if len(c.Parents) > 1 {
		short := make([]string, len(c.Parents))
		for i, p := range c.Parents {
			short[i] = p.Short(7)
		}
		fmt.Fprintf(out, "Merge: %s\n", strings.Join(short, " "))
	}
	fmt.Fprintf(out, "Author: %s\n", c.Author)
	fmt.Fprintf(out, "Date:   %s\n", c.Author.When.Format("Mon Jan 2 15:04:05 2006 -0700"))
	fmt.Fprintln(out)
	for _, line := range strings.Split(strings.TrimRight(c.Message, "\n"), "\n") {
		fmt.Fprintf(out, "    %s\n", line)
	}
	fmt.Fprintln(out)
}

// buildDecoration returns a string like "(HEAD -> main)" if the commit is
// the current HEAD, or "" otherwise.
func buildDecoration(commitHash, headHash object.Hash, branchName string) string {
	if commitHash != headHash {
		return ""
	}
	if branchName != "HEAD" {
		return "(HEAD -> " + branchName + ")"
	}
	return "(HEAD)"
}
