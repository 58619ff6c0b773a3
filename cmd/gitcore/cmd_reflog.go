package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gitcore/pkg/giterr"
)

func newReflogCmd(a *app) *cobra.Command {
	var (
		limit int
		dates bool
	)

	cmd := &cobra.Command{
		Use:   "reflog [<ref>]",
		Short: "Show ref update history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.openRepo()
			if err != nil {
				return err
			}

			ref := "HEAD"
			if len(args) == 1 {
				ref = args[0]
			}
			entries, err := r.ReadReflog(ref, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i, e := range entries {
				selector := strconv.Itoa(i)
				if dates {
					selector = e.Committer.When.UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(out, "%s %s@{%s}: %s\n", e.New.Short(7), ref, selector, e.Message)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum entries to show")
	cmd.Flags().BoolVar(&dates, "date", false, "show entry dates instead of indexes")

	cmd.AddCommand(newReflogDropCmd(a))
	return cmd
}

func newReflogDropCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "drop <ref>@{<n>}",
		Short: "Delete a single reflog entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.openRepo()
			if err != nil {
				return err
			}
			ref, n, err := parseReflogSelector(args[0])
			if err != nil {
				return err
			}
			return r.DropReflogEntry(ref, n)
		},
	}
}

// parseReflogSelector splits "main@{2}" into "main" and 2. A bare "@{2}"
// names HEAD.
func parseReflogSelector(s string) (string, int, error) {
	at := strings.LastIndex(s, "@{")
	if at < 0 || !strings.HasSuffix(s, "}") {
		return "", 0, giterr.Newf("reflog", s, giterr.ErrInvalidArgument, "want <ref>@{<n>}")
	}
	n, err := strconv.Atoi(s[at+2 : len(s)-1])
	if err != nil || n < 0 {
		return "", 0, giterr.Newf("reflog", s, giterr.ErrInvalidArgument, "bad entry index")
	}
	ref := s[:at]
	if ref == "" {
		ref = "HEAD"
	}
	return ref, n, nil
}
