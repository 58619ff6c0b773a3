package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newTagCmd(a *app) *cobra.Command {
	var (
		deleteTag bool
		force     bool
		annotate  bool
		messages  []string
		list      bool
	)

	cmd := &cobra.Command{
		Use:   "tag [-a] [-m <msg>] [-f] <name> [<target>] | -d <name>... | -l",
		Short: "List, create or delete tags",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.openRepo()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if deleteTag {
				if len(args) == 0 {
					return fmt.Errorf("tag -d: needs tag names")
				}
				for _, name := range args {
					h, err := r.ResolveTag(name)
					if err != nil {
						return err
					}
					if err := r.DeleteTag(name); err != nil {
						return err
					}
					fmt.Fprintf(out, "Deleted tag '%s' (was %s)\n", name, h.Short(7))
				}
				return nil
			}

			if list || len(args) == 0 {
				tags, err := r.ListTags()
				if err != nil {
					return err
				}
				for _, name := range tags {
					if len(args) == 1 && !strings.HasPrefix(name, args[0]) {
						continue
					}
					fmt.Fprintln(out, name)
				}
				return nil
			}
			if len(args) > 2 {
				return fmt.Errorf("tag: too many arguments")
			}

			name, target := args[0], "HEAD"
			if len(args) == 2 {
				target = args[1]
			}
			h, err := r.RevParse(target)
			if err != nil {
				return err
			}
			if !annotate && len(messages) == 0 {
				return r.CreateLightweightTag(name, h, force)
			}
			if len(messages) == 0 {
				return fmt.Errorf("tag -a: a message is required (-m)")
			}
			tagger := r.Identity()
			_, err = r.CreateTag(name, h, &tagger, messageFromFlags(messages), force)
			return err
		},
	}

	cmd.Flags().BoolVarP(&deleteTag, "delete", "d", false, "delete the named tags")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "replace an existing tag")
	cmd.Flags().BoolVarP(&annotate, "annotate", "a", false, "create an annotated tag object")
	cmd.Flags().StringArrayVarP(&messages, "message", "m", nil, "tag message (implies -a)")
	cmd.Flags().BoolVarP(&list, "list", "l", false, "list tags, optionally those starting with a prefix")

	return cmd
}
