package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/repo"
)

func newCatFileCmd(a *app) *cobra.Command {
	var (
		showType   bool
		showSize   bool
		pretty     bool
		existsOnly bool
	)

	cmd := &cobra.Command{
		Use:   "cat-file (-t | -s | -p | -e | <type>) <object>",
		Short: "Show the content, type or size of an object",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.openRepo()
			if err != nil {
				return err
			}

			modes := 0
			for _, set := range []bool{showType, showSize, pretty, existsOnly} {
				if set {
					modes++
				}
			}
			var want object.ObjectType
			if len(args) == 2 {
				if want, err = object.ParseObjectType(args[0]); err != nil {
					return err
				}
				modes++
			}
			if modes != 1 {
				return fmt.Errorf("cat-file: give exactly one of -t, -s, -p, -e or a type")
			}

			h, err := r.RevParse(args[len(args)-1])
			if existsOnly {
				if err != nil || !r.Store.Has(h) {
					return exitError{code: 1}
				}
				return nil
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case showType, showSize:
				objType, size, err := r.Store.ReadHeader(h)
				if err != nil {
					return err
				}
				if showType {
					fmt.Fprintln(out, objType)
				} else {
					fmt.Fprintln(out, size)
				}
				return nil
			case pretty:
				return prettyPrintObject(out, r, h)
			}

			// cat-file <type> peels tags and commits down to the type asked.
			if h, err = r.PeelTo(h, want); err != nil {
				return err
			}
			_, data, err := r.Store.Read(h)
			if err != nil {
				return err
			}
			_, err = out.Write(data)
			return err
		},
	}

	cmd.Flags().BoolVarP(&showType, "type", "t", false, "show the object type")
	cmd.Flags().BoolVarP(&showSize, "size", "s", false, "show the object size")
	cmd.Flags().BoolVarP(&pretty, "pretty", "p", false, "pretty-print the object content")
	cmd.Flags().BoolVarP(&existsOnly, "exists", "e", false, "exit with status 0 when the object exists")

	return cmd
}

func prettyPrintObject(out io.Writer, r *repo.Repo, h object.Hash) error {
	objType, data, err := r.Store.Read(h)
	if err != nil {
		return err
	}
	if objType != object.TypeTree {
		_, err = out.Write(data)
		return err
	}
	tree, err := object.UnmarshalTree(r.Algorithm(), data)
	if err != nil {
		return err
	}
	for _, e := range tree.Entries {
		kind := object.TypeBlob
		switch e.Mode {
		case object.ModeTree:
			kind = object.TypeTree
		case object.ModeGitlink:
			kind = object.TypeCommit
		}
		fmt.Fprintf(out, "%06o %s %s\t%s\n", uint32(e.Mode), kind, e.Hash, e.Name)
	}
	return nil
}
