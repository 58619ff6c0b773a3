package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gitcore/pkg/object"
)

func newHashObjectCmd(a *app) *cobra.Command {
	var (
		write    bool
		typeName string
		stdin    bool
	)

	cmd := &cobra.Command{
		Use:   "hash-object [-w] [-t <type>] (--stdin | <file>...)",
		Short: "Compute an object id and optionally store the object",
		RunE: func(cmd *cobra.Command, args []string) error {
			objType, err := object.ParseObjectType(typeName)
			if err != nil {
				return err
			}
			if !stdin && len(args) == 0 {
				return fmt.Errorf("hash-object: no input (give files or --stdin)")
			}

			algo := object.SHA1
			var store *object.Store
			if r, err := a.openRepo(); err == nil {
				algo, store = r.Algorithm(), r.Store
			} else if write {
				return err
			}

			hashOne := func(data []byte) error {
				var h object.Hash
				if write {
					// Writing parses structured types so bad input is
					// refused instead of stored.
					if objType != object.TypeBlob {
						if _, err := object.Unmarshal(algo, objType, data); err != nil {
							return err
						}
					}
					if h, err = store.Write(objType, data); err != nil {
						return err
					}
				} else {
					h = object.HashObject(algo, objType, data)
				}
				fmt.Fprintln(cmd.OutOrStdout(), h)
				return nil
			}

			if stdin {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				if err := hashOne(data); err != nil {
					return err
				}
			}
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("hash-object: %w", err)
				}
				if err := hashOne(data); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&write, "write", "w", false, "write the object into the object database")
	cmd.Flags().StringVarP(&typeName, "type", "t", "blob", "object type")
	cmd.Flags().BoolVar(&stdin, "stdin", false, "read the object from standard input")

	return cmd
}
