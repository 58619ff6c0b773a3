package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/repo"
)

func newInitCmd(a *app) *cobra.Command {
	var (
		bare          bool
		objectFormat  string
		initialBranch string
	)

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Create an empty git repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			abs, err := filepath.Abs(path)
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			if err := os.MkdirAll(abs, 0o755); err != nil {
				return fmt.Errorf("create directory: %w", err)
			}

			algo, err := object.ParseHashAlgorithm(objectFormat)
			if err != nil {
				return err
			}
			r, err := repo.InitWithOptions(abs, repo.InitOptions{
				Bare:          bare,
				ObjectFormat:  algo,
				DefaultBranch: initialBranch,
				Logger:        a.logger,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Initialized empty Git repository in %s\n", r.GitDir+string(filepath.Separator))
			return nil
		},
	}

	cmd.Flags().BoolVar(&bare, "bare", false, "create a bare repository")
	cmd.Flags().StringVar(&objectFormat, "object-format", "sha1", "object id format: sha1 or sha256")
	cmd.Flags().StringVarP(&initialBranch, "initial-branch", "b", "", "name of the unborn branch HEAD points at")

	return cmd
}
