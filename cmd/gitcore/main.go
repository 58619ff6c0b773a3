package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// app carries what the root command resolves before a subcommand runs.
// Subcommands built on their own (as in tests) see the defaults.
type app struct {
	settings Settings
	logger   *slog.Logger
}

func newApp() *app {
	return &app{settings: defaultSettings(), logger: slog.New(slog.DiscardHandler)}
}

// exitError ends the process with code without printing anything more.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func main() {
	root := newRootCmd(newApp())
	if err := root.Execute(); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(128)
	}
}

func newRootCmd(a *app) *cobra.Command {
	var (
		configPath string
		chdir      string
		logLevel   string
		logFormat  string
	)

	root := &cobra.Command{
		Use:           "gitcore",
		Short:         "A git-compatible object store and repository engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if chdir != "" {
				if err := os.Chdir(chdir); err != nil {
					return fmt.Errorf("cannot change to %q: %w", chdir, err)
				}
			}
			s, err := loadSettings(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				s.Log.Level = logLevel
			}
			if cmd.Flags().Changed("log-format") {
				s.Log.Format = logFormat
			}
			l, err := newLogger(cmd.ErrOrStderr(), s.Log)
			if err != nil {
				return err
			}
			a.settings, a.logger = s, l
			a.logger.Debug("settings loaded", "path", s.path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "settings file (default $GITCORE_CONFIG or <user config dir>/gitcore/config.toml)")
	root.PersistentFlags().StringVarP(&chdir, "chdir", "C", "", "run as if started in this directory")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")

	root.AddCommand(newVersionCmd())

	// Repository setup and plumbing.
	root.AddCommand(newInitCmd(a))
	root.AddCommand(newHashObjectCmd(a))
	root.AddCommand(newCatFileCmd(a))
	root.AddCommand(newRevParseCmd(a))
	root.AddCommand(newUpdateRefCmd(a))
	root.AddCommand(newSymbolicRefCmd(a))
	root.AddCommand(newPackRefsCmd(a))
	root.AddCommand(newReflogCmd(a))
	root.AddCommand(newLsFilesCmd(a))
	root.AddCommand(newWriteTreeCmd(a))
	root.AddCommand(newReadTreeCmd(a))
	root.AddCommand(newCommitTreeCmd(a))
	root.AddCommand(newMergeBaseCmd(a))
	root.AddCommand(newMergeFileCmd(a))

	// Porcelain.
	root.AddCommand(newAddCmd(a))
	root.AddCommand(newRmCmd(a))
	root.AddCommand(newResetCmd(a))
	root.AddCommand(newCommitCmd(a))
	root.AddCommand(newLogCmd(a))
	root.AddCommand(newBranchCmd(a))
	root.AddCommand(newTagCmd(a))
	root.AddCommand(newMergeCmd(a))
	root.AddCommand(newVerifyCmd(a))
	root.AddCommand(newVerifyCommitCmd(a))

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "gitcore 0.1.0-dev")
		},
	}
}

// newLogger builds the process logger from the log settings.
func newLogger(w io.Writer, s LogSettings) (*slog.Logger, error) {
	var level slog.Level
	name := strings.TrimSpace(s.Level)
	if name == "" {
		name = "warn"
	}
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", s.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(strings.TrimSpace(s.Format)) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("unknown log format %q", s.Format)
}
