package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/gitcore/pkg/repo"
)

func TestLoadSettings_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[log]
level = "debug"
format = "json"

[user]
name = "Settings User"
email = "settings@example.com"

[signing]
key = "~/.ssh/id_test"
sign = true
allowed_signers = ["/etc/gitcore/allowed"]
`), 0o644))

	s, err := loadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", s.Log.Level)
	assert.Equal(t, "json", s.Log.Format)
	assert.Equal(t, "Settings User", s.User.Name)
	assert.Equal(t, "settings@example.com", s.User.Email)
	assert.Equal(t, "~/.ssh/id_test", s.Signing.Key)
	assert.True(t, s.Signing.Sign)
	assert.Equal(t, []string{"/etc/gitcore/allowed"}, s.Signing.AllowedSigners)
}

func TestLoadSettings_Defaults(t *testing.T) {
	t.Setenv("GITCORE_CONFIG", filepath.Join(t.TempDir(), "absent.toml"))

	s, err := loadSettings("")
	require.NoError(t, err)
	assert.Equal(t, "warn", s.Log.Level)
	assert.Equal(t, "text", s.Log.Format)
	assert.False(t, s.Signing.Sign)
}

func TestLoadSettings_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := loadSettings(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err, "explicit missing file")

	unknown := filepath.Join(dir, "unknown.toml")
	require.NoError(t, os.WriteFile(unknown, []byte("[log]\nlevle = \"info\"\n"), 0o644))
	_, err = loadSettings(unknown)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.levle")

	broken := filepath.Join(dir, "broken.toml")
	require.NoError(t, os.WriteFile(broken, []byte("[log\n"), 0o644))
	_, err = loadSettings(broken)
	assert.Error(t, err)
}

func TestSettings_ApplyIdentity(t *testing.T) {
	r, err := repo.Init(t.TempDir())
	require.NoError(t, err)
	r.Config().Set("user.email", "repo@example.com")

	s := defaultSettings()
	s.User = UserSettings{Name: "From Settings", Email: "settings@example.com"}
	s.applyIdentity(r)

	id := r.Identity()
	assert.Equal(t, "From Settings", id.Name)
	assert.Equal(t, "repo@example.com", id.Email, "repository config wins")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := newLogger(&buf, LogSettings{Level: "info", Format: "json"})
	require.NoError(t, err)
	l.Debug("hidden")
	l.Info("shown", "k", "v")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "v", rec["k"])

	buf.Reset()
	l, err = newLogger(&buf, LogSettings{})
	require.NoError(t, err)
	l.Info("below warn")
	l.Warn("at warn")
	assert.NotContains(t, buf.String(), "below warn")
	assert.Contains(t, buf.String(), "msg=\"at warn\"")

	_, err = newLogger(&buf, LogSettings{Level: "loud"})
	assert.Error(t, err)
	_, err = newLogger(&buf, LogSettings{Format: "xml"})
	assert.Error(t, err)
}

func TestMessageFromFlags(t *testing.T) {
	assert.Equal(t, "", messageFromFlags(nil))
	assert.Equal(t, "subject\n", messageFromFlags([]string{"subject"}))
	assert.Equal(t, "subject\n\nbody\n", messageFromFlags([]string{"subject\n", "body"}))
}

func TestStripCommentLines(t *testing.T) {
	in := "Merge branch 'feature'\n\n# Conflicts:\n#\ta.txt\n"
	assert.Equal(t, "Merge branch 'feature'\n", stripCommentLines(in))
}

func TestRootCmd_Version(t *testing.T) {
	out := mustRun(t, newRootCmd(newApp()), "--config", writeEmptySettings(t), "version")
	assert.Equal(t, "gitcore 0.1.0-dev\n", out)
}

func TestRootCmd_ChdirAndOverrides(t *testing.T) {
	dir := setupCLIRepo(t)
	t.Chdir(t.TempDir())

	a := newApp()
	out := mustRun(t, newRootCmd(a), "--config", writeEmptySettings(t), "-C", dir, "--log-level", "debug", "rev-parse", "--is-bare-repository")
	assert.Equal(t, "false\n", out)
	assert.Equal(t, "debug", a.settings.Log.Level)
	assert.True(t, a.logger.Enabled(context.Background(), slog.LevelDebug))

	// A second root starts from the defaults again.
	fresh := newApp()
	assert.Equal(t, defaultSettings().Log.Level, fresh.settings.Log.Level)

	_, err := runCmd(t, newRootCmd(newApp()), "--config", writeEmptySettings(t), "--log-format", "xml", "version")
	assert.Error(t, err)
}

func writeEmptySettings(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	return path
}
