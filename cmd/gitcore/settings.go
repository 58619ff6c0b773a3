package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/odvcencio/gitcore/pkg/repo"
)

// Settings are per-user CLI preferences. Repository behavior stays in
// .git/config; these only fill gaps there and configure the tool itself.
type Settings struct {
	Log     LogSettings     `toml:"log"`
	User    UserSettings    `toml:"user"`
	Signing SigningSettings `toml:"signing"`

	path string
}

type LogSettings struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// UserSettings supply an identity for repositories without user.name or
// user.email.
type UserSettings struct {
	Name  string `toml:"name"`
	Email string `toml:"email"`
}

type SigningSettings struct {
	// Key is an SSH private key path. Empty means the first of
	// ~/.ssh/id_ed25519, id_ecdsa and id_rsa.
	Key string `toml:"key"`
	// Sign signs every commit as if -S were given.
	Sign bool `toml:"sign"`
	// AllowedSigners lists authorized_keys style files whose keys
	// verify-commit trusts.
	AllowedSigners []string `toml:"allowed_signers"`
}

func defaultSettings() Settings {
	return Settings{Log: LogSettings{Level: "warn", Format: "text"}}
}

func defaultSettingsPath() (string, error) {
	if p := os.Getenv("GITCORE_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "gitcore", "config.toml"), nil
}

// loadSettings reads the settings file at path, or the default location
// when path is empty. A missing default file yields the defaults; a
// missing explicit file is an error. Unknown keys are rejected.
func loadSettings(path string) (Settings, error) {
	s := defaultSettings()
	explicit := path != ""
	if !explicit {
		p, err := defaultSettingsPath()
		if err != nil {
			return s, nil
		}
		path = p
	}
	s.path = path

	md, err := toml.DecodeFile(path, &s)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return s, nil
		}
		return s, fmt.Errorf("settings %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return s, fmt.Errorf("settings %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return s, nil
}

// applyIdentity fills user.name and user.email in memory when the
// repository config leaves them unset.
func (s Settings) applyIdentity(r *repo.Repo) {
	cfg := r.Config()
	if _, ok := cfg.Get("user.name"); !ok && s.User.Name != "" {
		cfg.Set("user.name", s.User.Name)
	}
	if _, ok := cfg.Get("user.email"); !ok && s.User.Email != "" {
		cfg.Set("user.email", s.User.Email)
	}
}
