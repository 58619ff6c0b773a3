package repo

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/odvcencio/gitcore/pkg/giterr"
	"github.com/odvcencio/gitcore/pkg/lockfile"
	"github.com/odvcencio/gitcore/pkg/object"
)

// Config is a git configuration file. Names use git's dotted form:
// "core.bare", "user.email", "remote.origin.url". Section and key names
// are case-insensitive; subsection names are not.
type Config struct {
	path string
	file *ini.File
}

var configLoadOptions = ini.LoadOptions{
	InsensitiveKeys:  true,
	AllowBooleanKeys: true,
}

func newConfig(path string) *Config {
	return &Config{path: path, file: ini.Empty(configLoadOptions)}
}

// loadConfig reads the config at path. A missing file is an empty config.
func loadConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return newConfig(path), nil
	}
	f, err := ini.LoadSources(configLoadOptions, path)
	if err != nil {
		return nil, giterr.Newf("read config", path, giterr.ErrCorruption, "%v", err)
	}
	return &Config{path: path, file: f}, nil
}

// splitConfigName maps "remote.origin.url" to the ini section
// `remote "origin"` and the key "url".
func splitConfigName(name string) (section, key string, err error) {
	first := strings.IndexByte(name, '.')
	last := strings.LastIndexByte(name, '.')
	if first <= 0 || last == len(name)-1 {
		return "", "", giterr.Newf("config", name, giterr.ErrInvalidArgument, "want section.key")
	}
	section = strings.ToLower(name[:first])
	if first != last {
		section += ` "` + name[first+1:last] + `"`
	}
	return section, strings.ToLower(name[last+1:]), nil
}

// Get returns the value of name and whether it is set.
func (c *Config) Get(name string) (string, bool) {
	section, key, err := splitConfigName(name)
	if err != nil {
		return "", false
	}
	sec, err := c.file.GetSection(section)
	if err != nil || !sec.HasKey(key) {
		return "", false
	}
	return sec.Key(key).String(), true
}

// String returns the value of name, or def when unset.
func (c *Config) String(name, def string) string {
	if v, ok := c.Get(name); ok {
		return v
	}
	return def
}

// Bool interprets name as a git boolean (true/yes/on/1, false/no/off/0).
// Unset or unparsable values yield def.
func (c *Config) Bool(name string, def bool) bool {
	v, ok := c.Get(name)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes", "on", "1":
		return true
	case "false", "no", "off", "0", "":
		return false
	}
	return def
}

// Int interprets name as an integer with an optional k, m or g suffix.
func (c *Config) Int(name string, def int) int {
	v, ok := c.Get(name)
	if !ok {
		return def
	}
	v = strings.ToLower(strings.TrimSpace(v))
	scale := 1
	switch {
	case strings.HasSuffix(v, "k"):
		scale, v = 1<<10, strings.TrimSuffix(v, "k")
	case strings.HasSuffix(v, "m"):
		scale, v = 1<<20, strings.TrimSuffix(v, "m")
	case strings.HasSuffix(v, "g"):
		scale, v = 1<<30, strings.TrimSuffix(v, "g")
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n * scale
}

// Set assigns name in memory. Invalid names are ignored; call Save to
// persist.
func (c *Config) Set(name, value string) {
	section, key, err := splitConfigName(name)
	if err != nil {
		return
	}
	c.file.Section(section).Key(key).SetValue(value)
}

// SetBool assigns a boolean value.
func (c *Config) SetBool(name string, v bool) {
	c.Set(name, strconv.FormatBool(v))
}

// Unset removes name. Empty sections are dropped.
func (c *Config) Unset(name string) {
	section, key, err := splitConfigName(name)
	if err != nil {
		return
	}
	sec, err := c.file.GetSection(section)
	if err != nil {
		return
	}
	sec.DeleteKey(key)
	if len(sec.Keys()) == 0 {
		c.file.DeleteSection(section)
	}
}

// Save writes the config under its lock file.
func (c *Config) Save() error {
	var buf bytes.Buffer
	if _, err := c.file.WriteTo(&buf); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := lockfile.WriteFile(c.path, buf.Bytes(), lockfile.DefaultWait); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ObjectFormat returns the repository's hash algorithm
// (extensions.objectformat, SHA-1 when unset).
func (c *Config) ObjectFormat() (object.HashAlgorithm, error) {
	v, _ := c.Get("extensions.objectformat")
	return object.ParseHashAlgorithm(v)
}

// SaveConfig persists the repository config.
func (r *Repo) SaveConfig() error {
	return r.config.Save()
}

// Identity returns the configured user as a signature stamped now.
// user.name and user.email fall back to GIT_COMMITTER_NAME and
// GIT_COMMITTER_EMAIL, then to "unknown".
func (r *Repo) Identity() object.Signature {
	name := r.config.String("user.name", os.Getenv("GIT_COMMITTER_NAME"))
	email := r.config.String("user.email", os.Getenv("GIT_COMMITTER_EMAIL"))
	if name == "" {
		name = "unknown"
	}
	if email == "" {
		email = "unknown"
	}
	return object.NewSignature(name, email)
}

func (r *Repo) committer() object.Signature { return r.Identity() }
