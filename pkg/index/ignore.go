package index

import (
	"bufio"
	"bytes"
	"errors"
	"io/fs"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/gobwas/glob"
)

// IgnoreFile is the per-directory exclude file name.
const IgnoreFile = ".gitignore"

// IgnoreChecker decides whether untracked worktree paths are excluded.
// The .git directory is always ignored. Patterns follow gitignore rules:
// the last matching pattern wins, "!" negates, a trailing "/" matches
// directories only, a pattern containing "/" is anchored to the directory
// of its file, and once a directory is excluded nothing below it can be
// re-included.
type IgnoreChecker struct {
	patterns []ignorePattern
	loaded   map[string]bool
}

type ignorePattern struct {
	base     string // directory of the defining file, "" or "dir/"
	pattern  string
	negated  bool
	dirOnly  bool
	hasSlash bool
	globs    []glob.Glob
}

// NewIgnoreChecker returns a checker that ignores only .git.
func NewIgnoreChecker() *IgnoreChecker {
	return &IgnoreChecker{loaded: make(map[string]bool)}
}

// AddPatterns parses gitignore-format data as if read from dir/.gitignore.
func (ic *IgnoreChecker) AddPatterns(dir string, data []byte) {
	base := strings.Trim(dir, "/")
	if base != "" {
		base += "/"
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if p := parseIgnoreLine(sc.Text()); p != nil {
			p.base = base
			ic.patterns = append(ic.patterns, *p)
		}
	}
}

// LoadDir reads dir/.gitignore from fsys once. A missing file is not an
// error.
func (ic *IgnoreChecker) LoadDir(fsys billy.Filesystem, dir string) error {
	if ic.loaded[dir] {
		return nil
	}
	ic.loaded[dir] = true
	data, err := util.ReadFile(fsys, path.Join(dir, IgnoreFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	ic.AddPatterns(dir, data)
	return nil
}

// gitignore has no brace alternation.
var braceEscaper = strings.NewReplacer("{", `\{`, "}", `\}`)

// parseIgnoreLine returns nil for blank lines and comments.
func parseIgnoreLine(line string) *ignorePattern {
	line = strings.TrimRight(line, "\r")
	if !strings.HasSuffix(line, "\\ ") {
		line = strings.TrimRight(line, " \t")
	}
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}

	p := &ignorePattern{}
	if strings.HasPrefix(line, "!") {
		p.negated = true
		line = line[1:]
	} else if strings.HasPrefix(line, `\!`) || strings.HasPrefix(line, `\#`) {
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	p.hasSlash = strings.Contains(line, "/")
	line = strings.TrimPrefix(line, "/")
	if line == "" {
		return nil
	}
	p.pattern = line

	var alts []string
	if p.hasSlash {
		alts = append(alts, line)
		// "**/" may match zero directories.
		if rest, ok := strings.CutPrefix(line, "**/"); ok {
			alts = append(alts, rest)
		}
		if strings.Contains(line, "/**/") {
			alts = append(alts, strings.ReplaceAll(line, "/**/", "/"))
		}
	} else {
		alts = append(alts, line)
	}
	for _, a := range alts {
		g, err := glob.Compile(braceEscaper.Replace(a), '/')
		if err != nil {
			return nil
		}
		p.globs = append(p.globs, g)
	}
	return p
}

// IsIgnored reports whether the slash-separated relative path is excluded.
func (ic *IgnoreChecker) IsIgnored(p string, isDir bool) bool {
	p = strings.Trim(p, "/")
	if p == "" {
		return false
	}
	first, _, _ := strings.Cut(p, "/")
	if first == ".git" {
		return true
	}
	// An excluded parent excludes everything beneath it.
	for i := 0; i < len(p); i++ {
		if p[i] == '/' && ic.match(p[:i], true) {
			return true
		}
	}
	return ic.match(p, isDir)
}

// match applies the patterns to one path; the last match decides.
func (ic *IgnoreChecker) match(p string, isDir bool) bool {
	ignored := false
	for i := range ic.patterns {
		pat := &ic.patterns[i]
		if pat.matches(p, isDir) {
			ignored = !pat.negated
		}
	}
	return ignored
}

func (pat *ignorePattern) matches(p string, isDir bool) bool {
	if pat.dirOnly && !isDir {
		return false
	}
	rel, ok := strings.CutPrefix(p, pat.base)
	if !ok {
		return false
	}
	target := rel
	if !pat.hasSlash {
		target = path.Base(rel)
	}
	for _, g := range pat.globs {
		if g.Match(target) {
			return true
		}
	}
	return false
}
