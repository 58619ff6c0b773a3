package main

import (
	"fmt"
	"strings"

	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/refs"
	"github.com/odvcencio/gitcore/pkg/repo"
)

// openRepo opens the repository around the working directory with the
// app's logger and identity overrides.
func (a *app) openRepo() (*repo.Repo, error) {
	r, err := repo.OpenWithOptions(".", repo.Options{Logger: a.logger})
	if err != nil {
		return nil, err
	}
	a.settings.applyIdentity(r)
	return r, nil
}

// resolveCommit resolves a revision and peels it to a commit.
func resolveCommit(r *repo.Repo, spec string) (object.Hash, error) {
	h, err := r.RevParse(spec)
	if err != nil {
		return "", err
	}
	return r.PeelTo(h, object.TypeCommit)
}

// headLabel names HEAD for messages: the branch, or "HEAD" when detached.
func headLabel(r *repo.Repo) string {
	name, err := r.HeadName()
	if err == nil && strings.HasPrefix(name, refs.HeadsPrefix) {
		return strings.TrimPrefix(name, refs.HeadsPrefix)
	}
	return "HEAD"
}

// messageFromFlags joins repeated -m values into paragraphs, as git does.
func messageFromFlags(parts []string) string {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strings.TrimRight(p, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
