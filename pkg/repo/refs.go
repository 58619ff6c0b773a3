package repo

import (
	"fmt"

	"github.com/odvcencio/gitcore/pkg/object"
)

// ListRefs lists references under refs/ whose full name starts with
// prefix, resolved to the ids they name. Symbolic references that do not
// resolve are skipped.
func (r *Repo) ListRefs(prefix string) (map[string]object.Hash, error) {
	list, err := r.Refs.List("refs/" + prefix)
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	out := make(map[string]object.Hash, len(list))
	for _, ref := range list {
		direct, err := r.Refs.Resolve(ref)
		if err != nil {
			r.logger.Debug("skipping unresolved ref", "ref", ref.Name, "error", err)
			continue
		}
		out[ref.Name] = direct.Target
	}
	return out, nil
}

// UpdateRef points name at h, creating it when missing. When expectedOld
// is given the update only succeeds if name currently holds it.
func (r *Repo) UpdateRef(name string, h object.Hash, msg string, expectedOld ...object.Hash) error {
	if len(expectedOld) > 1 {
		return fmt.Errorf("update ref %q: expected at most one old hash", name)
	}
	target, err := r.updateTarget(name)
	if err != nil {
		return fmt.Errorf("update ref %q: %w", name, err)
	}
	if len(expectedOld) == 1 {
		return r.Refs.CompareAndSwap(target, h, expectedOld[0], msg)
	}
	_, err = r.Refs.Create(target, h, true, msg)
	return err
}

// PackRefs moves loose references into packed-refs.
func (r *Repo) PackRefs() error {
	return r.Refs.Pack()
}

