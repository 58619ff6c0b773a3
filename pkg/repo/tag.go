package repo

import (
	"fmt"
	"strings"

	"github.com/odvcencio/gitcore/pkg/giterr"
	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/refs"
)

// CreateLightweightTag creates or updates refs/tags/<name> pointing
// directly at target.
func (r *Repo) CreateLightweightTag(name string, target object.Hash, force bool) error {
	refName, err := tagRefName("create tag", name)
	if err != nil {
		return err
	}
	if !r.Store.Has(target) {
		return giterr.New("create tag", string(target), giterr.ErrNotFound)
	}
	if _, err := r.Refs.Create(refName, target, force, ""); err != nil {
		return fmt.Errorf("create tag %q: %w", name, err)
	}
	return nil
}

// CreateTag writes an annotated tag object naming target and points
// refs/tags/<name> at it. The tagger is the configured identity when nil.
func (r *Repo) CreateTag(name string, target object.Hash, tagger *object.Signature, message string, force bool) (object.Hash, error) {
	refName, err := tagRefName("create annotated tag", name)
	if err != nil {
		return "", err
	}
	targetType, _, err := r.Store.ReadHeader(target)
	if err != nil {
		return "", fmt.Errorf("create annotated tag: read target %s: %w", target, err)
	}
	if !force && r.Refs.Exists(refName) {
		return "", giterr.New("create annotated tag", name, giterr.ErrAlreadyExists)
	}
	if tagger == nil {
		who := r.Identity()
		tagger = &who
	}
	if message != "" && !strings.HasSuffix(message, "\n") {
		message += "\n"
	}

	tagHash, err := r.Store.WriteTag(&object.Tag{
		Target:     target,
		TargetType: targetType,
		Name:       name,
		Tagger:     tagger,
		Message:    message,
	})
	if err != nil {
		return "", fmt.Errorf("create annotated tag: write tag object: %w", err)
	}
	if _, err := r.Refs.Create(refName, tagHash, force, ""); err != nil {
		return "", fmt.Errorf("create annotated tag: %w", err)
	}
	return tagHash, nil
}

// DeleteTag removes refs/tags/<name>.
func (r *Repo) DeleteTag(name string) error {
	refName, err := tagRefName("delete tag", name)
	if err != nil {
		return err
	}
	if err := r.Refs.Delete(refName); err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	return nil
}

// ResolveTag resolves a tag name under refs/tags/ to the object the
// reference holds (the tag object for annotated tags).
func (r *Repo) ResolveTag(name string) (object.Hash, error) {
	refName, err := tagRefName("resolve tag", name)
	if err != nil {
		return "", err
	}
	return r.Refs.ResolveName(refName)
}

// ListTags lists tag names sorted alphabetically.
func (r *Repo) ListTags() ([]string, error) {
	list, err := r.Refs.List(refs.TagsPrefix)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	names := make([]string, 0, len(list))
	for _, ref := range list {
		names = append(names, strings.TrimPrefix(ref.Name, refs.TagsPrefix))
	}
	return names, nil
}

// Peel dereferences annotated tags starting at h and returns the first
// object that is not a tag.
func (r *Repo) Peel(h object.Hash) (object.Hash, error) {
	peeled, err := r.peelTag(h)
	if err != nil {
		return "", fmt.Errorf("peel %s: %w", h, err)
	}
	return peeled, nil
}

func tagRefName(op, name string) (string, error) {
	refName := refs.TagsPrefix + name
	if name == "" || !refs.ValidName(refName) {
		return "", giterr.New(op, name, giterr.ErrInvalidArgument)
	}
	return refName, nil
}
