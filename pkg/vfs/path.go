package vfs

import (
	"path"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// Normalize cleans name into the canonical slash-separated form used by
// backends: "." for the root, no leading or trailing slashes, no "." or
// ".." elements. Leading slashes are tolerated and stripped so callers can
// pass "/a/b" and "a/b" interchangeably.
func Normalize(name string) (string, error) {
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ".", nil
	}
	cleaned := path.Clean(name)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.Errorf("%q escapes the backend root: %w", name, ErrInvalidPath)
	}
	return cleaned, nil
}

// Split returns the path elements of a normalized name. The root "." has no
// elements.
func Split(name string) []string {
	if name == "." || name == "" {
		return nil
	}
	return strings.Split(name, "/")
}

// Ancestors returns every proper ancestor of name plus name itself, from
// shallowest to deepest, excluding the root. For "a/b/c" it returns
// ["a", "a/b", "a/b/c"].
func Ancestors(name string) []string {
	elems := Split(name)
	out := make([]string, 0, len(elems))
	for i := range elems {
		out = append(out, strings.Join(elems[:i+1], "/"))
	}
	return out
}

// IsAncestor reports whether ancestor is a proper ancestor of name. The
// root "." is an ancestor of everything but itself.
func IsAncestor(ancestor, name string) bool {
	if ancestor == name {
		return false
	}
	if ancestor == "." {
		return name != "."
	}
	return strings.HasPrefix(name, ancestor+"/")
}

// Rebase translates name from under fromPrefix to under toPrefix. name must
// equal fromPrefix or live beneath it.
func Rebase(name, fromPrefix, toPrefix string) (string, error) {
	if name == fromPrefix {
		return toPrefix, nil
	}
	if !IsAncestor(fromPrefix, name) {
		return "", errors.Errorf("%q is not under %q: %w", name, fromPrefix, ErrInvalidPath)
	}
	rel := name
	if fromPrefix != "." {
		rel = strings.TrimPrefix(name, fromPrefix+"/")
	}
	if toPrefix == "." {
		return rel, nil
	}
	return path.Join(toPrefix, rel), nil
}

// Base returns the last element of a normalized name.
func Base(name string) string {
	return path.Base(name)
}

// Parent returns the parent of a normalized name, or "." at the root.
func Parent(name string) string {
	dir := path.Dir(name)
	if dir == "/" || dir == "" {
		return "."
	}
	return dir
}
