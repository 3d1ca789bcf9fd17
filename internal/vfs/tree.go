// Package vfs implements the in-memory virtual filesystem that backs a
// previewfs workspace: a single-rooted tree of files and directories
// addressed by normalized slash-separated paths, with atomic CRUD
// operations and a lossless snapshot codec.
package vfs

import (
	"fmt"
	"sort"
)

// EntryKind distinguishes files from directories.
type EntryKind string

const (
	KindFile      EntryKind = "file"
	KindDirectory EntryKind = "directory"
)

// entry is a single node. Files carry content and no children;
// directories carry children and no content.
type entry struct {
	name     string
	kind     EntryKind
	content  string
	children map[string]*entry
}

func newDir(name string) *entry {
	return &entry{name: name, kind: KindDirectory, children: make(map[string]*entry)}
}

// Tree is the in-memory hierarchical store. It owns exactly one root
// directory at "/" and every entry under it exclusively; it is not safe
// for concurrent use. Callers serialize access (one logical writer per
// tree, see workspace.Workspace).
type Tree struct {
	root  *entry
	count int
}

// New returns an empty tree containing only the root directory.
func New() *Tree {
	return &Tree{root: newDir("")}
}

// resolve walks a normalized path and returns the entry, or nil if any
// component is missing or a file blocks the chain.
func (t *Tree) resolve(path string) *entry {
	cur := t.root
	for _, seg := range splitSegments(path) {
		if cur.kind != KindDirectory {
			return nil
		}
		next, ok := cur.children[seg]
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

// ensureDir returns the directory at path, creating missing intermediate
// directories. The whole chain is validated before anything is created,
// so a conflict leaves the tree untouched.
func (t *Tree) ensureDir(path string) (*entry, error) {
	segs := splitSegments(path)

	// Validation pass: every existing component must be a directory.
	cur := t.root
	for _, seg := range segs {
		next, ok := cur.children[seg]
		if !ok {
			break
		}
		if next.kind != KindDirectory {
			return nil, fmt.Errorf("%w: %s is a file", ErrPathConflict, path)
		}
		cur = next
	}

	// Creation pass: cannot fail.
	cur = t.root
	for _, seg := range segs {
		next, ok := cur.children[seg]
		if !ok {
			next = newDir(seg)
			cur.children[seg] = next
			t.count++
		}
		cur = next
	}
	return cur, nil
}

// CreateFile creates a file at path, creating intermediate directories
// as needed. Creating over an existing file overwrites its content (an
// idempotent create); an existing directory at path is a conflict.
// Returns the normalized path.
func (t *Tree) CreateFile(path, content string) (string, error) {
	p, err := Normalize(path)
	if err != nil {
		return "", err
	}
	if p == Root {
		return "", fmt.Errorf("%w: cannot create a file at the root", ErrInvalidOperation)
	}

	parentPath, _ := Parent(p)
	name := Basename(p)

	// Check the full chain, including the leaf, before mutating.
	if existing := t.resolve(p); existing != nil && existing.kind == KindDirectory {
		return "", fmt.Errorf("%w: %s is a directory", ErrPathConflict, p)
	}
	dir, err := t.ensureDir(parentPath)
	if err != nil {
		return "", err
	}

	if existing, ok := dir.children[name]; ok {
		existing.content = content
		return p, nil
	}
	dir.children[name] = &entry{name: name, kind: KindFile, content: content}
	t.count++
	return p, nil
}

// CreateDirectory creates a directory at path, creating intermediates as
// needed. An existing directory is a no-op success; an existing file is
// a conflict. Returns the normalized path.
func (t *Tree) CreateDirectory(path string) (string, error) {
	p, err := Normalize(path)
	if err != nil {
		return "", err
	}
	if _, err := t.ensureDir(p); err != nil {
		return "", err
	}
	return p, nil
}

// ReadFile returns the content of the file at path.
func (t *Tree) ReadFile(path string) (string, error) {
	p, err := Normalize(path)
	if err != nil {
		return "", err
	}
	e := t.resolve(p)
	if e == nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	if e.kind != KindFile {
		return "", fmt.Errorf("%w: %s is a directory, not a file", ErrNotFound, p)
	}
	return e.content, nil
}

// WriteFile replaces the content of an existing file. Unlike CreateFile
// it never creates anything: a missing file or parent chain is an error.
func (t *Tree) WriteFile(path, content string) error {
	p, err := Normalize(path)
	if err != nil {
		return err
	}
	e := t.resolve(p)
	if e == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	if e.kind != KindFile {
		return fmt.Errorf("%w: %s is a directory, not a file", ErrNotFound, p)
	}
	e.content = content
	return nil
}

// Delete removes the entry at path; directories are removed with their
// entire subtree. Deleting the root is rejected.
func (t *Tree) Delete(path string) error {
	p, err := Normalize(path)
	if err != nil {
		return err
	}
	if p == Root {
		return fmt.Errorf("%w: cannot delete the workspace root", ErrInvalidOperation)
	}
	parentPath, _ := Parent(p)
	parent := t.resolve(parentPath)
	if parent == nil || parent.kind != KindDirectory {
		return fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	name := Basename(p)
	e, ok := parent.children[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	delete(parent.children, name)
	t.count -= subtreeSize(e)
	return nil
}

// Rename moves the entry at from (with its subtree, if a directory) to
// to. The destination must not exist; missing destination intermediate
// directories are created the same way CreateFile creates them. Moving
// a directory into its own subtree is rejected.
func (t *Tree) Rename(from, to string) error {
	f, err := Normalize(from)
	if err != nil {
		return err
	}
	dst, err := Normalize(to)
	if err != nil {
		return err
	}
	if f == Root || dst == Root {
		return fmt.Errorf("%w: cannot rename the workspace root", ErrInvalidOperation)
	}
	if dst == f || len(dst) > len(f) && dst[:len(f)] == f && dst[len(f)] == '/' {
		return fmt.Errorf("%w: %s is inside %s", ErrInvalidOperation, dst, f)
	}

	src := t.resolve(f)
	if src == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, f)
	}
	if t.resolve(dst) != nil {
		return fmt.Errorf("%w: %s already exists", ErrPathConflict, dst)
	}

	dstParentPath, _ := Parent(dst)
	dstParent, err := t.ensureDir(dstParentPath)
	if err != nil {
		return err
	}

	srcParentPath, _ := Parent(f)
	srcParent := t.resolve(srcParentPath)
	delete(srcParent.children, src.name)
	src.name = Basename(dst)
	dstParent.children[src.name] = src
	return nil
}

// List returns the direct child names of the directory at path in
// lexical order. The empty path lists the root.
func (t *Tree) List(path string) ([]string, error) {
	if path == "" {
		path = Root
	}
	p, err := Normalize(path)
	if err != nil {
		return nil, err
	}
	e := t.resolve(p)
	if e == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	if e.kind != KindDirectory {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNotFound, p)
	}
	names := make([]string, 0, len(e.children))
	for name := range e.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Exists reports whether an entry exists at path. Unnormalizable paths
// simply do not exist.
func (t *Tree) Exists(path string) bool {
	p, err := Normalize(path)
	if err != nil {
		return false
	}
	return t.resolve(p) != nil
}

// Stat returns the kind of the entry at path.
func (t *Tree) Stat(path string) (EntryKind, error) {
	p, err := Normalize(path)
	if err != nil {
		return "", err
	}
	e := t.resolve(p)
	if e == nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return e.kind, nil
}

// Len returns the number of entries in the tree, excluding the root.
func (t *Tree) Len() int {
	return t.count
}

// Walk visits every entry except the root in deterministic preorder
// (children in lexical order), calling fn with the normalized path,
// kind, and content (empty for directories). Walk returns fn's first
// non-nil error.
func (t *Tree) Walk(fn func(path string, kind EntryKind, content string) error) error {
	return walk(t.root, "", fn)
}

func walk(dir *entry, prefix string, fn func(string, EntryKind, string) error) error {
	names := make([]string, 0, len(dir.children))
	for name := range dir.children {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		child := dir.children[name]
		path := prefix + "/" + name
		if err := fn(path, child.kind, child.content); err != nil {
			return err
		}
		if child.kind == KindDirectory {
			if err := walk(child, path, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

func subtreeSize(e *entry) int {
	size := 1
	for _, child := range e.children {
		size += subtreeSize(child)
	}
	return size
}
