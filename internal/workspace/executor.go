package workspace

import (
	"fmt"
	"strings"

	"github.com/previewfs/previewfs/internal/vfs"
	"github.com/sirupsen/logrus"
)

// Limits bound what mutating commands may do to the tree. A zero value
// leaves the corresponding dimension unbounded.
type Limits struct {
	// MaxFileSize caps the resulting content of any single file, in bytes.
	MaxFileSize int
	// MaxEntries caps the number of entries in the workspace.
	MaxEntries int
}

func (l Limits) checkFileSize(size int) error {
	if l.MaxFileSize > 0 && size > l.MaxFileSize {
		return fmt.Errorf("%w: resulting file is %d bytes, exceeding the %d byte file size limit", ErrLimitExceeded, size, l.MaxFileSize)
	}
	return nil
}

func (l Limits) checkEntryCount(current int) error {
	if l.MaxEntries > 0 && current >= l.MaxEntries {
		return fmt.Errorf("%w: workspace already holds %d entries, the configured maximum", ErrLimitExceeded, current)
	}
	return nil
}

// Executor interprets commands against a single tree. It is stateless
// between invocations (the tree's current state is its only memory),
// which is what makes replay and idempotent redelivery well-defined.
// Executor does not lock; Workspace serializes access to it.
//
// Limits are checked inside each mutating handler, before the tree is
// touched, so every ingress (single commands and replayed streams)
// passes through the same bounds.
type Executor struct {
	tree   *vfs.Tree
	logger *logrus.Logger
	limits Limits
}

// NewExecutor returns an executor bound to the given tree with no
// limits.
func NewExecutor(tree *vfs.Tree, logger *logrus.Logger) *Executor {
	return &Executor{tree: tree, logger: logger}
}

// Apply validates and executes one command, returning its result. A
// failing command leaves the tree exactly as it was; Apply never
// returns a Go error because per-command failures are data reported
// back to the command source, not conditions that abort processing.
func (e *Executor) Apply(cmd Command) CommandResult {
	if err := cmd.Validate(); err != nil {
		return CommandResult{Op: cmd.Op, Path: cmd.Path, ErrorKind: KindInvalidCommand, Error: err.Error()}
	}

	var res CommandResult
	switch cmd.Op {
	case OpView:
		res = e.view(cmd)
	case OpCreate:
		res = e.create(cmd)
	case OpStrReplace:
		res = e.strReplace(cmd)
	case OpInsert:
		res = e.insert(cmd)
	case OpList:
		res = e.list(cmd)
	case OpRename:
		res = e.rename(cmd)
	case OpDelete:
		res = e.delete(cmd)
	}

	if !res.OK() {
		e.logger.WithFields(logrus.Fields{
			"op":   cmd.Op,
			"path": res.Path,
			"kind": res.ErrorKind,
		}).Debug("Command failed")
	}
	return res
}

func (e *Executor) fail(cmd Command, err error) CommandResult {
	return CommandResult{Op: cmd.Op, Path: cmd.Path, ErrorKind: errorKind(err), Error: err.Error()}
}

// view returns file content, or a directory listing when the path names
// a directory, so the agent can inspect state before editing.
func (e *Executor) view(cmd Command) CommandResult {
	kind, err := e.tree.Stat(cmd.Path)
	if err != nil {
		return e.fail(cmd, err)
	}
	if kind == vfs.KindDirectory {
		listing, err := e.renderListing(cmd.Path)
		if err != nil {
			return e.fail(cmd, err)
		}
		return CommandResult{Op: cmd.Op, Path: cmd.Path, Output: listing}
	}
	content, err := e.tree.ReadFile(cmd.Path)
	if err != nil {
		return e.fail(cmd, err)
	}
	return CommandResult{Op: cmd.Op, Path: cmd.Path, Output: content}
}

// create is the only command that may bring a new file into existence.
func (e *Executor) create(cmd Command) CommandResult {
	if err := e.limits.checkFileSize(len(cmd.Content)); err != nil {
		return e.fail(cmd, err)
	}
	if !e.tree.Exists(cmd.Path) {
		if err := e.limits.checkEntryCount(e.tree.Len()); err != nil {
			return e.fail(cmd, err)
		}
	}
	p, err := e.tree.CreateFile(cmd.Path, cmd.Content)
	if err != nil {
		return e.fail(cmd, err)
	}
	return CommandResult{Op: cmd.Op, Path: p, Output: fmt.Sprintf("Created %s", p)}
}

// strReplace replaces exactly one occurrence of old_str. The match
// count is checked before any mutation, so the operation never
// partially applies.
func (e *Executor) strReplace(cmd Command) CommandResult {
	content, err := e.tree.ReadFile(cmd.Path)
	if err != nil {
		return e.fail(cmd, err)
	}
	switch n := strings.Count(content, cmd.OldStr); {
	case n == 0:
		return e.fail(cmd, fmt.Errorf("%w: old_str not found in %s", vfs.ErrNotFound, cmd.Path))
	case n > 1:
		return e.fail(cmd, fmt.Errorf("%w: old_str occurs %d times in %s; replacement must be unambiguous", vfs.ErrAmbiguousMatch, n, cmd.Path))
	}
	if err := e.limits.checkFileSize(len(content) - len(cmd.OldStr) + len(cmd.NewStr)); err != nil {
		return e.fail(cmd, err)
	}
	if err := e.tree.WriteFile(cmd.Path, strings.Replace(content, cmd.OldStr, cmd.NewStr, 1)); err != nil {
		return e.fail(cmd, err)
	}
	return CommandResult{Op: cmd.Op, Path: cmd.Path, Output: fmt.Sprintf("Replaced 1 occurrence in %s", cmd.Path)}
}

// insert adds new_str as new lines after 1-based line insert_line
// (0 inserts at the beginning of the file).
func (e *Executor) insert(cmd Command) CommandResult {
	content, err := e.tree.ReadFile(cmd.Path)
	if err != nil {
		return e.fail(cmd, err)
	}
	lines := strings.Split(content, "\n")
	if cmd.InsertLine > len(lines) {
		return e.fail(cmd, fmt.Errorf("%w: insert_line %d is beyond the %d lines of %s", vfs.ErrInvalidOperation, cmd.InsertLine, len(lines), cmd.Path))
	}
	if err := e.limits.checkFileSize(len(content) + len(cmd.NewStr) + 1); err != nil {
		return e.fail(cmd, err)
	}
	inserted := strings.Split(cmd.NewStr, "\n")
	updated := make([]string, 0, len(lines)+len(inserted))
	updated = append(updated, lines[:cmd.InsertLine]...)
	updated = append(updated, inserted...)
	updated = append(updated, lines[cmd.InsertLine:]...)
	if err := e.tree.WriteFile(cmd.Path, strings.Join(updated, "\n")); err != nil {
		return e.fail(cmd, err)
	}
	return CommandResult{Op: cmd.Op, Path: cmd.Path, Output: fmt.Sprintf("Inserted %d line(s) after line %d of %s", len(inserted), cmd.InsertLine, cmd.Path)}
}

func (e *Executor) list(cmd Command) CommandResult {
	path := cmd.Path
	if path == "" {
		path = vfs.Root
	}
	listing, err := e.renderListing(path)
	if err != nil {
		return e.fail(cmd, err)
	}
	return CommandResult{Op: cmd.Op, Path: path, Output: listing}
}

func (e *Executor) rename(cmd Command) CommandResult {
	if err := e.tree.Rename(cmd.From, cmd.To); err != nil {
		res := e.fail(cmd, err)
		res.Path = cmd.From
		return res
	}
	return CommandResult{Op: cmd.Op, Path: cmd.To, Output: fmt.Sprintf("Renamed %s to %s", cmd.From, cmd.To)}
}

func (e *Executor) delete(cmd Command) CommandResult {
	if err := e.tree.Delete(cmd.Path); err != nil {
		return e.fail(cmd, err)
	}
	return CommandResult{Op: cmd.Op, Path: cmd.Path, Output: fmt.Sprintf("Deleted %s", cmd.Path)}
}

// renderListing formats the direct children of a directory, one per
// line, directories marked with a trailing slash.
func (e *Executor) renderListing(path string) (string, error) {
	names, err := e.tree.List(path)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "(empty)", nil
	}
	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte('\n')
		}
		childPath := path + "/" + name
		if path == vfs.Root {
			childPath = "/" + name
		}
		if kind, err := e.tree.Stat(childPath); err == nil && kind == vfs.KindDirectory {
			b.WriteString(name + "/")
		} else {
			b.WriteString(name)
		}
	}
	return b.String(), nil
}
