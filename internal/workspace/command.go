package workspace

import (
	"errors"
	"fmt"

	"github.com/previewfs/previewfs/internal/vfs"
)

// CommandFamily groups operations by the tool that issues them.
type CommandFamily string

const (
	// FamilyEditor covers commands scoped to a single file's content.
	FamilyEditor CommandFamily = "editor"
	// FamilyManager covers structural commands on files or directories.
	FamilyManager CommandFamily = "manager"
)

// CommandOp names a single operation within a family.
type CommandOp string

const (
	OpView       CommandOp = "view"
	OpCreate     CommandOp = "create"
	OpStrReplace CommandOp = "str_replace"
	OpInsert     CommandOp = "insert"
	OpList       CommandOp = "list"
	OpRename     CommandOp = "rename"
	OpDelete     CommandOp = "delete"
)

var opFamilies = map[CommandOp]CommandFamily{
	OpView:       FamilyEditor,
	OpCreate:     FamilyEditor,
	OpStrReplace: FamilyEditor,
	OpInsert:     FamilyEditor,
	OpList:       FamilyManager,
	OpRename:     FamilyManager,
	OpDelete:     FamilyManager,
}

// Command is a single requested mutation or query. Commands originate
// from a non-deterministic generator (an AI model) and arrive as loosely
// structured records, so every field is treated as untrusted input and
// validated before anything touches the tree. Commands carry no identity
// beyond arrival order.
type Command struct {
	Family     CommandFamily `json:"family,omitempty"`
	Op         CommandOp     `json:"op"`
	Path       string        `json:"path,omitempty"`
	Content    string        `json:"content,omitempty"`
	OldStr     string        `json:"old_str,omitempty"`
	NewStr     string        `json:"new_str,omitempty"`
	InsertLine int           `json:"insert_line,omitempty"`
	From       string        `json:"from,omitempty"`
	To         string        `json:"to,omitempty"`
}

// Validate checks the command's shape: a known op, a family tag that
// matches the op (or none, in which case the family is implied), and
// the fields that op requires. Path contents are validated later by the
// tree's own normalization.
func (c Command) Validate() error {
	family, ok := opFamilies[c.Op]
	if !ok {
		return fmt.Errorf("unknown op %q", c.Op)
	}
	if c.Family != "" && c.Family != family {
		return fmt.Errorf("op %q belongs to the %s family, not %q", c.Op, family, c.Family)
	}
	switch c.Op {
	case OpView, OpCreate, OpStrReplace, OpInsert, OpDelete:
		if c.Path == "" {
			return fmt.Errorf("op %q requires a path", c.Op)
		}
	case OpRename:
		if c.From == "" || c.To == "" {
			return errors.New(`op "rename" requires from and to`)
		}
	case OpList:
		// Path is optional; empty means the root.
	}
	if c.Op == OpStrReplace {
		if c.OldStr == "" {
			return errors.New(`op "str_replace" requires a non-empty old_str`)
		}
		if c.OldStr == c.NewStr {
			return errors.New(`op "str_replace": old_str and new_str are identical`)
		}
	}
	if c.Op == OpInsert && c.InsertLine < 0 {
		return fmt.Errorf(`op "insert": insert_line %d is negative`, c.InsertLine)
	}
	return nil
}

// CommandResult is the outcome of applying one command: a success
// payload (file content for view, a summary for mutating ops) or a
// typed failure. Failures are scoped to the single command; the stream
// continues with the next one.
type CommandResult struct {
	Op        CommandOp `json:"op"`
	Path      string    `json:"path,omitempty"`
	Output    string    `json:"output,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// OK reports whether the command succeeded.
func (r CommandResult) OK() bool {
	return r.ErrorKind == ""
}

// Error kind tags reported back to the command source. These mirror the
// vfs error taxonomy plus tags for commands rejected at validation and
// commands exceeding configured resource limits.
const (
	KindInvalidCommand    = "invalid_command"
	KindInvalidPath       = "invalid_path"
	KindNotFound          = "not_found"
	KindPathConflict      = "path_conflict"
	KindInvalidOperation  = "invalid_operation"
	KindAmbiguousMatch    = "ambiguous_match"
	KindMalformedSnapshot = "malformed_snapshot"
	KindLimitExceeded     = "limit_exceeded"
)

// ErrLimitExceeded indicates a mutating command that would push a file
// or the workspace past its configured resource limits.
var ErrLimitExceeded = errors.New("limit exceeded")

// errorKind maps an error to its taxonomy tag.
func errorKind(err error) string {
	switch {
	case errors.Is(err, vfs.ErrInvalidPath):
		return KindInvalidPath
	case errors.Is(err, vfs.ErrNotFound):
		return KindNotFound
	case errors.Is(err, vfs.ErrPathConflict):
		return KindPathConflict
	case errors.Is(err, vfs.ErrInvalidOperation):
		return KindInvalidOperation
	case errors.Is(err, vfs.ErrAmbiguousMatch):
		return KindAmbiguousMatch
	case errors.Is(err, vfs.ErrMalformedSnapshot):
		return KindMalformedSnapshot
	case errors.Is(err, ErrLimitExceeded):
		return KindLimitExceeded
	default:
		return KindInvalidCommand
	}
}
