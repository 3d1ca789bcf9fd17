package vfs

import (
	"encoding/json"
	"fmt"
)

// SnapshotVersion is written into every encoded snapshot so future
// format changes can be detected at decode time.
const SnapshotVersion = 1

// SnapshotEntry is one serialized tree entry. Content is omitted for
// directories.
type SnapshotEntry struct {
	Path    string    `json:"path"`
	Kind    EntryKind `json:"kind"`
	Content string    `json:"content,omitempty"`
}

// Snapshot is the serialized form of a whole tree: an ordered list of
// entries in deterministic preorder, sufficient to reconstruct an
// identical tree. The root directory is implicit and never recorded.
// Snapshots are the unit exchanged over the transport boundary and the
// unit persisted by the durable store.
type Snapshot struct {
	Version int             `json:"version"`
	Entries []SnapshotEntry `json:"entries"`
}

// Encode serializes a tree into a snapshot. The traversal is
// deterministic (preorder, children in lexical order), so encoding the
// same tree twice yields byte-identical JSON.
func Encode(t *Tree) Snapshot {
	snap := Snapshot{Version: SnapshotVersion, Entries: make([]SnapshotEntry, 0, t.Len())}
	_ = t.Walk(func(path string, kind EntryKind, content string) error {
		snap.Entries = append(snap.Entries, SnapshotEntry{Path: path, Kind: kind, Content: content})
		return nil
	})
	return snap
}

// Decode reconstructs a tree by replaying the snapshot's entries in
// order. Missing intermediate directories are created implicitly (a
// snapshot listing /a/b.jsx without an /a record is accepted; the
// resilient choice, since snapshots cross an untrusted transport).
// Any invalid path, unknown kind, directory carrying content, or
// file/directory collision aborts the whole decode with
// ErrMalformedSnapshot: a partially decoded tree has no meaning, so
// the caller must discard and fall back to an empty or last-known-good
// snapshot.
func Decode(snap Snapshot) (*Tree, error) {
	if snap.Version != 0 && snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedSnapshot, snap.Version)
	}
	t := New()
	for i, rec := range snap.Entries {
		p, err := Normalize(rec.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrMalformedSnapshot, i, err)
		}
		if p == Root {
			return nil, fmt.Errorf("%w: entry %d: root must not be recorded", ErrMalformedSnapshot, i)
		}
		switch rec.Kind {
		case KindDirectory:
			if rec.Content != "" {
				return nil, fmt.Errorf("%w: entry %d: directory %s carries content", ErrMalformedSnapshot, i, p)
			}
			if _, err := t.CreateDirectory(p); err != nil {
				return nil, fmt.Errorf("%w: entry %d: %v", ErrMalformedSnapshot, i, err)
			}
		case KindFile:
			// A duplicate file record would silently overwrite; treat a
			// same-path directory as the collision it is.
			if kind, err := t.Stat(p); err == nil && kind == KindDirectory {
				return nil, fmt.Errorf("%w: entry %d: %s declared as both file and directory", ErrMalformedSnapshot, i, p)
			}
			if _, err := t.CreateFile(p, rec.Content); err != nil {
				return nil, fmt.Errorf("%w: entry %d: %v", ErrMalformedSnapshot, i, err)
			}
		default:
			return nil, fmt.Errorf("%w: entry %d: unknown kind %q", ErrMalformedSnapshot, i, rec.Kind)
		}
	}
	return t, nil
}

// MarshalSnapshot renders a snapshot as JSON for transport or storage.
func MarshalSnapshot(snap Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

// UnmarshalSnapshot parses snapshot JSON. Structural JSON errors are
// reported as ErrMalformedSnapshot, the same class as invariant
// violations found during Decode.
func UnmarshalSnapshot(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	return snap, nil
}
