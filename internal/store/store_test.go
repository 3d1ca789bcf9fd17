package store

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/previewfs/previewfs/internal/vfs"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewStoreAt(logger, t.TempDir())
}

func sampleSnapshot() vfs.Snapshot {
	tree := vfs.New()
	_, _ = tree.CreateFile("/App.jsx", "export default function App() {}")
	_, _ = tree.CreateDirectory("/assets")
	return vfs.Encode(tree)
}

func TestSaveAndLoad(t *testing.T) {
	s := newTestStore(t)
	meta := json.RawMessage(`{"session":"abc"}`)
	require.NoError(t, s.Save("proj", sampleSnapshot(), meta))
	assert.True(t, s.Exists("proj"))

	rec, err := s.Load("proj")
	require.NoError(t, err)
	assert.Equal(t, meta, rec.Metadata)
	assert.False(t, rec.SavedAt.IsZero())

	tree, err := vfs.Decode(rec.Snapshot)
	require.NoError(t, err)
	content, err := tree.ReadFile("/App.jsx")
	require.NoError(t, err)
	assert.Equal(t, "export default function App() {}", content)
}

func TestLoadMissingProjectIsEmpty(t *testing.T) {
	s := newTestStore(t)
	rec, err := s.Load("never-saved")
	require.NoError(t, err)
	assert.Empty(t, rec.Snapshot.Entries)
	assert.False(t, s.Exists("never-saved"))
}

func TestSaveOverwritesAtomically(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save("proj", sampleSnapshot(), nil))

	tree := vfs.New()
	_, _ = tree.CreateFile("/only.txt", "second")
	require.NoError(t, s.Save("proj", vfs.Encode(tree), nil))

	rec, err := s.Load("proj")
	require.NoError(t, err)
	require.Len(t, rec.Snapshot.Entries, 1)
	assert.Equal(t, "/only.txt", rec.Snapshot.Entries[0].Path)

	_, err = os.Stat(filepath.Join(s.BasePath(), "proj", recordFileName+".tmp"))
	assert.True(t, os.IsNotExist(err), "temp file must not survive a save")
}

func TestLoadCorruptRecord(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save("proj", sampleSnapshot(), nil))
	recordPath := filepath.Join(s.BasePath(), "proj", recordFileName)
	require.NoError(t, os.WriteFile(recordPath, []byte("{broken"), 0600))

	_, err := s.Load("proj")
	assert.ErrorIs(t, err, vfs.ErrMalformedSnapshot)
}

func TestProjectIdentifierValidation(t *testing.T) {
	s := newTestStore(t)
	for _, project := range []string{"", "../escape", "a/b", "a b", "dot.dot"} {
		assert.Error(t, s.Save(project, sampleSnapshot(), nil), "project %q must be rejected", project)
	}
	assert.NoError(t, s.Save("Valid_Project-123", sampleSnapshot(), nil))
}

func TestBackup(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Backup("proj"), "backing up a missing record is a no-op")

	require.NoError(t, s.Save("proj", sampleSnapshot(), nil))
	require.NoError(t, s.Backup("proj"))

	matches, err := filepath.Glob(filepath.Join(s.BasePath(), "proj", recordFileName+".backup.*"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save("proj", sampleSnapshot(), nil))
	require.NoError(t, s.Delete("proj"))
	assert.False(t, s.Exists("proj"))
}

func TestStorageSizeLimit(t *testing.T) {
	s := newTestStore(t)
	s.maxStorageSize = 64

	err := s.Save("proj", sampleSnapshot(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "byte limit")
	assert.False(t, s.Exists("proj"))
}
