package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndReadFile(t *testing.T) {
	tree := New()
	p, err := tree.CreateFile("/App.jsx", "export default function App(){}")
	require.NoError(t, err)
	assert.Equal(t, "/App.jsx", p)

	content, err := tree.ReadFile("/App.jsx")
	require.NoError(t, err)
	assert.Equal(t, "export default function App(){}", content)

	names, err := tree.List("/")
	require.NoError(t, err)
	assert.Equal(t, []string{"App.jsx"}, names)
}

func TestCreateFileMakesIntermediateDirectories(t *testing.T) {
	tree := New()
	_, err := tree.CreateFile("/src/components/Button.jsx", "button")
	require.NoError(t, err)

	kind, err := tree.Stat("/src")
	require.NoError(t, err)
	assert.Equal(t, KindDirectory, kind)

	kind, err = tree.Stat("/src/components")
	require.NoError(t, err)
	assert.Equal(t, KindDirectory, kind)

	assert.Equal(t, 3, tree.Len())
}

func TestIdempotentCreate(t *testing.T) {
	tree := New()
	_, err := tree.CreateFile("/App.jsx", "X")
	require.NoError(t, err)
	_, err = tree.CreateFile("/App.jsx", "X")
	require.NoError(t, err, "re-creating with identical content must succeed")

	assert.Equal(t, 1, tree.Len(), "exactly one entry at the path")
	content, err := tree.ReadFile("/App.jsx")
	require.NoError(t, err)
	assert.Equal(t, "X", content)
}

func TestCreateFileOverwritesContent(t *testing.T) {
	tree := New()
	_, err := tree.CreateFile("/App.jsx", "old")
	require.NoError(t, err)
	_, err = tree.CreateFile("/App.jsx", "new")
	require.NoError(t, err)

	content, err := tree.ReadFile("/App.jsx")
	require.NoError(t, err)
	assert.Equal(t, "new", content)
}

func TestCreateFileConflicts(t *testing.T) {
	tree := New()
	_, err := tree.CreateDirectory("/src")
	require.NoError(t, err)

	_, err = tree.CreateFile("/src", "content")
	assert.ErrorIs(t, err, ErrPathConflict, "directory occupies the path")

	_, err = tree.CreateFile("/App.jsx", "app")
	require.NoError(t, err)
	_, err = tree.CreateFile("/App.jsx/nested.js", "x")
	assert.ErrorIs(t, err, ErrPathConflict, "a file blocks the parent chain")
}

func TestCreateDirectoryOverFile(t *testing.T) {
	tree := New()
	_, err := tree.CreateFile("/App.jsx", "app")
	require.NoError(t, err)
	_, err = tree.CreateDirectory("/App.jsx")
	assert.ErrorIs(t, err, ErrPathConflict)
}

func TestWriteFileDoesNotCreate(t *testing.T) {
	tree := New()
	err := tree.WriteFile("/missing.jsx", "content")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = tree.CreateFile("/App.jsx", "old")
	require.NoError(t, err)
	require.NoError(t, tree.WriteFile("/App.jsx", "new"))
	content, err := tree.ReadFile("/App.jsx")
	require.NoError(t, err)
	assert.Equal(t, "new", content)
}

func TestReadFileErrors(t *testing.T) {
	tree := New()
	_, err := tree.ReadFile("/missing.jsx")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = tree.CreateDirectory("/src")
	require.NoError(t, err)
	_, err = tree.ReadFile("/src")
	assert.ErrorIs(t, err, ErrNotFound, "reading a directory is not found")
}

func TestDeleteCascades(t *testing.T) {
	tree := New()
	_, err := tree.CreateFile("/a/b.txt", "b")
	require.NoError(t, err)
	_, err = tree.CreateFile("/a/c.txt", "c")
	require.NoError(t, err)

	require.NoError(t, tree.Delete("/a"))
	assert.False(t, tree.Exists("/a/b.txt"))
	assert.False(t, tree.Exists("/a/c.txt"))
	assert.False(t, tree.Exists("/a"))
	assert.Equal(t, 0, tree.Len())
}

func TestDeleteErrors(t *testing.T) {
	tree := New()
	assert.ErrorIs(t, tree.Delete("/missing"), ErrNotFound)
	assert.ErrorIs(t, tree.Delete("/"), ErrInvalidOperation)
}

func TestRename(t *testing.T) {
	tree := New()
	_, err := tree.CreateFile("/a/b.txt", "b")
	require.NoError(t, err)

	require.NoError(t, tree.Rename("/a/b.txt", "/a/c.txt"))
	assert.False(t, tree.Exists("/a/b.txt"))
	content, err := tree.ReadFile("/a/c.txt")
	require.NoError(t, err)
	assert.Equal(t, "b", content)
}

func TestRenameDirectoryMovesSubtree(t *testing.T) {
	tree := New()
	_, err := tree.CreateFile("/src/App.jsx", "app")
	require.NoError(t, err)
	_, err = tree.CreateFile("/src/components/Button.jsx", "btn")
	require.NoError(t, err)

	require.NoError(t, tree.Rename("/src", "/lib"))
	assert.False(t, tree.Exists("/src"))
	content, err := tree.ReadFile("/lib/components/Button.jsx")
	require.NoError(t, err)
	assert.Equal(t, "btn", content)
}

func TestRenameErrors(t *testing.T) {
	tree := New()
	_, err := tree.CreateDirectory("/a")
	require.NoError(t, err)
	_, err = tree.CreateFile("/b.txt", "b")
	require.NoError(t, err)

	assert.ErrorIs(t, tree.Rename("/missing", "/x"), ErrNotFound)
	assert.ErrorIs(t, tree.Rename("/a", "/b.txt"), ErrPathConflict, "target exists")
	assert.ErrorIs(t, tree.Rename("/a", "/a/b"), ErrInvalidOperation, "cycle")
	assert.ErrorIs(t, tree.Rename("/a", "/a"), ErrInvalidOperation)
}

func TestRenameCreatesDestinationIntermediates(t *testing.T) {
	tree := New()
	_, err := tree.CreateFile("/App.jsx", "app")
	require.NoError(t, err)

	require.NoError(t, tree.Rename("/App.jsx", "/src/pages/App.jsx"))
	kind, err := tree.Stat("/src/pages")
	require.NoError(t, err)
	assert.Equal(t, KindDirectory, kind)
	content, err := tree.ReadFile("/src/pages/App.jsx")
	require.NoError(t, err)
	assert.Equal(t, "app", content)
}

func TestListOrderingAndErrors(t *testing.T) {
	tree := New()
	for _, p := range []string{"/z.txt", "/a.txt", "/m.txt"} {
		_, err := tree.CreateFile(p, "x")
		require.NoError(t, err)
	}
	names, err := tree.List("")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "m.txt", "z.txt"}, names, "lexical order")

	_, err = tree.List("/missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = tree.List("/a.txt")
	assert.ErrorIs(t, err, ErrNotFound, "listing a file")
}

func TestPathUniqueness(t *testing.T) {
	tree := New()
	_, err := tree.CreateFile("/src/App.jsx", "one")
	require.NoError(t, err)
	_, err = tree.CreateFile("//src//App.jsx", "two")
	require.NoError(t, err, "aliases normalize to the same entry")

	seen := make(map[string]bool)
	err = tree.Walk(func(path string, _ EntryKind, _ string) error {
		assert.False(t, seen[path], "duplicate path %s", path)
		seen[path] = true
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, tree.Len())

	content, err := tree.ReadFile("/src/App.jsx")
	require.NoError(t, err)
	assert.Equal(t, "two", content)
}

// A failing mutation must leave the encoded tree byte-identical to the
// state before the call.
func TestFailedMutationLeavesTreeUntouched(t *testing.T) {
	tree := New()
	_, err := tree.CreateFile("/src/App.jsx", "app")
	require.NoError(t, err)
	_, err = tree.CreateFile("/b.txt", "b")
	require.NoError(t, err)

	before, err := MarshalSnapshot(Encode(tree))
	require.NoError(t, err)

	_, err = tree.CreateFile("/b.txt/x.js", "x")
	require.Error(t, err)
	err = tree.Rename("/src", "/b.txt")
	require.Error(t, err)
	err = tree.Delete("/missing")
	require.Error(t, err)
	err = tree.WriteFile("/missing", "x")
	require.Error(t, err)

	after, err := MarshalSnapshot(Encode(tree))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
