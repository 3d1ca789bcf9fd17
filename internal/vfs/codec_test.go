package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSampleTree(t *testing.T) *Tree {
	t.Helper()
	tree := New()
	_, err := tree.CreateFile("/App.jsx", "export default function App(){}")
	require.NoError(t, err)
	_, err = tree.CreateFile("/src/components/Button.jsx", "button")
	require.NoError(t, err)
	_, err = tree.CreateDirectory("/assets")
	require.NoError(t, err)
	_, err = tree.CreateFile("/src/index.css", "body{}")
	require.NoError(t, err)
	return tree
}

func TestEncodeDeterministicOrder(t *testing.T) {
	tree := buildSampleTree(t)
	snap := Encode(tree)

	paths := make([]string, len(snap.Entries))
	for i, e := range snap.Entries {
		paths[i] = e.Path
	}
	assert.Equal(t, []string{
		"/App.jsx",
		"/assets",
		"/src",
		"/src/components",
		"/src/components/Button.jsx",
		"/src/index.css",
	}, paths)
	assert.Equal(t, SnapshotVersion, snap.Version)
}

func TestRoundTrip(t *testing.T) {
	tree := buildSampleTree(t)
	decoded, err := Decode(Encode(tree))
	require.NoError(t, err)

	a, err := MarshalSnapshot(Encode(tree))
	require.NoError(t, err)
	b, err := MarshalSnapshot(Encode(decoded))
	require.NoError(t, err)
	assert.Equal(t, a, b, "decode(encode(t)) must be structurally identical to t")
	assert.Equal(t, tree.Len(), decoded.Len())
}

func TestRoundTripEmptyTree(t *testing.T) {
	decoded, err := Decode(Encode(New()))
	require.NoError(t, err)
	assert.Equal(t, 0, decoded.Len())
}

func TestRoundTripThroughJSON(t *testing.T) {
	tree := buildSampleTree(t)
	data, err := MarshalSnapshot(Encode(tree))
	require.NoError(t, err)

	snap, err := UnmarshalSnapshot(data)
	require.NoError(t, err)
	decoded, err := Decode(snap)
	require.NoError(t, err)

	content, err := decoded.ReadFile("/src/components/Button.jsx")
	require.NoError(t, err)
	assert.Equal(t, "button", content)

	kind, err := decoded.Stat("/assets")
	require.NoError(t, err)
	assert.Equal(t, KindDirectory, kind, "empty directories survive the round trip")
}

// Snapshots from older clients may omit intermediate directory records;
// decode accepts them and creates the directories implicitly.
func TestDecodeAutoCreatesIntermediates(t *testing.T) {
	snap := Snapshot{Version: 1, Entries: []SnapshotEntry{
		{Path: "/a/b.jsx", Kind: KindFile, Content: "b"},
	}}
	tree, err := Decode(snap)
	require.NoError(t, err)

	kind, err := tree.Stat("/a")
	require.NoError(t, err)
	assert.Equal(t, KindDirectory, kind)
	content, err := tree.ReadFile("/a/b.jsx")
	require.NoError(t, err)
	assert.Equal(t, "b", content)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		snap Snapshot
	}{
		{"invalid path", Snapshot{Version: 1, Entries: []SnapshotEntry{
			{Path: "/../etc", Kind: KindFile, Content: "x"},
		}}},
		{"unknown kind", Snapshot{Version: 1, Entries: []SnapshotEntry{
			{Path: "/a", Kind: "symlink"},
		}}},
		{"file directory collision", Snapshot{Version: 1, Entries: []SnapshotEntry{
			{Path: "/a", Kind: KindDirectory},
			{Path: "/a", Kind: KindFile, Content: "x"},
		}}},
		{"directory over file", Snapshot{Version: 1, Entries: []SnapshotEntry{
			{Path: "/a", Kind: KindFile, Content: "x"},
			{Path: "/a", Kind: KindDirectory},
		}}},
		{"directory with content", Snapshot{Version: 1, Entries: []SnapshotEntry{
			{Path: "/a", Kind: KindDirectory, Content: "x"},
		}}},
		{"explicit root record", Snapshot{Version: 1, Entries: []SnapshotEntry{
			{Path: "/", Kind: KindDirectory},
		}}},
		{"unsupported version", Snapshot{Version: 99}},
		{"parent declared as file", Snapshot{Version: 1, Entries: []SnapshotEntry{
			{Path: "/a", Kind: KindFile, Content: "x"},
			{Path: "/a/b.jsx", Kind: KindFile, Content: "y"},
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.snap)
			assert.ErrorIs(t, err, ErrMalformedSnapshot)
		})
	}
}

func TestUnmarshalSnapshotRejectsGarbage(t *testing.T) {
	_, err := UnmarshalSnapshot([]byte("{not json"))
	assert.ErrorIs(t, err, ErrMalformedSnapshot)
}
