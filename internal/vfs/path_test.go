package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"already normalized", "/App.jsx", "/App.jsx"},
		{"missing leading slash", "src/App.jsx", "/src/App.jsx"},
		{"repeated separators", "//src///App.jsx", "/src/App.jsx"},
		{"many leading slashes", "///", "/"},
		{"root", "/", "/"},
		{"nested", "/src/components/Button.jsx", "/src/components/Button.jsx"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeRejects(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"dot segment", "/src/./App.jsx"},
		{"dotdot segment", "/src/../etc/passwd"},
		{"bare dotdot", ".."},
		{"trailing slash", "/src/"},
		{"newline", "/src/App\n.jsx"},
		{"nul byte", "/src/\x00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Normalize(tc.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidPath)
		})
	}
}

func TestParent(t *testing.T) {
	p, ok := Parent("/src/App.jsx")
	require.True(t, ok)
	assert.Equal(t, "/src", p)

	p, ok = Parent("/App.jsx")
	require.True(t, ok)
	assert.Equal(t, "/", p)

	_, ok = Parent("/")
	assert.False(t, ok, "root has no parent")
}

func TestBasename(t *testing.T) {
	assert.Equal(t, "App.jsx", Basename("/src/App.jsx"))
	assert.Equal(t, "App.jsx", Basename("/App.jsx"))
	assert.Equal(t, "", Basename("/"))
}

func TestNormalizeCaseSensitive(t *testing.T) {
	a, err := Normalize("/App.jsx")
	require.NoError(t, err)
	b, err := Normalize("/app.jsx")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
