package vfs

import (
	"fmt"
	"strings"
)

// Root is the normalized path of the tree root.
const Root = "/"

// Normalize canonicalizes a raw path string: ensures a single leading
// slash, collapses repeated separators, and rejects anything that could
// escape or alias an entry ("." and ".." segments, trailing slashes on
// non-root paths, control characters). Paths are case-sensitive.
func Normalize(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	for _, r := range raw {
		if r < 0x20 || r == 0x7f {
			return "", fmt.Errorf("%w: control character in %q", ErrInvalidPath, raw)
		}
	}

	trimmed := strings.TrimLeft(raw, "/")
	if trimmed == "" {
		return Root, nil
	}
	if strings.HasSuffix(raw, "/") {
		return "", fmt.Errorf("%w: trailing slash in %q", ErrInvalidPath, raw)
	}

	segments := strings.Split(trimmed, "/")
	normalized := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "":
			// Collapsed repeated separator.
			continue
		case ".", "..":
			return "", fmt.Errorf("%w: traversal segment in %q", ErrInvalidPath, raw)
		}
		normalized = append(normalized, seg)
	}
	if len(normalized) == 0 {
		return Root, nil
	}
	return "/" + strings.Join(normalized, "/"), nil
}

// Parent returns the normalized parent of a normalized path. The second
// return value is false when path is the root, which has no parent.
func Parent(path string) (string, bool) {
	if path == Root {
		return "", false
	}
	idx := strings.LastIndexByte(path, '/')
	if idx <= 0 {
		return Root, true
	}
	return path[:idx], true
}

// Basename returns the final segment of a normalized path, or the empty
// string for the root.
func Basename(path string) string {
	if path == Root {
		return ""
	}
	return path[strings.LastIndexByte(path, '/')+1:]
}

// splitSegments returns the path segments of a normalized non-root path.
func splitSegments(path string) []string {
	if path == Root {
		return nil
	}
	return strings.Split(strings.TrimPrefix(path, "/"), "/")
}
