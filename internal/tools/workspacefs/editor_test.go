package workspacefs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMain pins the config and data paths to a temp directory before
// the first tool call initialises the shared runtime.
func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "workspacefs-test-*")
	if err != nil {
		panic(err)
	}
	_ = os.Setenv("PREVIEWFS_CONFIG_PATH", filepath.Join(dir, "config.yaml"))
	_ = os.Setenv("PREVIEWFS_DATA_PATH", filepath.Join(dir, "workspaces"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

var projectSeq int

// newTestProject returns a unique project name so tests do not share
// workspace state through the package-level cache.
func newTestProject() string {
	projectSeq++
	return fmt.Sprintf("testproj%d", projectSeq)
}

func testDeps() (*logrus.Logger, *sync.Map) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger, &sync.Map{}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok, "expected text content")
	return text.Text
}

func editorCall(t *testing.T, logger *logrus.Logger, cache *sync.Map, project, function string, options map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	tool := &EditorTool{}
	args := map[string]interface{}{
		"project":  project,
		"function": function,
	}
	if options != nil {
		args["options"] = options
	}
	result, err := tool.Execute(context.Background(), logger, cache, args)
	require.NoError(t, err)
	return result
}

func TestEditorCreateAndView(t *testing.T) {
	logger, cache := testDeps()
	project := newTestProject()

	result := editorCall(t, logger, cache, project, "create", map[string]interface{}{
		"path":    "/App.jsx",
		"content": "export default function App() {}",
	})
	assert.False(t, result.IsError)

	result = editorCall(t, logger, cache, project, "view", map[string]interface{}{
		"path": "/App.jsx",
	})
	assert.False(t, result.IsError)
	assert.Equal(t, "export default function App() {}", resultText(t, result))
}

func TestEditorStrReplace(t *testing.T) {
	logger, cache := testDeps()
	project := newTestProject()

	editorCall(t, logger, cache, project, "create", map[string]interface{}{
		"path": "/f.txt", "content": "a-b",
	})
	result := editorCall(t, logger, cache, project, "str_replace", map[string]interface{}{
		"path": "/f.txt", "old_str": "a", "new_str": "x",
	})
	assert.False(t, result.IsError)

	result = editorCall(t, logger, cache, project, "view", map[string]interface{}{"path": "/f.txt"})
	assert.Equal(t, "x-b", resultText(t, result))
}

func TestEditorAmbiguousReplaceIsToolError(t *testing.T) {
	logger, cache := testDeps()
	project := newTestProject()

	editorCall(t, logger, cache, project, "create", map[string]interface{}{
		"path": "/f.txt", "content": "a-b-a",
	})
	result := editorCall(t, logger, cache, project, "str_replace", map[string]interface{}{
		"path": "/f.txt", "old_str": "a", "new_str": "x",
	})
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "ambiguous_match")
}

func TestEditorInsert(t *testing.T) {
	logger, cache := testDeps()
	project := newTestProject()

	editorCall(t, logger, cache, project, "create", map[string]interface{}{
		"path": "/f.txt", "content": "one\nthree",
	})
	result := editorCall(t, logger, cache, project, "insert", map[string]interface{}{
		"path": "/f.txt", "insert_line": float64(1), "new_str": "two",
	})
	assert.False(t, result.IsError)

	result = editorCall(t, logger, cache, project, "view", map[string]interface{}{"path": "/f.txt"})
	assert.Equal(t, "one\ntwo\nthree", resultText(t, result))
}

func TestEditorReplayStream(t *testing.T) {
	logger, cache := testDeps()
	project := newTestProject()

	stream := `{"op":"create","path":"/a.txt","content":"a-b-a"}
{"op":"str_replace","path":"/a.txt","old_str":"a","new_str":"x"}
{"op":"create","path":"/b.txt","content":"after"}`
	result := editorCall(t, logger, cache, project, "replay", map[string]interface{}{
		"commands": stream,
	})
	assert.False(t, result.IsError)
	text := resultText(t, result)
	assert.Contains(t, text, "1. ok")
	assert.Contains(t, text, "2. error (ambiguous_match)")
	assert.Contains(t, text, "3. ok")

	result = editorCall(t, logger, cache, project, "view", map[string]interface{}{"path": "/b.txt"})
	assert.Equal(t, "after", resultText(t, result))
}

func TestEditorCreateEnforcesFileSizeLimit(t *testing.T) {
	logger, cache := testDeps()
	project := newTestProject()

	oversized := strings.Repeat("x", (1<<20)+1)
	result := editorCall(t, logger, cache, project, "create", map[string]interface{}{
		"path": "/big.txt", "content": oversized,
	})
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "limit_exceeded")

	view := editorCall(t, logger, cache, project, "view", map[string]interface{}{"path": "/big.txt"})
	assert.True(t, view.IsError, "a rejected create must not leave a file behind")
}

func TestEditorReplayEnforcesFileSizeLimit(t *testing.T) {
	logger, cache := testDeps()
	project := newTestProject()

	oversized := strings.Repeat("x", (1<<20)+1)
	stream := fmt.Sprintf(`{"op":"create","path":"/big.txt","content":%q}
{"op":"create","path":"/small.txt","content":"fits"}`, oversized)
	result := editorCall(t, logger, cache, project, "replay", map[string]interface{}{
		"commands": stream,
	})
	assert.False(t, result.IsError)
	text := resultText(t, result)
	assert.Contains(t, text, "1. error (limit_exceeded)")
	assert.Contains(t, text, "2. ok")

	view := editorCall(t, logger, cache, project, "view", map[string]interface{}{"path": "/big.txt"})
	assert.True(t, view.IsError, "an oversized create must be rejected on the replay path too")
}

func TestEditorMissingProject(t *testing.T) {
	logger, cache := testDeps()
	tool := &EditorTool{}
	_, err := tool.Execute(context.Background(), logger, cache, map[string]interface{}{
		"function": "view",
	})
	assert.Error(t, err)
}

func TestEditorUnknownFunction(t *testing.T) {
	logger, cache := testDeps()
	tool := &EditorTool{}
	_, err := tool.Execute(context.Background(), logger, cache, map[string]interface{}{
		"project":  newTestProject(),
		"function": "chmod",
	})
	assert.Error(t, err)
}
