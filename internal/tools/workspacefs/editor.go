package workspacefs

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/previewfs/previewfs/internal/registry"
	"github.com/previewfs/previewfs/internal/tools"
	"github.com/previewfs/previewfs/internal/workspace"
	"github.com/sirupsen/logrus"
)

// EditorTool exposes file-content commands against a project workspace.
type EditorTool struct{}

// init registers the workspace editor tool
func init() {
	registry.Register(&EditorTool{})
}

// Definition returns the tool's definition for MCP registration
func (t *EditorTool) Definition() mcp.Tool {
	return mcp.NewTool(
		"workspace_editor",
		mcp.WithDescription(`Edit files in a project's in-memory workspace.

Functions and their required options:

• view: path (required) - file content, or a listing when path is a directory
• create: path (required), content (required) - creates or overwrites a file, making parent directories as needed
• str_replace: path (required), old_str (required), new_str (required) - replaces exactly one occurrence; fails if old_str is absent or ambiguous
• insert: path (required), insert_line (required), new_str (required) - inserts new_str after the given 1-based line (0 = start of file)
• replay: commands (required) - applies a stream of newline-delimited JSON commands in order

Paths are absolute within the workspace (e.g. /src/App.jsx) and case-sensitive.
A failed command reports its error and leaves the workspace unchanged.`),
		mcp.WithString("project",
			mcp.Required(),
			mcp.Description("Project identifier that names the workspace"),
		),
		mcp.WithString("function",
			mcp.Required(),
			mcp.Description("Function to execute"),
			mcp.Enum("view", "create", "str_replace", "insert", "replay"),
		),
		mcp.WithObject("options",
			mcp.Description("Function-specific options - see function description for parameters"),
			mcp.Properties(map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Workspace file path",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "File content for create",
				},
				"old_str": map[string]interface{}{
					"type":        "string",
					"description": "Exact text to replace (must occur exactly once)",
				},
				"new_str": map[string]interface{}{
					"type":        "string",
					"description": "Replacement or inserted text",
				},
				"insert_line": map[string]interface{}{
					"type":        "number",
					"description": "1-based line to insert after (0 inserts at the start)",
				},
				"commands": map[string]interface{}{
					"type":        "string",
					"description": "Newline-delimited JSON command stream for replay",
				},
			}),
		),
	)
}

// Execute executes the workspace editor tool
func (t *EditorTool) Execute(ctx context.Context, logger *logrus.Logger, cache *sync.Map, args map[string]interface{}) (*mcp.CallToolResult, error) {
	function, ok := args["function"].(string)
	if !ok {
		return nil, fmt.Errorf("missing required parameter: function")
	}
	project, err := parseProject(args)
	if err != nil {
		return nil, err
	}
	options := parseOptions(args)

	manager, ws, _, err := workspaceFor(logger, cache, project)
	if err != nil {
		return nil, err
	}

	switch function {
	case "view":
		cmd := workspace.Command{Family: workspace.FamilyEditor, Op: workspace.OpView, Path: optionString(options, "path")}
		return toolResult(ws.Apply(cmd)), nil
	case "create":
		cmd := workspace.Command{
			Family:  workspace.FamilyEditor,
			Op:      workspace.OpCreate,
			Path:    optionString(options, "path"),
			Content: optionString(options, "content"),
		}
		return t.applyAndPersist(logger, manager, ws, cmd)
	case "str_replace":
		cmd := workspace.Command{
			Family: workspace.FamilyEditor,
			Op:     workspace.OpStrReplace,
			Path:   optionString(options, "path"),
			OldStr: optionString(options, "old_str"),
			NewStr: optionString(options, "new_str"),
		}
		return t.applyAndPersist(logger, manager, ws, cmd)
	case "insert":
		insertLine, ok := options["insert_line"].(float64)
		if !ok {
			return nil, fmt.Errorf("missing required parameter: insert_line")
		}
		cmd := workspace.Command{
			Family:     workspace.FamilyEditor,
			Op:         workspace.OpInsert,
			Path:       optionString(options, "path"),
			NewStr:     optionString(options, "new_str"),
			InsertLine: int(insertLine),
		}
		return t.applyAndPersist(logger, manager, ws, cmd)
	case "replay":
		commands := optionString(options, "commands")
		if commands == "" {
			return nil, fmt.Errorf("missing required parameter: commands")
		}
		return t.replay(logger, manager, ws, commands)
	default:
		return nil, fmt.Errorf("unknown function: %s", function)
	}
}

// applyAndPersist runs one mutating command and saves a snapshot on
// success.
func (t *EditorTool) applyAndPersist(logger *logrus.Logger, manager *workspace.Manager, ws *workspace.Workspace, cmd workspace.Command) (*mcp.CallToolResult, error) {
	res := ws.Apply(cmd)
	if res.OK() {
		if err := manager.Persist(ws, nil); err != nil {
			logger.WithError(err).Warn("Failed to persist workspace snapshot")
		}
	}
	return toolResult(res), nil
}

// replay applies a newline-delimited JSON command stream. Per-command
// failures are reported inline; a truncated stream reports how far it
// got.
func (t *EditorTool) replay(logger *logrus.Logger, manager *workspace.Manager, ws *workspace.Workspace, commands string) (*mcp.CallToolResult, error) {
	results, streamErr := ws.ApplyStream(strings.NewReader(commands))

	mutated := false
	var lines []string
	for i, res := range results {
		if res.OK() {
			if res.Op != workspace.OpView && res.Op != workspace.OpList {
				mutated = true
			}
			lines = append(lines, fmt.Sprintf("%d. ok: %s", i+1, res.Output))
		} else {
			lines = append(lines, fmt.Sprintf("%d. error (%s): %s", i+1, res.ErrorKind, res.Error))
		}
	}
	if mutated {
		if err := manager.Persist(ws, nil); err != nil {
			logger.WithError(err).Warn("Failed to persist workspace snapshot")
		}
	}
	if streamErr != nil {
		lines = append(lines, fmt.Sprintf("stream aborted: %v", streamErr))
	}
	if len(lines) == 0 {
		return mcp.NewToolResultText("No commands in stream"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

// toolResult converts a command result to an MCP result. Command
// failures are tool-level errors the calling model can react to, not
// protocol errors.
func toolResult(res workspace.CommandResult) *mcp.CallToolResult {
	if !res.OK() {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", res.ErrorKind, res.Error))
	}
	return mcp.NewToolResultText(res.Output)
}

// ProvideExtendedInfo provides detailed usage information for the workspace editor
func (t *EditorTool) ProvideExtendedInfo() *tools.ExtendedHelp {
	return &tools.ExtendedHelp{
		Examples: []tools.ToolExample{
			{
				Description: "Create a component file (parent directories are created automatically)",
				Arguments: map[string]interface{}{
					"project":  "landing-page",
					"function": "create",
					"options": map[string]interface{}{
						"path":    "/src/components/Button.jsx",
						"content": "export default function Button() {}",
					},
				},
				ExpectedResult: "Created /src/components/Button.jsx",
			},
			{
				Description: "Replace a single occurrence of text",
				Arguments: map[string]interface{}{
					"project":  "landing-page",
					"function": "str_replace",
					"options": map[string]interface{}{
						"path":    "/src/components/Button.jsx",
						"old_str": "export default function Button() {}",
						"new_str": "export default function Button({ label }) {\n  return <button>{label}</button>\n}",
					},
				},
				ExpectedResult: "Replaced 1 occurrence in /src/components/Button.jsx",
			},
			{
				Description: "View a file before editing it",
				Arguments: map[string]interface{}{
					"project":  "landing-page",
					"function": "view",
					"options":  map[string]interface{}{"path": "/src/components/Button.jsx"},
				},
				ExpectedResult: "The file's current content",
			},
		},
		CommonPatterns: []string{
			"view a file first, then str_replace with exact text from the view output",
			"create with the full intended content instead of many small inserts",
		},
		Troubleshooting: []tools.TroubleshootingTip{
			{
				Problem:  "str_replace fails with ambiguous_match",
				Solution: "Include more surrounding context in old_str so it matches exactly one place in the file.",
			},
			{
				Problem:  "str_replace fails with not_found",
				Solution: "View the file and copy old_str verbatim - matching is exact, including whitespace.",
			},
		},
		WhenToUse:    "Use for reading and editing file contents inside a project workspace.",
		WhenNotToUse: "Don't use for renaming, deleting, or listing files - use workspace_manager for structural operations.",
	}
}
