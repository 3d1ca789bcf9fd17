package workspacefs

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/previewfs/previewfs/internal/config"
	"github.com/previewfs/previewfs/internal/registry"
	"github.com/previewfs/previewfs/internal/tools"
	"github.com/previewfs/previewfs/internal/vfs"
	"github.com/previewfs/previewfs/internal/workspace"
	"github.com/sirupsen/logrus"
)

// ManagerTool exposes structural and snapshot commands against a
// project workspace.
type ManagerTool struct{}

// init registers the workspace manager tool
func init() {
	registry.Register(&ManagerTool{})
}

// Definition returns the tool's definition for MCP registration
func (t *ManagerTool) Definition() mcp.Tool {
	return mcp.NewTool(
		"workspace_manager",
		mcp.WithDescription(`Manage the file structure of a project's in-memory workspace.

Functions and their required options:

• list: path (optional, defaults to /) - direct children of a directory, directories marked with a trailing slash
• rename: from (required), to (required) - moves a file or directory (and its subtree)
• delete: path (required) - removes a file, or a directory and everything under it
• export: (no options) - the full workspace as a JSON snapshot
• import: snapshot (required) - replaces the workspace with a previously exported snapshot

Renaming cannot move a directory into its own subtree, and the root directory cannot be deleted or renamed.
Import validates the whole snapshot before replacing anything; a malformed snapshot leaves the workspace untouched.`),
		mcp.WithString("project",
			mcp.Required(),
			mcp.Description("Project identifier that names the workspace"),
		),
		mcp.WithString("function",
			mcp.Required(),
			mcp.Description("Function to execute"),
			mcp.Enum("list", "rename", "delete", "export", "import"),
		),
		mcp.WithObject("options",
			mcp.Description("Function-specific options - see function description for parameters"),
			mcp.Properties(map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Workspace file or directory path",
				},
				"from": map[string]interface{}{
					"type":        "string",
					"description": "Source path for rename",
				},
				"to": map[string]interface{}{
					"type":        "string",
					"description": "Destination path for rename",
				},
				"snapshot": map[string]interface{}{
					"type":        "string",
					"description": "JSON snapshot produced by export",
				},
			}),
		),
	)
}

// Execute executes the workspace manager tool
func (t *ManagerTool) Execute(ctx context.Context, logger *logrus.Logger, cache *sync.Map, args map[string]interface{}) (*mcp.CallToolResult, error) {
	function, ok := args["function"].(string)
	if !ok {
		return nil, fmt.Errorf("missing required parameter: function")
	}
	project, err := parseProject(args)
	if err != nil {
		return nil, err
	}
	options := parseOptions(args)

	manager, ws, engine, err := workspaceFor(logger, cache, project)
	if err != nil {
		return nil, err
	}

	switch function {
	case "list":
		cmd := workspace.Command{Family: workspace.FamilyManager, Op: workspace.OpList, Path: optionString(options, "path")}
		return toolResult(ws.Apply(cmd)), nil
	case "rename":
		cmd := workspace.Command{
			Family: workspace.FamilyManager,
			Op:     workspace.OpRename,
			From:   optionString(options, "from"),
			To:     optionString(options, "to"),
		}
		return t.applyAndPersist(logger, manager, ws, cmd)
	case "delete":
		cmd := workspace.Command{Family: workspace.FamilyManager, Op: workspace.OpDelete, Path: optionString(options, "path")}
		return t.applyAndPersist(logger, manager, ws, cmd)
	case "export":
		return t.export(ws)
	case "import":
		return t.importSnapshot(logger, manager, engine, ws, optionString(options, "snapshot"))
	default:
		return nil, fmt.Errorf("unknown function: %s", function)
	}
}

func (t *ManagerTool) applyAndPersist(logger *logrus.Logger, manager *workspace.Manager, ws *workspace.Workspace, cmd workspace.Command) (*mcp.CallToolResult, error) {
	res := ws.Apply(cmd)
	if res.OK() {
		if err := manager.Persist(ws, nil); err != nil {
			logger.WithError(err).Warn("Failed to persist workspace snapshot")
		}
	}
	return toolResult(res), nil
}

// export serialises the workspace between commands, so the snapshot is
// always a consistent point-in-time view.
func (t *ManagerTool) export(ws *workspace.Workspace) (*mcp.CallToolResult, error) {
	data, err := vfs.MarshalSnapshot(ws.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("failed to serialise snapshot: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// importSnapshot replaces the workspace with an exported snapshot. The
// snapshot is validated against the configured limits before anything
// is replaced, and the previous state is persisted as a backup first,
// since import is the one operation that discards the whole tree.
func (t *ManagerTool) importSnapshot(logger *logrus.Logger, manager *workspace.Manager, engine *config.Engine, ws *workspace.Workspace, snapshotJSON string) (*mcp.CallToolResult, error) {
	if snapshotJSON == "" {
		return nil, fmt.Errorf("missing required parameter: snapshot")
	}
	snap, err := vfs.UnmarshalSnapshot([]byte(snapshotJSON))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("malformed_snapshot: %v", err)), nil
	}

	limits := engine.Current().Limits
	if len(snap.Entries) > limits.MaxFilesPerWorkspace {
		return mcp.NewToolResultError(fmt.Sprintf("limit_exceeded: snapshot holds %d entries, exceeding the %d entry limit", len(snap.Entries), limits.MaxFilesPerWorkspace)), nil
	}
	for _, entry := range snap.Entries {
		if len(entry.Content) > limits.MaxFileSize {
			return mcp.NewToolResultError(fmt.Sprintf("limit_exceeded: %s is %d bytes, exceeding the %d byte file size limit", entry.Path, len(entry.Content), limits.MaxFileSize)), nil
		}
	}

	if err := manager.Backup(ws.Project); err != nil {
		logger.WithError(err).Warn("Failed to back up workspace before import")
	}
	if err := ws.Restore(snap); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("malformed_snapshot: %v", err)), nil
	}
	if err := manager.Persist(ws, nil); err != nil {
		logger.WithError(err).Warn("Failed to persist workspace snapshot")
	}
	return mcp.NewToolResultText(fmt.Sprintf("Imported snapshot with %d entries into %s", len(snap.Entries), ws.Project)), nil
}

// ProvideExtendedInfo provides detailed usage information for the workspace manager
func (t *ManagerTool) ProvideExtendedInfo() *tools.ExtendedHelp {
	return &tools.ExtendedHelp{
		Examples: []tools.ToolExample{
			{
				Description: "List the workspace root",
				Arguments: map[string]interface{}{
					"project":  "landing-page",
					"function": "list",
				},
				ExpectedResult: "One entry per line, e.g. App.jsx and src/",
			},
			{
				Description: "Move a component into a subdirectory",
				Arguments: map[string]interface{}{
					"project":  "landing-page",
					"function": "rename",
					"options": map[string]interface{}{
						"from": "/Button.jsx",
						"to":   "/src/components/Button.jsx",
					},
				},
				ExpectedResult: "Renamed /Button.jsx to /src/components/Button.jsx",
			},
			{
				Description: "Export the workspace for hand-off or backup",
				Arguments: map[string]interface{}{
					"project":  "landing-page",
					"function": "export",
				},
				ExpectedResult: "A JSON snapshot that import accepts verbatim",
			},
		},
		Troubleshooting: []tools.TroubleshootingTip{
			{
				Problem:  "rename fails with invalid_operation",
				Solution: "A directory cannot be moved into its own subtree, and the root cannot be renamed.",
			},
			{
				Problem:  "import fails with malformed_snapshot",
				Solution: "Pass the exact JSON produced by export; the workspace is left unchanged when validation fails.",
			},
		},
		WhenToUse:    "Use for listing, moving, deleting, and snapshotting workspace files.",
		WhenNotToUse: "Don't use for reading or editing file contents - use workspace_editor for that.",
	}
}
