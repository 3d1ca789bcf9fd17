// Package workspacefs exposes the in-memory workspace over MCP as two
// tools: workspace_editor for file-content commands and
// workspace_manager for structural and snapshot commands. Both tools
// resolve workspaces through the shared registry cache, so edits made
// through one are immediately visible through the other.
package workspacefs

import (
	"fmt"
	"sync"

	"github.com/previewfs/previewfs/internal/config"
	"github.com/previewfs/previewfs/internal/store"
	"github.com/previewfs/previewfs/internal/workspace"
	"github.com/sirupsen/logrus"
)

// runtime holds the lazily-initialised config engine and snapshot
// store. It is built on first tool call rather than at init() so a
// broken config file surfaces as a tool error, not a crashed server.
type runtime struct {
	engine *config.Engine
	store  *store.Store
}

var (
	runtimeOnce sync.Once
	runtimeInst *runtime
	runtimeErr  error
)

func getRuntime(logger *logrus.Logger) (*runtime, error) {
	runtimeOnce.Do(func() {
		path, err := config.DefaultPath()
		if err != nil {
			runtimeErr = err
			return
		}
		engine, err := config.NewEngine(path, logger)
		if err != nil {
			runtimeErr = fmt.Errorf("failed to initialise configuration: %w", err)
			return
		}

		rt := &runtime{engine: engine}
		cfg := engine.Current()
		if cfg.Persistence.Enabled {
			if cfg.Persistence.DataPath != "" {
				rt.store = store.NewStoreAt(logger, cfg.Persistence.DataPath)
			} else {
				rt.store, err = store.NewStore(logger)
				if err != nil {
					runtimeErr = fmt.Errorf("failed to initialise snapshot store: %w", err)
					return
				}
			}
		}
		runtimeInst = rt
	})
	return runtimeInst, runtimeErr
}

// workspaceFor resolves a project's live workspace through the shared
// cache and applies the configured limits to it, so every mutating
// path (single commands, replayed streams) is bounded by the current
// configuration.
func workspaceFor(logger *logrus.Logger, cache *sync.Map, project string) (*workspace.Manager, *workspace.Workspace, *config.Engine, error) {
	rt, err := getRuntime(logger)
	if err != nil {
		return nil, nil, nil, err
	}
	manager := workspace.NewManager(cache, rt.store, logger)
	ws, err := manager.Get(project)
	if err != nil {
		return nil, nil, nil, err
	}
	limits := rt.engine.Current().Limits
	ws.SetLimits(workspace.Limits{
		MaxFileSize: limits.MaxFileSize,
		MaxEntries:  limits.MaxFilesPerWorkspace,
	})
	return manager, ws, rt.engine, nil
}

// parseProject extracts and validates the required project argument.
func parseProject(args map[string]interface{}) (string, error) {
	project, ok := args["project"].(string)
	if !ok || project == "" {
		return "", fmt.Errorf("missing required parameter: project")
	}
	return project, nil
}

// parseOptions extracts the function-specific options map.
func parseOptions(args map[string]interface{}) map[string]interface{} {
	options := make(map[string]interface{})
	if optionsRaw, ok := args["options"]; ok {
		if optionsMap, ok := optionsRaw.(map[string]interface{}); ok {
			options = optionsMap
		}
	}
	return options
}

func optionString(options map[string]interface{}, key string) string {
	s, _ := options[key].(string)
	return s
}
