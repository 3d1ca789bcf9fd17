package imports

import (
	// Workspace tools - registered via their init() functions
	_ "github.com/previewfs/previewfs/internal/tools/workspacefs"
)
