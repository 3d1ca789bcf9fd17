package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	clirunner "github.com/previewfs/previewfs/internal/cli"
	"github.com/previewfs/previewfs/internal/config"
	"github.com/previewfs/previewfs/internal/registry"
	"github.com/previewfs/previewfs/internal/tools"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	// Import all tool packages to register them
	_ "github.com/previewfs/previewfs/internal/imports"
)

// Version information (set during build)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Global resources that need cleanup
// Using atomic operations to prevent race conditions between signal handlers and cleanup
var (
	debugLogFile atomic.Pointer[os.File]
	isStdioMode  atomic.Bool
)

const (
	// DefaultMemoryLimit is the default memory limit for the Go application (2GB)
	DefaultMemoryLimit = 2 * 1024 * 1024 * 1024
)

// parseLogLevel parses the LOG_LEVEL environment variable and returns the appropriate logrus level.
// Defaults to WarnLevel if not set or invalid.
func parseLogLevel() logrus.Level {
	logLevelStr := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	switch logLevelStr {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.WarnLevel
	}
}

// setMemoryLimit configures the Go runtime memory limit. Workspaces are
// held entirely in memory, so a soft cap keeps a runaway session from
// taking the host with it.
func setMemoryLimit() {
	memLimit := int64(DefaultMemoryLimit)
	if memLimitStr := os.Getenv("PREVIEWFS_MEMORY_LIMIT"); memLimitStr != "" {
		if parsed, err := strconv.ParseInt(memLimitStr, 10, 64); err == nil && parsed > 0 {
			memLimit = parsed
		}
	}
	debug.SetMemoryLimit(memLimit)
}

func main() {
	// Load .env before anything reads the environment; missing files are fine
	_ = godotenv.Load()

	setMemoryLimit()

	// Create context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Create a logger with default configuration.
	// Initially discard output - reconfigured in Action based on transport mode.
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(parseLogLevel())
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// Initialise the registry
	registry.Init(logger)

	defer performCleanup(logger)

	app := &cli.Command{
		Name:    "previewfs",
		Usage:   "MCP server providing in-memory project workspaces for AI agents",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "transport",
				Aliases: []string{"t"},
				Value:   "stdio",
				Usage:   "Transport type (stdio, sse, or http)",
			},
			&cli.StringFlag{
				Name:  "port",
				Value: "18080",
				Usage: "Port to use for HTTP transports (SSE and Streamable HTTP)",
			},
			&cli.StringFlag{
				Name:  "base-url",
				Value: "http://localhost",
				Usage: "Base URL for HTTP transports",
			},
			&cli.StringFlag{
				Name:  "auth-token",
				Usage: "Authentication token for Streamable HTTP transport (optional)",
			},
			&cli.StringFlag{
				Name:  "endpoint-path",
				Value: "/http",
				Usage: "Endpoint path for Streamable HTTP transport",
			},
			&cli.DurationFlag{
				Name:  "session-timeout",
				Value: 30 * time.Minute,
				Usage: "Session timeout for Streamable HTTP transport",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "Print version information",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Printf("previewfs version %s\n", Version)
					fmt.Printf("Commit: %s\n", Commit)
					fmt.Printf("Built: %s\n", BuildDate)
					return nil
				},
			},
			{
				Name:  "config-validate",
				Usage: "Validate the configuration file for errors",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "config-path",
						Usage: "Path to configuration file (default: ~/.previewfs/config.yaml)",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return handleConfigValidate(cmd, logger)
				},
			},
			{
				Name:  "cli",
				Usage: "Invoke workspace tools directly without starting a server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "output",
						Value: "text",
						Usage: "Output format (text or json)",
					},
				},
				Commands: []*cli.Command{
					{
						Name:  "list",
						Usage: "List available tools",
						Action: func(ctx context.Context, cmd *cli.Command) error {
							return newCLIRunner(cmd, logger).ListTools()
						},
					},
					{
						Name:      "help",
						Usage:     "Show a tool's functions and options",
						ArgsUsage: "<tool>",
						Action: func(ctx context.Context, cmd *cli.Command) error {
							if cmd.Args().Len() < 1 {
								return fmt.Errorf("usage: previewfs cli help <tool>")
							}
							return newCLIRunner(cmd, logger).HelpTool(cmd.Args().First())
						},
					},
					{
						Name:      "call",
						Usage:     "Call a tool with --key=value flags or a JSON object",
						ArgsUsage: "<tool> [arguments]",
						Action: func(ctx context.Context, cmd *cli.Command) error {
							if cmd.Args().Len() < 1 {
								return fmt.Errorf("usage: previewfs cli call <tool> [arguments]")
							}
							logger.SetOutput(os.Stderr)
							return newCLIRunner(cmd, logger).RunTool(ctx, cmd.Args().First(), cmd.Args().Tail())
						},
					},
				},
			},
		},
		Action: func(cliCtx context.Context, cmd *cli.Command) error {
			transport := cmd.String("transport")
			port := cmd.String("port")
			baseURL := cmd.String("base-url")

			// Track stdio mode for error handling (atomic to prevent races with signal handlers)
			isStdioMode.Store(transport == "stdio")

			configureLogging(logger)

			// Initialise tool error logger after logging is configured
			if err := tools.InitGlobalErrorLogger(logger); err != nil {
				logger.WithError(err).Debug("Failed to initialise tool error logger")
				if transport != "stdio" {
					logger.WithError(err).Warn("Failed to initialise tool error logger")
				}
			}

			if transport != "stdio" {
				logger.Infof("Starting previewfs version %s (commit: %s, built: %s)",
					Version, Commit, BuildDate)
			}

			logger.Debug("Creating MCP server")
			mcpSrv := mcpserver.NewMCPServer("previewfs", "Workspace MCP Server")

			registeredTools := registry.GetTools()
			logger.WithField("tool_count", len(registeredTools)).Debug("MCP server created, registering tools")

			for toolName := range registeredTools {
				name := toolName

				if transport != "stdio" {
					logger.Infof("Registering tool: %s", name)
				}

				mcpSrv.AddTool(registeredTools[name].Definition(), func(toolCtx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
					// Get fresh reference from registry to ensure consistency
					currentTool, ok := registry.GetTool(name)
					if !ok {
						return nil, fmt.Errorf("tool not found: %s", name)
					}

					args, ok := request.Params.Arguments.(map[string]any)
					if !ok {
						return nil, fmt.Errorf("invalid arguments type: expected map[string]interface{}, got %T", request.Params.Arguments)
					}

					result, err := currentTool.Execute(toolCtx, registry.GetLogger(), registry.GetCache(), args)
					if err != nil {
						if transport != "stdio" {
							logger.WithError(err).Errorf("Tool execution failed: %s", name)
						}
						if errorLogger := tools.GetGlobalErrorLogger(); errorLogger != nil && errorLogger.IsEnabled() {
							errorLogger.LogToolError(name, args, err, transport)
						}
						return nil, fmt.Errorf("tool execution failed: %w", err)
					}
					return result, nil
				})
			}

			logger.WithField("transport", transport).Debug("Starting server")
			switch transport {
			case "stdio":
				logger.Debug("Starting stdio server")
				return mcpserver.ServeStdio(mcpSrv)
			case "sse":
				logger.WithField("port", port).Debug("Starting SSE server")
				sseServer := mcpserver.NewSSEServer(mcpSrv, mcpserver.WithBaseURL(baseURL+"/sse"))
				return sseServer.Start(":" + port)
			case "http":
				logger.WithField("port", port).Debug("Starting HTTP server")
				return startStreamableHTTPServer(cmd, mcpSrv, logger)
			default:
				return fmt.Errorf("unsupported transport: %s", transport)
			}
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		// In stdio mode we must not write to stdout or stderr as it
		// breaks the MCP protocol, even for errors raised before the
		// protocol starts.
		if !isStdioMode.Load() {
			logger.Fatalf("Error: %v", err)
		}
		os.Exit(1)
	}
}

// configureLogging routes logs to a file so stdio transports never see
// log output on the protocol streams.
func configureLogging(logger *logrus.Logger) {
	logLevel := parseLogLevel()
	if isStdioMode.Load() && logLevel < logrus.WarnLevel {
		logLevel = logrus.WarnLevel
	}

	fallback := func() {
		if isStdioMode.Load() {
			logger.SetOutput(io.Discard)
			logrus.SetOutput(io.Discard)
		} else {
			logger.SetOutput(os.Stderr)
			logrus.SetOutput(os.Stderr)
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fallback()
	} else {
		logDir := filepath.Join(homeDir, ".previewfs", "logs")
		if err := os.MkdirAll(logDir, 0700); err != nil {
			fallback()
		} else {
			logFile := filepath.Join(logDir, "previewfs.log")
			file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
			if err != nil {
				fallback()
			} else {
				debugLogFile.Store(file)
				logger.SetOutput(file)
				logrus.SetOutput(file)
			}
		}
	}

	logger.SetLevel(logLevel)
	logrus.SetLevel(logLevel)
	logger.WithField("level", logLevel.String()).Debug("Logging configured")
}

// newCLIRunner builds a Runner for the cli subcommands. CLI invocations
// log to stderr rather than the log file so errors are visible.
func newCLIRunner(cmd *cli.Command, logger *logrus.Logger) *clirunner.Runner {
	output := clirunner.OutputText
	if cmd.String("output") == "json" {
		output = clirunner.OutputJSON
	}
	return clirunner.NewRunner(logger, registry.GetCache(), output)
}

// performCleanup handles cleanup of resources on shutdown
func performCleanup(logger *logrus.Logger) {
	// Close the debug log file if it was opened (atomic load to prevent races)
	if file := debugLogFile.Load(); file != nil {
		// Silently close - stdio mode allows no output and other modes
		// may be logging to this very file
		_ = file.Close()
	}

	if errorLogger := tools.GetGlobalErrorLogger(); errorLogger != nil {
		if err := errorLogger.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close tool error logger")
		}
	}
}

// startStreamableHTTPServer configures and starts the Streamable HTTP server
func startStreamableHTTPServer(cmd *cli.Command, mcpServer *mcpserver.MCPServer, logger *logrus.Logger) error {
	port := cmd.String("port")
	authToken := cmd.String("auth-token")
	endpointPath := cmd.String("endpoint-path")
	sessionTimeout := cmd.Duration("session-timeout")

	logger.Infof("Starting Streamable HTTP server on port %s with endpoint %s", port, endpointPath)

	var opts []mcpserver.StreamableHTTPOption
	opts = append(opts, mcpserver.WithEndpointPath(endpointPath))

	if authToken != "" {
		opts = append(opts, mcpserver.WithHTTPContextFunc(createAuthMiddleware(authToken, logger)))
		logger.Info("Token authentication enabled")
	}

	// Heartbeat keeps idle connections alive at 1/4 of the session timeout
	heartbeatInterval := 30 * time.Second
	if sessionTimeout > 0 {
		heartbeatInterval = sessionTimeout / 4
	}
	opts = append(opts, mcpserver.WithHeartbeatInterval(heartbeatInterval))
	opts = append(opts, mcpserver.WithLogger(&logrusAdapter{logger: logger}))

	httpServer := mcpserver.NewStreamableHTTPServer(mcpServer, opts...)

	logger.Infof("Heartbeat interval: %v", heartbeatInterval)
	logger.Info("Server supports multiple simultaneous connections")

	return httpServer.Start(":" + port)
}

// createAuthMiddleware creates an HTTP context function for token authentication
func createAuthMiddleware(expectedToken string, logger *logrus.Logger) mcpserver.HTTPContextFunc {
	return func(ctx context.Context, req *http.Request) context.Context {
		authHeader := req.Header.Get("Authorization")
		if authHeader == "" {
			logger.Warn("Request missing Authorization header")
			return ctx
		}

		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			logger.Warn("Invalid authorization format, expected Bearer token")
			return ctx
		}

		if strings.TrimPrefix(authHeader, bearerPrefix) != expectedToken {
			logger.Warn("Invalid authentication token")
			return ctx
		}

		logger.Debug("Request authenticated successfully")
		return ctx
	}
}

// logrusAdapter adapts logrus.Logger to the mcp-go util.Logger interface
type logrusAdapter struct {
	logger *logrus.Logger
}

func (l *logrusAdapter) Debugf(format string, args ...any) {
	l.logger.Debugf(format, args...)
}

func (l *logrusAdapter) Infof(format string, args ...any) {
	l.logger.Infof(format, args...)
}

func (l *logrusAdapter) Warnf(format string, args ...any) {
	l.logger.Warnf(format, args...)
}

func (l *logrusAdapter) Errorf(format string, args ...any) {
	l.logger.Errorf(format, args...)
}

// handleConfigValidate validates the configuration file
func handleConfigValidate(cmd *cli.Command, logger *logrus.Logger) error {
	configPath := cmd.String("config-path")
	if configPath == "" {
		var err error
		configPath, err = config.DefaultPath()
		if err != nil {
			return err
		}
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Printf("Configuration file not found: %s\n", configPath)
		fmt.Println("It will be created automatically on first server start.")
		return nil
	}

	fmt.Printf("Validating configuration: %s\n", configPath)
	logger.SetOutput(os.Stderr)

	engine, err := config.NewEngine(configPath, logger)
	if err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}
	cfg := engine.Current()

	fmt.Println("Configuration is valid")
	fmt.Println()
	fmt.Printf("Version: %d\n", cfg.Version)
	fmt.Printf("Auto reload: %t\n", cfg.Settings.AutoReload)
	fmt.Printf("Persistence enabled: %t\n", cfg.Persistence.Enabled)
	if cfg.Persistence.DataPath != "" {
		fmt.Printf("Data path: %s\n", cfg.Persistence.DataPath)
	}
	fmt.Printf("Max file size: %d bytes\n", cfg.Limits.MaxFileSize)
	fmt.Printf("Max files per workspace: %d\n", cfg.Limits.MaxFilesPerWorkspace)
	return nil
}
