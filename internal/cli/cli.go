// Package cli provides a direct command-line interface to the
// workspace tools, bypassing the MCP server entirely. Tools are invoked
// in-process via the registry, so no server or network round-trip is
// needed.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/previewfs/previewfs/internal/registry"
	"github.com/previewfs/previewfs/internal/tools"
	"github.com/sirupsen/logrus"
)

// OutputFormat controls how tool results are rendered.
type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
)

// Runner executes CLI commands against the tool registry.
type Runner struct {
	logger *logrus.Logger
	cache  *sync.Map
	output OutputFormat
	stdout io.Writer
}

// NewRunner creates a Runner that uses the given logger, cache, and output format.
func NewRunner(logger *logrus.Logger, cache *sync.Map, output OutputFormat) *Runner {
	return &Runner{logger: logger, cache: cache, output: output, stdout: os.Stdout}
}

// ListTools prints all registered tools with their descriptions. Tools
// with extended help are pointed at 'previewfs cli help <tool>'.
func (r *Runner) ListTools() error {
	names := registry.GetEnabledToolNames()
	withHelp := make(map[string]bool)
	for _, name := range registry.GetToolNamesWithExtendedHelp() {
		withHelp[name] = true
	}

	type entry struct {
		name string
		desc string
	}
	entries := make([]entry, 0, len(names))
	for _, name := range names {
		tool, ok := registry.GetTool(name)
		if !ok {
			continue
		}
		entries = append(entries, entry{name: name, desc: firstLine(tool.Definition().Description)})
	}

	if r.output == OutputJSON {
		type jsonEntry struct {
			Name         string `json:"name"`
			Description  string `json:"description"`
			ExtendedHelp bool   `json:"extended_help"`
		}
		out := make([]jsonEntry, len(entries))
		for i, e := range entries {
			out[i] = jsonEntry{Name: e.name, Description: e.desc, ExtendedHelp: withHelp[e.name]}
		}
		return writeJSON(r.stdout, out)
	}

	w := tabwriter.NewWriter(r.stdout, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\n", e.name, e.desc)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if len(registry.GetToolNamesWithExtendedHelp()) > 0 {
		fmt.Fprintf(r.stdout, "\nRun 'previewfs cli help <tool>' for examples and troubleshooting.\n")
	}
	return nil
}

// HelpTool prints the description, examples, and troubleshooting tips
// for a single tool.
func (r *Runner) HelpTool(name string) error {
	tool, ok := registry.GetTool(resolveTool(name))
	if !ok {
		return fmt.Errorf("unknown tool: %s", name)
	}

	def := tool.Definition()
	provider, _ := tool.(tools.ExtendedHelpProvider)

	if r.output == OutputJSON {
		out := struct {
			Definition   mcp.Tool            `json:"definition"`
			ExtendedHelp *tools.ExtendedHelp `json:"extended_help,omitempty"`
		}{Definition: def}
		if provider != nil {
			out.ExtendedHelp = provider.ProvideExtendedInfo()
		}
		return writeJSON(r.stdout, out)
	}

	fmt.Fprintf(r.stdout, "Tool: %s\n\n", def.Name)
	if def.Description != "" {
		fmt.Fprintf(r.stdout, "%s\n", def.Description)
	}
	if provider != nil {
		r.renderExtendedHelp(provider.ProvideExtendedInfo())
	}
	return nil
}

// renderExtendedHelp formats a tool's extended help for the terminal.
func (r *Runner) renderExtendedHelp(help *tools.ExtendedHelp) {
	if help == nil {
		return
	}

	if help.WhenToUse != "" {
		fmt.Fprintf(r.stdout, "\nWhen to use: %s\n", help.WhenToUse)
	}
	if help.WhenNotToUse != "" {
		fmt.Fprintf(r.stdout, "When not to use: %s\n", help.WhenNotToUse)
	}

	if len(help.Examples) > 0 {
		fmt.Fprintf(r.stdout, "\nExamples:\n")
		for i, example := range help.Examples {
			fmt.Fprintf(r.stdout, "\n%d. %s\n", i+1, example.Description)
			if args, err := json.MarshalIndent(example.Arguments, "   ", "  "); err == nil {
				fmt.Fprintf(r.stdout, "   %s\n", string(args))
			}
			if example.ExpectedResult != "" {
				fmt.Fprintf(r.stdout, "   Result: %s\n", example.ExpectedResult)
			}
		}
	}

	if len(help.CommonPatterns) > 0 {
		fmt.Fprintf(r.stdout, "\nCommon patterns:\n")
		for _, pattern := range help.CommonPatterns {
			fmt.Fprintf(r.stdout, "  - %s\n", pattern)
		}
	}

	if len(help.Troubleshooting) > 0 {
		fmt.Fprintf(r.stdout, "\nTroubleshooting:\n")
		for _, tip := range help.Troubleshooting {
			fmt.Fprintf(r.stdout, "  Problem: %s\n  Solution: %s\n", tip.Problem, tip.Solution)
		}
	}
}

// RunTool executes a tool by name with the given arguments.
// args can be:
//   - A single JSON string: '{"key": "value"}'
//   - Flag-style arguments: --key=value
//   - Mixed: --key=value '{"other": "json"}'  (flags take precedence)
func (r *Runner) RunTool(ctx context.Context, name string, args []string) error {
	resolved := resolveTool(name)
	tool, ok := registry.GetTool(resolved)
	if !ok {
		return fmt.Errorf("unknown tool: %s (run 'previewfs cli list' to see available tools)", name)
	}

	params, err := parseArgs(args)
	if err != nil {
		return fmt.Errorf("argument error: %w", err)
	}

	result, err := tool.Execute(ctx, r.logger, r.cache, params)
	if err != nil {
		return fmt.Errorf("tool error: %w", err)
	}
	return r.renderResult(result)
}

// parseArgs converts CLI arguments into a map[string]any suitable for
// tool.Execute(). Values that parse as JSON (objects, arrays, numbers,
// booleans) are passed through typed; everything else stays a string.
func parseArgs(args []string) (map[string]any, error) {
	params := make(map[string]any)

	for _, arg := range args {
		// JSON object argument
		if strings.HasPrefix(arg, "{") {
			var obj map[string]any
			if err := json.Unmarshal([]byte(arg), &obj); err != nil {
				return nil, fmt.Errorf("invalid JSON argument: %w", err)
			}
			// JSON values merge in (earlier flags take precedence)
			for k, v := range obj {
				if _, exists := params[k]; !exists {
					params[k] = v
				}
			}
			continue
		}

		// Flag-style argument
		if strings.HasPrefix(arg, "--") {
			key, rawVal, found := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
			if !found {
				return nil, fmt.Errorf("flag --%s requires a value (use --%s=value)", key, key)
			}
			params[strings.ReplaceAll(key, "-", "_")] = coerceValue(rawVal)
			continue
		}

		return nil, fmt.Errorf("unexpected argument: %s (use --key=value flags or pass a JSON object)", arg)
	}

	return params, nil
}

// coerceValue parses typed JSON values out of flag strings so
// --options='{"path":"/a"}' arrives as a map, not a string.
func coerceValue(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	switch trimmed {
	case "true":
		return true
	case "false":
		return false
	}
	return raw
}

// renderResult formats a CallToolResult for terminal output.
func (r *Runner) renderResult(result *mcp.CallToolResult) error {
	if result == nil {
		return nil
	}

	if r.output == OutputJSON {
		return writeJSON(r.stdout, result)
	}

	for _, content := range result.Content {
		switch c := content.(type) {
		case mcp.TextContent:
			fmt.Fprintln(r.stdout, c.Text)
		default:
			data, err := json.MarshalIndent(c, "", "  ")
			if err != nil {
				fmt.Fprintf(r.stdout, "%+v\n", c)
			} else {
				fmt.Fprintln(r.stdout, string(data))
			}
		}
	}

	if result.IsError {
		return fmt.Errorf("tool returned an error")
	}
	return nil
}

// resolveTool converts kebab-case names to the snake_case names tools
// register with, since CLI users naturally type kebab-case.
func resolveTool(name string) string {
	if _, ok := registry.GetTool(name); ok {
		return name
	}
	return strings.ReplaceAll(name, "-", "_")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstLine(s string) string {
	if before, _, found := strings.Cut(s, "\n"); found {
		return before
	}
	return s
}
