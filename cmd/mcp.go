package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"ragrep/internal/engine"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP server exposing index and recall tools",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}

	eng, err := newEngine(wd)
	if err != nil {
		return err
	}
	defer eng.Close()

	s := mcpserver.NewMCPServer("ragrep", "1.0.0", mcpserver.WithToolCapabilities(false))

	s.AddTool(recallTool(), makeRecallHandler(eng))
	s.AddTool(indexTool(), makeIndexHandler(eng))
	s.AddTool(statsTool(), makeStatsHandler(eng))

	return mcpserver.ServeStdio(s)
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

// --- Tool schema builders ---

var readOnlyAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(true),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

func recallTool() mcp.Tool {
	return mcp.NewTool("recall",
		mcp.WithDescription("Semantically search the indexed directory tree. Returns the most similar text chunks with source paths, byte ranges, and similarity scores."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language query"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of chunks to return (default 5)"),
		),
		mcp.WithBoolean("auto_index",
			mcp.Description("Refresh the index before searching (default false)"),
		),
	)
}

func indexTool() mcp.Tool {
	return mcp.NewTool("index_directory",
		mcp.WithDescription("Build or incrementally refresh the semantic index for a directory. Unchanged files are never re-embedded."),
		mcp.WithString("path",
			mcp.Description("Directory to index (default: server working directory)"),
		),
		mcp.WithBoolean("force",
			mcp.Description("Discard the existing index and rebuild from scratch"),
		),
	)
}

func statsTool() mcp.Tool {
	return mcp.NewTool("index_stats",
		mcp.WithDescription("Report index statistics: file and chunk counts, embedding model, indexed root, and chunking configuration."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
	)
}

// --- Handler factories ---

func makeRecallHandler(eng *engine.Engine) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := req.GetString("query", "")
		if query == "" {
			return mcp.NewToolResultError("query is required"), nil
		}
		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		autoIndex := req.GetBool("auto_index", false)

		res, err := eng.Recall(query, limit, "", autoIndex)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("recall failed: %v", err)), nil
		}
		return mcp.NewToolResultText(formatRecall(res)), nil
	}
}

func makeIndexHandler(eng *engine.Engine) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path := req.GetString("path", "")
		if path == "" {
			wd, err := os.Getwd()
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			path = wd
		}
		force := req.GetBool("force", false)

		res, err := eng.Index(path, force)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("index failed: %v", err)), nil
		}

		raw, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(raw)), nil
	}
}

func makeStatsHandler(eng *engine.Engine) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st, err := eng.Stats()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("stats failed: %v", err)), nil
		}
		raw, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(raw)), nil
	}
}

// --- Formatting helpers ---

func formatRecall(res *engine.RecallResult) string {
	if res.Count == 0 {
		return fmt.Sprintf("No results found for query: %q", res.Query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## %d results for %q\n\n", res.Count, res.Query)
	for i, m := range res.Matches {
		fmt.Fprintf(&sb, "### Result %d: `%s`\n\n", i+1, m.Metadata["source"])
		fmt.Fprintf(&sb, "**Score:** %.4f  \n**Chunk:** %s\n\n", m.Score, m.ID)
		fmt.Fprintf(&sb, "```\n%s\n```\n\n", m.Text)
	}
	return sb.String()
}
