package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// SelectTab returns a handler that switches the dashboard to a tab, by
// name or by zero-based index.
func SelectTab(n Notifier) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		switch tab := args["tab"].(type) {
		case float64:
			if tab < 0 || tab != float64(int(tab)) {
				return mcp.NewToolResultError("tab index must be a non-negative integer"), nil
			}
			n.SelectTabIndex(int(tab))
			return mcp.NewToolResultText(fmt.Sprintf("Selected tab %d", int(tab))), nil

		case string:
			if strings.TrimSpace(tab) == "" {
				return mcp.NewToolResultError("tab is required"), nil
			}
			n.SelectTab(tab)
			return mcp.NewToolResultText(fmt.Sprintf("Selected tab %q", tab)), nil

		default:
			return mcp.NewToolResultError("tab is required"), nil
		}
	}
}
