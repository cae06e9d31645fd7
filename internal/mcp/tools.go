package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/elastic/internal/mcp/handlers"
)

func registerTools(s *server.MCPServer, deps *Deps) {
	// send_notification: Pop up a notification on the dashboard
	s.AddTool(
		mcp.NewTool("send_notification",
			mcp.WithDescription("Show a notification pop-up on the Elastic dashboard. Every call produces a separate pop-up, even when identical to the previous one."),
			mcp.WithString("level",
				mcp.Required(),
				mcp.Description("Display category of the notification"),
				mcp.Enum("INFO", "WARNING", "ERROR"),
			),
			mcp.WithString("title",
				mcp.Required(),
				mcp.Description("Short headline"),
			),
			mcp.WithString("description",
				mcp.Description("Body text"),
			),
			mcp.WithNumber("display_seconds",
				mcp.Description("How long the pop-up stays on screen (default: 3)"),
			),
			mcp.WithBoolean("no_auto_dismiss",
				mcp.Description("If true, the pop-up stays until the operator closes it"),
			),
			mcp.WithNumber("width",
				mcp.Description("Pop-up width in pixels (default: 350)"),
			),
			mcp.WithNumber("height",
				mcp.Description("Pop-up height in pixels. Omit or pass -1 for automatic height."),
			),
		),
		handlers.SendNotification(deps.Notifier),
	)

	// select_tab: Switch the dashboard tab
	s.AddTool(
		mcp.NewTool("select_tab",
			mcp.WithDescription("Switch the Elastic dashboard to a tab. Unknown tab names are ignored by the dashboard."),
			mcp.WithString("tab",
				mcp.Required(),
				mcp.Description("Tab name, or zero-based tab index as a decimal string"),
			),
		),
		handlers.SelectTab(deps.Notifier),
	)

	// list_topics: Inspect retained bus values
	s.AddTool(
		mcp.NewTool("list_topics",
			mcp.WithDescription("List bus topics with their last published value."),
		),
		handlers.ListTopics(deps.Topics),
	)
}
