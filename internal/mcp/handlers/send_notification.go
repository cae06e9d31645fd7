package handlers

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/elastic/internal/notify"
)

// Notifier publishes to the dashboard.
// Defined at the consumer side per Go convention.
type Notifier interface {
	Send(n *notify.Notification)
	SelectTab(name string)
	SelectTabIndex(index int)
}

// SendNotification returns a handler that pops up a notification on the
// dashboard.
func SendNotification(n Notifier) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		levelArg, _ := args["level"].(string)
		if levelArg == "" {
			return mcp.NewToolResultError("level is required"), nil
		}
		level, err := notify.ParseLevel(levelArg)
		if err != nil {
			return mcp.NewToolResultError("level must be INFO, WARNING or ERROR"), nil
		}

		title, _ := args["title"].(string)
		if strings.TrimSpace(title) == "" {
			return mcp.NewToolResultError("title is required"), nil
		}
		description, _ := args["description"].(string)

		notification := notify.NewNotification(level, title, description)

		if secs, ok := args["display_seconds"].(float64); ok {
			if secs < 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
				return mcp.NewToolResultError("display_seconds must be zero or positive"), nil
			}
			notification.WithDisplaySeconds(secs)
		}
		if noDismiss, ok := args["no_auto_dismiss"].(bool); ok && noDismiss {
			notification.WithNoAutoDismiss()
		}
		if width, ok := args["width"].(float64); ok {
			if width <= 0 || math.IsInf(width, 0) || math.IsNaN(width) {
				return mcp.NewToolResultError("width must be a positive number"), nil
			}
			notification.WithWidth(width)
		}
		if height, ok := args["height"].(float64); ok {
			if math.IsInf(height, 0) || math.IsNaN(height) {
				return mcp.NewToolResultError("height must be a number"), nil
			}
			notification.WithHeight(height)
		}

		n.Send(notification)

		var sb strings.Builder
		sb.WriteString("Notification sent\n\n")
		fmt.Fprintf(&sb, "- **Level:** %s\n", notification.Level())
		fmt.Fprintf(&sb, "- **Title:** %s\n", notification.Title())
		if notification.Description() != "" {
			fmt.Fprintf(&sb, "- **Description:** %s\n", notification.Description())
		}
		fmt.Fprintf(&sb, "- **Display:** %s\n", formatDisplay(notification.DisplayTimeMillis()))
		fmt.Fprintf(&sb, "- **Size:** %s\n", formatSize(notification))

		return mcp.NewToolResultText(sb.String()), nil
	}
}

func formatDisplay(millis int) string {
	if millis <= 0 {
		return "until dismissed"
	}
	if millis%1000 == 0 {
		return fmt.Sprintf("%ds", millis/1000)
	}
	return fmt.Sprintf("%.1fs", float64(millis)/1000)
}

func formatSize(n *notify.Notification) string {
	if n.HasAutomaticHeight() {
		return fmt.Sprintf("%g wide, automatic height", n.Width())
	}
	return fmt.Sprintf("%gx%g", n.Width(), n.Height())
}
