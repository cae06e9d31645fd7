package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/elastic/internal/bus"
)

const maxValuePreview = 120

// TopicLister returns the retained value of every topic.
type TopicLister interface {
	Topics() []bus.Value
}

// ListTopics returns a handler that lists topics and their last values.
func ListTopics(tl TopicLister) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		values := tl.Topics()
		if len(values) == 0 {
			return mcp.NewToolResultText("No topic has a value yet."), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Topics (%d)\n\n", len(values))
		for _, v := range values {
			fmt.Fprintf(&sb, "- **%s** = %q\n", v.Topic, preview(v.Data))
			fmt.Fprintf(&sb, "  seq %d, %s\n", v.Seq, v.Time.Format(time.RFC3339))
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// preview cuts s to maxValuePreview runes.
func preview(s string) string {
	if utf8.RuneCountInString(s) <= maxValuePreview {
		return s
	}
	runes := 0
	for i := range s {
		if runes == maxValuePreview {
			return s[:i] + "..."
		}
		runes++
	}
	return s
}
