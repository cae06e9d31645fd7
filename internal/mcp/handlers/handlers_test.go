package handlers

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/elastic/internal/bus"
	"github.com/btouchard/elastic/internal/notify"
)

func newTestDeps(t *testing.T) (*notify.Publisher, *bus.Memory) {
	t.Helper()
	b := bus.NewMemory(slog.New(slog.DiscardHandler), nil)
	t.Cleanup(b.Close)
	return notify.NewPublisher(b, notify.DefaultTopics(), slog.New(slog.DiscardHandler)), b
}

func makeReq(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	return result.Content[0].(mcp.TextContent).Text
}

func lastNotification(t *testing.T, b *bus.Memory) *notify.Notification {
	t.Helper()
	v, ok := b.Last(notify.DefaultNotificationTopic)
	require.True(t, ok, "no notification published")
	n, err := notify.Decode(v.Data)
	require.NoError(t, err)
	return n
}

// --- SendNotification tests ---

func TestSendNotification_WhenValid_PublishesPayload(t *testing.T) {
	t.Parallel()
	p, b := newTestDeps(t)
	handler := SendNotification(p)

	result, err := handler(context.Background(), makeReq(map[string]any{
		"level":           "error",
		"title":           "Low Battery",
		"description":     "12.1V",
		"display_seconds": float64(5),
		"width":           float64(400),
		"height":          float64(200),
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Notification sent")
	assert.Contains(t, text, "5s")
	assert.Contains(t, text, "400x200")

	n := lastNotification(t, b)
	assert.Equal(t, notify.NewNotificationFull(notify.LevelError, "Low Battery", "12.1V", 5000, 400, 200), n)
}

func TestSendNotification_WhenOnlyRequired_UsesDefaults(t *testing.T) {
	t.Parallel()
	p, b := newTestDeps(t)
	handler := SendNotification(p)

	result, err := handler(context.Background(), makeReq(map[string]any{
		"level": "INFO",
		"title": "Auto selected",
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "automatic height")

	n := lastNotification(t, b)
	assert.Equal(t, notify.NewNotification(notify.LevelInfo, "Auto selected", ""), n)
}

func TestSendNotification_WhenNoAutoDismiss_ZeroesDisplayTime(t *testing.T) {
	t.Parallel()
	p, b := newTestDeps(t)
	handler := SendNotification(p)

	result, err := handler(context.Background(), makeReq(map[string]any{
		"level":           "WARNING",
		"title":           "Arm",
		"display_seconds": float64(10),
		"no_auto_dismiss": true,
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "until dismissed")

	assert.Equal(t, 0, lastNotification(t, b).DisplayTimeMillis())
}

func TestSendNotification_WhenInvalidArgs_ReturnsError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing level", map[string]any{"title": "x"}, "level is required"},
		{"unknown level", map[string]any{"level": "FATAL", "title": "x"}, "level must be"},
		{"missing title", map[string]any{"level": "INFO"}, "title is required"},
		{"blank title", map[string]any{"level": "INFO", "title": "  "}, "title is required"},
		{"negative display", map[string]any{"level": "INFO", "title": "x", "display_seconds": float64(-1)}, "display_seconds"},
		{"zero width", map[string]any{"level": "INFO", "title": "x", "width": float64(0)}, "width"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p, b := newTestDeps(t)
			handler := SendNotification(p)

			result, err := handler(context.Background(), makeReq(tc.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), tc.want)

			_, published := b.Last(notify.DefaultNotificationTopic)
			assert.False(t, published)
		})
	}
}

func TestFormatDisplay(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "until dismissed", formatDisplay(0))
	assert.Equal(t, "3s", formatDisplay(3000))
	assert.Equal(t, "2.5s", formatDisplay(2500))
}

// --- SelectTab tests ---

func TestSelectTab_WhenName_PublishesName(t *testing.T) {
	t.Parallel()
	p, b := newTestDeps(t)
	handler := SelectTab(p)

	result, err := handler(context.Background(), makeReq(map[string]any{"tab": "Teleoperated"}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Teleoperated")

	v, ok := b.Last(notify.DefaultSelectedTabTopic)
	require.True(t, ok)
	assert.Equal(t, "Teleoperated", v.Data)
}

func TestSelectTab_WhenNameHasSpaces_PublishesVerbatim(t *testing.T) {
	t.Parallel()
	p, b := newTestDeps(t)
	handler := SelectTab(p)

	result, err := handler(context.Background(), makeReq(map[string]any{"tab": " Auto "}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	v, ok := b.Last(notify.DefaultSelectedTabTopic)
	require.True(t, ok)
	assert.Equal(t, " Auto ", v.Data)
}

func TestSelectTab_WhenIndex_PublishesDecimalText(t *testing.T) {
	t.Parallel()
	p, b := newTestDeps(t)
	handler := SelectTab(p)

	_, err := handler(context.Background(), makeReq(map[string]any{"tab": float64(3)}))
	require.NoError(t, err)

	v, ok := b.Last(notify.DefaultSelectedTabTopic)
	require.True(t, ok)
	assert.Equal(t, "3", v.Data)
}

func TestSelectTab_WhenInvalid_ReturnsError(t *testing.T) {
	t.Parallel()
	p, b := newTestDeps(t)
	handler := SelectTab(p)

	for _, args := range []map[string]any{
		{},
		{"tab": ""},
		{"tab": "   "},
		{"tab": float64(-1)},
		{"tab": float64(1.5)},
	} {
		result, err := handler(context.Background(), makeReq(args))
		require.NoError(t, err)
		assert.True(t, result.IsError)
	}

	_, ok := b.Last(notify.DefaultSelectedTabTopic)
	assert.False(t, ok)
}

// --- ListTopics tests ---

func TestListTopics_WhenEmpty_SaysSo(t *testing.T) {
	t.Parallel()
	_, b := newTestDeps(t)

	result, err := ListTopics(b)(context.Background(), makeReq(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "No topic has a value yet")
}

func TestListTopics_ListsRetainedValues(t *testing.T) {
	t.Parallel()
	p, b := newTestDeps(t)

	p.SelectTab("Autonomous")
	p.Send(notify.NewNotification(notify.LevelWarning, "Vision", strings.Repeat("x", 300)))

	result, err := ListTopics(b)(context.Background(), makeReq(nil))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "Topics (2)")
	assert.Contains(t, text, notify.DefaultSelectedTabTopic)
	assert.Contains(t, text, `"Autonomous"`)
	assert.Contains(t, text, "...")
	assert.Less(t, strings.Index(text, notify.DefaultNotificationTopic), strings.Index(text, notify.DefaultSelectedTabTopic))
}

func TestPreview_CutsOnRuneBoundary(t *testing.T) {
	t.Parallel()

	short := strings.Repeat("é", maxValuePreview)
	assert.Equal(t, short, preview(short))

	long := strings.Repeat("é", maxValuePreview+5)
	got := preview(long)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("é", maxValuePreview)+"...", got)

	mixed := "a" + strings.Repeat("日本", maxValuePreview)
	assert.True(t, utf8.ValidString(preview(mixed)))
	assert.Equal(t, maxValuePreview+3, utf8.RuneCountInString(preview(mixed)))
}
