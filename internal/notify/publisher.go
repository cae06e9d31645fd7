package notify

import (
	"log/slog"
	"strconv"
	"sync"

	"github.com/btouchard/elastic/internal/bus"
)

// Topic names read by the dashboard.
const (
	DefaultNotificationTopic = "/Elastic/RobotNotifications"
	DefaultSelectedTabTopic  = "/Elastic/SelectedTab"

	// Deprecated: topics of older dashboard releases. They are not
	// published to unless configured explicitly.
	LegacyAlertTopic        = "elastic/robotalerts"
	LegacyNotificationTopic = "notifications"
)

// Topics names the two channels a Publisher writes to.
type Topics struct {
	Notifications string
	SelectedTab   string
}

// DefaultTopics returns the topic names of current dashboard releases.
func DefaultTopics() Topics {
	return Topics{
		Notifications: DefaultNotificationTopic,
		SelectedTab:   DefaultSelectedTabTopic,
	}
}

// Delivery options the dashboard relies on. Every notification is a
// separate pop-up, so identical consecutive payloads must all arrive.
// Only the latest selected tab matters.
var (
	NotificationOptions = bus.Options{SendAll: true, KeepDuplicates: true}
	SelectedTabOptions  = bus.Options{KeepDuplicates: true}
)

// Publisher sends notifications and tab selections to the dashboard.
// It is safe for concurrent use and never returns an error: failures are
// logged so a dashboard fault cannot interrupt the control loop.
type Publisher struct {
	notifications bus.Publisher
	selectedTab   bus.Publisher
	logger        *slog.Logger
}

// NewPublisher opens both dashboard topics on b.
func NewPublisher(b bus.Bus, topics Topics, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if topics.Notifications == "" {
		topics.Notifications = DefaultNotificationTopic
	}
	if topics.SelectedTab == "" {
		topics.SelectedTab = DefaultSelectedTabTopic
	}
	return &Publisher{
		notifications: b.Publish(topics.Notifications, NotificationOptions),
		selectedTab:   b.Publish(topics.SelectedTab, SelectedTabOptions),
		logger:        logger.With("component", "notify"),
	}
}

// Send encodes n and publishes the resulting text. Later changes to n do
// not affect what was sent.
func (p *Publisher) Send(n *Notification) {
	text, err := Encode(n)
	if err != nil {
		attrs := []any{"topic", p.notifications.Topic(), "error", err}
		if n != nil {
			attrs = append(attrs, "level", n.Level(), "title", n.Title())
		}
		p.logger.Error("failed to encode notification", attrs...)
		return
	}

	p.notifications.Set(text)
	p.logger.Debug("notification sent", "level", n.Level(), "title", n.Title())
}

// SelectTab asks the dashboard to show the tab called name. Unknown names
// are ignored by the dashboard. A decimal name selects by index.
func (p *Publisher) SelectTab(name string) {
	p.selectedTab.Set(name)
	p.logger.Debug("tab selected", "tab", name)
}

// SelectTabIndex selects the tab at the zero-based index.
func (p *Publisher) SelectTabIndex(index int) {
	p.SelectTab(strconv.Itoa(index))
}

var (
	defaultMu        sync.Mutex
	defaultPublisher *Publisher
)

// Init installs the process-wide publisher. Only the first call opens
// topics; later calls return the installed publisher unchanged.
func Init(b bus.Bus, topics Topics, logger *slog.Logger) *Publisher {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultPublisher == nil {
		defaultPublisher = NewPublisher(b, topics, logger)
	}
	return defaultPublisher
}

// Default returns the process-wide publisher, binding it to bus.Default()
// when Init was never called.
func Default() *Publisher {
	return Init(bus.Default(), DefaultTopics(), slog.Default())
}

// SendNotification publishes n through the process-wide publisher.
func SendNotification(n *Notification) {
	Default().Send(n)
}

// SelectTab selects a tab through the process-wide publisher.
func SelectTab(name string) {
	Default().SelectTab(name)
}

// SelectTabIndex selects a tab by index through the process-wide publisher.
func SelectTabIndex(index int) {
	Default().SelectTabIndex(index)
}
