package config

// Config is the root configuration for Elastic.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Bus       BusConfig       `yaml:"bus"`
	Topics    TopicsConfig    `yaml:"topics"`
	Auth      AuthConfig      `yaml:"auth"`
	Database  DatabaseConfig  `yaml:"database"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	MCP       MCPConfig       `yaml:"mcp"`
}

type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// BusConfig covers both sides of the websocket bus: URL is dialed by the
// one-shot commands, the rest tunes the server.
type BusConfig struct {
	URL           string   `yaml:"url"`
	PersistTopics []string `yaml:"persist_topics"`
	// PersistSelectedTab also persists whatever topics.selected_tab names.
	PersistSelectedTab bool     `yaml:"persist_selected_tab"`
	MaxTopics          int      `yaml:"max_topics"`
	SubscriberBuffer   int      `yaml:"subscriber_buffer"`
	ClientSendBuffer   int      `yaml:"client_send_buffer"`
	PublishRate        float64  `yaml:"publish_rate"`
	PublishBurst       int      `yaml:"publish_burst"`
	AllowedOrigins     []string `yaml:"allowed_origins"`
}

// TopicsConfig names the dashboard topics. Older dashboards listened on
// "elastic/robotalerts" or "notifications".
type TopicsConfig struct {
	Notifications string `yaml:"notifications"`
	SelectedTab   string `yaml:"selected_tab"`
}

type AuthConfig struct {
	Token    string `yaml:"token"`
	TokenDir string `yaml:"token_dir"`
	Required bool   `yaml:"required"`
}

type DatabaseConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

type DashboardConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "127.0.0.1",
			Port:     5810,
			LogLevel: "info",
		},
		Bus: BusConfig{
			URL:                "ws://127.0.0.1:5810/nt",
			PersistSelectedTab: true,
			MaxTopics:          1024,
			SubscriberBuffer:   64,
			ClientSendBuffer:   256,
			PublishRate:        100,
			PublishBurst:       200,
		},
		Topics: TopicsConfig{
			Notifications: "/Elastic/RobotNotifications",
			SelectedTab:   "/Elastic/SelectedTab",
		},
		Auth: AuthConfig{
			TokenDir: "~/.config/elastic",
		},
		Database: DatabaseConfig{
			Path:          "~/.config/elastic/elastic.db",
			RetentionDays: 30,
		},
		Dashboard: DashboardConfig{
			Enabled: true,
			Dir:     "build/web",
		},
		MCP: MCPConfig{
			Enabled: true,
		},
	}
}

// PersistedTopics returns the topics whose last value is kept across
// restarts, without duplicates.
func (c *Config) PersistedTopics() []string {
	topics := make([]string, 0, len(c.Bus.PersistTopics)+1)
	seen := make(map[string]bool)
	add := func(t string) {
		if t != "" && !seen[t] {
			seen[t] = true
			topics = append(topics, t)
		}
	}
	for _, t := range c.Bus.PersistTopics {
		add(t)
	}
	if c.Bus.PersistSelectedTab {
		add(c.Topics.SelectedTab)
	}
	return topics
}
