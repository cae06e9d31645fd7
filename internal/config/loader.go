package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// searchPaths returns the ordered list of config file locations to try.
func searchPaths() []string {
	paths := []string{
		"/etc/elastic/elastic.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "elastic", "elastic.yaml"))
	}

	paths = append(paths, "elastic.yaml")

	if envPath := os.Getenv("ELASTIC_CONFIG"); envPath != "" {
		paths = append(paths, envPath)
	}

	return paths
}

// Load reads configuration from YAML files and environment variables.
// Files are loaded in order (each overrides the previous):
// /etc/elastic/elastic.yaml < ~/.config/elastic/elastic.yaml < ./elastic.yaml < $ELASTIC_CONFIG
func Load() (*Config, error) {
	loadDotEnv()
	cfg := Defaults()

	for _, path := range searchPaths() {
		if err := loadFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadDotEnv()
	cfg := Defaults()

	if err := loadFile(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadDotEnv reads ./.env into the environment so ${VAR} references and
// overrides can come from it. Variables already set win.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to read .env", "error", err)
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables have higher priority than YAML config values.
func applyEnvOverrides(cfg *Config) {
	if url := os.Getenv("ELASTIC_BUS_URL"); url != "" {
		cfg.Bus.URL = url
	}
	if token := os.Getenv("ELASTIC_TOKEN"); token != "" {
		cfg.Auth.Token = token
	}
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted config search paths
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	slog.Debug("loading config file", "path", path)

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	if cfg.Server.Host == "0.0.0.0" && !cfg.Auth.Required {
		return fmt.Errorf("server.host 0.0.0.0 exposes the bus to the whole network, set auth.required: true")
	}

	if cfg.Topics.Notifications == "" || cfg.Topics.SelectedTab == "" {
		return fmt.Errorf("topics.notifications and topics.selected_tab must not be empty")
	}
	if cfg.Topics.Notifications == cfg.Topics.SelectedTab {
		return fmt.Errorf("topics.notifications and topics.selected_tab must differ, both are %q", cfg.Topics.SelectedTab)
	}

	if cfg.Bus.MaxTopics < 1 {
		return fmt.Errorf("bus.max_topics must be at least 1")
	}
	if cfg.Bus.SubscriberBuffer < 1 {
		return fmt.Errorf("bus.subscriber_buffer must be at least 1")
	}
	if cfg.Bus.ClientSendBuffer < 1 {
		return fmt.Errorf("bus.client_send_buffer must be at least 1")
	}
	if cfg.Bus.PublishRate <= 0 || cfg.Bus.PublishBurst < 1 {
		return fmt.Errorf("bus.publish_rate must be positive and bus.publish_burst at least 1")
	}

	cfg.Database.Path = ExpandHome(cfg.Database.Path)
	cfg.Auth.TokenDir = ExpandHome(cfg.Auth.TokenDir)
	cfg.Dashboard.Dir = ExpandHome(cfg.Dashboard.Dir)

	return nil
}
