package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/btouchard/elastic/internal/auth"
	"github.com/btouchard/elastic/internal/bus"
	"github.com/btouchard/elastic/internal/bus/wsbus"
	"github.com/btouchard/elastic/internal/config"
	elasticmcp "github.com/btouchard/elastic/internal/mcp"
	"github.com/btouchard/elastic/internal/middleware"
	"github.com/btouchard/elastic/internal/notify"
	"github.com/btouchard/elastic/internal/store"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "notify":
		cmdNotify(os.Args[2:])
	case "tab":
		cmdTab(os.Args[2:])
	case "token":
		cmdToken(os.Args[2:])
	case "version":
		fmt.Printf("elastic %s\n", version)
	case "check":
		cmdCheck(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: elastic <command> [flags]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  serve     Start the dashboard bus server\n")
	fmt.Fprintf(os.Stderr, "  notify    Send a notification to a running server\n")
	fmt.Fprintf(os.Stderr, "  tab       Select a dashboard tab on a running server\n")
	fmt.Fprintf(os.Stderr, "  token     Print or rotate the bus token\n")
	fmt.Fprintf(os.Stderr, "  check     Validate configuration\n")
	fmt.Fprintf(os.Stderr, "  version   Print version\n")
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	_ = fs.Parse(args) // ExitOnError handles errors

	cfg := mustLoadConfig(*configPath)
	setupLogging(cfg)

	slog.Info("starting elastic",
		"version", version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func cmdNotify(args []string) {
	fs := flag.NewFlagSet("notify", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	url := fs.String("url", "", "bus URL (default from config)")
	token := fs.String("token", "", "bus token (default from config)")
	level := fs.String("level", string(notify.LevelInfo), "INFO, WARNING or ERROR")
	title := fs.String("title", "", "notification title")
	description := fs.String("description", "", "notification body")
	display := fs.Float64("display", float64(notify.DefaultDisplayTimeMillis)/1000, "seconds on screen")
	noDismiss := fs.Bool("no-dismiss", false, "keep the notification until closed")
	width := fs.Float64("width", notify.DefaultWidth, "width in pixels")
	height := fs.Float64("height", notify.AutoHeight, "height in pixels, negative for automatic")
	_ = fs.Parse(args) // ExitOnError handles errors

	cfg := mustLoadConfig(*configPath)
	setupLogging(cfg)

	lvl, err := notify.ParseLevel(*level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	n := notify.NewNotificationWithSize(lvl, *title, *description, *width, *height).
		WithDisplaySeconds(*display)
	if *noDismiss {
		n.WithNoAutoDismiss()
	}

	if err := withRemotePublisher(cfg, *url, *token, func(p *notify.Publisher) { p.Send(n) }); err != nil {
		fmt.Fprintf(os.Stderr, "notify failed: %v\n", err)
		os.Exit(1)
	}
}

func cmdTab(args []string) {
	fs := flag.NewFlagSet("tab", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	url := fs.String("url", "", "bus URL (default from config)")
	token := fs.String("token", "", "bus token (default from config)")
	_ = fs.Parse(args) // ExitOnError handles errors

	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: elastic tab [flags] <name|index>\n")
		os.Exit(1)
	}
	tab := fs.Arg(0)

	cfg := mustLoadConfig(*configPath)
	setupLogging(cfg)

	if err := withRemotePublisher(cfg, *url, *token, func(p *notify.Publisher) { p.SelectTab(tab) }); err != nil {
		fmt.Fprintf(os.Stderr, "tab failed: %v\n", err)
		os.Exit(1)
	}
}

func cmdToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	rotate := fs.Bool("rotate", false, "replace the stored token")
	_ = fs.Parse(args) // ExitOnError handles errors

	cfg := mustLoadConfig(*configPath)

	var (
		token string
		err   error
	)
	if *rotate {
		token, err = auth.RotateToken(cfg.Auth.TokenDir)
	} else {
		token, err = auth.ResolveToken(cfg.Auth.Token, cfg.Auth.TokenDir)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "token error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func cmdCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	_ = fs.Parse(args) // ExitOnError handles errors

	_, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("configuration is valid")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func mustLoadConfig(path string) *config.Config {
	cfg, err := loadConfig(path)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	return cfg
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch cfg.Server.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlers := []slog.Handler{
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}),
	}

	if cfg.Server.LogFile != "" {
		f, err := os.OpenFile(config.ExpandHome(cfg.Server.LogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			slog.Warn("failed to open log file, using stdout only", "path", cfg.Server.LogFile, "error", err)
		} else {
			handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
		}
	}

	logger := slog.New(slog.NewMultiHandler(handlers...))
	slog.SetDefault(logger)
}

func topicsFromConfig(cfg *config.Config) notify.Topics {
	return notify.Topics{
		Notifications: cfg.Topics.Notifications,
		SelectedTab:   cfg.Topics.SelectedTab,
	}
}

// withRemotePublisher dials the bus, runs fn and flushes before returning.
func withRemotePublisher(cfg *config.Config, url, token string, fn func(*notify.Publisher)) error {
	if url == "" {
		url = cfg.Bus.URL
	}
	if token == "" {
		token = cfg.Auth.Token
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := wsbus.Dial(ctx, url, wsbus.DialOptions{
		Token:      token,
		SendBuffer: cfg.Bus.ClientSendBuffer,
		Logger:     slog.Default(),
	})
	if err != nil {
		return err
	}

	fn(notify.NewPublisher(client, topicsFromConfig(cfg), slog.Default()))

	return client.Close(ctx)
}

func run(ctx context.Context, cfg *config.Config) error {
	// --- SQLite Store ---
	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	slog.Info("database opened", "path", cfg.Database.Path)

	if cfg.Database.RetentionDays > 0 {
		removed, err := db.Cleanup(time.Duration(cfg.Database.RetentionDays) * 24 * time.Hour)
		if err != nil {
			return fmt.Errorf("cleaning retained values: %w", err)
		}
		if removed > 0 {
			slog.Info("removed stale retained values", "count", removed)
		}
	}

	// --- Bus ---
	b := bus.NewMemory(slog.Default(), db)
	defer b.Close()

	b.LimitTopics(cfg.Bus.MaxTopics)
	for _, topic := range cfg.PersistedTopics() {
		b.Persist(topic)
	}
	if err := b.Restore(); err != nil {
		return fmt.Errorf("restoring bus: %w", err)
	}

	publisher := notify.Init(b, topicsFromConfig(cfg), slog.Default())

	// --- Token ---
	var token string
	if cfg.Auth.Required || cfg.MCP.Enabled {
		token, err = auth.ResolveToken(cfg.Auth.Token, cfg.Auth.TokenDir)
		if err != nil {
			return fmt.Errorf("resolving token: %w", err)
		}
	}
	busToken := ""
	if cfg.Auth.Required {
		busToken = token
	}

	// --- Websocket Bus ---
	ws := wsbus.NewServer(b, wsbus.ServerConfig{
		SendBuffer:       cfg.Bus.ClientSendBuffer,
		SubscriberBuffer: cfg.Bus.SubscriberBuffer,
		PublishRate:      cfg.Bus.PublishRate,
		PublishBurst:     cfg.Bus.PublishBurst,
		AllowedOrigins:   cfg.Bus.AllowedOrigins,
	}, slog.Default())
	defer ws.Close()

	// --- HTTP Router ---
	r := chi.NewRouter()
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(cfg.Bus.AllowedOrigins))

	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerToken(busToken))
		r.Handle("/nt", ws)
		r.Get("/api/topics", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, b.Topics())
		})
	})

	// MCP endpoint (Bearer token required)
	if cfg.MCP.Enabled {
		mcpServer := elasticmcp.NewServer(&elasticmcp.Deps{
			Notifier: publisher,
			Topics:   b,
			Version:  version,
		})
		r.Group(func(r chi.Router) {
			r.Use(middleware.BearerToken(token))
			r.Handle("/mcp", server.NewStreamableHTTPServer(mcpServer))
		})
	}

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"status": "ok", "clients": ws.Clients()})
	})

	if cfg.Dashboard.Enabled {
		slog.Info("serving dashboard", "dir", cfg.Dashboard.Dir)
		r.Handle("/*", http.FileServer(http.Dir(cfg.Dashboard.Dir)))
	}

	// --- HTTP Server ---
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("elastic is ready", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}
