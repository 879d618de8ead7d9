// ABOUTME: Entry point for the familiar chat widget server
// ABOUTME: Hosts the embeddable widget and a terminal chat client

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/2389/familiar/internal/completion"
	"github.com/2389/familiar/internal/config"
	"github.com/2389/familiar/internal/conversation"
	"github.com/2389/familiar/internal/exchange"
	"github.com/2389/familiar/internal/widget"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  __                 _ _ _
 / _| __ _ _ __ ___ (_) (_) __ _ _ __
| |_ / _' | '_ ' _ \| | | |/ _' | '__|
|  _| (_| | | | | | | | | | (_| | |
|_|  \__,_|_| |_| |_|_|_|_|\__,_|_|
`

// getConfigPath returns the path to the familiar config file.
// Priority: FAMILIAR_CONFIG env var > XDG_CONFIG_HOME/familiar/familiar.yaml > ~/.config/familiar/familiar.yaml
func getConfigPath() string {
	if envPath := os.Getenv("FAMILIAR_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "familiar.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "familiar", "familiar.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: familiar <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve   Host the chat widget over HTTP")
		fmt.Println("  chat    Chat with the configured model in the terminal")
		fmt.Println("  init    Write a starter config file")
		os.Exit(1)
	}

	// Dev convenience: API keys flow in from a local .env file.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "chat":
		err = runChat(ctx)
	case "init":
		err = runInit()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Widget:   http://%s%s/\n", cfg.Server.HTTPAddr, cfg.Widget.MountPath)
	green.Print("    ▶ ")
	fmt.Printf("Provider: %s\n", cfg.Completion.Provider)
	fmt.Println()

	logger.Info("starting familiar",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"mount_path", cfg.Widget.MountPath,
		"provider", cfg.Completion.Provider,
	)

	store, ctrl, err := buildConversation(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	wg := widget.New(ctx, store, ctrl, widget.Options{
		Title:       cfg.Widget.Title,
		Placeholder: cfg.Widget.Placeholder,
		MountPath:   cfg.Widget.MountPath,
	}, logger)

	mux := http.NewServeMux()
	wg.RegisterRoutes(mux)
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/", redirectRoot(cfg.Widget.MountPath))

	server := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.Server.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		logger.Error("server error", "error", serverErr)
	}

	// Shutdown with a fresh context: the signal context is already done.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := server.Shutdown(shutdownCtx)

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// buildConversation wires the store, session, and controller shared by the
// serve and chat commands. A missing credential is not fatal: the widget
// runs without a session and silently ignores every submission.
func buildConversation(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*conversation.Store, *exchange.Controller, error) {
	store := conversation.NewStore(cfg.Widget.Greeting, logger)

	session, err := completion.New(ctx, completion.Config{
		Provider:          cfg.Completion.Provider,
		Model:             cfg.Completion.Model,
		APIKey:            cfg.Completion.APIKey,
		SystemInstruction: cfg.Completion.SystemInstruction,
		BaseURL:           cfg.Completion.BaseURL,
	}, logger)
	if errors.Is(err, completion.ErrNoCredential) {
		logger.Warn("no API key configured, continuing without AI functionality",
			"provider", cfg.Completion.Provider)
		session = nil
	} else if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("creating completion session: %w", err)
	}

	ctrl := exchange.New(store, session, cfg.Widget.ErrorText, logger)
	return store, ctrl, nil
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

// redirectRoot sends the bare host root to the widget demo page.
func redirectRoot(mountPath string) http.HandlerFunc {
	target := strings.TrimSuffix(mountPath, "/") + "/"
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}

func runInit() error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists: %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	starter := fmt.Sprintf(`server:
  http_addr: "%s"

widget:
  title: "%s"
  greeting: "%s"
  error_text: "%s"
  placeholder: "%s"
  mount_path: "%s"

completion:
  provider: "gemini"
  model: ""
  api_key: "${GEMINI_API_KEY}"
  system_instruction: "%s"

logging:
  level: "info"
  format: "text"
`,
		config.DefaultHTTPAddr,
		config.DefaultTitle,
		config.DefaultGreeting,
		config.DefaultErrorText,
		config.DefaultPlaceholder,
		config.DefaultMountPath,
		config.DefaultInstruction,
	)

	if err := os.WriteFile(configPath, []byte(starter), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("Created %s\n", configPath)
	fmt.Println("Set GEMINI_API_KEY (or edit completion.api_key) and run: familiar serve")
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
