// ABOUTME: Entry point for the honeypot-gateway server
// ABOUTME: Engages scam conversations and reports extracted intelligence

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/Apurva654/agentic-honeypot-buildathon/internal/config"
	"github.com/Apurva654/agentic-honeypot-buildathon/internal/cooldown"
	"github.com/Apurva654/agentic-honeypot-buildathon/internal/engine"
	"github.com/Apurva654/agentic-honeypot-buildathon/internal/gemini"
	"github.com/Apurva654/agentic-honeypot-buildathon/internal/report"
	"github.com/Apurva654/agentic-honeypot-buildathon/internal/server"
	"github.com/Apurva654/agentic-honeypot-buildathon/internal/session"
	"github.com/Apurva654/agentic-honeypot-buildathon/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _                                          _
| |__   ___  _ __   ___ _   _ _ __   ___ | |_
| '_ \ / _ \| '_ \ / _ \ | | | '_ \ / _ \| __|
| | | | (_) | | | |  __/ |_| | |_) | (_) | |_
|_| |_|\___/|_| |_|\___|\__, | .__/ \___/ \__|
                        |___/|_|     gateway
`

// trackedSessions bounds the cooldown gate, not the session store.
const trackedSessions = 4096

// getConfigPath returns the path to the gateway config file.
// Priority: HONEYPOT_CONFIG env var > XDG_CONFIG_HOME/honeypot/gateway.yaml > ~/.config/honeypot/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("HONEYPOT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "honeypot", "gateway.yaml")
}

// getDataPath returns the path to the honeypot data directory.
// Priority: XDG_DATA_HOME/honeypot > ~/.local/share/honeypot
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "honeypot")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: honeypot-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Start the gateway server")
		fmt.Println("  init      Create a starter config file")
		fmt.Println("  health    Check gateway health")
		fmt.Println("  version   Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		fmt.Println("Usage: honeypot-gateway <serve|init|health|version>")
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
	// Secrets usually arrive via a local .env during development.
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:    %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Model:   %s\n", cfg.Model.Name)
	green.Print("    ▶ ")
	fmt.Printf("Ledger:  %s\n", cfg.Database.Path)
	if cfg.Auth.APIKey == "" {
		color.New(color.FgYellow).Print("    ▶ ")
		fmt.Println("Auth:    DISABLED (set auth.api_key)")
	}
	fmt.Println()

	logger.Info("starting honeypot-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"model", cfg.Model.Name,
	)

	// Assemble the pipeline: ledger, sessions, model client, dispatcher,
	// cooldown gate, engine, HTTP server.
	ledger, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening report ledger: %w", err)
	}
	defer ledger.Close()

	sessions := session.NewStore()

	model := gemini.New(gemini.Config{
		APIKey:   cfg.Model.APIKey,
		Model:    cfg.Model.Name,
		Endpoint: cfg.Model.Endpoint,
		Timeout:  cfg.Model.Timeout,
	}, logger)

	dispatcher := report.NewDispatcher(report.Config{
		Endpoint: cfg.Report.Endpoint,
		APIKey:   cfg.Report.APIKey,
		Timeout:  cfg.Report.Timeout,
	}, ledger, logger)

	gate := cooldown.New(cfg.Report.RetryCooldown, trackedSessions)
	defer gate.Close()

	eng := engine.New(sessions, model, dispatcher, gate, logger)
	go eng.RunSweeper(ctx, cfg.Report.SweepInterval)

	srv := server.New(server.Config{
		HTTPAddr: cfg.Server.HTTPAddr,
		APIKey:   cfg.Auth.APIKey,
	}, eng, sessions, ledger, logger)

	return srv.Run(ctx)
}

// runInit writes a starter config with a freshly generated inbound API key
// and provisions the data directory. Existing configs are left alone.
func runInit() error {
	configPath := getConfigPath()
	dataPath := getDataPath()
	dbPath := filepath.Join(dataPath, "ledger.db")

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	if _, err := os.Stat(configPath); err == nil {
		yellow.Printf("  ! Config already exists: %s\n", configPath)
		return nil
	}

	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return fmt.Errorf("generating api key: %w", err)
	}
	apiKey := base64.StdEncoding.EncodeToString(keyBytes)

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	configContent := fmt.Sprintf(`# honeypot-gateway configuration
# Generated by honeypot-gateway init

server:
  http_addr: "localhost:8080"

auth:
  api_key: "%s"

model:
  api_key: "${GEMINI_API_KEY}"
  name: "gemini-3-flash-preview"
  timeout: "20s"

report:
  endpoint: "${REPORT_SINK_URL}"
  timeout: "10s"
  sweep_interval: "1m"
  retry_cooldown: "5m"

database:
  path: "%s"

logging:
  level: "info"
  format: "text"
`, apiKey, dbPath)

	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Provision the ledger so serve starts against a ready schema.
	ledger, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("provisioning ledger: %w", err)
	}
	if err := ledger.Close(); err != nil {
		return fmt.Errorf("closing ledger: %w", err)
	}

	green.Printf("  ✓ Created config: %s\n", configPath)
	green.Printf("  ✓ Created ledger: %s\n", dbPath)
	fmt.Println()
	fmt.Println("  Set GEMINI_API_KEY and REPORT_SINK_URL, then run: honeypot-gateway serve")
	return nil
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
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

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(&colorHandler{level: level})
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu    sync.Mutex
	level slog.Level
	attrs []slog.Attr
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

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

	buf.WriteString(r.Message)

	writeAttr := func(a slog.Attr) {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}
	for _, a := range h.attrs {
		writeAttr(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(a)
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
	return &colorHandler{level: h.level, attrs: newAttrs}
}

func (h *colorHandler) WithGroup(string) slog.Handler {
	return &colorHandler{level: h.level, attrs: h.attrs}
}
