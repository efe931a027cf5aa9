// roguehunterd is the always-on daemon: it loads configuration, wires every
// component together, and runs until a terminate signal arrives.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/hluisi/roguehunter/config"
	"github.com/hluisi/roguehunter/daemon"
	"github.com/hluisi/roguehunter/internal/buildinfo"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "roguehunterd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		dbPath      string
		sockPath    string
		pidPath     string
		telemetry   bool
		telemetryAt string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to config.json (default: $XDG_CONFIG_HOME/roguehunter/config.json)")
	flag.StringVar(&dbPath, "db", "", "Path to the SQLite database (overrides config)")
	flag.StringVar(&sockPath, "socket", "", "Path to the streaming Unix socket (overrides config)")
	flag.StringVar(&pidPath, "pidfile", "", "Path to write the daemon's pid file")
	flag.BoolVar(&telemetry, "telemetry", false, "Enable the Prometheus /metrics endpoint (overrides config)")
	flag.StringVar(&telemetryAt, "telemetry-addr", "", "Prometheus listen address (overrides config)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("roguehunterd v%s\n", buildinfo.Version)
		return nil
	}

	cfg := config.WithDefaultPaths(loadConfig(configPath))
	if dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	if sockPath != "" {
		cfg.SocketPath = sockPath
	}
	if telemetry {
		cfg.Telemetry.Enabled = true
	}
	if telemetryAt != "" {
		cfg.Telemetry.Addr = telemetryAt
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	if pidPath == "" {
		pidPath = filepath.Join(filepath.Dir(cfg.DatabasePath), "roguehunterd.pid")
	}

	d, err := daemon.New(cfg, pidPath)
	if err != nil {
		return fmt.Errorf("initialize daemon: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return d.Run(ctx)
}

// loadConfig reads the config file at path, or from the default XDG
// location if path is empty, falling back to built-in defaults on error.
func loadConfig(path string) config.Config {
	if path == "" {
		return config.Load()
	}
	cfg := config.Default()
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "roguehunterd: warning: cannot read config %s, using defaults: %v\n", path, err)
		return cfg
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "roguehunterd: warning: cannot parse config %s, using defaults: %v\n", path, err)
	}
	return cfg
}
