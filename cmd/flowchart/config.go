package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/rendis/flowchart/internal/diagram"
	"github.com/rendis/flowchart/internal/render"
)

// Config holds all flowchart configuration.
// Priority: env vars > settings.toml > defaults.
type Config struct {
	ListenAddr   string  `toml:"listen_addr"`
	DBPath       string  `toml:"db_path"`
	LogLevel     string  `toml:"log_level"`
	BinDir       string  `toml:"bin_dir"`
	Dangling     string  `toml:"dangling"`      // ignore | report
	Unknown      string  `toml:"unknown"`       // fallback | report
	EscapeLabels bool    `toml:"escape_labels"` // escape Mermaid syntax characters in step text
	Engine       string  `toml:"engine"`        // expr | cel
	StartX       float64 `toml:"start_x"`
	StartY       float64 `toml:"start_y"`
	Spacing      float64 `toml:"spacing"`
}

func defaultConfig() Config {
	settings := render.DefaultSettings()
	return Config{
		ListenAddr: ":4200",
		DBPath:     filepath.Join(flowchartDir(), "flowchart.db"),
		LogLevel:   "info",
		BinDir:     filepath.Join(flowchartDir(), "bin"),
		Dangling:   "ignore",
		Unknown:    "fallback",
		Engine:     "expr",
		StartX:     settings.StartX,
		StartY:     settings.StartY,
		Spacing:    settings.Spacing,
	}
}

func flowchartDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowchart"
	}
	return filepath.Join(home, ".flowchart")
}

func settingsPath() string {
	return filepath.Join(flowchartDir(), "settings.toml")
}

// loadConfig layers path (or the default settings file when empty) and the
// FLOWCHART_* environment over the defaults. A missing file is not an error.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		path = settingsPath()
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	if v := os.Getenv("FLOWCHART_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("FLOWCHART_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("FLOWCHART_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FLOWCHART_BIN_DIR"); v != "" {
		cfg.BinDir = v
	}
	if v := os.Getenv("FLOWCHART_DANGLING"); v != "" {
		cfg.Dangling = v
	}
	if v := os.Getenv("FLOWCHART_UNKNOWN"); v != "" {
		cfg.Unknown = v
	}
	if v := os.Getenv("FLOWCHART_ESCAPE_LABELS"); v != "" {
		cfg.EscapeLabels = v == "true" || v == "1"
	}
	if v := os.Getenv("FLOWCHART_ENGINE"); v != "" {
		cfg.Engine = v
	}
	if v := os.Getenv("FLOWCHART_SPACING"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Spacing = n
		}
	}

	return cfg, nil
}

// renderSettings converts the configured policies into renderer settings.
func (c Config) renderSettings() (render.Settings, error) {
	dangling, err := diagram.ParseDanglingPolicy(strings.ToLower(c.Dangling))
	if err != nil {
		return render.Settings{}, err
	}
	unknown, err := diagram.ParseUnknownTypePolicy(strings.ToLower(c.Unknown))
	if err != nil {
		return render.Settings{}, err
	}
	return render.Settings{
		Dangling: dangling,
		Unknown:  unknown,
		Escape:   c.EscapeLabels,
		BinDir:   c.BinDir,
		StartX:   c.StartX,
		StartY:   c.StartY,
		Spacing:  c.Spacing,
	}, nil
}

// writeConfig persists cfg as TOML.
func writeConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// configDiff describes what changed between two configurations.
type configDiff struct {
	RenderChanged   bool
	LogLevelChanged bool
	RestartNeeded   []string // fields that require a server restart
}

func diffConfigs(old, new Config) configDiff {
	var d configDiff
	if old.Dangling != new.Dangling || old.Unknown != new.Unknown || old.EscapeLabels != new.EscapeLabels ||
		old.BinDir != new.BinDir || old.StartX != new.StartX || old.StartY != new.StartY || old.Spacing != new.Spacing {
		d.RenderChanged = true
	}
	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
	}
	if old.ListenAddr != new.ListenAddr {
		d.RestartNeeded = append(d.RestartNeeded, "listen_addr")
	}
	if old.DBPath != new.DBPath {
		d.RestartNeeded = append(d.RestartNeeded, "db_path")
	}
	return d
}

func pidPath() string {
	return filepath.Join(flowchartDir(), "flowchart.pid")
}
