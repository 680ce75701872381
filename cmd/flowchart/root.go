package main

import (
	"fmt"
	"io"
	"log/slog"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/rendis/flowchart/internal/logging"
	"github.com/rendis/flowchart/internal/render"
)

// app is the state shared by every command, filled in by PersistentPreRunE.
type app struct {
	stdout, stderr io.Writer

	configPath string
	verbose    bool

	cfg      Config
	charm    *charmlog.Logger
	logger   *slog.Logger
	renderer *render.Renderer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "flowchart",
		Short:         "Flowchart renders step lists and graph documents as diagrams",
		Long:          `Flowchart translates ordered step lists into Mermaid, draws graph documents as SVG, PNG, ASCII or DOT, traces step lists against variables, and serves a web panel and MCP tools over stored charts.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetVersionTemplate(versionTemplate())
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "settings file (default ~/.flowchart/settings.toml)")

	root.AddCommand(a.translateCommand())
	root.AddCommand(a.renderCommand())
	root.AddCommand(a.batchCommand())
	root.AddCommand(a.traceCommand())
	root.AddCommand(a.chartsCommand())
	root.AddCommand(a.serveCommand())
	root.AddCommand(a.mcpCommand())
	root.AddCommand(a.installCommand())
	root.AddCommand(a.versionCommand())

	return root
}

func (a *app) setup() error {
	cfg, err := loadConfig(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.charm = newLogger(a.stderr, a.logLevel())
	a.logger = slog.New(logging.NewCorrelationHandler(a.charm))

	settings, err := cfg.renderSettings()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	a.renderer, err = render.New(settings, a.logger)
	return err
}

func (a *app) logLevel() charmlog.Level {
	if a.verbose {
		return charmlog.DebugLevel
	}
	return charmlog.Level(logging.ParseLevel(a.cfg.LogLevel))
}

func newLogger(w io.Writer, level charmlog.Level) *charmlog.Logger {
	return charmlog.NewWithOptions(w, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}
