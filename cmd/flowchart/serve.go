package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/rendis/flowchart/internal/logging"
	"github.com/rendis/flowchart/internal/panel"
	"github.com/rendis/flowchart/internal/render"
	"github.com/rendis/flowchart/internal/store"
	"github.com/rendis/flowchart/internal/streaming"
	fcmcp "github.com/rendis/flowchart/pkg/mcp"
)

const shutdownTimeout = 10 * time.Second

// openStore opens and migrates the configured chart database.
func (a *app) openStore(ctx context.Context) (*store.LibSQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(a.cfg.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s, err := store.NewLibSQLStore("file:" + a.cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (a *app) serveCommand() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chart panel over HTTP",
		Long:  "Serve opens the chart database and serves the panel. SIGHUP reloads the settings file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				a.cfg.ListenAddr = listen
			}
			return a.runServe(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "TCP listen address (default from config)")
	return cmd
}

func (a *app) runServe(ctx context.Context) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	hub := streaming.NewMemoryHub()
	defer hub.Close()

	handlerFor := func(r *render.Renderer) http.Handler {
		return panel.NewPanelServer(panel.PanelDeps{
			Store:    st,
			Hub:      hub,
			Renderer: r,
			Logger:   a.logger,
		}).Handler()
	}
	swapper := newHandlerSwapper(handlerFor(a.renderer))

	ln, err := net.Listen("tcp", a.cfg.ListenAddr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: swapper, ReadHeaderTimeout: 10 * time.Second}

	if err := os.WriteFile(pidPath(), []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		a.logger.Warn("cannot write pid file", "path", pidPath(), "error", err)
	} else {
		defer os.Remove(pidPath())
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				a.reload(swapper, handlerFor)
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	a.logger.Info("panel listening", "addr", ln.Addr().String(), "db", a.cfg.DBPath)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

// reload re-reads the settings file and swaps in a panel built with the new
// render settings. Listen address and database changes need a restart.
func (a *app) reload(swapper *handlerSwapper, handlerFor func(*render.Renderer) http.Handler) {
	next, err := loadConfig(a.configPath)
	if err != nil {
		a.logger.Error("reload failed", "error", err)
		return
	}
	diff := diffConfigs(a.cfg, next)
	for _, field := range diff.RestartNeeded {
		a.logger.Warn("setting changed, restart to apply", "field", field)
	}
	if diff.LogLevelChanged && !a.verbose {
		a.charm.SetLevel(charmlog.Level(logging.ParseLevel(next.LogLevel)))
	}
	if diff.RenderChanged {
		settings, err := next.renderSettings()
		if err != nil {
			a.logger.Error("reload failed", "error", err)
			return
		}
		r, err := render.New(settings, a.logger)
		if err != nil {
			a.logger.Error("reload failed", "error", err)
			return
		}
		a.renderer = r
		swapper.Swap(handlerFor(r))
	}
	next.ListenAddr, next.DBPath = a.cfg.ListenAddr, a.cfg.DBPath
	a.cfg = next
	a.logger.Info("configuration reloaded", "render_changed", diff.RenderChanged)
}

func (a *app) mcpCommand() *cobra.Command {
	var (
		noStore bool
		sseAddr string
		baseURL string
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve flowchart tools over MCP on stdio (or SSE with --sse)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps := fcmcp.FlowchartServerDeps{
				Hub:      streaming.NewMemoryHub(),
				Renderer: a.renderer,
				Logger:   a.logger,
				Version:  version,
			}
			if !noStore {
				st, err := a.openStore(ctx)
				if err != nil {
					return err
				}
				defer st.Close()
				deps.Store = st
			}
			srv, err := fcmcp.NewFlowchartServer(deps)
			if err != nil {
				return err
			}
			a.logger.Debug("mcp server starting", "store", !noStore, "sse", sseAddr != "")
			if sseAddr != "" {
				if baseURL == "" {
					baseURL = "http://" + sseAddr
				}
				return srv.ServeSSE(ctx, sseAddr, baseURL)
			}
			return srv.Serve(ctx)
		},
	}

	cmd.Flags().BoolVar(&noStore, "no-store", false, "run without the chart database (save and list are disabled)")
	cmd.Flags().StringVar(&sseAddr, "sse", "", "serve the SSE transport on this address instead of stdio")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "public base URL for SSE clients (default http://<sse addr>)")
	return cmd
}
