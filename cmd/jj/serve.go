package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/jibbrjabbr/jj/internal/config"
	"github.com/jibbrjabbr/jj/internal/dev"
	"github.com/jibbrjabbr/jj/internal/errors"
	"github.com/jibbrjabbr/jj/pkg/clientstore"
	"github.com/jibbrjabbr/jj/pkg/middleware"
	"github.com/jibbrjabbr/jj/pkg/script"
	"github.com/jibbrjabbr/jj/pkg/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		watch      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the hosts of a project",
		Long: `Serve every host listed in the project configuration.

Pages connect to <socketPath>/<host>. Static files are served from
static.dir when it is set.

Examples:
  jj serve
  jj serve --config=deploy/jj.yaml --addr=:9000
  jj serve --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, addr, watch)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", ".", "Config file or project directory")
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Address to listen on (default from config)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Reload host scripts when they change")

	return cmd
}

func runServe(cmd *cobra.Command, configPath, addr string, watch bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Address = addr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg.Log, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	tp, shutdownTracing, err := setupTracing(ctx, cfg.Tracing)
	if err != nil {
		return errors.New("JJ303").Wrap(err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("trace flush failed", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var reloader *dev.Reloader
	if watch {
		reloader = dev.NewReloader(loadScript, logger)
	}
	srv, err := buildServer(cfg, logger, reg, tp, reloader)
	if err != nil {
		return err
	}
	if reloader != nil {
		watchCtx, stopWatching := context.WithCancel(ctx)
		defer stopWatching()
		go reloader.Run(watchCtx, 500*time.Millisecond)
		logger.Info("watching scripts", "paths", reloader.Paths())
	}

	success(cmd, "serving %s on %s", strings.Join(srv.Hosts(), ", "), cfg.Server.Address)
	if err := srv.Run(); err != nil {
		if stderrors.Is(err, syscall.EADDRINUSE) {
			return errors.New("JJ301").
				WithDetail(fmt.Sprintf("%s is already in use.", cfg.Server.Address)).
				WithSuggestion("Pass --addr to listen elsewhere").
				Wrap(err)
		}
		return err
	}
	return nil
}

// buildServer creates the server for cfg with every host's script
// attached. tp may be nil to leave tracing off; reloader may be nil to
// leave scripts untracked.
func buildServer(cfg *config.Config, logger *slog.Logger, reg *prometheus.Registry, tp trace.TracerProvider, reloader *dev.Reloader) (*server.Server, error) {
	sc := cfg.ToServerConfig()
	sc.Logger = logger
	sc.Registerer = reg
	sc.Gatherer = reg

	if cfg.Storage.Backend != "" {
		store, err := clientstore.Open(cfg.ClientStoreConfig(), logger)
		if err != nil {
			return nil, errors.New("JJ302").Wrap(err)
		}
		sc.ClientStore = store
	}

	srv, err := server.New(sc)
	if err != nil {
		if sc.ClientStore != nil {
			sc.ClientStore.Close()
		}
		return nil, errors.New("JJ103").Wrap(err)
	}
	if dir := cfg.StaticPath(); dir != "" {
		srv.SetHandler(http.FileServer(http.Dir(dir)))
	}

	chain := []server.Middleware{
		middleware.Logging(),
		middleware.Prometheus(middleware.WithRegistry(reg)),
	}
	if tp != nil {
		chain = append(chain, middleware.OpenTelemetry(middleware.WithTracerProvider(tp)))
	}

	for _, h := range cfg.Hosts {
		path := cfg.ScriptPath(h)
		prog, err := loadScript(path)
		if err != nil {
			srv.Shutdown(context.Background())
			return nil, err
		}
		host := srv.Host(h.Name)
		host.Use(chain...)
		binding := script.Attach(host, prog, script.WithLogger(logger))
		if reloader != nil {
			reloader.Track(path, host, binding)
		}
		logger.Info("host ready", "host", h.Name, "script", prog.Name())
	}
	return srv, nil
}

// newLogger builds the process logger from the log settings.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
