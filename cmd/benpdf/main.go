package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TheLazyLemur/benpdf/internal/api"
	"github.com/TheLazyLemur/benpdf/internal/cli"
	"github.com/TheLazyLemur/benpdf/internal/config"
	"github.com/TheLazyLemur/benpdf/internal/core"
	"github.com/TheLazyLemur/benpdf/internal/dashboard"
	"github.com/TheLazyLemur/benpdf/internal/history"
	"github.com/TheLazyLemur/benpdf/internal/permission"
	"github.com/TheLazyLemur/benpdf/internal/tools"
	charmlog "github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, cli.FormatError(err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return errors.Wrap(err, "loading config")
	}

	logger := newLogger(cfg)
	slog.SetDefault(slog.New(logger))

	catalog, err := tools.Load(cfg.ToolsFile)
	if err != nil {
		return errors.Wrap(err, "loading tool catalog")
	}

	backend := api.NewBackend(cfg.BackendURL)
	checker := permission.NewSourceChecker(cfg.InputDirs)

	deps := &cli.Deps{
		Config:  cfg,
		Catalog: catalog,
		Health:  backend,
		Checker: checker,
	}

	var journal core.Journal
	if cfg.HistoryEnabled() {
		store, err := history.NewStore(cfg.HistoryDB)
		if err != nil {
			return errors.Wrap(err, "opening history")
		}
		defer store.Close()
		journal = store
		deps.Journal = store
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps.Submitter = core.NewController(backend, journal, cli.LogObserver{})
	deps.Serve = func(ctx context.Context) error {
		return serve(ctx, cfg, deps, backend, logger)
	}

	return cli.RootCmd(deps).ExecuteContext(ctx)
}

func newLogger(cfg *config.Config) *charmlog.Logger {
	level, err := charmlog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = charmlog.InfoLevel
	}
	logger := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
	})
	if cfg.LogJSON {
		logger.SetFormatter(charmlog.JSONFormatter)
	}
	return logger
}

// serve runs the dashboard until ctx is cancelled. Submissions made through
// it are mirrored to connected browsers.
func serve(ctx context.Context, cfg *config.Config, deps *cli.Deps, backend *api.Backend, logger *charmlog.Logger) error {
	hub := dashboard.NewHub()
	go hub.Run()
	slog.SetDefault(slog.New(dashboard.NewBroadcastHandler(hub, logger)))

	var journal core.Journal
	var lister dashboard.HistoryLister
	if store, ok := deps.Journal.(*history.Store); ok && store != nil {
		journal = store
		lister = store
	}
	controller := core.NewController(backend, journal, multiObserver{hub, cli.LogObserver{}})

	srv := dashboard.NewServer(hub, deps.Catalog, controller, backend, lister, deps.Checker, cfg.DashboardPassword)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("dashboard listening", "addr", cfg.ListenAddr, "backend", cfg.BackendURL, "login", cfg.LoginRequired())
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "dashboard server")
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

type multiObserver []core.Observer

func (m multiObserver) Transition(ev core.Event) {
	for _, o := range m {
		o.Transition(ev)
	}
}
