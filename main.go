package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/philtim/figured/api"
	"github.com/philtim/figured/app"
	"github.com/philtim/figured/config"
	"github.com/philtim/figured/geonames"
	"github.com/philtim/figured/metrics"
	"github.com/philtim/figured/store"
)

func main() {
	serve := flag.Bool("serve", false, "serve the HTTP API instead of the terminal UI")
	addr := flag.String("addr", "", "listen address for -serve (overrides listen_addr)")
	flag.Parse()

	if err := run(*serve, *addr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(serve bool, addr string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if addr != "" {
		cfg.ListenAddr = addr
	}
	serve = serve || cfg.ListenAddr != ""
	if serve && cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}

	logger, closeLog, err := newLogger(cfg, serve)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	m := metrics.New()
	ref := geonames.NewDatabase()
	svc := app.New(app.Options{
		Store:         st,
		Reference:     ref,
		Logger:        logger,
		Metrics:       m,
		SystemZone:    cfg.Zone(),
		LocationsFile: cfg.LocationsFile,
		SharedCities:  cfg.SharedCities,
	})

	notices, err := svc.Load(ctx)
	if err != nil {
		return err
	}
	for _, n := range notices {
		logger.Info("startup notice", "level", n.Level, "message", n.Message)
	}

	var geonamesDone <-chan error
	if cfg.GeoNames {
		geonamesDone = ref.LoadAsync(ctx)
	}

	if serve {
		return runServer(ctx, cfg, logger, svc, m)
	}
	return runUI(ctx, cfg, svc, notices, geonamesDone)
}

// newLogger writes JSON logs to stdout when serving and to the log file
// otherwise, so the terminal UI is never drawn over.
func newLogger(cfg *config.Config, serve bool) (*slog.Logger, func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, nil, fmt.Errorf("log level %q: %w", cfg.LogLevel, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	if serve {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts)), func() {}, nil
	}

	var w io.Writer = io.Discard
	closeFn := func() {}
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		w = f
		closeFn = func() { f.Close() }
	}
	return slog.New(slog.NewJSONHandler(w, opts)), closeFn, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		return store.OpenSQLite(ctx, cfg.Store.Path)
	case config.DriverYAML:
		return store.NewFileStore(cfg.Store.Path), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func runServer(ctx context.Context, cfg *config.Config, logger *slog.Logger, svc *app.Service, m *metrics.Metrics) error {
	broker := api.NewBroker()
	srv := api.New(cfg.ListenAddr, logger, svc, broker, m)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return broker.Run(gctx, cfg.TickInterval) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return srv.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runUI(ctx context.Context, cfg *config.Config, svc *app.Service, notices []app.Notice, geonamesDone <-chan error) error {
	m := newModel(ctx, svc, cfg.TickInterval, geonamesDone)
	if len(notices) > 0 {
		msgs := make([]string, len(notices))
		for i, n := range notices {
			msgs[i] = n.Message
		}
		m.setNotice(app.Notice{Level: notices[0].Level, Message: strings.Join(msgs, " ")})
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running program: %w", err)
	}
	return nil
}
