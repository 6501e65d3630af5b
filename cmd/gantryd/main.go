package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gantryd/gantry/internal/config"
	"github.com/gantryd/gantry/internal/events"
	"github.com/gantryd/gantry/internal/graph"
	"github.com/gantryd/gantry/internal/metrics"
	"github.com/gantryd/gantry/internal/orchestrator"
	"github.com/gantryd/gantry/internal/persistence"
	"github.com/gantryd/gantry/internal/recovery"
	"github.com/gantryd/gantry/internal/server"
	"github.com/gantryd/gantry/internal/tui"
)

func main() {
	showTUI := flag.Bool("tui", false, "show the live dashboard")
	dbPath := flag.String("db", "", "sqlite database path (overrides config)")
	flag.Parse()

	// Signal-aware context for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// The dashboard owns the terminal; keep the logger quiet under it.
	var logger *zap.Logger
	if *showTUI {
		logger = zap.NewNop()
	} else {
		logger, err = zap.NewProduction()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
	}

	path := cfg.Storage.Path
	if *dbPath != "" {
		path = *dbPath
	}
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error getting home directory: %v\n", err)
			os.Exit(1)
		}
		path = filepath.Join(homeDir, ".gantry", "gantry.db")
	}

	db, err := persistence.NewSQLiteStore(ctx, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	bus := events.NewBus()
	defer bus.Close()

	m := metrics.New(prometheus.DefaultRegisterer)

	orch := orchestrator.New(graph.NewStore(), bus, db, m, logger, orchestrator.Config{
		PollInterval: time.Duration(cfg.Orchestrator.PollIntervalMS) * time.Millisecond,
		MaxRetries:   cfg.Orchestrator.MaxRetries,
		Retry: recovery.RetryConfig{
			InitialInterval:     time.Duration(cfg.Retry.InitialIntervalMS) * time.Millisecond,
			MaxInterval:         time.Duration(cfg.Retry.MaxIntervalMS) * time.Millisecond,
			Multiplier:          cfg.Retry.Multiplier,
			RandomizationFactor: cfg.Retry.RandomizationFactor,
		},
		Breaker: recovery.BreakerConfig{
			ConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
			OpenTimeout:         time.Duration(cfg.Breaker.OpenTimeoutMS) * time.Millisecond,
		},
	})

	if err := orch.Restore(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error restoring graph: %v\n", err)
		os.Exit(1)
	}

	srv, err := server.New(orch, m, logger, &server.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating server: %v\n", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := orch.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if *showTUI {
		p := tea.NewProgram(tui.New(bus), tea.WithAltScreen())
		g.Go(func() error {
			_, err := p.Run()
			stop() // dashboard exit shuts the daemon down
			return err
		})
		g.Go(func() error {
			<-gctx.Done()
			p.Quit()
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
