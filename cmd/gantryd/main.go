// Command gantryd runs the task graph daemon: a SQLite-backed task,
// dependency, and ownership engine behind a local HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gantry-io/gantry/internal/api"
	"github.com/gantry-io/gantry/internal/config"
	"github.com/gantry-io/gantry/internal/engine"
	"github.com/gantry-io/gantry/internal/events"
	"github.com/gantry-io/gantry/internal/lock"
	"github.com/gantry-io/gantry/internal/logging"
	"github.com/gantry-io/gantry/internal/store"
)

func main() {
	configPath := flag.String("config", "gantry.yaml", "path to the YAML config file")
	addr := flag.String("addr", "", "listen address (overrides config)")
	flag.Parse()

	if err := run(*configPath, *addr); err != nil {
		fmt.Fprintf(os.Stderr, "gantryd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, addrOverride string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addrOverride != "" {
		cfg.Server.Addr = addrOverride
	}

	logger, closeLog, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	lockPath := cfg.Database.LockFilePath
	if lockPath == "" {
		lockPath = cfg.Database.Path + ".lock"
	}
	fileLock := lock.NewFileLock(lockPath)
	if err := fileLock.TryLock(); err != nil {
		return fmt.Errorf("daemon lock: %w", err)
	}
	defer fileLock.Unlock()

	logger.Infof("gantryd starting pid=%d db=%s addr=%s", os.Getpid(), cfg.Database.Path, cfg.Server.Addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(ctx, cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	st.SetBusyRetries(cfg.Database.BusyRetries)

	bus := events.NewBus(64)
	defer bus.Close()

	eng := engine.New(st, bus, logger.Component("engine"))
	server := api.NewServer(cfg.Server.Addr, eng, logger.Component("api"))

	// Pick up log-level edits without a restart.
	go func() {
		if err := config.WatchLogLevel(ctx, configPath, logger); err != nil {
			logger.Warnf("config watch stopped: %v", err)
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start()
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Infof("received signal=%s, initiating graceful shutdown", sig)
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}

	// Second signal forces exit.
	go func() {
		<-sigCh
		logger.Warnf("received second signal, forcing exit")
		os.Exit(1)
	}()

	grace := time.Duration(cfg.Server.ShutdownGraceMS) * time.Millisecond
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), grace)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	cancel()

	logger.Infof("gantryd stopped")
	return nil
}

func newLogger(cfg config.LoggingConfig) (*logging.Logger, func(), error) {
	var out io.Writer = os.Stderr
	closeLog := func() {}

	if cfg.Path != "" {
		f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(os.Stderr, f)
		closeLog = func() { f.Close() }
	}

	logger := logging.New(log.New(out, "", 0), "gantryd", logging.ParseLevel(cfg.Level))
	return logger, closeLog, nil
}
