package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/spaceshield/sitaware/internal/config"
	"github.com/spaceshield/sitaware/internal/logging"
	"github.com/spaceshield/sitaware/internal/monitor"
	intOtel "github.com/spaceshield/sitaware/internal/otel"
	"github.com/spaceshield/sitaware/internal/pipeline"
)

// BuildDate and Version can be set at build time via ldflags
var (
	Version    = "0.0.1"
	BuildDate  = "unknown"
	BinaryName = "sitaware"
)

const configFileHint = config.FileName

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	sessionStart := time.Now()

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return err
	}
	if v, _ := fs.GetBool("version"); v {
		fmt.Printf("%s %s (built %s)\n", BinaryName, Version, BuildDate)
		return nil
	}
	if err := bindFlags(fs); err != nil {
		return err
	}

	configDir, _ := fs.GetString("config-dir")
	cfgErr := config.Load(configDir)

	logs, closeLogs, err := setupLogging(sessionStart)
	if err != nil {
		return err
	}
	defer closeLogs()
	logger := logs.Logger()

	if cfgErr != nil {
		logger.Warn("Failed to load config, using defaults!", "error", cfgErr)
	} else {
		logger.Info("Loaded config", "file", viper.ConfigFileUsed())
	}
	logger.Info("Starting up...", "version", Version, "buildDate", BuildDate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := sessionConfig()
	if err != nil {
		return err
	}
	session, err := pipeline.New(cfg,
		pipeline.WithLogger(logs.Component("session")),
		pipeline.WithCameraSource(cameraFetcher()),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	logger.Info("Session started", "cameras", len(session.Cameras()), "feed", cfg.Feed.URL)

	status := config.GetStatusConfig()
	mon := monitor.NewService(monitor.Dependencies{
		Session:    session,
		Logger:     logger,
		StatusFile: status.File,
		Interval:   status.Interval,
	})
	if err := mon.Start(); err != nil {
		logger.Error("Failed to start status monitor", "error", err)
	}
	defer mon.Stop()

	<-ctx.Done()
	logger.Info("Shutting down...")
	return nil
}

// setupLogging configures the slog manager from config: a text log file
// (stdout when logsDir is empty), optional Graylog and optional OTel bridge.
// The returned func flushes and closes every sink.
func setupLogging(sessionStart time.Time) (*logging.SlogManager, func(), error) {
	logs := logging.NewSlogManager()
	level := config.GetString("logLevel")
	var closers []func()

	opts := logging.Options{Level: level}

	var logFile *os.File
	if dir := config.GetString("logsDir"); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create logs dir: %w", err)
		}
		path := logging.LogFilePath(dir, BinaryName, sessionStart)
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", path, err)
		}
		logFile = f
		opts.File = io.MultiWriter(os.Stdout, f)
		closers = append(closers, func() { _ = f.Close() })
	}

	// stdout-only logger for problems setting up the other sinks
	logs.Setup(nil, level, nil)
	bootLogger := logs.Logger()

	if config.GetBool("graylog.enabled") {
		addr := config.GetString("graylog.address")
		w, err := logging.NewGraylogWriter(addr, BinaryName)
		if err != nil {
			bootLogger.Error("Graylog disabled", "error", err)
		} else {
			opts.Graylog = w
			closers = append(closers, func() { _ = w.Close() })
		}
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		var otelWriter io.Writer
		if logFile != nil {
			otelWriter = logFile
		}
		provider, err := intOtel.New(intOtel.Config{
			Enabled:        true,
			ServiceName:    otelCfg.ServiceName,
			ServiceVersion: Version,
			BatchTimeout:   otelCfg.BatchTimeout,
			LogWriter:      otelWriter,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
			MetricInterval: otelCfg.MetricInterval,
			ErrorLogger:    bootLogger,
		})
		if err != nil {
			bootLogger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			opts.Provider = provider.LoggerProvider()
			closers = append(closers, func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := provider.Shutdown(ctx); err != nil {
					fmt.Fprintln(os.Stderr, err)
				}
			})
		}
	}

	logs.SetupWith(opts)
	slog.SetDefault(logs.Logger())

	closeAll := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = logs.Flush(ctx)
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return logs, closeAll, nil
}
