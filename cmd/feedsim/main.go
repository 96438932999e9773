// Command feedsim serves synthetic frame_data over a websocket so the
// pipeline can run without the tracking producer.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/spaceshield/sitaware/internal/camera"
	"github.com/spaceshield/sitaware/internal/config"
	"github.com/spaceshield/sitaware/internal/locate"
	"github.com/spaceshield/sitaware/internal/logging"
	"github.com/spaceshield/sitaware/internal/simulate"
)

var flagKeys = map[string]string{
	"log-level": "logLevel",
	"addr":      "simulator.addr",
	"protocol":  "simulator.protocol",
	"interval":  "simulator.interval",
	"targets":   "simulator.targets",
	"seed":      "simulator.seed",
	"random":    "simulator.random",
	"cameras":   "simulator.cameras",
	"ray-gap":   "simulator.rayGap",
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("feedsim", pflag.ContinueOnError)
	fs.String("config-dir", ".", "directory containing "+config.FileName)
	fs.String("log-level", "info", "debug, info, warn or error")
	fs.String("addr", ":5001", "listen address")
	fs.String("protocol", "socketio", "framing: socketio or envelope")
	fs.Duration("interval", 100*time.Millisecond, "time between frames")
	fs.Int("targets", 2, "number of random targets")
	fs.Int64("seed", 1, "random target seed")
	fs.Bool("random", false, "use seeded random targets instead of the demo pair")
	fs.String("cameras", "", "calibration resource; when set, targets are re-triangulated through these cameras")
	fs.Float64("ray-gap", 0.05, "largest miss between two rays still counted as an intersection")
	return fs
}

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
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return err
	}
	for name, key := range flagKeys {
		if err := viper.BindPFlag(key, fs.Lookup(name)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}

	configDir, _ := fs.GetString("config-dir")
	cfgErr := config.Load(configDir)

	logs := logging.NewSlogManager()
	logs.Setup(nil, config.GetString("logLevel"), nil)
	logger := logs.Component("feedsim")
	if cfgErr != nil {
		logger.Debug("No config file, using defaults and flags", "error", cfgErr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, config.GetSimulatorConfig(), logger)
}

func bodies(cfg config.SimulatorConfig) []simulate.Body {
	if cfg.Random && cfg.Targets > 0 {
		return simulate.RandomBodies(cfg.Targets, cfg.Seed, simulate.DefaultBound)
	}
	return simulate.DemoBodies()
}

// source returns the exact bouncer, or the bouncer seen through the
// configured cameras.
func source(ctx context.Context, cfg config.SimulatorConfig, logger *slog.Logger) (simulate.Source, error) {
	bouncer := simulate.NewBouncer(bodies(cfg), simulate.DefaultBound)
	if cfg.Cameras == "" {
		return bouncer, nil
	}

	cams := camera.NewRegistry(camera.NewFetcher(0), logger).Load(ctx, cfg.Cameras)
	if len(cams) < 2 {
		return nil, fmt.Errorf("triangulation needs two cameras, %s has %d", cfg.Cameras, len(cams))
	}
	lc := locate.DefaultConfig()
	lc.MaxRayGap = cfg.RayGap
	logger.Info("Triangulating through cameras", "cameras", len(cams), "uri", cfg.Cameras)
	return simulate.NewTriangulated(bouncer, locate.New(lc, cams, logger)), nil
}

func serve(ctx context.Context, cfg config.SimulatorConfig, logger *slog.Logger) error {
	src, err := source(ctx, cfg, logger)
	if err != nil {
		return err
	}
	sim := simulate.NewServer(simulate.ServerConfig{
		Protocol: cfg.Protocol,
		Interval: cfg.Interval,
	}, src, logger)

	mux := http.NewServeMux()
	mux.Handle("/", sim)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving frames", "addr", cfg.Addr, "protocol", cfg.Protocol, "interval", cfg.Interval)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	simCtx, cancelSim := context.WithCancel(ctx)
	defer cancelSim()
	go sim.Run(simCtx)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	cancelSim()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
