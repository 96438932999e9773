package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spaceshield/sitaware/internal/pipeline"
	"github.com/spaceshield/sitaware/internal/telemetry"
)

const defaultInterval = 5 * time.Second

// SceneSource is satisfied by *pipeline.Session.
type SceneSource interface {
	Scene() pipeline.Scene
	TelemetryAll() []telemetry.Readout
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Session SceneSource
	Logger  *slog.Logger
	// StatusFile is rewritten with the latest summary on every tick. Empty
	// disables the file.
	StatusFile string
	Interval   time.Duration
}

// Service periodically logs a scene summary
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = defaultInterval
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Status returns the current summary and its indented JSON rendering.
func (s *Service) Status() (pipeline.Summary, string) {
	sum := s.deps.Session.Scene().Summarize()
	out, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		out = []byte(fmt.Sprintf(`{"error": %q}`, err.Error()))
	}
	return sum, string(out)
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}

	var statusFile *os.File
	if s.deps.StatusFile != "" {
		f, err := os.Create(s.deps.StatusFile)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("error creating status file: %w", err)
		}
		statusFile = f
	}

	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()
		if statusFile != nil {
			defer statusFile.Close()
		}

		logger := s.deps.Logger.With("component", "monitor")
		logger.Debug("Starting status monitor", "interval", s.deps.Interval)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				sum, text := s.Status()
				logger.Info("Scene summary",
					"state", sum.State,
					"frame", sum.Frame,
					"cameras", sum.Cameras,
					"targets", sum.Targets,
					"trailPoints", sum.TrailPoints,
					"groundTrack", sum.GroundTrack,
				)

				for _, r := range s.deps.Session.TelemetryAll() {
					logger.Debug("Target telemetry",
						"target", r.ID,
						"altitude", r.Altitude,
						"speedKmh", r.SpeedKMH(),
						"heading", r.Heading,
						"headingValid", r.HeadingValid,
					)
				}

				if statusFile != nil {
					if err := rewrite(statusFile, text); err != nil {
						logger.Error("Error writing status file", "error", err)
					}
				}
			}
		}
	}()

	return nil
}

func rewrite(f *os.File, text string) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err := f.WriteString(text + "\n")
	return err
}

// Stop stops the status monitor and waits for it to exit
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.isRunning = false
	s.mu.Unlock()
	<-done
}
