// Package pipeline wires the camera registry, the live feed and the derived
// per-target state into one session.
//
// A Session owns every piece of mutable state. The feed's read goroutine is
// the only writer; Scene and Telemetry may be called from anywhere and always
// observe a fully applied frame.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/spaceshield/sitaware/internal/camera"
	"github.com/spaceshield/sitaware/internal/feed"
	"github.com/spaceshield/sitaware/internal/fov"
	"github.com/spaceshield/sitaware/internal/geo"
	"github.com/spaceshield/sitaware/internal/influx"
	"github.com/spaceshield/sitaware/internal/journal"
	"github.com/spaceshield/sitaware/internal/logging"
	"github.com/spaceshield/sitaware/internal/telemetry"
	"github.com/spaceshield/sitaware/internal/trail"
	"github.com/spaceshield/sitaware/pkg/core"
)

var (
	// ErrStarted is returned by a second call to Start.
	ErrStarted = errors.New("session already started")
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("session closed")
	// ErrNoJournal is returned by Backfill when the journal is disabled.
	ErrNoJournal = errors.New("frame journal disabled")
)

// Config describes one session.
type Config struct {
	// CameraSource is a path, file://, http(s):// or s3:// URI.
	CameraSource string
	Feed         feed.Config
	TrailPoints  int
	FOV          fov.Config
	// Georef pins the scene origin; nil leaves telemetry without lon/lat.
	Georef *geo.GeoPoint
	// Journal enables the in-memory frame journal when non-nil.
	Journal *journal.Config
	Influx  influx.Config
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.baseLogger = l }
}

// WithCameraSource replaces the calibration fetcher.
func WithCameraSource(src camera.Source) Option {
	return func(s *Session) { s.source = src }
}

// WithFeedOptions passes extra options to the feed subscription.
func WithFeedOptions(opts ...feed.Option) Option {
	return func(s *Session) { s.feedOpts = append(s.feedOpts, opts...) }
}

// WithFrameHook registers a callback run after each frame has been applied.
// Hooks run on the feed goroutine outside the session lock.
func WithFrameHook(fn func(core.Frame)) Option {
	return func(s *Session) { s.hooks = append(s.hooks, fn) }
}

// Session is a running pipeline.
type Session struct {
	id         string
	cfg        Config
	baseLogger *slog.Logger
	logger     *slog.Logger
	source     camera.Source
	feedOpts   []feed.Option
	hooks      []func(core.Frame)

	registry *camera.Registry
	trails   *trail.Manager
	tracker  *telemetry.Tracker
	journal  *journal.Journal
	sink     *influx.Sink
	cone     core.Cone

	// lastFrame feeds the log context without taking mu
	lastFrame atomic.Int64

	mu       sync.RWMutex
	cameras  []core.Camera
	targets  []core.Target
	frame    int64
	hasFrame bool
	state    feed.State
	sub      *feed.Subscription
	started  bool
	closed   bool

	closeOnce sync.Once
}

// New validates cfg and prepares the session. Nothing connects until Start.
func New(cfg Config, opts ...Option) (*Session, error) {
	if cfg.FOV == (fov.Config{}) {
		cfg.FOV = fov.DefaultConfig()
	}

	s := &Session{
		id:      uuid.NewString(),
		cfg:     cfg,
		cameras: []core.Camera{},
		targets: []core.Target{},
		state:   feed.Connecting,
	}
	s.lastFrame.Store(-1)
	for _, opt := range opts {
		opt(s)
	}
	if s.baseLogger == nil {
		s.baseLogger = slog.Default()
	}
	// every record of the session, feed included, carries the session id
	// and the last applied frame
	s.baseLogger = slog.New(logging.NewContextHandler(s.baseLogger.Handler(), s.logContext)).
		With("session", s.id)
	s.logger = s.baseLogger.With("component", "pipeline")

	if s.source == nil {
		s.source = camera.NewFetcher(0)
	}

	var georef *geo.Georeference
	if cfg.Georef != nil {
		g, err := geo.NewGeoreference(*cfg.Georef)
		if err != nil {
			return nil, fmt.Errorf("georeference %+v: %w", *cfg.Georef, err)
		}
		georef = g
	}

	s.registry = camera.NewRegistry(s.source, s.logger)
	s.trails = trail.NewManager(cfg.TrailPoints)
	s.tracker = telemetry.NewTracker(georef)
	s.cone = cfg.FOV.Cone()

	if cfg.Journal != nil {
		j, err := journal.Open(*cfg.Journal, s.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open frame journal: %w", err)
		}
		s.journal = j
	}

	if cfg.Influx.Enabled {
		if cfg.Influx.Source == "" {
			cfg.Influx.Source = cfg.Feed.URL
		}
		s.sink = influx.NewSink(cfg.Influx, s.logger)
	}

	return s, nil
}

// ID identifies the session in logs.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) logContext() []slog.Attr {
	if n := s.lastFrame.Load(); n >= 0 {
		return []slog.Attr{slog.Int64("frame", n)}
	}
	return nil
}

// Start loads the camera list and subscribes to the feed concurrently. It
// returns once the camera load has finished; the subscription keeps running
// until Close or until ctx is cancelled. Load and connection failures are
// logged, never returned.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrClosed
	case s.started:
		s.mu.Unlock()
		return ErrStarted
	}
	s.started = true
	s.mu.Unlock()

	s.logger.Info("Session starting", "cameras", s.cfg.CameraSource, "feed", s.cfg.Feed.URL)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.loadCameras(logging.ContextWithAttrs(gctx, slog.String("trigger", "start")))
		return nil
	})

	g.Go(func() error {
		opts := append([]feed.Option{
			feed.WithLogger(s.baseLogger),
			feed.WithFrameListener(s.applyFrame),
			feed.WithStateListener(s.applyState),
		}, s.feedOpts...)
		// the subscription outlives the errgroup context
		sub := feed.Subscribe(ctx, s.cfg.Feed, opts...)

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			sub.Close()
			return nil
		}
		s.sub = sub
		s.mu.Unlock()
		return nil
	})

	if s.sink != nil {
		g.Go(func() error {
			if err := s.sink.Connect(gctx); err != nil {
				s.logger.Warn("InfluxDB sink disabled", "error", err)
			}
			return nil
		})
	}

	return g.Wait()
}

func (s *Session) loadCameras(ctx context.Context) {
	cams := s.registry.Load(ctx, s.cfg.CameraSource)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.cameras = cams
	s.mu.Unlock()

	if s.journal != nil {
		if err := s.journal.RecordCameras(cams); err != nil {
			s.logger.Error("Failed to journal camera list", "error", err)
		}
	}
}

// Reload fetches the calibration resource again and replaces the camera list.
func (s *Session) Reload(ctx context.Context) []core.Camera {
	s.loadCameras(logging.ContextWithAttrs(ctx, slog.String("trigger", "reload")))
	return s.Cameras()
}

// applyFrame runs on the feed goroutine for every applied snapshot.
func (s *Session) applyFrame(f core.Frame) {
	start := time.Now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.trails.Update(f.Targets)
	s.tracker.Observe(f.ReceivedAt, f.Targets)
	s.targets = f.Targets
	s.frame = f.Number
	s.hasFrame = true
	s.lastFrame.Store(f.Number)

	if s.journal != nil {
		s.journal.RecordFrame(f)
	}
	if s.sink != nil {
		s.sink.WriteFrame(influx.FrameStats{
			Frame:       f.Number,
			Targets:     len(f.Targets),
			TrailPoints: s.trails.Points(),
			Latency:     time.Since(start),
			At:          f.ReceivedAt,
		})
	}
	s.mu.Unlock()

	for _, fn := range s.hooks {
		fn(f)
	}
}

func (s *Session) applyState(st feed.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.state = st
}

// Cameras returns a copy of the current camera list.
func (s *Session) Cameras() []core.Camera {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Camera{}, s.cameras...)
}

// Scene returns a consistent snapshot of everything the renderer draws.
func (s *Session) Scene() Scene {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := make([]CameraView, 0, len(s.cameras))
	for _, cam := range s.cameras {
		apex, a, b := fov.WorldEdges(cam, s.cone)
		views = append(views, CameraView{Camera: cam, Apex: apex, EdgeA: a, EdgeB: b})
	}

	return Scene{
		Cameras:  views,
		Targets:  append([]core.Target{}, s.targets...),
		Trails:   s.trails.Snapshot(),
		Cone:     s.cone,
		FOV:      s.cfg.FOV,
		Frame:    s.frame,
		HasFrame: s.hasFrame,
		State:    s.state,
	}
}

// Telemetry returns the derived readout of one live target.
func (s *Session) Telemetry(id string) (telemetry.Readout, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tracker.Get(id)
}

// TelemetryAll returns the readouts of every live target sorted by ID.
func (s *Session) TelemetryAll() []telemetry.Readout {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tracker.All()
}

// Backfill returns journaled frames newer than since, oldest first.
func (s *Session) Backfill(since int64, limit int) ([]core.Frame, error) {
	if s.journal == nil {
		return nil, ErrNoJournal
	}
	return s.journal.Frames(since, limit)
}

// Close stops the subscription and flushes the sinks. Scene keeps returning
// the last applied state with State Closed.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		sub := s.sub
		s.mu.Unlock()

		// the feed goroutine may be waiting on mu, so close outside the lock
		if sub != nil {
			sub.Close()
		}

		s.mu.Lock()
		s.state = feed.Closed
		s.mu.Unlock()

		if s.sink != nil {
			s.sink.Close()
		}
		if s.journal != nil {
			if err := s.journal.Close(); err != nil {
				s.logger.Error("Failed to close frame journal", "error", err)
			}
		}
		s.logger.Info("Session closed")
	})
}
