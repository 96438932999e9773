// Package influx writes per-frame pipeline metrics to InfluxDB v2.
package influx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement is the measurement name of per-frame points.
const Measurement = "pipeline_frame"

// ErrDisabled is returned by Connect when the sink is not enabled.
var ErrDisabled = errors.New("influx sink disabled")

// Config selects the InfluxDB server and bucket.
type Config struct {
	Enabled bool
	URL     string
	Token   string
	Org     string
	Bucket  string
	// Source tags every point, usually the feed URL.
	Source string
}

// FrameStats are the figures recorded for one processed frame.
type FrameStats struct {
	Frame       int64
	Targets     int
	TrailPoints int
	Latency     time.Duration
	At          time.Time
}

// Sink is a non-blocking point writer. A sink that failed to connect is
// inert: WriteFrame is a no-op.
type Sink struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	client influxdb2.Client
	writer influxdb2_api.WriteAPI
	valid  bool
	errWG  sync.WaitGroup
}

// NewSink creates an unconnected sink.
func NewSink(cfg Config, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{cfg: cfg, logger: logger.With("component", "influx")}
}

// Connect pings the server and prepares the write API. On failure the
// sink stays disabled and the error is returned for logging.
func (s *Sink) Connect(ctx context.Context) error {
	if !s.cfg.Enabled {
		return ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(
		s.cfg.URL,
		s.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	running, err := client.Ping(ctx)
	if err != nil || !running {
		client.Close()
		if err == nil {
			err = errors.New("server not ready")
		}
		return fmt.Errorf("influxdb ping %s: %w", s.cfg.URL, err)
	}

	writer := client.WriteAPI(s.cfg.Org, s.cfg.Bucket)

	s.errWG.Add(1)
	go func(errorsCh <-chan error) {
		defer s.errWG.Done()
		for writeErr := range errorsCh {
			s.logger.Error("Error sending data to InfluxDB", "bucket", s.cfg.Bucket, "error", writeErr)
		}
	}(writer.Errors())

	s.mu.Lock()
	s.client = client
	s.writer = writer
	s.valid = true
	s.mu.Unlock()

	s.logger.Info("InfluxDB sink connected", "url", s.cfg.URL, "bucket", s.cfg.Bucket)
	return nil
}

// Enabled reports whether points are being written.
func (s *Sink) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valid
}

// WriteFrame queues one point. It never blocks on the network.
func (s *Sink) WriteFrame(st FrameStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.valid {
		return
	}
	s.writer.WritePoint(FramePoint(s.cfg.Source, st))
}

// Close flushes pending points and releases the client.
func (s *Sink) Close() {
	s.mu.Lock()
	if !s.valid {
		s.mu.Unlock()
		return
	}
	s.valid = false
	writer, client := s.writer, s.client
	s.mu.Unlock()

	writer.Flush()
	client.Close()
	s.errWG.Wait()
}

// FramePoint builds the point for one frame.
func FramePoint(source string, st FrameStats) *influxdb2_write.Point {
	if source == "" {
		source = "unknown"
	}
	at := st.At
	if at.IsZero() {
		at = time.Now()
	}
	return influxdb2.NewPoint(
		Measurement,
		map[string]string{"source": source},
		map[string]any{
			"frame":        st.Frame,
			"targets":      st.Targets,
			"trail_points": st.TrailPoints,
			"latency_ms":   float64(st.Latency) / float64(time.Millisecond),
		},
		at,
	)
}
