package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaceshield/sitaware/internal/feed"
	"github.com/spaceshield/sitaware/internal/fov"
	"github.com/spaceshield/sitaware/internal/geo"
	"github.com/spaceshield/sitaware/internal/journal"
	"github.com/spaceshield/sitaware/internal/logging"
	"github.com/spaceshield/sitaware/pkg/core"
	"github.com/spaceshield/sitaware/pkg/streaming"
)

const (
	waitTimeout = 2 * time.Second
	tick        = 5 * time.Millisecond
)

const oneCamera = `[{"name": "gate", "location": {"x": 3, "y": 4, "z": 5}, "rotation_euler": {"x": 0, "y": 0, "z": 0}}]`

type staticSource struct {
	data string
	err  error
}

func (s staticSource) Fetch(context.Context, string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.data), nil
}

// pushServer sends every message written to the returned channel as an
// envelope-framed text message.
func pushServer(t *testing.T) (*httptest.Server, chan<- []byte) {
	t.Helper()
	out := make(chan []byte, 16)
	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for msg := range out {
			if err := c.WriteMessage(ws.TextMessage, msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(func() {
		close(out)
		srv.Close()
	})
	return srv, out
}

func frameMsg(t *testing.T, frame int64, objects map[string][3]float64) []byte {
	t.Helper()
	data, err := streaming.MarshalEnvelope(streaming.EventFrameData, streaming.NewFrameData(frame, objects))
	require.NoError(t, err)
	return data
}

func newSession(t *testing.T, srv *httptest.Server, cfg Config, opts ...Option) *Session {
	t.Helper()
	cfg.Feed = feed.Config{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), Protocol: feed.ProtocolEnvelope}
	opts = append([]Option{
		WithLogger(logging.Discard()),
		WithCameraSource(staticSource{data: oneCamera}),
	}, opts...)
	s, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func waitFrame(t *testing.T, s *Session, n int64) Scene {
	t.Helper()
	require.Eventually(t, func() bool {
		sc := s.Scene()
		return sc.HasFrame && sc.Frame == n
	}, waitTimeout, tick)
	return s.Scene()
}

func TestSession_ThreeFrameScenario(t *testing.T) {
	srv, push := pushServer(t)
	s := newSession(t, srv, Config{TrailPoints: 50})
	require.NoError(t, s.Start(context.Background()))

	push <- frameMsg(t, 1, map[string][3]float64{"a": {0, 0, 0}})
	sc := waitFrame(t, s, 1)
	require.Len(t, sc.Targets, 1)
	assert.Len(t, sc.Trails["a"], 1)

	push <- frameMsg(t, 2, map[string][3]float64{"a": {10, 0, 0}})
	sc = waitFrame(t, s, 2)
	require.Len(t, sc.Targets, 1)
	assert.Equal(t, core.Position3{X: 10, Y: 0, Z: 0}, sc.Targets[0].Position)
	assert.Len(t, sc.Trails["a"], 2)
	assert.InDelta(t, 10.0, sc.TrailLength("a"), 1e-9)

	push <- frameMsg(t, 3, map[string][3]float64{})
	sc = waitFrame(t, s, 3)
	assert.Empty(t, sc.Targets)
	_, ok := sc.Trails["a"]
	assert.False(t, ok, "trail of a vanished target is removed")
	_, ok = s.Telemetry("a")
	assert.False(t, ok)
}

func TestSession_CamerasAndCones(t *testing.T) {
	srv, _ := pushServer(t)
	s := newSession(t, srv, Config{})
	require.NoError(t, s.Start(context.Background()))

	sc := s.Scene()
	require.Len(t, sc.Cameras, 1)
	cam := sc.Cameras[0]
	assert.Equal(t, "gate", cam.Camera.ID)
	assert.Equal(t, core.Position3{X: 3, Y: 5, Z: -4}, cam.Camera.Position)
	assert.Equal(t, cam.Camera.Position, cam.Apex)

	// default cue: 75 degrees over 50 units
	assert.Equal(t, fov.DefaultConfig(), sc.FOV)
	assert.InDelta(t, 50*math.Tan(37.5*math.Pi/180), sc.Cone.Radius, 1e-6)
	assert.InDelta(t, cam.Apex.Z-50, cam.EdgeA.Z, 1e-9)
	assert.InDelta(t, cam.Apex.X+sc.Cone.Radius, cam.EdgeA.X, 1e-9)
	assert.InDelta(t, cam.Apex.X-sc.Cone.Radius, cam.EdgeB.X, 1e-9)
}

func TestSession_CameraFailureLeavesEmptyList(t *testing.T) {
	srv, _ := pushServer(t)
	s := newSession(t, srv, Config{}, WithCameraSource(staticSource{err: errors.New("boom")}))

	require.NoError(t, s.Start(context.Background()))
	assert.Empty(t, s.Scene().Cameras)
	assert.NotNil(t, s.Cameras())
}

func TestSession_StartTwice(t *testing.T) {
	srv, _ := pushServer(t)
	s := newSession(t, srv, Config{})

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrStarted)

	s.Close()
	s2 := newSession(t, srv, Config{})
	s2.Close()
	assert.ErrorIs(t, s2.Start(context.Background()), ErrClosed)
}

func TestSession_StateFollowsFeed(t *testing.T) {
	srv, _ := pushServer(t)
	s := newSession(t, srv, Config{})

	assert.Equal(t, feed.Connecting, s.Scene().State)
	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return s.Scene().State == feed.Connected }, waitTimeout, tick)
}

func TestSession_CloseFreezesScene(t *testing.T) {
	srv, push := pushServer(t)
	s := newSession(t, srv, Config{})
	require.NoError(t, s.Start(context.Background()))

	push <- frameMsg(t, 1, map[string][3]float64{"a": {1, 2, 3}})
	waitFrame(t, s, 1)

	s.Close()
	s.Close()
	sc := s.Scene()
	assert.Equal(t, feed.Closed, sc.State)
	assert.Equal(t, int64(1), sc.Frame)

	push <- frameMsg(t, 2, map[string][3]float64{"a": {4, 5, 6}})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, sc, s.Scene())
}

func TestSession_TelemetryAndHooks(t *testing.T) {
	srv, push := pushServer(t)

	var mu sync.Mutex
	var seen []int64
	s := newSession(t, srv, Config{Georef: &geo.GeoPoint{Longitude: 13.4, Latitude: 52.5}},
		WithFrameHook(func(f core.Frame) {
			mu.Lock()
			seen = append(seen, f.Number)
			mu.Unlock()
		}))
	require.NoError(t, s.Start(context.Background()))

	push <- frameMsg(t, 1, map[string][3]float64{"a": {0, 0, 2}})
	waitFrame(t, s, 1)
	push <- frameMsg(t, 2, map[string][3]float64{"a": {0, 10, 2}})
	waitFrame(t, s, 2)

	r, ok := s.Telemetry("a")
	require.True(t, ok)
	assert.Equal(t, 2.0, r.Altitude)
	assert.True(t, r.HeadingValid)
	assert.InDelta(t, 0.0, r.Heading, 1e-9, "raw +y is north")
	require.NotNil(t, r.Geo)
	assert.Greater(t, r.Geo.Latitude, 52.5)
	assert.Len(t, s.TelemetryAll(), 1)

	mu.Lock()
	assert.Equal(t, []int64{1, 2}, seen)
	mu.Unlock()
}

func TestSession_JournalBackfill(t *testing.T) {
	srv, push := pushServer(t)
	s := newSession(t, srv, Config{Journal: &journal.Config{MaxFrames: 10}})
	require.NoError(t, s.Start(context.Background()))

	for i := int64(1); i <= 3; i++ {
		push <- frameMsg(t, i, map[string][3]float64{"a": {float64(i), 0, 0}})
	}
	waitFrame(t, s, 3)

	frames, err := s.Backfill(1, 0)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, int64(2), frames[0].Number)
	assert.Equal(t, int64(3), frames[1].Number)
}

func TestSession_BackfillWithoutJournal(t *testing.T) {
	srv, _ := pushServer(t)
	s := newSession(t, srv, Config{})

	_, err := s.Backfill(0, 10)
	assert.ErrorIs(t, err, ErrNoJournal)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSession_LogContext(t *testing.T) {
	srv, push := pushServer(t)
	var logs syncBuffer
	s := newSession(t, srv, Config{},
		WithLogger(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))),
		WithCameraSource(staticSource{data: `[{"name": "a", "location": {"x": 0, "y": 0, "z": 0}, "rotation_euler": {"x": 0, "y": 0, "z": 0}}, {"name": "a", "location": {"x": 1, "y": 0, "z": 0}, "rotation_euler": {"x": 0, "y": 0, "z": 0}}]`}))
	require.NoError(t, s.Start(context.Background()))
	assert.NotEmpty(t, s.ID())

	// duplicate names are kept and reported
	assert.Len(t, s.Cameras(), 2)
	assert.Contains(t, logs.String(), "Duplicate camera names")
	assert.Contains(t, logs.String(), "trigger=start")

	push <- frameMsg(t, 4, map[string][3]float64{"a": {1, 1, 1}})
	waitFrame(t, s, 4)
	push <- []byte(`{"type":"frame_data","payload":{"frame":5}}`)
	push <- frameMsg(t, 6, map[string][3]float64{"a": {2, 1, 1}})
	waitFrame(t, s, 6)
	s.Reload(context.Background())
	s.Close()

	out := logs.String()
	assert.Contains(t, out, "msg=\"Session closed\" session="+s.ID()+" component=pipeline frame=6")
	assert.Contains(t, out, "component=feed")
	assert.Contains(t, out, "Event handler failed")
	assert.Contains(t, out, "trigger=reload")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.NotEmpty(t, lines)
	for _, line := range lines {
		assert.Contains(t, line, "session="+s.ID(), line)
	}
}

func TestNew_InvalidGeoreference(t *testing.T) {
	_, err := New(Config{Georef: &geo.GeoPoint{Latitude: 89}}, WithLogger(logging.Discard()))
	assert.ErrorIs(t, err, geo.ErrInvalidOrigin)
}

func TestScene_Summarize(t *testing.T) {
	sc := Scene{
		Cameras: []CameraView{{}, {}},
		Targets: []core.Target{{ID: "a"}},
		Trails: map[string][]core.Position3{
			"a": {{X: 0}, {X: 3, Z: -4}},
			"b": {{X: 1}},
		},
		Frame: 7,
		State: feed.Connected,
	}

	assert.Equal(t, Summary{
		State:       "connected",
		Frame:       7,
		Cameras:     2,
		Targets:     1,
		TrailPoints: 3,
		GroundTrack: 5,
	}, sc.Summarize())
}

func TestScene_TrailLengthWithoutGroundTrack(t *testing.T) {
	sc := Scene{Trails: map[string][]core.Position3{
		"climb": {{X: 1, Y: 0, Z: 1}, {X: 1, Y: 9, Z: 1}},
		"bad":   {{X: 0}, {X: math.NaN()}},
	}}

	assert.Equal(t, 0.0, sc.TrailLength("climb"))
	assert.Equal(t, 0.0, sc.TrailLength("bad"))
	assert.Equal(t, 0.0, sc.TrailLength("missing"))
	assert.Equal(t, 0.0, sc.Summarize().GroundTrack)
}
