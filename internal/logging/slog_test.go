package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// redirectStdout points the stdout sink at a buffer for the test.
func redirectStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := osStdout
	osStdout = &buf
	t.Cleanup(func() { osStdout = prev })
	return &buf
}

func TestSetupWith_SinkSelection(t *testing.T) {
	t.Run("log file replaces stdout", func(t *testing.T) {
		stdout := redirectStdout(t)
		var file bytes.Buffer

		m := NewSlogManager()
		m.Setup(&file, "info", nil)
		m.Logger().Info("camera calibration loaded", "cameras", 3)

		assert.Contains(t, file.String(), "cameras=3")
		assert.Empty(t, stdout.String())
	})

	t.Run("stdout without a log file", func(t *testing.T) {
		stdout := redirectStdout(t)

		m := NewSlogManager()
		m.Setup(nil, "warn", nil)
		m.Logger().Info("hidden")
		m.Logger().Warn("feed dial failed")

		assert.NotContains(t, stdout.String(), "hidden")
		assert.Contains(t, stdout.String(), "feed dial failed")
	})
}

func TestSetupWith_GraylogReceivesJSON(t *testing.T) {
	var file, gelf bytes.Buffer
	m := NewSlogManager()
	m.SetupWith(Options{File: &file, Level: "debug", Graylog: &gelf})

	m.Component("pipeline").Debug("frame applied", "frame", 7, "targets", 2)

	assert.Contains(t, file.String(), "component=pipeline frame=7")

	lines := bytes.Split(bytes.TrimSpace(gelf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2, "init line plus one record")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[1], &rec))
	assert.Equal(t, "DEBUG", rec["level"])
	assert.Equal(t, "frame applied", rec["msg"])
	assert.Equal(t, "pipeline", rec["component"])
	assert.Equal(t, float64(7), rec["frame"])

	ts, ok := rec["time"].(string)
	require.True(t, ok)
	parsed, err := time.Parse(time.RFC3339, ts)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ts, "Z"), ts)
	assert.WithinDuration(t, time.Now(), parsed, time.Minute)
}

func TestSetupWith_OTelBridgeFlushes(t *testing.T) {
	var file bytes.Buffer
	m := NewSlogManager()
	m.Setup(&file, "info", sdklog.NewLoggerProvider())

	m.Component("feed").Info("feed connected")
	assert.Contains(t, file.String(), "component=feed")
	assert.NoError(t, m.Flush(context.Background()))
}

func TestSlogManager_BeforeSetup(t *testing.T) {
	m := NewSlogManager()
	assert.Equal(t, slog.Default(), m.Logger())
	assert.NoError(t, m.Flush(context.Background()))
}

func TestDiscard_DropsEverything(t *testing.T) {
	assert.False(t, Discard().Enabled(context.Background(), slog.LevelError))
}

func TestParseLevel(t *testing.T) {
	for input, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"Error": slog.LevelError,
		"":      slog.LevelInfo,
		"trace": slog.LevelInfo,
	} {
		assert.Equal(t, want, parseLevel(input), input)
	}
}

func TestContextHandler_ProviderAttrsAtLogTime(t *testing.T) {
	var buf bytes.Buffer
	frame := int64(1)
	logger := slog.New(NewContextHandler(slog.NewTextHandler(&buf, nil), func() []slog.Attr {
		return []slog.Attr{slog.Int64("frame", frame)}
	})).With("session", "s1")

	logger.Info("first")
	frame = 2
	logger.Info("second")

	out := buf.String()
	assert.Contains(t, out, "msg=first session=s1 frame=1")
	assert.Contains(t, out, "msg=second session=s1 frame=2")
}

func TestContextHandler_ContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewContextHandler(slog.NewTextHandler(&buf, nil), nil))

	ctx := ContextWithAttrs(context.Background(), slog.String("trigger", "reload"))
	ctx = ContextWithAttrs(ctx, slog.String("source", "cams.json"))
	logger.InfoContext(ctx, "loaded")
	logger.Info("plain")

	out := buf.String()
	assert.Contains(t, out, "msg=loaded trigger=reload source=cams.json")
	assert.Contains(t, out, "msg=plain\n")
	assert.Empty(t, AttrsFromContext(context.Background()))
}

type failingHandler struct{}

func (failingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h failingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h failingHandler) WithGroup(string) slog.Handler { return h }

func (failingHandler) Handle(context.Context, slog.Record) error {
	return errors.New("graylog unreachable")
}

func TestMultiHandler_FailingSinkDoesNotBlockOthers(t *testing.T) {
	var buf bytes.Buffer
	multi := NewMultiHandler(failingHandler{}, nil, slog.NewTextHandler(&buf, nil))

	grouped := slog.New(multi).WithGroup("target").With("id", "7")
	grouped.Info("telemetry", "speed", 3)
	assert.Contains(t, buf.String(), "target.id=7 target.speed=3")

	r := slog.NewRecord(time.Now(), slog.LevelInfo, "direct", 0)
	assert.EqualError(t, multi.Handle(context.Background(), r), "graylog unreachable")
	assert.False(t, NewMultiHandler().Enabled(context.Background(), slog.LevelError))
}
