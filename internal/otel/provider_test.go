package otel

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otellog "go.opentelemetry.io/otel/log"
)

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

func TestNew_Disabled(t *testing.T) {
	p, err := New(Config{})
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.Nil(t, p.LoggerProvider())
	assert.NotNil(t, p.Meter("test"))
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_EnabledWithoutSinks(t *testing.T) {
	_, err := New(Config{Enabled: true, ServiceName: "sitaware"})
	assert.Error(t, err)
}

func TestNew_WritesRecordsToWriter(t *testing.T) {
	var out syncBuffer
	p, err := New(Config{
		Enabled:        true,
		ServiceName:    "sitaware-test",
		ServiceVersion: "1.0.0",
		BatchTimeout:   time.Second,
		LogWriter:      &out,
	})
	require.NoError(t, err)
	require.NotNil(t, p.LoggerProvider())

	var rec otellog.Record
	rec.SetBody(otellog.StringValue("frame applied"))
	rec.SetSeverity(otellog.SeverityInfo)
	p.LoggerProvider().Logger("test").Emit(context.Background(), rec)

	require.NoError(t, p.Flush(context.Background()))
	assert.Contains(t, out.String(), "frame applied")
	assert.Contains(t, out.String(), "sitaware-test")
	assert.NotNil(t, p.Meter("test"))
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_ExportsMetrics(t *testing.T) {
	var out syncBuffer
	p, err := New(Config{
		Enabled:        true,
		BatchTimeout:   time.Second,
		LogWriter:      &out,
		MetricInterval: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	counter, err := p.Meter("test").Int64Counter("frames.applied")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	require.NoError(t, p.Flush(context.Background()))
	assert.Contains(t, out.String(), "frames.applied")
}
