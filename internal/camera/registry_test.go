package camera

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaceshield/sitaware/pkg/core"
)

const twoCameras = `[
	{"name": "gate", "location": {"x": 3, "y": 4, "z": 5}, "rotation_euler": {"x": 0, "y": 0, "z": 1.5}},
	{"name": "roof", "location": {"x": -10, "y": 0, "z": 12}, "rotation_euler": {"x": 1.2, "y": 0, "z": 0}}
]`

func testLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

type fakeS3 struct {
	objects map[string]string
	calls   int
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.calls++
	body, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestRegistry_LoadFromHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/static/camera_data.json", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, twoCameras)
	}))
	defer srv.Close()

	logger, _ := testLogger()
	reg := NewRegistry(NewFetcher(time.Second), logger)

	cams := reg.Load(context.Background(), srv.URL+"/static/camera_data.json")
	require.Len(t, cams, 2)
	assert.Equal(t, "gate", cams[0].ID)
	assert.Equal(t, core.Position3{X: 3, Y: 5, Z: -4}, cams[0].Position)
	assert.Equal(t, "roof", cams[1].ID)
	assert.Equal(t, cams, reg.Cameras())
}

func TestRegistry_HTTPFailuresYieldEmptyList(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"not found", func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) }},
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }},
		{"invalid json", func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, "[{") }},
		{"shape violation", func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, `[{"name":"x"}]`) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			logger, buf := testLogger()
			reg := NewRegistry(NewFetcher(time.Second), logger)

			cams := reg.Load(context.Background(), srv.URL)
			assert.NotNil(t, cams)
			assert.Empty(t, cams)
			assert.Empty(t, reg.Cameras())
			assert.Contains(t, buf.String(), "level=ERROR")
		})
	}
}

func TestRegistry_UnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	logger, _ := testLogger()
	reg := NewRegistry(NewFetcher(time.Second), logger)

	assert.Empty(t, reg.Load(context.Background(), url))
}

func TestRegistry_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	logger, _ := testLogger()
	reg := NewRegistry(NewFetcher(5*time.Second), logger)
	assert.Empty(t, reg.Load(ctx, srv.URL))
}

func TestRegistry_LoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "camera_data.json")
	require.NoError(t, os.WriteFile(path, []byte(twoCameras), 0644))

	logger, _ := testLogger()
	reg := NewRegistry(NewFetcher(0), logger)

	assert.Len(t, reg.Load(context.Background(), path), 2)
	assert.Len(t, reg.Load(context.Background(), "file://"+filepath.ToSlash(path)), 2)
}

func TestRegistry_MissingFile(t *testing.T) {
	logger, _ := testLogger()
	reg := NewRegistry(NewFetcher(0), logger)

	assert.Empty(t, reg.Load(context.Background(), filepath.Join(t.TempDir(), "nope.json")))
}

func TestRegistry_LoadFromS3(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{"calibration/site-a/cameras.json": twoCameras}}
	logger, _ := testLogger()
	reg := NewRegistry(NewFetcher(0, WithS3Getter(fake)), logger)

	cams := reg.Load(context.Background(), "s3://calibration/site-a/cameras.json")
	assert.Len(t, cams, 2)
	assert.Equal(t, 1, fake.calls)

	assert.Empty(t, reg.Load(context.Background(), "s3://calibration/missing.json"))
	assert.Empty(t, reg.Load(context.Background(), "s3://calibration"))
	assert.Equal(t, 2, fake.calls, "malformed s3 uri must not reach the client")
}

func TestRegistry_S3ClientRetriedAfterFailure(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{"calibration/cameras.json": twoCameras}}
	fetcher := NewFetcher(0)
	builds := 0
	fetcher.buildS3 = func(context.Context, S3Options) (S3Getter, error) {
		builds++
		if builds == 1 {
			return nil, errors.New("no credentials")
		}
		return fake, nil
	}
	logger, buf := testLogger()
	reg := NewRegistry(fetcher, logger)

	assert.Empty(t, reg.Load(context.Background(), "s3://calibration/cameras.json"))
	assert.Contains(t, buf.String(), "no credentials")

	assert.Len(t, reg.Load(context.Background(), "s3://calibration/cameras.json"), 2)
	assert.Len(t, reg.Load(context.Background(), "s3://calibration/cameras.json"), 2)
	assert.Equal(t, 2, builds, "a working client is kept")
	assert.Equal(t, 2, fake.calls)
}

func TestRegistry_UnsupportedScheme(t *testing.T) {
	logger, buf := testLogger()
	reg := NewRegistry(NewFetcher(0), logger)

	assert.Empty(t, reg.Load(context.Background(), "ftp://example.test/cams.json"))
	assert.Contains(t, buf.String(), ErrUnsupportedScheme.Error())
}

func TestRegistry_FailedReloadClears(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, twoCameras)
	}))
	defer srv.Close()

	logger, _ := testLogger()
	reg := NewRegistry(NewFetcher(time.Second), logger)

	require.Len(t, reg.Load(context.Background(), srv.URL), 2)

	fail.Store(true)
	assert.Empty(t, reg.Load(context.Background(), srv.URL))
	assert.Empty(t, reg.Cameras())
}

func TestRegistry_DuplicateNamesWarn(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cams.json")
	dup := `[
		{"name": "gate", "location": {"x": 0, "y": 0, "z": 0}, "rotation_euler": {"x": 0, "y": 0, "z": 0}},
		{"name": "gate", "location": {"x": 1, "y": 0, "z": 0}, "rotation_euler": {"x": 0, "y": 0, "z": 0}}
	]`
	require.NoError(t, os.WriteFile(path, []byte(dup), 0644))

	logger, buf := testLogger()
	reg := NewRegistry(NewFetcher(0), logger)

	assert.Len(t, reg.Load(context.Background(), path), 2)
	assert.Contains(t, buf.String(), "Duplicate camera names")
}

func TestRegistry_CamerasReturnsCopy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cams.json")
	require.NoError(t, os.WriteFile(path, []byte(twoCameras), 0644))

	reg := NewRegistry(NewFetcher(0), nil)
	reg.Load(context.Background(), path)

	cams := reg.Cameras()
	cams[0].ID = "mutated"
	assert.Equal(t, "gate", reg.Cameras()[0].ID)
}

func TestRegistry_EmptyBeforeLoad(t *testing.T) {
	reg := NewRegistry(NewFetcher(0), nil)
	assert.NotNil(t, reg.Cameras())
	assert.Empty(t, reg.Cameras())
}
