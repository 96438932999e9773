package camera

import (
	"context"
	"log/slog"
	"sync"

	"github.com/spaceshield/sitaware/pkg/core"
)

// Source fetches the raw calibration resource.
type Source interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// Registry holds the camera list produced by the last Load.
type Registry struct {
	source Source
	logger *slog.Logger

	mu      sync.RWMutex
	cameras []core.Camera
}

// NewRegistry creates an empty registry reading through source.
func NewRegistry(source Source, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{source: source, logger: logger}
}

// Load fetches and parses the calibration resource once. It never fails:
// fetch and parse errors are logged and produce an empty list, which also
// replaces whatever an earlier Load returned.
func (r *Registry) Load(ctx context.Context, uri string) []core.Camera {
	cams := r.load(ctx, uri)

	r.mu.Lock()
	r.cameras = cams
	r.mu.Unlock()

	return clone(cams)
}

func (r *Registry) load(ctx context.Context, uri string) []core.Camera {
	data, err := r.source.Fetch(ctx, uri)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to fetch camera calibration", "source", uri, "error", err)
		return []core.Camera{}
	}

	cams, err := ParseCameras(data)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to parse camera calibration", "source", uri, "error", err)
		return []core.Camera{}
	}

	if dups := DuplicateIDs(cams); len(dups) > 0 {
		r.logger.WarnContext(ctx, "Duplicate camera names in calibration", "source", uri, "names", dups)
	}

	r.logger.InfoContext(ctx, "Camera calibration loaded", "source", uri, "cameras", len(cams))
	return cams
}

// Cameras returns a copy of the current camera list.
func (r *Registry) Cameras() []core.Camera {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return clone(r.cameras)
}

func clone(cams []core.Camera) []core.Camera {
	out := make([]core.Camera, len(cams))
	copy(out, cams)
	return out
}
