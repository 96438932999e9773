package locate

import (
	"log/slog"
	"math"
	"slices"
	"strconv"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/spaceshield/sitaware/pkg/core"
	"github.com/spaceshield/sitaware/pkg/streaming"
)

// Config controls triangulation and track association.
type Config struct {
	Intrinsics Intrinsics `json:"intrinsics" mapstructure:"intrinsics"`
	// MergeDistance collapses triangulated points closer than this.
	MergeDistance float64 `json:"mergeDistance" mapstructure:"mergeDistance"`
	// MaxAssociation is the largest jump a track may make between frames.
	MaxAssociation float64 `json:"maxAssociation" mapstructure:"maxAssociation"`
	// MaxRayGap drops intersections whose rays miss each other by more
	// than this. Zero keeps every intersection.
	MaxRayGap float64      `json:"maxRayGap" mapstructure:"maxRayGap"`
	Kalman    KalmanConfig `json:"kalman" mapstructure:"kalman"`
}

// DefaultConfig returns the producer's stock tuning.
func DefaultConfig() Config {
	return Config{
		Intrinsics:     DefaultIntrinsics(),
		MergeDistance:  15,
		MaxAssociation: 30,
		Kalman:         DefaultKalmanConfig(),
	}
}

// View is the set of detections one camera reported for a frame.
type View struct {
	Camera     string
	Detections []Pixel
}

type track struct {
	filter *Kalman
	last   [3]float64
}

// Locator turns per-camera detections into frame_data payloads.
type Locator struct {
	cfg    Config
	poses  []Pose
	logger *slog.Logger

	mu     sync.Mutex
	tracks map[int]*track
	nextID int
	frame  int64
}

// New creates a Locator for the given cameras. Cameras keep their order.
func New(cfg Config, cams []core.Camera, logger *slog.Logger) *Locator {
	poses := make([]Pose, 0, len(cams))
	for _, c := range cams {
		poses = append(poses, PoseFromCamera(c))
	}
	return &Locator{
		cfg:    cfg,
		poses:  poses,
		logger: logger.With("component", "locate"),
		tracks: make(map[int]*track),
	}
}

// Views returns what every camera would detect for the given raw points.
func (l *Locator) Views(points [][3]float64) []View {
	views := make([]View, 0, len(l.poses))
	for _, pose := range l.poses {
		v := View{Camera: pose.ID}
		for _, p := range points {
			if px, ok := pose.Project(l.cfg.Intrinsics, p); ok {
				v.Detections = append(v.Detections, px)
			}
		}
		views = append(views, v)
	}
	return views
}

// Locate triangulates one frame of detections and returns the filtered
// track positions keyed by track id.
func (l *Locator) Locate(views []View) streaming.FrameData {
	points := l.triangulate(views)
	merged := Merge(points, l.cfg.MergeDistance)

	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]int, 0, len(l.tracks))
	for id := range l.tracks {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	next := make(map[int]*track, len(merged))
	objects := make(map[string][3]float64, len(merged))
	for _, p := range merged {
		id, t := l.associate(p, ids, next)
		t.filter.Predict()
		pos, err := t.filter.Update(p)
		if err != nil {
			l.logger.Warn("Dropping track update", "track", id, "error", err)
			continue
		}
		t.last = pos
		next[id] = t
		objects[strconv.Itoa(id)] = [3]float64{round2(pos[0]), round2(pos[1]), round2(pos[2])}
	}
	l.tracks = next

	frame := l.frame
	l.frame++
	l.logger.Debug("Located frame", "frame", frame, "intersections", len(points), "targets", len(objects))
	return streaming.NewFrameData(frame, objects)
}

// associate picks the nearest unclaimed previous track within reach or
// opens a new one.
func (l *Locator) associate(p [3]float64, ids []int, claimed map[int]*track) (int, *track) {
	best, bestDist := -1, l.cfg.MaxAssociation
	for _, id := range ids {
		if _, ok := claimed[id]; ok {
			continue
		}
		if d := floats.Distance(p[:], l.tracks[id].last[:], 2); d < bestDist {
			best, bestDist = id, d
		}
	}
	if best >= 0 {
		return best, l.tracks[best]
	}
	id := l.nextID
	l.nextID++
	return id, &track{filter: NewKalman(l.cfg.Kalman)}
}

func (l *Locator) triangulate(views []View) [][3]float64 {
	byID := make(map[string]Pose, len(l.poses))
	for _, p := range l.poses {
		byID[p.ID] = p
	}

	type seen struct {
		pose Pose
		rays []Ray
	}
	var known []seen
	for _, v := range views {
		pose, ok := byID[v.Camera]
		if !ok {
			l.logger.Debug("Ignoring detections from unknown camera", "camera", v.Camera)
			continue
		}
		s := seen{pose: pose}
		for _, px := range v.Detections {
			s.rays = append(s.rays, pose.Ray(l.cfg.Intrinsics, px))
		}
		known = append(known, s)
	}

	var points [][3]float64
	for i := 0; i < len(known); i++ {
		for j := i + 1; j < len(known); j++ {
			for _, a := range known[i].rays {
				for _, b := range known[j].rays {
					p, gap, err := Intersect(a, b)
					if err != nil {
						continue
					}
					if l.cfg.MaxRayGap > 0 && gap > l.cfg.MaxRayGap {
						continue
					}
					points = append(points, p)
				}
			}
		}
	}
	return points
}

func round2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0
	}
	return r
}
