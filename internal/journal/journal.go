// Package journal keeps a bounded in-memory SQLite record of the camera
// list and recent frames so late consumers can backfill.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/spaceshield/sitaware/internal/database"
	"github.com/spaceshield/sitaware/internal/queue"
	"github.com/spaceshield/sitaware/pkg/core"
)

const insertBatchSize = 500

// ErrClosed is returned by operations on a closed journal.
var ErrClosed = errors.New("journal closed")

// Config controls retention and flushing.
type Config struct {
	// MaxFrames caps stored frames; older ones are pruned on flush. Zero keeps all.
	MaxFrames int
	// FlushInterval is how often queued frames are written. Zero disables the
	// background flush; Flush and Frames still write pending frames.
	FlushInterval time.Duration
}

// Journal records frames through a write queue flushed in batches.
type Journal struct {
	cfg    Config
	db     *gorm.DB
	logger *slog.Logger

	pending *queue.Queue[FrameRecord]

	flushMu sync.Mutex
	closed  bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// Open creates a private in-memory journal and starts its flush loop.
func Open(cfg Config, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := database.OpenSQLite("")
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(models...); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("failed to migrate journal schema: %w", err)
	}

	j := &Journal{
		cfg:     cfg,
		db:      db,
		logger:  logger.With("component", "journal"),
		pending: queue.New[FrameRecord](cfg.MaxFrames),
		stop:    make(chan struct{}),
	}

	if cfg.FlushInterval > 0 {
		j.wg.Add(1)
		go j.flushLoop()
	}

	return j, nil
}

func (j *Journal) flushLoop() {
	defer j.wg.Done()
	ticker := time.NewTicker(j.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stop:
			return
		case <-ticker.C:
			if err := j.Flush(); err != nil && !errors.Is(err, ErrClosed) {
				j.logger.Error("Failed to flush journal", "error", err)
			}
		}
	}
}

// RecordCameras replaces the stored camera list.
func (j *Journal) RecordCameras(cams []core.Camera) error {
	j.flushMu.Lock()
	defer j.flushMu.Unlock()
	if j.closed {
		return ErrClosed
	}

	now := time.Now().UTC()
	records := make([]CameraRecord, 0, len(cams))
	for i, c := range cams {
		records = append(records, CameraRecord{
			LoadedAt:    now,
			Seq:         i,
			Name:        c.ID,
			Position:    datatypes.NewJSONType(c.Position),
			Orientation: datatypes.NewJSONType(c.Orientation),
		})
	}

	return j.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&CameraRecord{}).Error; err != nil {
			return fmt.Errorf("failed to clear cameras: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		if err := tx.Create(&records).Error; err != nil {
			return fmt.Errorf("failed to insert cameras: %w", err)
		}
		return nil
	})
}

// Cameras returns the stored camera list in load order.
func (j *Journal) Cameras() ([]core.Camera, error) {
	j.flushMu.Lock()
	defer j.flushMu.Unlock()
	if j.closed {
		return nil, ErrClosed
	}

	var records []CameraRecord
	if err := j.db.Order("seq asc").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to read cameras: %w", err)
	}

	cams := make([]core.Camera, 0, len(records))
	for _, r := range records {
		cams = append(cams, core.Camera{
			ID:          r.Name,
			Position:    r.Position.Data(),
			Orientation: r.Orientation.Data(),
		})
	}
	return cams, nil
}

// RecordFrame queues a frame for the next flush. Frames whose positions
// cannot be encoded as JSON (NaN, Inf) are skipped with a warning.
func (j *Journal) RecordFrame(f core.Frame) {
	objects := make(map[string][3]float64, len(f.Targets))
	for _, t := range f.Targets {
		objects[t.ID] = [3]float64{t.Position.X, t.Position.Y, t.Position.Z}
	}
	data, err := json.Marshal(objects)
	if err != nil {
		j.logger.Warn("Skipping frame that cannot be journaled", "frame", f.Number, "error", err)
		return
	}

	// frames beyond MaxFrames would be pruned on the next flush anyway
	if dropped := j.pending.Push(FrameRecord{
		Frame:       f.Number,
		ReceivedAt:  f.ReceivedAt.UTC(),
		TargetCount: len(f.Targets),
		Objects:     datatypes.JSON(data),
	}); dropped > 0 {
		j.logger.Debug("Journal queue full, dropped oldest frames", "dropped", dropped, "droppedTotal", j.pending.Dropped())
	}
}

// Pending returns the number of queued, unflushed frames.
func (j *Journal) Pending() int {
	return j.pending.Len()
}

// Flush writes queued frames and applies retention.
func (j *Journal) Flush() error {
	j.flushMu.Lock()
	defer j.flushMu.Unlock()
	return j.flushLocked()
}

func (j *Journal) flushLocked() error {
	if j.closed {
		return ErrClosed
	}

	batch := j.pending.GetAndEmpty()
	if len(batch) > 0 {
		if err := j.db.CreateInBatches(&batch, insertBatchSize).Error; err != nil {
			return fmt.Errorf("failed to write %d frames: %w", len(batch), err)
		}
		j.logger.Debug("Journal flushed", "frames", len(batch))
	}

	if j.cfg.MaxFrames > 0 {
		var maxID uint
		if err := j.db.Model(&FrameRecord{}).Select("COALESCE(MAX(id), 0)").Scan(&maxID).Error; err != nil {
			return fmt.Errorf("failed to read journal size: %w", err)
		}
		if maxID > uint(j.cfg.MaxFrames) {
			cutoff := maxID - uint(j.cfg.MaxFrames)
			if err := j.db.Where("id <= ?", cutoff).Delete(&FrameRecord{}).Error; err != nil {
				return fmt.Errorf("failed to prune journal: %w", err)
			}
		}
	}
	return nil
}

// Frames flushes pending writes and returns up to limit frames with a
// number greater than since, oldest first. limit <= 0 means no limit.
func (j *Journal) Frames(since int64, limit int) ([]core.Frame, error) {
	j.flushMu.Lock()
	defer j.flushMu.Unlock()
	if err := j.flushLocked(); err != nil {
		return nil, err
	}

	q := j.db.Where("frame > ?", since).Order("id asc")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var records []FrameRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to read frames: %w", err)
	}

	frames := make([]core.Frame, 0, len(records))
	for _, r := range records {
		f, err := r.toFrame()
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// Close stops the flush loop and discards the database. Safe to call twice.
func (j *Journal) Close() error {
	j.flushMu.Lock()
	if j.closed {
		j.flushMu.Unlock()
		return nil
	}
	j.closed = true
	close(j.stop)
	j.flushMu.Unlock()

	j.wg.Wait()
	return database.Close(j.db)
}

func (r FrameRecord) toFrame() (core.Frame, error) {
	var objects map[string][3]float64
	if err := json.Unmarshal(r.Objects, &objects); err != nil {
		return core.Frame{}, fmt.Errorf("frame record %d: %w", r.ID, err)
	}

	targets := make([]core.Target, 0, len(objects))
	for id, p := range objects {
		targets = append(targets, core.Target{ID: id, Position: core.Position3{X: p[0], Y: p[1], Z: p[2]}})
	}
	sort.Slice(targets, func(a, b int) bool { return targets[a].ID < targets[b].ID })

	return core.Frame{Number: r.Frame, ReceivedAt: r.ReceivedAt, Targets: targets}, nil
}
