package journal

import (
	"time"

	"gorm.io/datatypes"

	"github.com/spaceshield/sitaware/pkg/core"
)

// FrameRecord is one processed frame. Objects holds {"id": [x, y, z]} in
// the target convention.
type FrameRecord struct {
	ID          uint  `gorm:"primaryKey"`
	Frame       int64 `gorm:"index"`
	ReceivedAt  time.Time
	TargetCount int
	Objects     datatypes.JSON
}

// CameraRecord is one camera of the last loaded calibration.
type CameraRecord struct {
	ID          uint `gorm:"primaryKey"`
	LoadedAt    time.Time
	Seq         int
	Name        string
	Position    datatypes.JSONType[core.Position3]
	Orientation datatypes.JSONType[core.Orientation3]
}

var models = []any{&FrameRecord{}, &CameraRecord{}}
