package camera

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/spaceshield/sitaware/internal/geo"
	"github.com/spaceshield/sitaware/pkg/core"
)

// ErrNotArray is returned when the calibration resource is not a JSON array.
var ErrNotArray = errors.New("calibration resource is not a JSON array")

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseCameras decodes a calibration resource and maps every record into
// the target convention. Input order is preserved and the camera ID is the
// record name. Any record violating the shape fails the whole resource.
func ParseCameras(data []byte) ([]core.Camera, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrNotArray
	}

	var records []core.RawCameraRecord
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("decode calibration resource: %w", err)
	}

	cams := make([]core.Camera, 0, len(records))
	for i := range records {
		rec := &records[i]
		if err := validate.Struct(rec); err != nil {
			return nil, fmt.Errorf("camera record %d: %w", i, err)
		}
		cams = append(cams, core.Camera{
			ID:          *rec.Name,
			Position:    geo.CameraPosition(*rec.Location),
			Orientation: geo.CameraOrientation(*rec.RotationEuler),
		})
	}
	return cams, nil
}

// DuplicateIDs lists camera IDs that occur more than once, in first-seen order.
func DuplicateIDs(cams []core.Camera) []string {
	seen := make(map[string]int, len(cams))
	var dups []string
	for _, c := range cams {
		seen[c.ID]++
		if seen[c.ID] == 2 {
			dups = append(dups, c.ID)
		}
	}
	return dups
}
