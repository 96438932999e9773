package streaming

import "encoding/json"

// Inbound event names published by the tracking producer.
const (
	EventFrameData = "frame_data"
)

// Envelope wraps every message in the envelope framing.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// FrameData is the frame_data payload. Object values are raw [x, y, z]
// triples in the producer's axis order.
type FrameData struct {
	Frame   *int64               `json:"frame" validate:"required"`
	Objects map[string][]float64 `json:"objects" validate:"required,dive,len=3"`
}

// NewFrameData builds a payload for producers and tests.
func NewFrameData(frame int64, objects map[string][3]float64) FrameData {
	out := make(map[string][]float64, len(objects))
	for id, raw := range objects {
		out[id] = []float64{raw[0], raw[1], raw[2]}
	}
	return FrameData{Frame: &frame, Objects: out}
}

// MarshalEnvelope encodes a payload inside an Envelope.
func MarshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}
