package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/spaceshield/sitaware/internal/geo"
	"github.com/spaceshield/sitaware/pkg/core"
	"github.com/spaceshield/sitaware/pkg/streaming"
)

// Wire framings understood by the feed.
const (
	ProtocolSocketIO = "socketio"
	ProtocolEnvelope = "envelope"
)

// ErrMalformed marks a message that was dropped without touching state.
var ErrMalformed = errors.New("malformed feed message")

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeFrame parses a frame_data payload into a frame number and a target
// list sorted by ID. Any invalid entry rejects the whole payload.
func DecodeFrame(payload []byte) (int64, []core.Target, error) {
	if len(payload) == 0 {
		return 0, nil, fmt.Errorf("%w: empty payload", ErrMalformed)
	}

	var fd streaming.FrameData
	if err := json.Unmarshal(payload, &fd); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validate.Struct(&fd); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	targets := make([]core.Target, 0, len(fd.Objects))
	for id, raw := range fd.Objects {
		targets = append(targets, core.Target{
			ID:       id,
			Position: geo.TargetPosition([3]float64{raw[0], raw[1], raw[2]}),
		})
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].ID < targets[j].ID })

	return *fd.Frame, targets, nil
}

// endpointURL normalises the configured URL for the chosen framing.
// Socket.IO endpoints get the Engine.IO websocket transport path and query.
func endpointURL(raw, protocol string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid feed URL: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid feed URL scheme %q", u.Scheme)
	}

	switch protocol {
	case ProtocolEnvelope:
	case ProtocolSocketIO:
		if u.Path == "" || u.Path == "/" {
			u.Path = "/socket.io/"
		}
		q := u.Query()
		q.Set("EIO", "4")
		q.Set("transport", "websocket")
		u.RawQuery = q.Encode()
	default:
		return "", fmt.Errorf("unknown feed protocol %q", protocol)
	}

	return u.String(), nil
}
