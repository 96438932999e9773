package streaming

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Engine.IO v4 / Socket.IO v5 text packets used over a raw websocket
// transport. Only the subset a read-only event consumer needs is covered.
const (
	EIOOpen    = '0'
	EIOClose   = '1'
	EIOPing    = '2'
	EIOPong    = '3'
	EIOMessage = '4'
	EIONoop    = '6'

	SIOConnect      = '0'
	SIODisconnect   = '1'
	SIOEvent        = '2'
	SIOConnectError = '4'
)

// Client replies.
var (
	SocketIOPong    = []byte{EIOPong}
	SocketIOConnect = []byte{EIOMessage, SIOConnect}
)

// PacketKind classifies a decoded Socket.IO text frame.
type PacketKind int

const (
	PacketNoop PacketKind = iota
	PacketOpen
	PacketPing
	PacketConnected
	PacketEvent
	PacketDisconnect
)

// Packet is a decoded Socket.IO frame.
type Packet struct {
	Kind    PacketKind
	Event   string
	Payload json.RawMessage
}

// ErrBadPacket is returned for frames that are not valid Socket.IO packets.
var ErrBadPacket = errors.New("malformed socket.io packet")

// DecodeSocketIO parses one websocket text frame.
func DecodeSocketIO(msg []byte) (Packet, error) {
	if len(msg) == 0 {
		return Packet{}, ErrBadPacket
	}
	switch msg[0] {
	case EIOOpen:
		return Packet{Kind: PacketOpen, Payload: json.RawMessage(msg[1:])}, nil
	case EIOPing:
		return Packet{Kind: PacketPing}, nil
	case EIOPong, EIONoop:
		return Packet{Kind: PacketNoop}, nil
	case EIOClose:
		return Packet{Kind: PacketDisconnect}, nil
	case EIOMessage:
	default:
		return Packet{}, fmt.Errorf("%w: engine.io type %q", ErrBadPacket, msg[0])
	}

	if len(msg) < 2 {
		return Packet{}, ErrBadPacket
	}
	body := string(msg[2:])
	switch msg[1] {
	case SIOConnect:
		return Packet{Kind: PacketConnected}, nil
	case SIODisconnect:
		return Packet{Kind: PacketDisconnect}, nil
	case SIOConnectError:
		return Packet{}, fmt.Errorf("%w: connect error %s", ErrBadPacket, body)
	case SIOEvent:
	default:
		return Packet{Kind: PacketNoop}, nil
	}

	// optional "/namespace," prefix and ack id before the JSON array
	if strings.HasPrefix(body, "/") {
		i := strings.IndexByte(body, ',')
		if i < 0 {
			return Packet{}, ErrBadPacket
		}
		body = body[i+1:]
	}
	body = strings.TrimLeft(body, "0123456789")

	var args []json.RawMessage
	if err := json.Unmarshal([]byte(body), &args); err != nil {
		return Packet{}, fmt.Errorf("%w: %v", ErrBadPacket, err)
	}
	if len(args) == 0 {
		return Packet{}, fmt.Errorf("%w: event without name", ErrBadPacket)
	}
	var name string
	if err := json.Unmarshal(args[0], &name); err != nil {
		return Packet{}, fmt.Errorf("%w: event name: %v", ErrBadPacket, err)
	}
	p := Packet{Kind: PacketEvent, Event: name}
	if len(args) > 1 {
		p.Payload = args[1]
	}
	return p, nil
}

// EncodeSocketIOEvent builds a `42["name",payload]` frame.
func EncodeSocketIOEvent(name string, payload any) ([]byte, error) {
	data, err := json.Marshal([]any{name, payload})
	if err != nil {
		return nil, err
	}
	return append([]byte{EIOMessage, SIOEvent}, data...), nil
}

// EncodeSocketIOOpen builds the server handshake frame.
func EncodeSocketIOOpen(sid string, pingIntervalMs, pingTimeoutMs int) []byte {
	data, _ := json.Marshal(map[string]any{
		"sid":          sid,
		"upgrades":     []string{},
		"pingInterval": pingIntervalMs,
		"pingTimeout":  pingTimeoutMs,
		"maxPayload":   1000000,
	})
	return append([]byte{EIOOpen}, data...)
}
