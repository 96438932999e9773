package simulate

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"

	"github.com/spaceshield/sitaware/pkg/streaming"
)

const (
	writeWait           = 10 * time.Second
	defaultInterval     = 100 * time.Millisecond
	defaultPingInterval = 25 * time.Second
	pingTimeout         = 20 * time.Second
)

// Source yields the next payload to broadcast.
type Source interface {
	Next() streaming.FrameData
}

// ServerConfig controls framing and cadence.
type ServerConfig struct {
	// Protocol is "socketio" (default) or "envelope".
	Protocol     string
	Interval     time.Duration
	PingInterval time.Duration
}

type client struct {
	conn    *ws.Conn
	writeMu sync.Mutex
	joined  bool
}

func (c *client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(ws.TextMessage, data)
}

// Server is a websocket endpoint broadcasting frame_data to every client.
type Server struct {
	cfg      ServerConfig
	source   Source
	logger   *slog.Logger
	upgrader ws.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewServer creates a server broadcasting payloads from source.
func NewServer(cfg ServerConfig, source Source, logger *slog.Logger) *Server {
	if cfg.Protocol == "" {
		cfg.Protocol = "socketio"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		source:   source,
		logger:   logger.With("component", "simulator"),
		upgrader: ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		clients:  make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and keeps the client until it leaves.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn, joined: s.cfg.Protocol != "socketio"}

	if s.cfg.Protocol == "socketio" {
		open := streaming.EncodeSocketIOOpen(uuid.NewString(),
			int(s.cfg.PingInterval/time.Millisecond), int(pingTimeout/time.Millisecond))
		if err := c.write(open); err != nil {
			_ = conn.Close()
			return
		}
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	s.logger.Info("Client connected", "remote", r.RemoteAddr, "clients", n)

	s.readLoop(c)

	s.drop(c)
	s.logger.Info("Client disconnected", "remote", r.RemoteAddr)
}

// readLoop answers the socket.io namespace join and ignores everything else.
func (s *Server) readLoop(c *client) {
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if s.cfg.Protocol != "socketio" {
			continue
		}
		pkt, err := streaming.DecodeSocketIO(msg)
		if err != nil {
			continue
		}
		if pkt.Kind == streaming.PacketConnected {
			reply := append([]byte(nil), streaming.SocketIOConnect...)
			reply = append(reply, []byte(`{"sid":"`+uuid.NewString()+`"}`)...)
			if err := c.write(reply); err != nil {
				return
			}
			s.mu.Lock()
			c.joined = true
			s.mu.Unlock()
		}
	}
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	_ = c.conn.Close()
}

// Clients returns the number of clients ready to receive frames.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for c := range s.clients {
		if c.joined {
			n++
		}
	}
	return n
}

// Broadcast sends one payload to every joined client.
func (s *Server) Broadcast(fd streaming.FrameData) error {
	var data []byte
	var err error
	if s.cfg.Protocol == "socketio" {
		data, err = streaming.EncodeSocketIOEvent(streaming.EventFrameData, fd)
	} else {
		data, err = streaming.MarshalEnvelope(streaming.EventFrameData, fd)
	}
	if err != nil {
		return err
	}
	s.send(data)
	return nil
}

func (s *Server) send(data []byte) {
	s.mu.Lock()
	targets := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		if c.joined {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	for _, c := range targets {
		if err := c.write(data); err != nil {
			s.logger.Debug("Dropping client after write error", "error", err)
			s.drop(c)
		}
	}
}

// Run broadcasts a payload every interval until ctx is done, then closes
// all clients.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return
		case <-ticker.C:
			if err := s.Broadcast(s.source.Next()); err != nil {
				s.logger.Error("Failed to encode frame", "error", err)
			}
		case <-ping.C:
			if s.cfg.Protocol == "socketio" {
				s.send([]byte{streaming.EIOPing})
			}
		}
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		s.drop(c)
	}
}
