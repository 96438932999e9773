package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/spaceshield/sitaware/internal/dispatcher"
	"github.com/spaceshield/sitaware/internal/logging"
	"github.com/spaceshield/sitaware/pkg/core"
	"github.com/spaceshield/sitaware/pkg/streaming"
)

const (
	writeWait             = 10 * time.Second
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 30 * time.Second
	defaultMaxReconnect   = 10
)

// Config selects the endpoint and framing of a Subscription.
type Config struct {
	URL              string
	Protocol         string
	HandshakeTimeout time.Duration
	Reconnect        ReconnectConfig
}

// ReconnectConfig controls the optional reconnect loop. Disabled by default:
// a lost connection then stays Disconnected.
type ReconnectConfig struct {
	Enabled        bool
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// FrameListener is invoked on the read goroutine after every applied frame.
type FrameListener func(core.Frame)

// StateListener is invoked whenever the connection state changes. Listeners
// must not call Close.
type StateListener func(State)

// Option configures a Subscription.
type Option func(*Subscription)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Subscription) { s.logger = l }
}

// WithFrameListener registers a listener for applied frames.
func WithFrameListener(fn FrameListener) Option {
	return func(s *Subscription) { s.frameListeners = append(s.frameListeners, fn) }
}

// WithStateListener registers a listener for state changes.
func WithStateListener(fn StateListener) Option {
	return func(s *Subscription) { s.stateListeners = append(s.stateListeners, fn) }
}

// WithDialer replaces the websocket dialer.
func WithDialer(d *ws.Dialer) Option {
	return func(s *Subscription) { s.dialer = d }
}

// Subscription is a live connection to the target feed. The current target
// list is replaced atomically by each valid frame_data message.
type Subscription struct {
	cfg    Config
	logger *slog.Logger
	dialer *ws.Dialer
	disp   *dispatcher.Dispatcher

	frameListeners []FrameListener
	stateListeners []StateListener

	mu       sync.RWMutex
	state    State
	targets  []core.Target
	frame    int64
	hasFrame bool
	closed   bool

	connMu  sync.Mutex
	conn    *ws.Conn
	writeMu sync.Mutex

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Subscribe starts connecting to the feed in the background and returns
// immediately. Connection problems are reported through State and the log,
// never as an error. Cancelling ctx has the same effect as Close.
func Subscribe(ctx context.Context, cfg Config, opts ...Option) *Subscription {
	if cfg.Protocol == "" {
		cfg.Protocol = ProtocolSocketIO
	}
	s := &Subscription{
		cfg:     cfg,
		logger:  slog.Default(),
		state:   Connecting,
		targets: []core.Target{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dialer == nil {
		s.dialer = &ws.Dialer{
			Proxy:            ws.DefaultDialer.Proxy,
			HandshakeTimeout: cfg.HandshakeTimeout,
		}
	}
	s.logger = s.logger.With("component", "feed")

	// dispatcher.New only fails if the meter rejects instrument creation
	disp, err := dispatcher.New(logging.NewDispatcherLogger(s.logger))
	if err != nil {
		s.logger.Error("Failed to create dispatcher", "error", err)
		disp = nil
	}
	s.disp = disp
	if s.disp != nil {
		s.disp.Register(streaming.EventFrameData, s.handleFrameData, dispatcher.Logged())
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run()

	go func() {
		<-s.ctx.Done()
		s.Close()
	}()

	return s
}

// Targets returns a copy of the current target list, sorted by ID.
func (s *Subscription) Targets() []core.Target {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Target, len(s.targets))
	copy(out, s.targets)
	return out
}

// Frame returns the number of the last applied frame.
func (s *Subscription) Frame() (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame, s.hasFrame
}

// State returns the current connection state.
func (s *Subscription) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Close stops the subscription. It is safe to call more than once; when it
// returns no listener runs again and the subscription state no longer changes.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.cancel()

		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()
		if conn != nil {
			s.writeMu.Lock()
			_ = conn.WriteControl(
				ws.CloseMessage,
				ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			s.writeMu.Unlock()
			_ = conn.Close()
		}

		s.wg.Wait()

		s.mu.Lock()
		s.state = Closed
		s.mu.Unlock()
		s.logger.Info("Feed subscription closed")
		for _, fn := range s.stateListeners {
			fn(Closed)
		}
	})
}

func (s *Subscription) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Subscription) setState(st State) {
	s.mu.Lock()
	if s.closed || s.state == st {
		s.mu.Unlock()
		return
	}
	s.state = st
	s.mu.Unlock()

	s.logger.Info("Feed state changed", "state", st.String())
	for _, fn := range s.stateListeners {
		fn(st)
	}
}

// run owns the connection lifecycle: dial, read until failure, and
// optionally reconnect with exponential backoff.
func (s *Subscription) run() {
	defer s.wg.Done()

	rc := s.cfg.Reconnect
	maxAttempts := rc.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxReconnect
	}
	backoff := rc.InitialBackoff
	if backoff <= 0 {
		backoff = defaultInitialBackoff
	}
	maxBackoff := rc.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}

	attempt := 0
	for {
		conn, err := s.dial()
		if err != nil {
			if s.isClosed() {
				return
			}
			s.logger.Warn("Feed dial failed", "url", s.cfg.URL, "error", err)
		} else {
			if !s.attach(conn) {
				_ = conn.Close()
				return
			}
			if s.cfg.Protocol == ProtocolEnvelope {
				s.setState(Connected)
			}
			attempt = 0
			backoff = rc.InitialBackoff
			if backoff <= 0 {
				backoff = defaultInitialBackoff
			}
			s.readLoop(conn)
			s.detach(conn)
		}

		if s.isClosed() {
			return
		}
		s.setState(Disconnected)

		if !rc.Enabled {
			return
		}
		attempt++
		if attempt > maxAttempts {
			s.logger.Error("Feed reconnect failed after max attempts", "maxAttempts", maxAttempts)
			return
		}

		s.logger.Info("Reconnecting to feed", "attempt", attempt, "backoff", backoff)
		timer := time.NewTimer(backoff)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		s.setState(Connecting)
	}
}

func (s *Subscription) dial() (*ws.Conn, error) {
	endpoint, err := endpointURL(s.cfg.URL, s.cfg.Protocol)
	if err != nil {
		return nil, err
	}

	conn, _, err := s.dialer.DialContext(s.ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// attach publishes conn so Close can interrupt it. It fails once closed.
func (s *Subscription) attach(conn *ws.Conn) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.isClosed() {
		return false
	}
	s.conn = conn
	return true
}

func (s *Subscription) detach(conn *ws.Conn) {
	s.connMu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.connMu.Unlock()
	_ = conn.Close()
}

// readLoop handles messages one at a time until the connection fails.
func (s *Subscription) readLoop(conn *ws.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !s.isClosed() {
				s.logger.Warn("Feed read error", "error", err)
			}
			return
		}

		receivedAt := time.Now()
		var keep bool
		if s.cfg.Protocol == ProtocolSocketIO {
			keep = s.handleSocketIO(conn, message, receivedAt)
		} else {
			keep = s.handleEnvelope(message, receivedAt)
		}
		if !keep {
			return
		}
	}
}

func (s *Subscription) handleEnvelope(message []byte, receivedAt time.Time) bool {
	var env streaming.Envelope
	if err := json.Unmarshal(message, &env); err != nil || env.Type == "" {
		s.logger.Warn("Dropping malformed message", "error", fmt.Errorf("%w: not an envelope", ErrMalformed), "bytes", len(message))
		return true
	}
	s.dispatch(dispatcher.Event{Name: env.Type, Payload: env.Payload, ReceivedAt: receivedAt})
	return true
}

func (s *Subscription) handleSocketIO(conn *ws.Conn, message []byte, receivedAt time.Time) bool {
	pkt, err := streaming.DecodeSocketIO(message)
	if err != nil {
		s.logger.Warn("Dropping malformed message", "error", fmt.Errorf("%w: %v", ErrMalformed, err), "bytes", len(message))
		return true
	}

	switch pkt.Kind {
	case streaming.PacketOpen:
		if err := s.write(conn, streaming.SocketIOConnect); err != nil {
			s.logger.Warn("Failed to send socket.io connect", "error", err)
			return false
		}
	case streaming.PacketPing:
		if err := s.write(conn, streaming.SocketIOPong); err != nil {
			s.logger.Warn("Failed to send pong", "error", err)
			return false
		}
	case streaming.PacketConnected:
		s.setState(Connected)
	case streaming.PacketDisconnect:
		s.logger.Info("Feed server closed the session")
		return false
	case streaming.PacketEvent:
		s.dispatch(dispatcher.Event{Name: pkt.Event, Payload: pkt.Payload, ReceivedAt: receivedAt})
	}
	return true
}

func (s *Subscription) write(conn *ws.Conn, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, data)
}

func (s *Subscription) dispatch(e dispatcher.Event) {
	if s.disp == nil {
		return
	}
	// handler failures are already reported by the dispatcher
	if err := s.disp.Dispatch(e); errors.Is(err, dispatcher.ErrUnknownEvent) {
		s.logger.Debug("Ignoring feed event", "event", e.Name)
	}
}

func (s *Subscription) handleFrameData(e dispatcher.Event) error {
	number, targets, err := DecodeFrame(e.Payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.targets = targets
	s.frame = number
	s.hasFrame = true
	s.mu.Unlock()

	if len(s.frameListeners) == 0 {
		return nil
	}
	for _, fn := range s.frameListeners {
		fn(core.Frame{
			Number:     number,
			ReceivedAt: e.ReceivedAt,
			Targets:    append([]core.Target(nil), targets...),
		})
	}
	return nil
}
