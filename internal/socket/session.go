package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vimo-ai/vlaude-daemon/internal/daemonerr"
	"github.com/vimo-ai/vlaude-daemon/internal/directory"
)

// Event is a decoded inbound frame, named after and shaped like the
// matching Socket.IO event in original_source, but carrying its payload
// pre-decoded to json.RawMessage so callers can unmarshal into the exact
// struct they expect.
type Event struct {
	Name    string
	Payload json.RawMessage
}

// Disconnected is the reserved synthetic event name pushed onto the inbound
// channel whenever the transport signals disconnect or error — the sole
// in-band signal DaemonCore uses to decide to reconnect.
const Disconnected = "__disconnected"

// Config configures a Session.
type Config struct {
	ServerURL string // e.g. "https://localhost:10005"
	Namespace string // path suffix, default "/daemon"
	TLS       TLSConfig
}

func (c Config) namespace() string {
	if c.Namespace == "" {
		return "/daemon"
	}
	return c.Namespace
}

// Session is a full-duplex, event-framed client over a websocket
// connection, grounded on SocketClient in
// original_source/vlaude-core/socket-client/src/client.rs.
type Session struct {
	cfg       Config
	logger    *zap.Logger
	directory *directory.Directory

	mu   sync.RWMutex
	conn *websocket.Conn

	writeMu sync.Mutex

	connected atomic.Bool

	inbound chan Event

	ackMu      sync.Mutex
	ackWaiters map[string]chan json.RawMessage

	heartbeatCancel atomic.Pointer[chan struct{}]
	reconnectSignal chan struct{}
}

// New constructs a Session. dir may be nil when discovery is not used.
func New(cfg Config, dir *directory.Directory, logger *zap.Logger) *Session {
	return &Session{
		cfg:             cfg,
		logger:          logger,
		directory:       dir,
		inbound:         make(chan Event, 100),
		ackWaiters:      make(map[string]chan json.RawMessage),
		reconnectSignal: make(chan struct{}, 1),
	}
}

// IsConnected reflects an atomic flag set on the first successful handshake
// and cleared on any transport error, disconnect, or explicit Disconnect.
// It is not cleared by a zero-length receive timeout.
func (s *Session) IsConnected() bool {
	return s.connected.Load()
}

// Connect dials the configured endpoint and starts the read loop. It does
// not close a connection that is already open; Reconnect calls Disconnect
// before dialing again.
func (s *Session) Connect(ctx context.Context) error {
	endpoint, err := s.wsURL(s.cfg.ServerURL)
	if err != nil {
		return fmt.Errorf("%w: %v", daemonerr.ErrConnectionFailed, err)
	}

	dialer := websocket.DefaultDialer
	if !s.cfg.TLS.IsZero() {
		tlsCfg, err := buildTLSConfig(s.cfg.TLS, func(msg string) { s.logger.Warn(msg) })
		if err != nil {
			return err
		}
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
			TLSClientConfig:  tlsCfg,
		}
	}

	s.logger.Info("connecting", zap.String("url", endpoint))
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", daemonerr.ErrConnectionFailed, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	// Set before the read loop starts: connect() succeeding is what flips
	// the flag, not a server-side callback (rust_socketio's connect
	// callback proved unreliable per client.rs, so the Rust client also
	// sets this right after connect() returns rather than waiting on it).
	s.connected.Store(true)
	s.logger.Info("connected")

	go s.readLoop(conn)
	return nil
}

func (s *Session) wsURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "wss", "ws":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + s.cfg.namespace()
	return u.String(), nil
}

func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.handleDisconnect()
			return
		}

		f, err := decodeFrame(raw)
		if err != nil {
			s.logger.Debug("dropping malformed frame", zap.Error(err))
			continue
		}

		if ack, ok := decodeAck(raw); ok {
			s.resolveAck(ack.AckID, ack.Payload)
			continue
		}

		select {
		case s.inbound <- Event{Name: f.Event, Payload: f.Payload}:
		default:
			s.logger.Warn("inbound channel full, dropping event", zap.String("event", f.Event))
		}
	}
}

func (s *Session) handleDisconnect() {
	s.connected.Store(false)
	s.mu.Lock()
	s.conn = nil
	s.mu.Unlock()

	s.ackMu.Lock()
	for id, ch := range s.ackWaiters {
		close(ch)
		delete(s.ackWaiters, id)
	}
	s.ackMu.Unlock()

	select {
	case s.inbound <- Event{Name: Disconnected, Payload: json.RawMessage(`{}`)}:
	default:
	}
}

func (s *Session) resolveAck(ackID string, payload json.RawMessage) {
	s.ackMu.Lock()
	ch, ok := s.ackWaiters[ackID]
	if ok {
		delete(s.ackWaiters, ackID)
	}
	s.ackMu.Unlock()
	if ok {
		ch <- payload
	}
}

// Disconnect closes the current transport, if any, and clears the
// connected flag.
func (s *Session) Disconnect() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	s.connected.Store(false)
}

// Emit forwards a named-event frame and returns once the transport accepts
// it. It does not wait for an application-level ack.
func (s *Session) Emit(event string, data interface{}) error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()

	if conn == nil {
		return daemonerr.ErrNotConnected
	}

	raw, err := encodeFrame(event, data)
	if err != nil {
		return fmt.Errorf("%w: encode frame: %v", daemonerr.ErrIO, err)
	}

	s.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, raw)
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %v", daemonerr.ErrConnectionFailed, err)
	}
	return nil
}

// EmitWithAck registers a one-shot reply slot, sends the frame, and waits
// for the matching ack or the timeout. If the underlying channel closes
// without a reply it returns the default {"success": true} payload, matching
// client.rs's behaviour on a dropped oneshot sender.
func (s *Session) EmitWithAck(ctx context.Context, event string, data interface{}, timeout time.Duration) (json.RawMessage, error) {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()

	if conn == nil {
		return nil, daemonerr.ErrNotConnected
	}

	ackID := uuid.NewString()
	waiter := make(chan json.RawMessage, 1)
	s.ackMu.Lock()
	s.ackWaiters[ackID] = waiter
	s.ackMu.Unlock()

	raw, err := encodeFrameWithAck(event, data, ackID)
	if err != nil {
		s.removeWaiter(ackID)
		return nil, fmt.Errorf("%w: encode frame: %v", daemonerr.ErrIO, err)
	}

	s.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, raw)
	s.writeMu.Unlock()
	if err != nil {
		s.removeWaiter(ackID)
		return nil, fmt.Errorf("%w: %v", daemonerr.ErrConnectionFailed, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case payload, ok := <-waiter:
		if !ok {
			return json.RawMessage(`{"success":true}`), nil
		}
		return payload, nil
	case <-timer.C:
		s.removeWaiter(ackID)
		return nil, daemonerr.ErrAckTimeout
	case <-ctx.Done():
		s.removeWaiter(ackID)
		return nil, ctx.Err()
	}
}

func (s *Session) removeWaiter(ackID string) {
	s.ackMu.Lock()
	delete(s.ackWaiters, ackID)
	s.ackMu.Unlock()
}

// RecvEvent blocks until the next inbound event, or ctx is cancelled.
func (s *Session) RecvEvent(ctx context.Context) (Event, bool) {
	select {
	case evt := <-s.inbound:
		return evt, true
	case <-ctx.Done():
		return Event{}, false
	}
}

// RecvEventTimeout returns the next inbound event, or (Event{}, false) if
// none arrives within the given duration.
func (s *Session) RecvEventTimeout(timeout time.Duration) (Event, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case evt := <-s.inbound:
		return evt, true
	case <-timer.C:
		return Event{}, false
	}
}

// ConnectWithDiscovery opens the directory's pub/sub listener, lists
// servers by priority and dials the first one (falling back to the
// configured endpoint if none are registered), registers this daemon's
// identity, and starts the heartbeat and reactive-reconnect tasks.
func (s *Session) ConnectWithDiscovery(ctx context.Context, info directory.DaemonInfo, ttl time.Duration) error {
	if s.directory == nil {
		return s.Connect(ctx)
	}

	s.directory.StartListening(ctx)

	servers, err := s.directory.ListServers(ctx)
	if err != nil {
		s.logger.Warn("directory list_servers failed, using configured endpoint", zap.Error(err))
	} else if len(servers) > 0 {
		s.cfg.ServerURL = "https://" + servers[0]
	}

	if err := s.Connect(ctx); err != nil {
		return err
	}

	if err := s.directory.RegisterDaemon(ctx, info, ttl); err != nil {
		s.logger.Warn("directory register_daemon failed", zap.Error(err))
	}

	s.startHeartbeat(ctx, info.DeviceID, ttl)
	s.startReactiveReconnect(ctx)
	return nil
}

func (s *Session) startHeartbeat(ctx context.Context, deviceID string, ttl time.Duration) {
	stop := make(chan struct{})
	if old := s.heartbeatCancel.Swap(&stop); old != nil {
		close(*old)
	}

	interval := ttl / 2
	if interval <= 0 {
		interval = 15 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				err := s.directory.KeepAliveDaemon(ctx, deviceID, ttl)
				if err != nil {
					s.logger.Debug("keep-alive failed, will re-register on next reconnect", zap.Error(err))
				}
			}
		}
	}()
}

func (s *Session) startReactiveReconnect(ctx context.Context) {
	events := s.directory.Subscribe()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				if evt.Type == directory.EventOnline && evt.Service == "server" && !s.IsConnected() {
					select {
					case s.reconnectSignal <- struct{}{}:
					default:
					}
				}
			}
		}
	}()
}

// ReconnectSignal is consumed by DaemonCore to learn that a newly online
// server justifies an immediate reconnect attempt, independent of the
// __disconnected-driven retry loop.
func (s *Session) ReconnectSignal() <-chan struct{} {
	return s.reconnectSignal
}

// Reconnect stops the heartbeat, closes the current transport, re-runs
// discovery, and re-opens the transport, re-registering with the
// directory and restarting the heartbeat. Identity re-registration on the
// server itself (upstream daemon:register + online report) remains the
// orchestrator's responsibility.
func (s *Session) Reconnect(ctx context.Context, info directory.DaemonInfo, ttl time.Duration) error {
	if old := s.heartbeatCancel.Swap(nil); old != nil {
		close(*old)
	}
	s.Disconnect()
	return s.ConnectWithDiscovery(ctx, info, ttl)
}
