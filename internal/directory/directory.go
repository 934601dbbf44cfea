// Package directory implements the service-discovery and registration
// protocol described in spec.md §4.1: a thin protocol over a Redis-backed
// key/value store with TTLs and pub/sub. The directory is authoritative for
// liveness, not for history.
//
// Grounded on original_source/packages/vlaude-core/socket-client/src/registry.rs
// (ServiceRegistry), restructured into the Go idiom apps/public-api-service
// and apps/notification-service use for Redis/NATS client wiring.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vimo-ai/vlaude-daemon/internal/daemonerr"
)

// EventType enumerates the kinds of ServiceEvent broadcast on the directory
// pub/sub channel.
type EventType string

const (
	EventOnline        EventType = "online"
	EventOffline       EventType = "offline"
	EventSessionUpdate EventType = "session_update"
)

// SessionInfo identifies one watched session for directory purposes.
type SessionInfo struct {
	SessionID   string `json:"sessionId"`
	ProjectPath string `json:"projectPath"`
}

// DaemonInfo is the Directory entry for a daemon (spec.md §3).
type DaemonInfo struct {
	DeviceID     string        `json:"deviceId"`
	DeviceName   string        `json:"deviceName"`
	Platform     string        `json:"platform"`
	Version      string        `json:"version"`
	Sessions     []SessionInfo `json:"sessions"`
	RegisteredAt int64         `json:"registeredAt"`
}

// ServerInfo is the Directory entry for a control server (spec.md §3).
type ServerInfo struct {
	Address      string `json:"address"`
	TTL          uint64 `json:"ttl"`
	RegisteredAt int64  `json:"registeredAt"`
}

// ServiceEvent is broadcast on the directory pub/sub channel (spec.md §3).
type ServiceEvent struct {
	Type      EventType     `json:"type"`
	Service   string        `json:"service"`
	Address   string        `json:"address,omitempty"`
	DeviceID  string        `json:"device_id,omitempty"`
	Sessions  []SessionInfo `json:"sessions,omitempty"`
	Timestamp int64         `json:"timestamp"`
}

// Config configures a Directory.
type Config struct {
	Host      string
	Port      int
	Password  string
	KeyPrefix string
}

func (c Config) addr() string {
	if c.Host == "" {
		return fmt.Sprintf("localhost:%d", c.port())
	}
	return fmt.Sprintf("%s:%d", c.Host, c.port())
}

func (c Config) port() int {
	if c.Port == 0 {
		return 6379
	}
	return c.Port
}

func (c Config) prefix() string {
	if c.KeyPrefix == "" {
		return "vlaude:"
	}
	return c.KeyPrefix
}

// Directory is a TTL-keyed service registry with pub/sub-driven reactive
// reconnection. It is not a database — it is authoritative for liveness
// only.
type Directory struct {
	client  *redis.Client
	cfg     Config
	channel string
	logger  *zap.Logger

	mu        sync.RWMutex
	listening bool

	subMu sync.Mutex
	subs  []chan ServiceEvent
}

// New constructs a Directory bound to the given Redis address.
func New(cfg Config, logger *zap.Logger) *Directory {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.addr(),
		Password: cfg.Password,
	})
	return &Directory{
		client:  client,
		cfg:     cfg,
		channel: cfg.prefix() + "channel:service-registry",
		logger:  logger,
	}
}

// Close releases the underlying Redis connection.
func (d *Directory) Close() error {
	return d.client.Close()
}

func (d *Directory) serviceKey(service, address string) string {
	return fmt.Sprintf("%sservices:%s:%s", d.cfg.prefix(), service, address)
}

func (d *Directory) daemonKey(deviceID string) string {
	return fmt.Sprintf("%sservices:daemon:%s", d.cfg.prefix(), deviceID)
}

// RegisterServer sets the server key with a TTL and publishes an online
// event.
func (d *Directory) RegisterServer(ctx context.Context, addr string, ttl time.Duration) error {
	info := ServerInfo{Address: addr, TTL: uint64(ttl.Seconds()), RegisteredAt: time.Now().UnixMilli()}
	value, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("%w: marshal server info: %v", daemonerr.ErrDirectory, err)
	}

	if err := d.client.Set(ctx, d.serviceKey("server", addr), value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: register server: %v", daemonerr.ErrDirectory, err)
	}

	return d.publish(ctx, ServiceEvent{
		Type:      EventOnline,
		Service:   "server",
		Address:   addr,
		Timestamp: time.Now().UnixMilli(),
	})
}

// UnregisterServer deletes the server key and publishes an offline event.
func (d *Directory) UnregisterServer(ctx context.Context, addr string) error {
	if err := d.client.Del(ctx, d.serviceKey("server", addr)).Err(); err != nil {
		return fmt.Errorf("%w: unregister server: %v", daemonerr.ErrDirectory, err)
	}
	return d.publish(ctx, ServiceEvent{
		Type:      EventOffline,
		Service:   "server",
		Address:   addr,
		Timestamp: time.Now().UnixMilli(),
	})
}

// RegisterDaemon sets the daemon key with a TTL and publishes an online
// event carrying the daemon's current sessions.
func (d *Directory) RegisterDaemon(ctx context.Context, info DaemonInfo, ttl time.Duration) error {
	info.RegisteredAt = time.Now().UnixMilli()
	value, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("%w: marshal daemon info: %v", daemonerr.ErrDirectory, err)
	}

	if err := d.client.Set(ctx, d.daemonKey(info.DeviceID), value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: register daemon: %v", daemonerr.ErrDirectory, err)
	}

	return d.publish(ctx, ServiceEvent{
		Type:      EventOnline,
		Service:   "daemon",
		DeviceID:  info.DeviceID,
		Sessions:  info.Sessions,
		Timestamp: time.Now().UnixMilli(),
	})
}

// UnregisterDaemon deletes the daemon key and publishes an offline event.
func (d *Directory) UnregisterDaemon(ctx context.Context, deviceID string) error {
	if err := d.client.Del(ctx, d.daemonKey(deviceID)).Err(); err != nil {
		return fmt.Errorf("%w: unregister daemon: %v", daemonerr.ErrDirectory, err)
	}
	return d.publish(ctx, ServiceEvent{
		Type:      EventOffline,
		Service:   "daemon",
		DeviceID:  deviceID,
		Timestamp: time.Now().UnixMilli(),
	})
}

// KeepAliveDaemon resets the TTL on an existing daemon key. It fails with
// ErrNotFound if the key has already expired — the caller must re-register.
func (d *Directory) KeepAliveDaemon(ctx context.Context, deviceID string, ttl time.Duration) error {
	key := d.daemonKey(deviceID)

	exists, err := d.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: keep-alive exists check: %v", daemonerr.ErrDirectory, err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: daemon %s", daemonerr.ErrNotFound, deviceID)
	}

	if err := d.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("%w: keep-alive expire: %v", daemonerr.ErrDirectory, err)
	}
	return nil
}

// UpdateDaemonSessions performs a read-modify-write of the daemon's session
// list, preserving remaining fields, resets the TTL, and publishes a
// session_update event.
func (d *Directory) UpdateDaemonSessions(ctx context.Context, deviceID string, sessions []SessionInfo, ttl time.Duration) error {
	key := d.daemonKey(deviceID)

	raw, err := d.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return fmt.Errorf("%w: daemon %s", daemonerr.ErrNotFound, deviceID)
	}
	if err != nil {
		return fmt.Errorf("%w: read daemon: %v", daemonerr.ErrDirectory, err)
	}

	var info DaemonInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return fmt.Errorf("%w: decode daemon info: %v", daemonerr.ErrDirectory, err)
	}
	info.Sessions = sessions

	value, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("%w: marshal daemon info: %v", daemonerr.ErrDirectory, err)
	}

	if err := d.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: update daemon sessions: %v", daemonerr.ErrDirectory, err)
	}

	return d.publish(ctx, ServiceEvent{
		Type:      EventSessionUpdate,
		Service:   "daemon",
		DeviceID:  deviceID,
		Sessions:  sessions,
		Timestamp: time.Now().UnixMilli(),
	})
}

// ListServers scans all registered servers and returns their addresses
// sorted by priority, highest first. Priority is computed fresh on every
// call, never cached.
func (d *Directory) ListServers(ctx context.Context) ([]string, error) {
	pattern := d.serviceKey("server", "*")
	keys, err := d.client.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: list servers: %v", daemonerr.ErrDirectory, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	addresses := make([]string, 0, len(keys))
	for _, key := range keys {
		raw, err := d.client.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		var info ServerInfo
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			continue
		}
		addresses = append(addresses, info.Address)
	}

	SortByPriority(addresses)
	return addresses, nil
}

// ListDaemons scans all registered daemons.
func (d *Directory) ListDaemons(ctx context.Context) ([]DaemonInfo, error) {
	pattern := fmt.Sprintf("%sservices:daemon:*", d.cfg.prefix())
	keys, err := d.client.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: list daemons: %v", daemonerr.ErrDirectory, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	daemons := make([]DaemonInfo, 0, len(keys))
	for _, key := range keys {
		raw, err := d.client.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		var info DaemonInfo
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			continue
		}
		daemons = append(daemons, info)
	}
	return daemons, nil
}

// GetDaemon fetches a single daemon entry. Returns (nil, nil) if absent.
func (d *Directory) GetDaemon(ctx context.Context, deviceID string) (*DaemonInfo, error) {
	raw, err := d.client.Get(ctx, d.daemonKey(deviceID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get daemon: %v", daemonerr.ErrDirectory, err)
	}
	var info DaemonInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, fmt.Errorf("%w: decode daemon info: %v", daemonerr.ErrDirectory, err)
	}
	return &info, nil
}

// Subscribe returns a channel of ServiceEvents. Call StartListening once to
// actually populate it; Subscribe may be called any number of times and
// each caller gets its own channel (capacity 16, matching the teacher's
// tokio broadcast::channel(16) sizing).
func (d *Directory) Subscribe() <-chan ServiceEvent {
	ch := make(chan ServiceEvent, 16)
	d.subMu.Lock()
	d.subs = append(d.subs, ch)
	d.subMu.Unlock()
	return ch
}

func (d *Directory) broadcast(evt ServiceEvent) {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	for _, ch := range d.subs {
		select {
		case ch <- evt:
		default:
			// Slow subscriber — drop rather than block the listener,
			// matching the broadcast channel's eventually-consistent
			// contract (spec.md §4.1 "the daemon must not rely on
			// receiving every event").
		}
	}
}

func (d *Directory) publish(ctx context.Context, evt ServiceEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("%w: marshal event: %v", daemonerr.ErrDirectory, err)
	}
	if err := d.client.Publish(ctx, d.channel, payload).Err(); err != nil {
		return fmt.Errorf("%w: publish event: %v", daemonerr.ErrDirectory, err)
	}
	return nil
}

// StartListening spawns a background goroutine that maintains a
// subscription on the pub/sub channel; on disconnect it reconnects with a
// 5-second backoff and re-subscribes. It returns once the goroutine is
// launched (it does not block on the first subscribe attempt).
func (d *Directory) StartListening(ctx context.Context) {
	d.mu.Lock()
	if d.listening {
		d.mu.Unlock()
		return
	}
	d.listening = true
	d.mu.Unlock()

	go d.listenLoop(ctx)
}

func (d *Directory) listenLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		pubsub := d.client.Subscribe(ctx, d.channel)
		if _, err := pubsub.Receive(ctx); err != nil {
			d.logger.Error("directory pubsub subscribe failed", zap.Error(err))
			pubsub.Close()
			if !sleepOrDone(ctx, 5*time.Second) {
				return
			}
			continue
		}

		d.logger.Info("directory subscribed", zap.String("channel", d.channel))
		ch := pubsub.Channel()

	inner:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					d.logger.Warn("directory pubsub connection closed")
					break inner
				}
				var evt ServiceEvent
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					d.logger.Debug("directory pubsub decode failed", zap.Error(err))
					continue
				}
				d.broadcast(evt)
			}
		}

		pubsub.Close()
		if !sleepOrDone(ctx, 5*time.Second) {
			return
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// SortByPriority sorts addresses highest-priority first, stable on ties:
// localhost/127.0.0.1 > private ranges (192.168.*, 10.*, 172.*) > anything
// else.
func SortByPriority(addresses []string) {
	stableSortByPriority(addresses)
}

// priority scores a host:port address per spec.md §4.1.
func priority(address string) int {
	host := address
	if idx := strings.LastIndex(address, ":"); idx >= 0 {
		host = address[:idx]
	}

	if host == "localhost" || host == "127.0.0.1" {
		return 3
	}
	if strings.HasPrefix(host, "192.168.") || strings.HasPrefix(host, "10.") || strings.HasPrefix(host, "172.") {
		return 2
	}
	return 1
}

// stableSortByPriority implements a stable descending sort without pulling
// in sort.SliceStable's reflection overhead for this small, hot list —
// insertion sort is simple and correct for the handful of servers a host
// ever discovers.
func stableSortByPriority(addresses []string) {
	for i := 1; i < len(addresses); i++ {
		j := i
		for j > 0 && priority(addresses[j-1]) < priority(addresses[j]) {
			addresses[j-1], addresses[j] = addresses[j], addresses[j-1]
			j--
		}
	}
}
