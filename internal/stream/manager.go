// Package stream maintains a persistent market data connection and fans
// inbound frames out to per-key subscriptions. The connection read loop is
// isolated from consumers: bounded queues absorb bursts, slow consumers shed
// their own oldest messages, and connection loss triggers reconnection with
// automatic resubscription.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/quantarc/quantarc/internal/logger"
	"github.com/quantarc/quantarc/pkg/errors"
	"go.uber.org/zap"
)

// Config controls connection limits and reconnect pacing.
type Config struct {
	// URL is the websocket endpoint.
	URL string `yaml:"url" json:"url" validate:"required"`
	// MaxSubscriptions caps concurrent subscriptions. Requests beyond the cap
	// are rejected; existing subscriptions are never evicted.
	MaxSubscriptions int `yaml:"max_subscriptions" json:"max_subscriptions" validate:"required,gt=0"`
	// QueueSize bounds each subscription's delivery queue.
	QueueSize int `yaml:"queue_size" json:"queue_size" validate:"required,gt=0"`
	// ReconnectBaseDelay is the initial reconnect backoff delay.
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay" json:"reconnect_base_delay" validate:"required,gt=0"`
	// ReconnectMaxDelay caps the reconnect backoff delay.
	ReconnectMaxDelay time.Duration `yaml:"reconnect_max_delay" json:"reconnect_max_delay" validate:"required,gt=0"`
}

// Validate checks the configuration, failing fast at construction time.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid stream config", err)
	}

	if c.ReconnectMaxDelay < c.ReconnectBaseDelay {
		return errors.New(errors.ErrCodeInvalidConfiguration, "reconnect max delay must not be less than base delay")
	}

	return nil
}

// Manager owns one websocket connection and the subscriptions multiplexed
// over it.
type Manager struct {
	config Config
	codec  Codec
	dialer *websocket.Dialer
	logger *logger.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	subs   map[Key]*Subscription
	closed bool

	writeMu sync.Mutex
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewManager creates a subscription manager. Call Connect before subscribing.
func NewManager(config Config, codec Codec, log *logger.Logger) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if codec == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "codec is required")
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Manager{
		config: config,
		codec:  codec,
		dialer: websocket.DefaultDialer,
		logger: log,
		subs:   make(map[Key]*Subscription),
		done:   make(chan struct{}),
	}, nil
}

// Connect dials the endpoint and starts the read loop.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.New(errors.ErrCodeUnavailable, "stream manager is closed")
	}

	if m.conn != nil {
		return errors.New(errors.ErrCodeInvalidParameter, "already connected")
	}

	conn, _, err := m.dialer.DialContext(ctx, m.config.URL, nil)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeTransientFailure, err, "failed to dial %s", m.config.URL)
	}

	m.conn = conn

	m.wg.Add(1)
	go m.readLoop()

	return nil
}

// Subscribe registers a subscription for the key and sends the subscribe
// frame. Fails with ErrCodeCapacityExceeded at the subscription cap and with
// ErrCodeInvalidParameter for a duplicate key.
func (m *Manager) Subscribe(key Key) (*Subscription, error) {
	m.mu.Lock()

	if m.closed || m.conn == nil {
		m.mu.Unlock()

		return nil, errors.New(errors.ErrCodeUnavailable, "stream manager is not connected")
	}

	if _, exists := m.subs[key]; exists {
		m.mu.Unlock()

		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "already subscribed to %s/%s", key.Symbol, key.Channel)
	}

	if len(m.subs) >= m.config.MaxSubscriptions {
		m.mu.Unlock()

		return nil, errors.Newf(errors.ErrCodeCapacityExceeded,
			"subscription limit of %d reached", m.config.MaxSubscriptions)
	}

	sub := newSubscription(key, m.config.QueueSize)
	m.subs[key] = sub
	conn := m.conn
	m.mu.Unlock()

	// A write failure here is not fatal: the read loop will notice the dead
	// connection and resubscription happens on reconnect.
	if err := m.sendControl(conn, m.codec.SubscribeFrame, []Key{key}); err != nil {
		m.logger.Warn("subscribe frame not sent, deferring to reconnect",
			zap.String("symbol", key.Symbol),
			zap.String("channel", string(key.Channel)),
			zap.Error(err))
	}

	return sub, nil
}

// Unsubscribe removes the subscription for the key and closes its channel.
func (m *Manager) Unsubscribe(key Key) error {
	m.mu.Lock()

	sub, exists := m.subs[key]
	if !exists {
		m.mu.Unlock()

		return errors.Newf(errors.ErrCodeNotFound, "no subscription for %s/%s", key.Symbol, key.Channel)
	}

	delete(m.subs, key)
	conn := m.conn
	m.mu.Unlock()

	if conn != nil {
		if err := m.sendControl(conn, m.codec.UnsubscribeFrame, []Key{key}); err != nil {
			m.logger.Warn("unsubscribe frame not sent",
				zap.String("symbol", key.Symbol),
				zap.String("channel", string(key.Channel)),
				zap.Error(err))
		}
	}

	sub.close()

	return nil
}

// Close tears down the connection and all subscriptions. Idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()

		return nil
	}

	m.closed = true
	close(m.done)
	conn := m.conn
	subs := make([]*Subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		subs = append(subs, sub)
	}
	m.subs = make(map[Key]*Subscription)
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	m.wg.Wait()

	for _, sub := range subs {
		sub.close()
	}

	return nil
}

func (m *Manager) readLoop() {
	defer m.wg.Done()

	for {
		m.mu.Lock()
		conn := m.conn
		closed := m.closed
		m.mu.Unlock()

		if closed {
			return
		}

		_, frame, err := conn.ReadMessage()
		if err != nil {
			if m.isClosed() {
				return
			}

			m.logger.Warn("stream read failed, reconnecting", zap.Error(err))

			if !m.reconnect() {
				return
			}

			continue
		}

		key, payload, err := m.codec.Decode(frame)
		if err != nil {
			// Unknown frame shapes are dropped, never fatal.
			m.logger.Warn("dropping undecodable frame",
				zap.Error(err),
				zap.ByteString("payload", frame))

			continue
		}

		m.mu.Lock()
		sub, ok := m.subs[key]
		m.mu.Unlock()

		if ok {
			sub.push(Message{Key: key, Payload: payload})
		}
	}
}

// reconnect redials with exponential backoff and re-issues every active
// subscription. Returns false when the manager was closed while retrying.
func (m *Manager) reconnect() bool {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = m.config.ReconnectBaseDelay
	policy.MaxInterval = m.config.ReconnectMaxDelay
	policy.MaxElapsedTime = 0

	for {
		select {
		case <-m.done:
			return false
		case <-time.After(policy.NextBackOff()):
		}

		conn, _, err := m.dialer.Dial(m.config.URL, nil)
		if err != nil {
			m.logger.Warn("reconnect attempt failed", zap.Error(err))

			continue
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			_ = conn.Close()

			return false
		}

		old := m.conn
		m.conn = conn
		keys := make([]Key, 0, len(m.subs))
		for key := range m.subs {
			keys = append(keys, key)
		}
		m.mu.Unlock()

		if old != nil {
			_ = old.Close()
		}

		if len(keys) > 0 {
			if err := m.sendControl(conn, m.codec.SubscribeFrame, keys); err != nil {
				m.logger.Warn("resubscribe failed, retrying connection", zap.Error(err))
				_ = conn.Close()

				continue
			}
		}

		m.logger.Info("stream reconnected", zap.Int("subscriptions", len(keys)))

		return true
	}
}

func (m *Manager) sendControl(conn *websocket.Conn, encode func([]Key) ([]byte, error), keys []Key) error {
	frame, err := encode(keys)
	if err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return errors.Wrap(errors.ErrCodeTransientFailure, "failed to write control frame", err)
	}

	return nil
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closed
}
