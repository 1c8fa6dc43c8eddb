package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-acbridge/internal/infrastructure/config"
)

// MessageHandler receives one inbound message.
//
// Handlers run on paho's goroutines and should return quickly. A returned
// error is logged; the message is acknowledged either way.
type MessageHandler func(topic string, payload []byte) error

// Logger is what the client needs from a logger. *logging.Logger and
// *slog.Logger both satisfy it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Client is the bridge's broker connection.
//
// It remembers subscriptions and replays them after a reconnect, and
// unless WithoutStatus was given it keeps accontroller/bridge/status
// current (online on connect, offline via LWT or Close). Safe for
// concurrent use.
type Client struct {
	client   pahomqtt.Client
	cfg      config.MQTTConfig
	clientID string
	settings connectSettings

	online atomic.Bool

	subMu         sync.RWMutex
	subscriptions map[string]subscription

	hookMu       sync.RWMutex
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// Connect dials the broker and waits up to 10s for the CONNACK.
//
// Returns:
//   - *Client: connected; paho reconnects on its own from here on
//   - error: ErrConnectionFailed wrapping the cause
func Connect(cfg config.MQTTConfig, opts ...Option) (*Client, error) {
	settings := applyOptions(opts)
	c := &Client{
		cfg:           cfg,
		clientID:      cfg.Broker.ClientID + settings.clientSuffix,
		settings:      settings,
		subscriptions: make(map[string]subscription),
	}

	po := buildClientOptions(cfg, c.clientID)
	if settings.publishStatus {
		configureLWT(po, c.clientID)
	}
	po.SetOnConnectHandler(func(pahomqtt.Client) { c.connected() })
	po.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.lost(err) })

	c.client = pahomqtt.NewClient(po)
	tok := c.client.Connect()
	if !tok.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: %s: no CONNACK within %v", ErrConnectionFailed, cfg.Broker.Host, defaultConnectTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.Broker.Host, err)
	}

	// The connect handler runs asynchronously; don't wait for it.
	c.online.Store(true)
	return c, nil
}

// connected runs after every successful (re)connect.
func (c *Client) connected() {
	c.online.Store(true)

	c.subMu.RLock()
	for _, sub := range c.subscriptions {
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
	c.subMu.RUnlock()

	if c.settings.publishStatus {
		c.announce(StatusOnline, "")
	}

	c.hookMu.RLock()
	fn := c.onConnect
	c.hookMu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (c *Client) lost(err error) {
	c.online.Store(false)

	c.hookMu.RLock()
	fn, log := c.onDisconnect, c.logger
	c.hookMu.RUnlock()
	if log != nil {
		log.Warn("MQTT connection lost", "error", err)
	}
	if fn != nil {
		fn(err)
	}
}

// announce publishes the retained bridge status.
func (c *Client) announce(status, reason string) pahomqtt.Token {
	return c.client.Publish(Topics{}.BridgeStatus(), c.QoS(), true, buildStatusPayload(status, c.clientID, reason))
}

// Close marks the bridge offline (when status is enabled) and disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.settings.publishStatus && c.IsConnected() {
		c.announce(StatusOffline, "graceful_shutdown").WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.online.Store(false)
	return nil
}

// HealthCheck returns ErrNotConnected while the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the broker link is up.
func (c *Client) IsConnected() bool {
	return c.online.Load() && c.client != nil && c.client.IsConnected()
}

// QoS returns mqtt.qos from the configuration.
func (c *Client) QoS() byte {
	return byte(c.cfg.QoS)
}

// SetOnConnect registers fn to run after the first connect and every
// reconnect. The bridge uses it to republish availability.
func (c *Client) SetOnConnect(fn func()) {
	c.hookMu.Lock()
	c.onConnect = fn
	c.hookMu.Unlock()
}

// SetOnDisconnect registers fn to run when the connection drops.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.hookMu.Lock()
	c.onDisconnect = fn
	c.hookMu.Unlock()
}

// SetLogger sets where handler errors and recovered panics are reported.
func (c *Client) SetLogger(l Logger) {
	c.hookMu.Lock()
	c.logger = l
	c.hookMu.Unlock()
}

func (c *Client) currentLogger() Logger {
	c.hookMu.RLock()
	defer c.hookMu.RUnlock()
	return c.logger
}

func (c *Client) wrapHandler(h MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, m pahomqtt.Message) {
		c.dispatch(h, m.Topic(), m.Payload())
	}
}

// dispatch runs one handler, logging its error and recovering a panic so
// a bad payload cannot take down paho's router.
func (c *Client) dispatch(h MessageHandler, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			if log := c.currentLogger(); log != nil {
				log.Error("MQTT handler panic recovered", "topic", topic, "panic", r)
			}
		}
	}()

	if err := h(topic, payload); err != nil {
		if log := c.currentLogger(); log != nil {
			log.Warn("MQTT handler returned error", "topic", topic, "error", err)
		}
	}
}

// waitToken waits for token, ctx or timeout, whichever comes first.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w (%v)", ErrTimeout, timeout)
	}
}
