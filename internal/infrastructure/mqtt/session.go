package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/conduit-core/internal/infrastructure/config"
)

// Session is one broker connection shared by every MQTT-backed signal.
//
// It provides connection management, message publishing, subscription
// handling, and automatic reconnection with exponential backoff.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are automatically restored on reconnection.
type Session struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig
	topics  Topics

	// subscriptions tracks active subscriptions for re-subscription on reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	// connected tracks current connection state.
	connected bool
	connMu    sync.RWMutex

	// Callbacks for connection events (optional, set via SetOnConnect/SetOnDisconnect).
	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	// logger for error/panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked in separate goroutines by the paho library.
// They should not block for extended periods.
//
// Parameters:
//   - topic: The topic the message was received on (wildcards expanded)
//   - payload: The raw message payload (typically JSON)
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// NewSession builds an unconnected session from config, scoping topics
// to the given site ID. Call Connect to establish the broker connection.
func NewSession(cfg config.MQTTConfig, site string) *Session {
	topics := Topics{Site: site}
	opts := buildClientOptions(cfg)
	configureLWT(opts, topics, cfg.Broker.ClientID)

	s := &Session{
		cfg:           cfg,
		options:       opts,
		topics:        topics,
		subscriptions: make(map[string]subscription),
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		s.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		s.handleDisconnect(err)
	})

	s.client = pahomqtt.NewClient(opts)
	return s
}

// Topics returns the topic builders scoped to this session's site.
func (s *Session) Topics() Topics {
	return s.topics
}

// Connect establishes the broker connection, honouring ctx's deadline.
//
// It performs the following setup:
//  1. Attempts the initial connection
//  2. Waits for the broker's CONNACK or ctx
//  3. Publishes online status to the system status topic
//
// Connect is idempotent: calling it on an already connected session
// returns nil immediately.
//
// Returns:
//   - error: ErrConnectionFailed wrapping the broker error, or ctx.Err()
func (s *Session) Connect(ctx context.Context) error {
	if s.IsConnected() {
		return nil
	}

	token := s.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnectHandler runs asynchronously and may not have executed
	// yet; set the state here so IsConnected is true on return. The
	// handler still restores subscriptions and publishes status.
	s.connMu.Lock()
	s.connected = true
	s.connMu.Unlock()

	return nil
}

// handleConnect is called when the connection is established.
func (s *Session) handleConnect() {
	s.connMu.Lock()
	s.connected = true
	s.connMu.Unlock()

	s.restoreSubscriptions()
	s.publishOnlineStatus()

	s.callbackMu.RLock()
	callback := s.onConnect
	s.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleDisconnect is called when the connection is lost.
func (s *Session) handleDisconnect(err error) {
	s.connMu.Lock()
	s.connected = false
	s.connMu.Unlock()

	s.callbackMu.RLock()
	callback := s.onDisconnect
	s.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// restoreSubscriptions re-subscribes to all tracked topics after reconnect.
func (s *Session) restoreSubscriptions() {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for _, sub := range s.subscriptions {
		// Re-subscribe (ignore errors during reconnection)
		s.client.Subscribe(sub.topic, sub.qos, s.wrapHandler(sub.handler))
	}
}

// publishOnlineStatus publishes the session's online status, retained.
func (s *Session) publishOnlineStatus() {
	payload := buildOnlinePayload(s.cfg.Broker.ClientID)
	s.client.Publish(s.topics.SystemStatus(), byte(s.cfg.QoS), true, payload)
}

// Close gracefully disconnects from the MQTT broker.
//
// It publishes a graceful offline status (distinct from the LWT crash
// status), waits briefly for pending operations, then disconnects.
func (s *Session) Close() error {
	if s.client == nil {
		return nil
	}

	if s.IsConnected() {
		payload := buildOfflinePayload(s.cfg.Broker.ClientID)
		token := s.client.Publish(s.topics.SystemStatus(), byte(s.cfg.QoS), true, payload)
		token.WaitTimeout(defaultPublishTimeout)
	}

	s.client.Disconnect(defaultDisconnectQuiesce)

	s.connMu.Lock()
	s.connected = false
	s.connMu.Unlock()

	return nil
}

// HealthCheck verifies the broker connection is alive.
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Session) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !s.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the current connection state.
func (s *Session) IsConnected() bool {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.connected && s.client.IsConnected()
}

// SetOnConnect sets a callback invoked on initial connect and every reconnect.
func (s *Session) SetOnConnect(callback func()) {
	s.callbackMu.Lock()
	s.onConnect = callback
	s.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback invoked when the connection is lost.
func (s *Session) SetOnDisconnect(callback func(err error)) {
	s.callbackMu.Lock()
	s.onDisconnect = callback
	s.callbackMu.Unlock()
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in handlers are silently ignored.
func (s *Session) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

func (s *Session) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (s *Session) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := s.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := s.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
