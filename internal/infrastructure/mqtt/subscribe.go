package mqtt

import (
	"fmt"
)

// Subscribe registers a handler for messages on the specified topic.
//
// Topics can include MQTT wildcards:
//   - + (single-level): "conduit/lab1/stat/+/+" matches any device and field
//   - # (multi-level): "conduit/lab1/#" matches the whole site
//
// The handler is called in a separate goroutine for each received message
// and should not block for extended periods. Subscriptions are restored
// automatically after a reconnect.
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (s *Session) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	if !s.IsConnected() {
		return ErrNotConnected
	}

	// Track before subscribing so a reconnect during the round trip
	// still restores it.
	s.subMu.Lock()
	s.subscriptions[topic] = subscription{
		topic:   topic,
		qos:     qos,
		handler: handler,
	}
	s.subMu.Unlock()

	token := s.client.Subscribe(topic, qos, s.wrapHandler(handler))
	if !token.WaitTimeout(defaultPublishTimeout) {
		s.subMu.Lock()
		delete(s.subscriptions, topic)
		s.subMu.Unlock()
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		s.subMu.Lock()
		delete(s.subscriptions, topic)
		s.subMu.Unlock()
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}

// Unsubscribe removes a subscription and stops receiving messages for a topic.
//
// After unsubscribing, the handler will no longer be called for new
// messages on this topic. Messages in flight may still be delivered.
func (s *Session) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	if !s.IsConnected() {
		return ErrNotConnected
	}

	s.subMu.Lock()
	delete(s.subscriptions, topic)
	s.subMu.Unlock()

	token := s.client.Unsubscribe(topic)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrUnsubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}

	return nil
}

// SubscriptionCount returns the number of active subscriptions.
func (s *Session) SubscriptionCount() int {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	return len(s.subscriptions)
}

// HasSubscription checks if a subscription exists for the given topic.
//
// Note: This checks only the exact topic string, not pattern matching.
func (s *Session) HasSubscription(topic string) bool {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	_, exists := s.subscriptions[topic]
	return exists
}
