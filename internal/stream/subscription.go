package stream

import (
	"sync"
	"sync/atomic"
)

// Channel identifies a market data stream type.
type Channel string

const (
	ChannelCandles Channel = "candles"
	ChannelTrades  Channel = "trades"
	ChannelBook    Channel = "book"
)

// Key identifies one subscription: an instrument on a channel.
type Key struct {
	Symbol  string
	Channel Channel
}

// Message is one inbound frame routed to a subscription. Payload is the raw
// venue payload; decoding beyond routing is the consumer's concern.
type Message struct {
	Key     Key
	Payload []byte
}

// Subscription is a consumer handle for one stream. Messages are delivered on
// a bounded channel; when the consumer falls behind, the oldest queued message
// is dropped to make room and the drop counter incremented. A slow consumer
// never blocks the connection read loop.
type Subscription struct {
	key      Key
	messages chan Message
	dropped  atomic.Uint64

	mu     sync.Mutex
	closed bool
}

func newSubscription(key Key, queueSize int) *Subscription {
	return &Subscription{
		key:      key,
		messages: make(chan Message, queueSize),
	}
}

// Key returns the subscription's key.
func (s *Subscription) Key() Key {
	return s.key
}

// Messages returns the delivery channel. It is closed on Unsubscribe and on
// manager Close.
func (s *Subscription) Messages() <-chan Message {
	return s.messages
}

// Dropped returns how many messages were discarded because the consumer
// lagged behind the queue.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// push delivers a message without blocking. On a full queue the oldest
// message is evicted first.
func (s *Subscription) push(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	for {
		select {
		case s.messages <- msg:
			return
		default:
		}

		select {
		case <-s.messages:
			s.dropped.Add(1)
		default:
		}
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true
	close(s.messages)
}
