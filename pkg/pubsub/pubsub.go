// Package pubsub fans conflict reports out to in-process subscribers such as
// the server-sent events stream.
package pubsub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// TopicVendorConflict carries model.ConflictReport values.
const TopicVendorConflict = "vendor.conflict"

// DefaultBufferSize is the per-subscription channel capacity.
const DefaultBufferSize = 100

// ErrShutdown is returned when subscribing to a stopped PubSub.
var ErrShutdown = errors.New("pubsub is shut down")

// PubSub provides publish/subscribe functionality
type PubSub struct {
	subscribers map[string]map[*Subscription]struct{}
	mu          sync.RWMutex
	shutdown    chan struct{}
	stopOnce    sync.Once
	stopped     atomic.Bool
	dropped     atomic.Uint64
	bufferSize  int
}

// Subscription represents a subscription to a topic
type Subscription struct {
	topic     string
	channel   chan any
	ps        *PubSub
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewPubSub creates a new PubSub instance
func NewPubSub() *PubSub {
	return &PubSub{
		subscribers: make(map[string]map[*Subscription]struct{}),
		shutdown:    make(chan struct{}),
		bufferSize:  DefaultBufferSize,
	}
}

// Subscribe creates a subscription that ends when ctx is cancelled,
// Unsubscribe is called or the PubSub shuts down.
func (ps *PubSub) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	if ps.stopped.Load() {
		return nil, ErrShutdown
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		topic:   topic,
		channel: make(chan any, ps.bufferSize),
		ps:      ps,
		cancel:  cancel,
	}

	ps.mu.Lock()
	if ps.stopped.Load() {
		ps.mu.Unlock()
		cancel()
		return nil, ErrShutdown
	}
	if ps.subscribers[topic] == nil {
		ps.subscribers[topic] = make(map[*Subscription]struct{})
	}
	ps.subscribers[topic][sub] = struct{}{}
	ps.mu.Unlock()

	go func() {
		select {
		case <-subCtx.Done():
			sub.Unsubscribe()
		case <-ps.shutdown:
			// Shutdown closes the channel under ps.mu.
			cancel()
		}
	}()

	return sub, nil
}

// Publish delivers message to every subscriber of topic without blocking.
// Subscribers whose buffer is full miss the message; Dropped counts them.
// It returns the number of subscribers that received it.
func (ps *PubSub) Publish(topic string, message any) int {
	if ps.stopped.Load() {
		return 0
	}

	ps.mu.RLock()
	defer ps.mu.RUnlock()

	delivered := 0
	for sub := range ps.subscribers[topic] {
		select {
		case sub.channel <- message:
			delivered++
		default:
			ps.dropped.Add(1)
		}
	}
	return delivered
}

// Dropped returns how many deliveries were skipped because a subscriber was full
func (ps *PubSub) Dropped() uint64 {
	return ps.dropped.Load()
}

// GetSubscriberCount returns the number of subscribers for a topic
func (ps *PubSub) GetSubscriberCount(topic string) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.subscribers[topic])
}

// Shutdown closes all subscriptions. Later publishes are ignored.
func (ps *PubSub) Shutdown() {
	ps.stopOnce.Do(func() {
		ps.stopped.Store(true)
		close(ps.shutdown)

		ps.mu.Lock()
		defer ps.mu.Unlock()
		for topic, subs := range ps.subscribers {
			for sub := range subs {
				sub.close()
			}
			delete(ps.subscribers, topic)
		}
	})
}

// Channel returns the subscription's message channel. It is closed when the
// subscription ends.
func (s *Subscription) Channel() <-chan any {
	return s.channel
}

// Topic returns the subscribed topic
func (s *Subscription) Topic() string {
	return s.topic
}

// Unsubscribe removes the subscription. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.cancel()

	s.ps.mu.Lock()
	if subs := s.ps.subscribers[s.topic]; subs != nil {
		delete(subs, s)
		if len(subs) == 0 {
			delete(s.ps.subscribers, s.topic)
		}
	}
	s.ps.mu.Unlock()

	s.close()
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() {
		close(s.channel)
	})
}
