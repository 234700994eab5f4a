package pubsub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func receive(t *testing.T, sub *Subscription) any {
	t.Helper()
	select {
	case msg := <-sub.Channel():
		return msg
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for message")
		return nil
	}
}

func TestBasicPubSub(t *testing.T) {
	ps := NewPubSub()
	defer ps.Shutdown()

	sub, err := ps.Subscribe(context.Background(), TopicVendorConflict)
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if n := ps.Publish(TopicVendorConflict, "report"); n != 1 {
		t.Errorf("Publish delivered to %d subscribers, want 1", n)
	}
	if msg := receive(t, sub); msg != "report" {
		t.Errorf("got %v", msg)
	}
	if sub.Topic() != TopicVendorConflict {
		t.Errorf("Topic() = %s", sub.Topic())
	}
}

func TestMultipleSubscribers(t *testing.T) {
	ps := NewPubSub()
	defer ps.Shutdown()

	subs := make([]*Subscription, 5)
	for i := range subs {
		sub, err := ps.Subscribe(context.Background(), "broadcast")
		if err != nil {
			t.Fatalf("Failed to subscribe %d: %v", i, err)
		}
		subs[i] = sub
	}

	ps.Publish("broadcast", 42)
	for _, sub := range subs {
		if msg := receive(t, sub); msg != 42 {
			t.Errorf("got %v", msg)
		}
	}
	if ps.GetSubscriberCount("broadcast") != 5 {
		t.Errorf("subscriber count = %d", ps.GetSubscriberCount("broadcast"))
	}
}

func TestTopicIsolation(t *testing.T) {
	ps := NewPubSub()
	defer ps.Shutdown()

	sub, _ := ps.Subscribe(context.Background(), "a")
	ps.Publish("b", "wrong topic")

	select {
	case msg := <-sub.Channel():
		t.Errorf("received message from another topic: %v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestContextCancelUnsubscribes(t *testing.T) {
	ps := NewPubSub()
	defer ps.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	sub, _ := ps.Subscribe(ctx, "t")
	cancel()

	select {
	case _, ok := <-sub.Channel():
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	if ps.GetSubscriberCount("t") != 0 {
		t.Error("subscription not removed")
	}
	sub.Unsubscribe()
}

func TestFullBufferDrops(t *testing.T) {
	ps := NewPubSub()
	defer ps.Shutdown()

	sub, _ := ps.Subscribe(context.Background(), "t")
	defer sub.Unsubscribe()

	for i := 0; i < DefaultBufferSize+5; i++ {
		ps.Publish("t", i)
	}
	if ps.Dropped() != 5 {
		t.Errorf("Dropped() = %d, want 5", ps.Dropped())
	}
}

func TestShutdown(t *testing.T) {
	ps := NewPubSub()
	sub, _ := ps.Subscribe(context.Background(), "t")

	ps.Shutdown()
	ps.Shutdown()

	if _, ok := <-sub.Channel(); ok {
		t.Error("channel should be closed after shutdown")
	}
	if _, err := ps.Subscribe(context.Background(), "t"); !errors.Is(err, ErrShutdown) {
		t.Errorf("Subscribe after shutdown: %v", err)
	}
	if n := ps.Publish("t", 1); n != 0 {
		t.Errorf("Publish after shutdown delivered %d", n)
	}
}

func TestConcurrentPublishAndUnsubscribe(t *testing.T) {
	ps := NewPubSub()
	defer ps.Shutdown()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		sub, _ := ps.Subscribe(context.Background(), "t")
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ps.Publish("t", j)
			}
		}()
		go func(s *Subscription) {
			defer wg.Done()
			time.Sleep(time.Millisecond)
			s.Unsubscribe()
		}(sub)
	}
	wg.Wait()
}

func TestConcurrentPublishAndShutdown(t *testing.T) {
	for i := 0; i < 50; i++ {
		ps := NewPubSub()
		ctx, cancel := context.WithCancel(context.Background())
		subs := make([]*Subscription, 0, 5)
		for j := 0; j < 5; j++ {
			sub, err := ps.Subscribe(ctx, "t")
			if err != nil {
				t.Fatalf("Subscribe: %v", err)
			}
			subs = append(subs, sub)
		}

		var wg sync.WaitGroup
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for k := 0; k < 200; k++ {
					ps.Publish("t", k)
				}
			}()
		}
		ps.Shutdown()
		wg.Wait()
		cancel()

		for _, sub := range subs {
			for range sub.Channel() {
			}
		}
		if n := ps.GetSubscriberCount("t"); n != 0 {
			t.Fatalf("iteration %d: %d subscribers left after shutdown", i, n)
		}
	}
}
