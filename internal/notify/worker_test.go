package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSink struct {
	mu       sync.Mutex
	failNext int
	received []string
}

func (f *fakeSink) Send(ctx context.Context, title, avatarURL string, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return errors.New("simulated delivery failure")
	}
	f.received = append(f.received, msg.Body)
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.received)
}

func TestWorkerDeliversInFIFOOrder(t *testing.T) {
	sink := &fakeSink{}
	w := NewWorker("eneru", "", []Sink{sink}, 10*time.Millisecond)

	w.Enqueue(Message{Body: "first"})
	w.Enqueue(Message{Body: "second"})
	w.Enqueue(Message{Body: "third"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go w.Run(ctx)

	waitForCount(t, sink, 3, time.Second)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	want := []string{"first", "second", "third"}
	for i, w := range want {
		if sink.received[i] != w {
			t.Errorf("position %d: got %q, want %q", i, sink.received[i], w)
		}
	}
}

func TestWorkerRetriesFailedMessageWithoutDroppingIt(t *testing.T) {
	sink := &fakeSink{failNext: 2}
	w := NewWorker("eneru", "", []Sink{sink}, 5*time.Millisecond)

	w.Enqueue(Message{Body: "flaky"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go w.Run(ctx)

	waitForCount(t, sink, 1, time.Second)
	if sink.received[0] != "flaky" {
		t.Errorf("expected the retried message to eventually be delivered, got %v", sink.received)
	}
}

func TestWorkerEnqueueNeverBlocks(t *testing.T) {
	w := NewWorker("eneru", "", nil, time.Second)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			w.Enqueue(Message{Body: "x"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked with no Run goroutine draining the queue")
	}
	if w.Len() != 100 {
		t.Errorf("expected 100 queued messages, got %d", w.Len())
	}
}

func waitForCount(t *testing.T, sink *fakeSink, want int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if sink.count() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d delivered messages, got %d", want, sink.count())
}
