package notify

import (
	"container/list"
	"context"
	"log"
	"sync"
	"time"
)

// Worker is a non-blocking, persistent-retry notification queue: many
// goroutines Enqueue, one goroutine drains in FIFO order, retrying a
// message that fails to send instead of dropping it (spec.md §4.4).
type Worker struct {
	title       string
	avatarURL   string
	sinks       []Sink
	retryDelay  time.Duration

	mu      sync.Mutex
	queue   *list.List
	wake    chan struct{}
	nextSeq uint64
}

// NewWorker builds a Worker that fans every message out to all sinks.
func NewWorker(title, avatarURL string, sinks []Sink, retryDelay time.Duration) *Worker {
	return &Worker{
		title:      title,
		avatarURL:  avatarURL,
		sinks:      sinks,
		retryDelay: retryDelay,
		queue:      list.New(),
		wake:       make(chan struct{}, 1),
	}
}

// Enqueue appends a message to the tail of the queue. It never blocks
// and never drops a message.
func (w *Worker) Enqueue(msg Message) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	w.mu.Lock()
	msg.sequence = w.nextSeq
	w.nextSeq++
	w.queue.PushBack(msg)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run drains the queue in FIFO order until ctx is cancelled. A message
// that fails on any sink is put back at the head and retried after
// retryDelay; later messages wait behind it until it is delivered, so
// delivery order always matches enqueue order.
func (w *Worker) Run(ctx context.Context) {
	for {
		msg, ok := w.dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-w.wake:
				continue
			case <-time.After(w.retryDelay):
				continue
			}
		}

		if w.deliver(ctx, msg) {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.retryDelay):
		}
		w.requeueFront(msg)
	}
}

func (w *Worker) dequeue() (Message, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	front := w.queue.Front()
	if front == nil {
		return Message{}, false
	}
	w.queue.Remove(front)
	return front.Value.(Message), true
}

func (w *Worker) requeueFront(msg Message) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.queue.PushFront(msg)
}

// deliver attempts every sink once each, logging failures, and reports
// whether every sink succeeded.
func (w *Worker) deliver(ctx context.Context, msg Message) bool {
	allOK := true
	for _, sink := range w.sinks {
		if err := sink.Send(ctx, w.title, w.avatarURL, msg); err != nil {
			log.Printf("[notify] sink delivery failed, will retry: %v", err)
			allOK = false
		}
	}
	return allOK
}

// Len reports the current queue depth, mainly for status reporting.
func (w *Worker) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.queue.Len()
}
