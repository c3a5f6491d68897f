package notifications

import (
	"context"
	"log"
	"sync"
	"time"
)

// Dispatcher queues events and delivers them on a small worker pool so callers
// never wait on a slow provider. When the queue is full the event is dropped.
type Dispatcher struct {
	sink    Sink
	timeout time.Duration
	queue   chan Event
	wg      sync.WaitGroup
	once    sync.Once

	mu      sync.Mutex
	closed  bool
	dropped int
}

// NewDispatcher starts workers delivering to sink.
func NewDispatcher(sink Sink, workers, queueSize int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 100
	}
	d := &Dispatcher{
		sink:    sink,
		timeout: 10 * time.Second,
		queue:   make(chan Event, queueSize),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for ev := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.sink.Notify(ctx, ev); err != nil {
			log.Printf("[Notify] delivery of %s to %s failed: %v", ev.Kind, ev.UserID, err)
		}
		cancel()
	}
}

// Notify enqueues ev without blocking.
func (d *Dispatcher) Notify(_ context.Context, ev Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.dropped++
		return nil
	}
	select {
	case d.queue <- ev:
	default:
		d.dropped++
		log.Printf("[Notify] queue full, dropping %s for %s", ev.Kind, ev.UserID)
	}
	return nil
}

// Dropped returns how many events were discarded.
func (d *Dispatcher) Dropped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Stop drains queued events and waits for the workers.
func (d *Dispatcher) Stop() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
		d.wg.Wait()
	})
}
