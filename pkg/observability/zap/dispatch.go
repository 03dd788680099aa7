package zap

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/theory-cloud/stacktheory/pkg/observability"
)

// dispatcher delivers error entries to a notifier off the logging path.
// A full queue drops entries rather than blocking a deployment.
type dispatcher struct {
	notifier observability.ErrorNotifier
	retries  int
	delay    time.Duration

	mu      sync.Mutex
	queue   chan observability.LogEntry
	pending sync.WaitGroup
	done    chan struct{}

	dropped  atomic.Int64
	failures atomic.Int64
	lastErr  atomic.Value
}

func newDispatcher(notifier observability.ErrorNotifier, buffer, retries int, delay time.Duration) *dispatcher {
	d := &dispatcher{
		notifier: notifier,
		retries:  retries,
		delay:    delay,
		queue:    make(chan observability.LogEntry, buffer),
		done:     make(chan struct{}),
	}
	d.lastErr.Store("")
	go d.run(d.queue)
	return d
}

func (d *dispatcher) enqueue(entry observability.LogEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.queue == nil {
		d.dropped.Add(1)
		return
	}
	d.pending.Add(1)
	select {
	case d.queue <- entry:
	default:
		d.pending.Done()
		d.dropped.Add(1)
	}
}

func (d *dispatcher) run(queue <-chan observability.LogEntry) {
	defer close(d.done)
	for entry := range queue {
		if err := d.deliver(entry); err != nil {
			d.failures.Add(1)
			d.lastErr.Store(err.Error())
		}
		d.pending.Done()
	}
}

func (d *dispatcher) deliver(entry observability.LogEntry) error {
	var err error
	for attempt := range d.retries {
		if err = d.notifier.Notify(context.Background(), entry); err == nil {
			return nil
		}
		if attempt < d.retries-1 {
			time.Sleep(d.delay)
		}
	}
	return err
}

// wait blocks until queued entries are delivered or ctx ends.
func (d *dispatcher) wait(ctx context.Context) {
	drained := make(chan struct{})
	go func() {
		d.pending.Wait()
		close(drained)
	}()
	select {
	case <-ctx.Done():
	case <-drained:
	}
}

func (d *dispatcher) close() {
	d.mu.Lock()
	if d.queue != nil {
		close(d.queue)
		d.queue = nil
	}
	d.mu.Unlock()
	<-d.done
}

func (d *dispatcher) lastError() string {
	v, _ := d.lastErr.Load().(string)
	return v
}
