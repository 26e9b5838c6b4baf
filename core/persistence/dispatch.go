package persistence

import (
	"context"
	"sync"

	"github.com/asaidimu/go-repodb/core/schema"
)

// notifyFunc publishes a cached snapshot of a collection.
type notifyFunc func(name string, version uint64, records []schema.Document)

type notification struct {
	name    string
	version uint64
	records []schema.Document
}

// dispatcher publishes snapshots handed to it by the write worker on its own
// goroutine. Subscriber callbacks therefore never run on the worker and may
// write to the store. Only the newest pending snapshot of a collection is
// kept.
type dispatcher struct {
	mu      sync.Mutex
	pending []notification
	wake    chan struct{}
}

func newDispatcher() *dispatcher {
	return &dispatcher{wake: make(chan struct{}, 1)}
}

// enqueue schedules a snapshot for publication without blocking.
func (d *dispatcher) enqueue(name string, version uint64, records []schema.Document) {
	d.mu.Lock()
	replaced := false
	for i := range d.pending {
		if d.pending[i].name == name {
			if version > d.pending[i].version {
				d.pending[i] = notification{name: name, version: version, records: records}
			}
			replaced = true
			break
		}
	}
	if !replaced {
		d.pending = append(d.pending, notification{name: name, version: version, records: records})
	}
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) next() (notification, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) == 0 {
		return notification{}, false
	}
	n := d.pending[0]
	d.pending = d.pending[1:]
	return n, true
}

// run publishes pending snapshots through deliver until ctx is done.
// Snapshots still pending at that point are dropped.
func (d *dispatcher) run(ctx context.Context, deliver notifyFunc) {
	for {
		select {
		case <-d.wake:
		case <-ctx.Done():
			return
		}
		for ctx.Err() == nil {
			n, ok := d.next()
			if !ok {
				break
			}
			deliver(n.name, n.version, n.records)
		}
	}
}
