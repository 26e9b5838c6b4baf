package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/asaidimu/go-repodb/core/remote"
	"github.com/asaidimu/go-repodb/core/schema"
)

// Mutation derives a collection's next records from its current ones. It is
// applied to fresh remote state on every write attempt, and to every remote
// snapshot placed in the cache while the write is pending. It must not
// modify its input and may return ErrNoChange to skip the write.
type Mutation func(records []schema.Document) ([]schema.Document, error)

type writeResult struct {
	records []schema.Document
	err     error
}

type writeRequest struct {
	ctx        context.Context
	collection string
	mutation   Mutation
	retries    int
	done       chan writeResult
}

// writeQueue is a single FIFO lane with one entry in flight. The head entry
// stays queued until it is settled, so pending mutations remain visible to
// cache refreshes while they are being written. mu also serializes every
// cache write against the pending list.
type writeQueue struct {
	mu         sync.Mutex
	entries    []*writeRequest
	closed     bool
	wake       chan struct{}
	quit       chan struct{}
	stopped    chan struct{}
	maxRetries int
	retryDelay time.Duration
}

func newWriteQueue(maxRetries int, retryDelay time.Duration) *writeQueue {
	return &writeQueue{
		wake:       make(chan struct{}, 1),
		quit:       make(chan struct{}),
		stopped:    make(chan struct{}),
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

// pushLocked appends req. The caller holds mu.
func (q *writeQueue) pushLocked(req *writeRequest) {
	q.entries = append(q.entries, req)
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *writeQueue) head() *writeRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return nil
	}
	return q.entries[0]
}

func (q *writeQueue) pop(req *writeRequest) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) > 0 && q.entries[0] == req {
		q.entries = q.entries[1:]
	}
}

// pendingLocked returns the queued mutations for name in FIFO order. The
// caller holds mu.
func (q *writeQueue) pendingLocked(name string) []Mutation {
	var out []Mutation
	for _, req := range q.entries {
		if req.collection == name {
			out = append(out, req.mutation)
		}
	}
	return out
}

func (q *writeQueue) closing() bool {
	select {
	case <-q.quit:
		return true
	default:
		return false
	}
}

// run processes entries until the queue is closed. attempt performs one
// write; settle completes an entry after it has been popped.
func (q *writeQueue) run(
	attempt func(req *writeRequest) ([]schema.Document, error),
	onConflict func(req *writeRequest, err error),
	settle func(req *writeRequest, records []schema.Document, err error),
) {
	defer close(q.stopped)
	for {
		req := q.head()
		if req == nil {
			select {
			case <-q.wake:
				continue
			case <-q.quit:
				return
			}
		}

		if err := req.ctx.Err(); err != nil {
			q.pop(req)
			settle(req, nil, err)
			continue
		}

		records, err := attempt(req)
		if err != nil && q.closing() {
			return
		}
		if remote.IsConflict(err) && req.retries < q.maxRetries {
			req.retries++
			onConflict(req, err)
			timer := time.NewTimer(q.retryDelay)
			select {
			case <-timer.C:
			case <-q.quit:
				timer.Stop()
				return
			}
			continue
		}

		q.pop(req)
		settle(req, records, err)
	}
}

// close stops the worker, waits for it to exit and returns the entries it
// did not settle.
func (q *writeQueue) close() []*writeRequest {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.quit)
	q.mu.Unlock()

	<-q.stopped

	q.mu.Lock()
	defer q.mu.Unlock()
	left := q.entries
	q.entries = nil
	return left
}
