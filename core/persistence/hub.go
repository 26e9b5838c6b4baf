package persistence

import (
	"sync"

	"github.com/asaidimu/go-repodb/core/schema"
	"go.uber.org/zap"
)

type subscriber struct {
	id       uint64
	callback func([]schema.Document)
	received bool
	removed  bool
}

// subscriptionHub fans cache changes out to per-collection callbacks.
// Callbacks run synchronously on the goroutine that changed the cache.
type subscriptionHub struct {
	mu        sync.Mutex
	subs      map[string][]*subscriber
	delivered map[string]uint64
	next      uint64
	logger    *zap.Logger
}

func newSubscriptionHub(logger *zap.Logger) *subscriptionHub {
	return &subscriptionHub{
		subs:      make(map[string][]*subscriber),
		delivered: make(map[string]uint64),
		logger:    logger,
	}
}

// add registers callback and reports whether it is the collection's first
// subscriber.
func (h *subscriptionHub) add(name string, callback func([]schema.Document)) (*subscriber, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	sub := &subscriber{id: h.next, callback: callback}
	h.subs[name] = append(h.subs[name], sub)
	return sub, len(h.subs[name]) == 1
}

// remove drops sub and reports whether the collection has no subscribers
// left.
func (h *subscriptionHub) remove(name string, sub *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.subs[name]
	sub.removed = true
	for i, s := range list {
		if s == sub {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(h.subs, name)
		delete(h.delivered, name)
		return true
	}
	h.subs[name] = list
	return false
}

func (h *subscriptionHub) count(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[name])
}

// publish delivers records to every subscriber of name. Versions older than
// the last one delivered are dropped.
func (h *subscriptionHub) publish(name string, version uint64, records []schema.Document) {
	h.mu.Lock()
	if version <= h.delivered[name] {
		h.mu.Unlock()
		return
	}
	h.delivered[name] = version
	targets := append([]*subscriber(nil), h.subs[name]...)
	for _, sub := range targets {
		sub.received = true
	}
	h.mu.Unlock()

	for _, sub := range targets {
		h.deliver(name, sub, records)
	}
}

// deliverInitial gives sub its first snapshot unless a publish already
// reached it or it has unsubscribed.
func (h *subscriptionHub) deliverInitial(name string, sub *subscriber, records []schema.Document) {
	h.mu.Lock()
	if sub.received || sub.removed {
		h.mu.Unlock()
		return
	}
	sub.received = true
	h.mu.Unlock()
	h.deliver(name, sub, records)
}

// deliver runs one callback with its own copy of records. A panicking
// callback is logged and does not affect the others.
func (h *subscriptionHub) deliver(name string, sub *subscriber, records []schema.Document) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Subscriber panicked",
				zap.String("collection", name),
				zap.Uint64("subscriber", sub.id),
				zap.Any("panic", r),
			)
		}
	}()
	sub.callback(cloneRecords(records))
}
