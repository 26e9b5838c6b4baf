package persistence

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/asaidimu/go-repodb/core/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHubRecoversFromPanickingSubscriber(t *testing.T) {
	h := newSubscriptionHub(zap.NewNop())
	var got []schema.Document

	_, first := h.add("events", func([]schema.Document) { panic("boom") })
	assert.True(t, first)
	_, first = h.add("events", func(records []schema.Document) { got = records })
	assert.False(t, first)

	records := []schema.Document{{"id": "1"}}
	require.NotPanics(t, func() { h.publish("events", 1, records) })
	assert.Equal(t, records, got)

	got[0]["id"] = "changed"
	assert.Equal(t, "1", records[0]["id"])
}

func TestHubDropsStaleVersions(t *testing.T) {
	h := newSubscriptionHub(zap.NewNop())
	var calls int
	h.add("events", func([]schema.Document) { calls++ })

	h.publish("events", 2, nil)
	h.publish("events", 1, nil)
	h.publish("events", 2, nil)
	assert.Equal(t, 1, calls)

	h.publish("events", 3, nil)
	assert.Equal(t, 2, calls)
}

func TestHubInitialDelivery(t *testing.T) {
	h := newSubscriptionHub(zap.NewNop())
	var calls int
	sub, _ := h.add("events", func([]schema.Document) { calls++ })

	h.publish("events", 1, nil)
	h.deliverInitial("events", sub, nil)
	assert.Equal(t, 1, calls)

	late, _ := h.add("events", func([]schema.Document) { calls++ })
	assert.False(t, h.remove("events", sub))
	h.deliverInitial("events", late, nil)
	assert.Equal(t, 2, calls)

	assert.True(t, h.remove("events", late))
	assert.Equal(t, 0, h.count("events"))
	h.deliverInitial("events", late, nil)
	assert.Equal(t, 2, calls)
}

func TestAuditRingWraps(t *testing.T) {
	a := newAuditLog(3)
	assert.Empty(t, a.list("events"))

	for _, key := range []string{"1", "2", "3", "4", "5"} {
		a.append("events", AuditEntry{Action: AuditInsert, Key: key})
	}
	entries := a.list("events")
	require.Len(t, entries, 3)
	assert.Equal(t, "3", entries[0].Key)
	assert.Equal(t, "4", entries[1].Key)
	assert.Equal(t, "5", entries[2].Key)

	a.append("bookings", AuditEntry{Action: AuditDelete, Key: "9"})
	assert.Len(t, a.list("bookings"), 1)
}

func TestPollerLifecycle(t *testing.T) {
	var ticks atomic.Int32
	p := newChangePoller(5*time.Millisecond, func(ctx context.Context, name string) error {
		ticks.Add(1)
		return nil
	}, zap.NewNop())

	assert.True(t, p.start(context.Background(), "events"))
	assert.False(t, p.start(context.Background(), "events"))
	require.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, time.Millisecond)

	assert.True(t, p.stop("events"))
	assert.False(t, p.stop("events"))
	assert.False(t, p.running("events"))

	p.start(context.Background(), "bookings")
	p.stopAll()
	assert.False(t, p.running("bookings"))
	settled := ticks.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, settled, ticks.Load())
}

func TestKeyHelpers(t *testing.T) {
	records := []schema.Document{
		{"id": "1", "uid": "a"},
		{"id": float64(4), "uid": "b"},
		{"id": "x"},
	}
	assert.Equal(t, 0, findIndex(records, "a"))
	assert.Equal(t, 1, findIndex(records, "4"))
	assert.Equal(t, 2, findIndex(records, "x"))
	assert.Equal(t, -1, findIndex(records, "missing"))
	assert.Equal(t, "5", nextSequenceID(records))
	assert.Equal(t, "1", nextSequenceID(nil))
	assert.Equal(t, "b", identity(records[1]))
	assert.Equal(t, "x", identity(records[2]))
}

func TestDispatcherKeepsNewestSnapshot(t *testing.T) {
	d := newDispatcher()
	d.enqueue("events", 2, []schema.Document{{"id": "1"}, {"id": "2"}})
	d.enqueue("events", 1, []schema.Document{{"id": "1"}})
	d.enqueue("news", 1, nil)
	d.enqueue("events", 3, []schema.Document{{"id": "3"}})

	var (
		mu       sync.Mutex
		versions = map[string]uint64{}
		calls    int
	)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		d.run(ctx, func(name string, version uint64, records []schema.Document) {
			mu.Lock()
			defer mu.Unlock()
			versions[name] = version
			calls++
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	}, time.Second, time.Millisecond)
	assert.Equal(t, map[string]uint64{"events": 3, "news": 1}, versions)

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}
