package persistence

import (
	"sync"
	"time"

	"github.com/asaidimu/go-repodb/core/schema"
)

// AuditAction is the kind of mutation an AuditEntry records.
type AuditAction string

const (
	AuditInsert AuditAction = "insert"
	AuditUpdate AuditAction = "update"
	AuditDelete AuditAction = "delete"
)

// AuditEntry records one successful mutation and the collection as written.
type AuditEntry struct {
	Action    AuditAction       `json:"action"`
	Key       string            `json:"key"`
	Payload   []schema.Document `json:"payload"`
	Timestamp time.Time         `json:"timestamp"`
}

// auditRing keeps the most recent entries of one collection.
type auditRing struct {
	entries []AuditEntry
	next    int
	full    bool
}

// auditLog is a process-local debugging aid. It is never persisted.
type auditLog struct {
	mu       sync.Mutex
	rings    map[string]*auditRing
	capacity int
}

func newAuditLog(capacity int) *auditLog {
	return &auditLog{rings: make(map[string]*auditRing), capacity: capacity}
}

func (a *auditLog) append(name string, entry AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.rings[name]
	if !ok {
		r = &auditRing{entries: make([]AuditEntry, a.capacity)}
		a.rings[name] = r
	}
	r.entries[r.next] = entry
	r.next = (r.next + 1) % a.capacity
	if r.next == 0 {
		r.full = true
	}
}

// list returns the entries of name from oldest to newest.
func (a *auditLog) list(name string) []AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.rings[name]
	if !ok {
		return []AuditEntry{}
	}
	if !r.full {
		return append([]AuditEntry(nil), r.entries[:r.next]...)
	}
	out := make([]AuditEntry, 0, a.capacity)
	out = append(out, r.entries[r.next:]...)
	return append(out, r.entries[:r.next]...)
}
