// Package remotetest provides in-memory stand-ins for the remote file store
// used in tests: a remote.Store implementation and an HTTP server that speaks
// the contents API on top of it.
package remotetest

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/asaidimu/go-repodb/core/remote"
	"github.com/asaidimu/go-repodb/core/schema"
)

type memFile struct {
	content  []byte
	revision string
}

// Memory is a concurrency-safe in-memory remote.Store with call counters and
// fault injection.
type Memory struct {
	mu    sync.Mutex
	files map[string]*memFile
	seq   int

	fetches map[string]int
	creates map[string]int
	puts    map[string]int

	conflicts      map[string]int
	alwaysConflict map[string]bool
	putErr         error
	fetchDelay     time.Duration
	putDelays      map[string][]time.Duration

	// OnPut is called with the store locked after every successful Put.
	OnPut func(path string, content []byte)
}

var _ remote.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		files:          make(map[string]*memFile),
		fetches:        make(map[string]int),
		creates:        make(map[string]int),
		puts:           make(map[string]int),
		conflicts:      make(map[string]int),
		alwaysConflict: make(map[string]bool),
		putDelays:      make(map[string][]time.Duration),
	}
}

func etagOf(content []byte) string {
	return fmt.Sprintf(`"%x"`, sha256.Sum256(content))
}

func (m *Memory) nextRevision() string {
	m.seq++
	return fmt.Sprintf("rev-%d", m.seq)
}

func (m *Memory) snapshot(path string, f *memFile) *remote.File {
	return &remote.File{
		Path:     path,
		Content:  append([]byte(nil), f.content...),
		Revision: f.revision,
		ETag:     etagOf(f.content),
	}
}

// Fetch implements remote.Store.
func (m *Memory) Fetch(ctx context.Context, path string, ifNoneMatch string) (*remote.File, error) {
	m.mu.Lock()
	m.fetches[path]++
	delay := m.fetchDelay
	m.mu.Unlock()

	if err := sleep(ctx, delay); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[path]
	if !ok {
		return nil, remote.ErrNotFound
	}
	if ifNoneMatch != "" && ifNoneMatch == etagOf(f.content) {
		return nil, remote.ErrNotModified
	}
	return m.snapshot(path, f), nil
}

// Create implements remote.Store.
func (m *Memory) Create(ctx context.Context, path string, content []byte) (*remote.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates[path]++
	if _, ok := m.files[path]; ok {
		return nil, remote.ErrAlreadyExists
	}
	f := &memFile{content: append([]byte(nil), content...), revision: m.nextRevision()}
	m.files[path] = f
	return m.snapshot(path, f), nil
}

// Put implements remote.Store.
func (m *Memory) Put(ctx context.Context, path string, content []byte, expectedRevision string) (*remote.File, error) {
	m.mu.Lock()
	m.puts[path]++
	var delay time.Duration
	if queued := m.putDelays[path]; len(queued) > 0 {
		delay = queued[0]
		m.putDelays[path] = queued[1:]
	}
	m.mu.Unlock()

	if err := sleep(ctx, delay); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.putErr != nil {
		return nil, m.putErr
	}
	f, ok := m.files[path]
	if !ok {
		return nil, remote.ErrNotFound
	}
	if m.alwaysConflict[path] || m.conflicts[path] > 0 {
		if m.conflicts[path] > 0 {
			m.conflicts[path]--
		}
		return nil, &remote.ConflictError{Path: path, ExpectedRevision: expectedRevision, CurrentRevision: f.revision}
	}
	if f.revision != expectedRevision {
		return nil, &remote.ConflictError{Path: path, ExpectedRevision: expectedRevision, CurrentRevision: f.revision}
	}

	f.content = append([]byte(nil), content...)
	f.revision = m.nextRevision()
	out := m.snapshot(path, f)
	if m.OnPut != nil {
		m.OnPut(path, out.Content)
	}
	return out, nil
}

// SetContent writes a file directly, bypassing revision checks, the way a
// second writer would.
func (m *Memory) SetContent(path string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = &memFile{content: append([]byte(nil), content...), revision: m.nextRevision()}
}

// SetRecords encodes records and writes them with SetContent.
func (m *Memory) SetRecords(path string, records []schema.Document) error {
	data, err := remote.EncodeRecords(records)
	if err != nil {
		return err
	}
	m.SetContent(path, data)
	return nil
}

// Records decodes the file at path. Missing files yield nil.
func (m *Memory) Records(path string) []schema.Document {
	m.mu.Lock()
	f, ok := m.files[path]
	var content []byte
	if ok {
		content = append([]byte(nil), f.content...)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	records, err := remote.DecodeRecords(content)
	if err != nil {
		return nil
	}
	return records
}

// Exists reports whether a file is stored at path.
func (m *Memory) Exists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok
}

// Paths lists every stored path in sorted order.
func (m *Memory) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (m *Memory) Fetches(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches[path]
}

func (m *Memory) Creates(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates[path]
}

func (m *Memory) Puts(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts[path]
}

// ForceConflicts makes the next n Puts to path fail with a conflict.
func (m *Memory) ForceConflicts(path string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflicts[path] = n
}

// AlwaysConflict makes every Put to path fail with a conflict.
func (m *Memory) AlwaysConflict(path string, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alwaysConflict[path] = enabled
}

// FailPuts makes every Put return err until called again with nil.
func (m *Memory) FailPuts(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putErr = err
}

// SetFetchDelay delays every Fetch by d.
func (m *Memory) SetFetchDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchDelay = d
}

// QueuePutDelays delays the next Puts to path, one delay per call.
func (m *Memory) QueuePutDelays(path string, delays ...time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putDelays[path] = append(m.putDelays[path], delays...)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
