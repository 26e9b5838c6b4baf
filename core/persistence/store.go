// Package persistence turns a remote.Store into a small document database:
// collections are cached in memory, polled for remote changes while they have
// subscribers, and written through a single FIFO queue that retries
// optimistic-concurrency conflicts against fresh remote state.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/asaidimu/go-events"
	"github.com/asaidimu/go-repodb/core/query"
	"github.com/asaidimu/go-repodb/core/remote"
	"github.com/asaidimu/go-repodb/core/schema"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Store is the collection-level API over a remote file store. It is safe
// for concurrent use. Close releases its goroutines.
type Store struct {
	remote   remote.Store
	opts     Options
	logger   *zap.Logger
	registry *schema.Registry
	bus      *events.TypedEventBus[PersistenceEvent]

	cache   *collectionCache
	hub     *subscriptionHub
	poller  *changePoller
	queue   *writeQueue
	notices *dispatcher
	audit   *auditLog
	flights singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc

	subMu         sync.RWMutex
	subscriptions map[string]*SubscriptionInfo

	closeOnce sync.Once
}

var _ query.Source = (*Store)(nil)

// NewStore builds a Store over rs and starts its write worker.
func NewStore(rs remote.Store, opts Options) (*Store, error) {
	if rs == nil {
		return nil, fmt.Errorf("remote store is required")
	}
	opts = opts.withDefaults()

	bus, err := events.NewTypedEventBus[PersistenceEvent](events.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("could not initialize event bus: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		remote:        rs,
		opts:          opts,
		logger:        opts.Logger,
		registry:      opts.Registry,
		bus:           bus,
		cache:         newCollectionCache(),
		hub:           newSubscriptionHub(opts.Logger),
		queue:         newWriteQueue(opts.MaxRetries, opts.RetryDelay),
		notices:       newDispatcher(),
		audit:         newAuditLog(auditCapacity),
		ctx:           ctx,
		cancel:        cancel,
		subscriptions: make(map[string]*SubscriptionInfo),
	}
	s.poller = newChangePoller(opts.PollInterval, func(ctx context.Context, name string) error {
		_, err := s.refresh(ctx, name, false)
		return err
	}, opts.Logger)

	go s.notices.run(ctx, s.notify)
	go s.queue.run(s.attemptWrite, s.onConflict, s.settleWrite)
	return s, nil
}

// Registry returns the schema registry records are validated against.
func (s *Store) Registry() *schema.Registry {
	return s.registry
}

// Close stops every poller and the write worker. Writes still queued fail
// with ErrStoreClosed.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.poller.stopAll()
		for _, req := range s.queue.close() {
			req.done <- writeResult{err: ErrStoreClosed}
		}

		s.subMu.Lock()
		for id, sub := range s.subscriptions {
			sub.Unsubscribe()
			delete(s.subscriptions, id)
		}
		s.subMu.Unlock()
		s.logger.Debug("Store closed")
	})
	return nil
}

// normalizeName cleans a collection name so that equivalent spellings share
// one cache entry.
func normalizeName(name string) (string, error) {
	cleaned := strings.Trim(path.Clean("/"+strings.TrimSpace(name)), "/")
	if cleaned == "" || cleaned == "." || strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCollection, name)
	}
	for _, segment := range strings.Split(strings.Trim(strings.TrimSpace(name), "/"), "/") {
		if segment == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidCollection, name)
		}
	}
	return cleaned, nil
}

// Path returns the remote file path of a collection.
func (s *Store) Path(name string) (string, error) {
	name, err := normalizeName(name)
	if err != nil {
		return "", err
	}
	return s.path(name), nil
}

func (s *Store) path(name string) string {
	return path.Join(s.opts.BasePath, name) + ".json"
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.RequestTimeout)
}

// Get returns the collection's records. The cached snapshot is returned
// unless force is set or nothing is cached yet, in which case the remote
// file is read (and created empty if missing).
func (s *Store) Get(ctx context.Context, name string, force bool) ([]schema.Document, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	if !force {
		if records, ok := s.cache.get(name); ok {
			return records, nil
		}
	}

	result, err := s.withEventEmission("read", name, DocumentReadStart, DocumentReadSuccess, DocumentReadFailed,
		map[string]any{"force": force},
		func() (any, error) {
			return s.refresh(ctx, name, force)
		},
	)
	if err != nil {
		return nil, err
	}
	return result.([]schema.Document), nil
}

// GetItem returns the cached record whose id or uid equals key, or nil. It
// reads only the cache: for a collection that has not been loaded yet it
// returns nil, nil even when the record exists remotely, so callers Get the
// collection first. ctx is unused.
func (s *Store) GetItem(ctx context.Context, name, key string) (schema.Document, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	records, ok := s.cache.get(name)
	if !ok {
		return nil, nil
	}
	if i := findIndex(records, key); i >= 0 {
		return records[i], nil
	}
	return nil, nil
}

// refresh reads name through the remote store. Concurrent refreshes of the
// same collection share one remote read.
func (s *Store) refresh(ctx context.Context, name string, force bool) ([]schema.Document, error) {
	key := name
	if force {
		key += "\x00force"
	}
	ch := s.flights.DoChan(key, func() (any, error) {
		ctx, cancel := s.bound(context.WithoutCancel(ctx))
		defer cancel()
		return s.load(ctx, name, force, s.notify)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneRecords(res.Val.([]schema.Document)), nil
	}
}

// load reads name from the remote store and installs the snapshot. A changed
// snapshot is handed to deliver.
func (s *Store) load(ctx context.Context, name string, force bool, deliver notifyFunc) ([]schema.Document, error) {
	filePath := s.path(name)
	epoch := s.cache.epoch(name)
	entry, cached := s.cache.entry(name)
	etag := ""
	if cached && !force {
		etag = entry.etag
	}

	file, err := s.remote.Fetch(ctx, filePath, etag)
	switch {
	case errors.Is(err, remote.ErrNotModified):
		return entry.records, nil
	case errors.Is(err, remote.ErrNotFound):
		file, err = s.createCollection(ctx, name, filePath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read collection %s: %w", name, err)
	}

	records, err := remote.DecodeRecords(file.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to decode collection %s: %w", name, err)
	}
	return s.install(name, epoch, records, file.Revision, file.ETag, deliver), nil
}

// createCollection creates an empty collection file. Losing a creation race
// to another writer falls back to reading the winner's file.
func (s *Store) createCollection(ctx context.Context, name, filePath string) (*remote.File, error) {
	file, err := s.remote.Create(ctx, filePath, []byte("[]"))
	if errors.Is(err, remote.ErrAlreadyExists) {
		return s.remote.Fetch(ctx, filePath, "")
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("Created collection", zap.String("collection", name), zap.String("path", filePath))
	s.emitEvent(createEvent(CollectionCreateSuccess, "create_collection", name, nil,
		map[string]any{"path": filePath, "revision": file.Revision}, nil, nil, time.Time{}))
	return file, nil
}

// install caches a remote snapshot with every pending mutation for the
// collection applied on top, and passes it to deliver if the records changed.
// A snapshot read before the latest settled write is discarded in favour of
// the cached records.
func (s *Store) install(name string, epoch uint64, records []schema.Document, revision, etag string, deliver notifyFunc) []schema.Document {
	s.queue.mu.Lock()
	if s.cache.epoch(name) != epoch {
		current, _ := s.cache.get(name)
		s.queue.mu.Unlock()
		return current
	}
	view := s.overlayLocked(name, records)
	version, changed := s.cache.replace(name, view, revision, etag)
	s.queue.mu.Unlock()

	if changed {
		deliver(name, version, view)
	}
	return view
}

func (s *Store) overlayLocked(name string, records []schema.Document) []schema.Document {
	view := records
	for _, mutate := range s.queue.pendingLocked(name) {
		next, err := mutate(cloneRecords(view))
		if err != nil {
			continue
		}
		view = next
	}
	return view
}

func (s *Store) notify(name string, version uint64, records []schema.Document) {
	s.hub.publish(name, version, records)
	s.emitEvent(createEvent(CollectionChanged, "change", name, nil,
		map[string]any{"count": len(records)}, nil, nil, time.Time{}))
}

// Subscribe calls cb with the collection's records now and after every
// change until the returned function is called. The first subscriber of a
// collection starts its poller; the last one to leave stops it.
func (s *Store) Subscribe(name string, cb func([]schema.Document)) func() {
	name, err := normalizeName(name)
	if err != nil {
		s.logger.Warn("Subscribe rejected", zap.Error(err))
		return func() {}
	}

	sub, first := s.hub.add(name, cb)
	if first {
		s.poller.start(s.ctx, name)
	}

	if records, ok := s.cache.get(name); ok {
		s.hub.deliverInitial(name, sub, records)
	} else {
		go func() {
			records, err := s.Get(s.ctx, name, false)
			if err != nil {
				if s.ctx.Err() == nil {
					s.logger.Warn("Initial read for subscriber failed", zap.String("collection", name), zap.Error(err))
				}
				return
			}
			s.hub.deliverInitial(name, sub, records)
		}()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if s.hub.remove(name, sub) {
				s.poller.stop(name)
			}
		})
	}
}

// Query starts a query over the collection.
func (s *Store) Query(name string) *query.QueryBuilder {
	return query.NewQueryBuilder(s, name).WithProcessor(s.opts.Processor)
}

// Audit returns the collection's recent mutations from oldest to newest.
func (s *Store) Audit(name string) []AuditEntry {
	name, err := normalizeName(name)
	if err != nil {
		return []AuditEntry{}
	}
	return s.audit.list(name)
}

// Collections lists the collections currently cached.
func (s *Store) Collections() []string {
	return s.cache.names()
}
