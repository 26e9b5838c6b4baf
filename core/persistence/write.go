package persistence

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/asaidimu/go-repodb/core/remote"
	"github.com/asaidimu/go-repodb/core/schema"
	"go.uber.org/zap"
)

// Insert merges the schema defaults into partial, validates it, assigns the
// sequence id and uid, and appends it to the collection. The cache and
// subscribers see the record before it is written; Insert returns once the
// write is durable.
func (s *Store) Insert(ctx context.Context, name string, partial schema.Document) (schema.Document, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}

	result, err := s.withEventEmission("create", name, DocumentCreateStart, DocumentCreateSuccess, DocumentCreateFailed, partial,
		func() (any, error) {
			record := s.registry.ApplyDefaults(name, partial)
			delete(record, fieldID)
			delete(record, fieldUID)
			if err := s.registry.Validate(name, record); err != nil {
				return nil, err
			}
			uid := newID()
			record[fieldUID] = uid

			// The optimistic view is computed against the latest snapshot.
			if _, err := s.Get(ctx, name, false); err != nil {
				return nil, err
			}

			written, err := s.submit(ctx, name, insertMutation(record))
			if err != nil {
				return nil, err
			}
			i := findIndex(written, uid)
			if i < 0 {
				return nil, &RecordNotFoundError{Collection: name, Key: uid}
			}
			s.recordAudit(name, AuditInsert, uid, written)
			return written[i], nil
		},
	)
	if err != nil {
		return nil, err
	}
	return result.(schema.Document), nil
}

// Update shallow-merges partial into the record whose id or uid equals key.
// System ids are never overwritten. The merged record is validated before
// anything is queued.
func (s *Store) Update(ctx context.Context, name, key string, partial schema.Document) (schema.Document, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}

	result, err := s.withEventEmission("update", name, DocumentUpdateStart, DocumentUpdateSuccess, DocumentUpdateFailed,
		map[string]any{"key": key, "data": partial},
		func() (any, error) {
			current, err := s.Get(ctx, name, true)
			if err != nil {
				return nil, err
			}
			i := findIndex(current, key)
			if i < 0 {
				return nil, &RecordNotFoundError{Collection: name, Key: key}
			}
			if err := s.registry.Validate(name, mergeRecord(current[i], partial)); err != nil {
				return nil, err
			}

			ident := identity(current[i])
			written, err := s.submit(ctx, name, s.updateMutation(name, ident, partial.Clone()))
			if err != nil {
				return nil, err
			}
			j := findIndex(written, ident)
			if j < 0 {
				return nil, &RecordNotFoundError{Collection: name, Key: key}
			}
			s.recordAudit(name, AuditUpdate, ident, written)
			return written[j], nil
		},
	)
	if err != nil {
		return nil, err
	}
	return result.(schema.Document), nil
}

// Delete removes every record whose id or uid equals key.
func (s *Store) Delete(ctx context.Context, name, key string) error {
	name, err := normalizeName(name)
	if err != nil {
		return err
	}

	_, err = s.withEventEmission("delete", name, DocumentDeleteStart, DocumentDeleteSuccess, DocumentDeleteFailed,
		map[string]any{"key": key},
		func() (any, error) {
			current, err := s.Get(ctx, name, false)
			if err != nil {
				return nil, err
			}
			if findIndex(current, key) < 0 {
				return nil, &RecordNotFoundError{Collection: name, Key: key}
			}

			written, err := s.submit(ctx, name, deleteMutation(key))
			if err != nil {
				return nil, err
			}
			s.recordAudit(name, AuditDelete, key, written)
			return nil, nil
		},
	)
	return err
}

// Mutate queues an arbitrary mutation of the collection and returns the
// records as written.
func (s *Store) Mutate(ctx context.Context, name string, mutation Mutation) ([]schema.Document, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, name, false); err != nil {
		return nil, err
	}
	return s.submit(ctx, name, mutation)
}

func insertMutation(record schema.Document) Mutation {
	uid, _ := record[fieldUID].(string)
	return func(records []schema.Document) ([]schema.Document, error) {
		if findIndex(records, uid) >= 0 {
			return nil, ErrNoChange
		}
		next := record.Clone()
		next[fieldID] = nextSequenceID(records)
		return append(records, next), nil
	}
}

func (s *Store) updateMutation(name, ident string, partial schema.Document) Mutation {
	return func(records []schema.Document) ([]schema.Document, error) {
		i := findIndex(records, ident)
		if i < 0 {
			return nil, &RecordNotFoundError{Collection: name, Key: ident}
		}
		merged := mergeRecord(records[i], partial)
		if reflect.DeepEqual(merged, records[i]) {
			return nil, ErrNoChange
		}
		if err := s.registry.Validate(name, merged); err != nil {
			return nil, err
		}
		records[i] = merged
		return records, nil
	}
}

func deleteMutation(key string) Mutation {
	return func(records []schema.Document) ([]schema.Document, error) {
		next := make([]schema.Document, 0, len(records))
		for _, r := range records {
			if !matchesKey(r, key) {
				next = append(next, r)
			}
		}
		if len(next) == len(records) {
			return nil, ErrNoChange
		}
		return next, nil
	}
}

// mergeRecord applies partial over a copy of record, keeping its system ids.
func mergeRecord(record, partial schema.Document) schema.Document {
	merged := record.Clone()
	for k, v := range partial {
		if k == fieldID || k == fieldUID {
			continue
		}
		merged[k] = v
	}
	return merged
}

func (s *Store) recordAudit(name string, action AuditAction, key string, written []schema.Document) {
	s.audit.append(name, AuditEntry{
		Action:    action,
		Key:       key,
		Payload:   cloneRecords(written),
		Timestamp: time.Now(),
	})
}

// submit queues mutation, applies it to the cached records right away and
// waits for the durable write.
func (s *Store) submit(ctx context.Context, name string, mutation Mutation) ([]schema.Document, error) {
	req := &writeRequest{
		ctx:        ctx,
		collection: name,
		mutation:   mutation,
		done:       make(chan writeResult, 1),
	}

	s.queue.mu.Lock()
	if s.queue.closed {
		s.queue.mu.Unlock()
		return nil, ErrStoreClosed
	}
	var (
		version uint64
		changed bool
		view    []schema.Document
	)
	if current, ok := s.cache.get(name); ok {
		if next, err := mutation(current); err == nil {
			view = next
			version, changed = s.cache.setRecords(name, next)
		}
	}
	s.queue.pushLocked(req)
	s.queue.mu.Unlock()

	if changed {
		s.notify(name, version, view)
	}

	select {
	case res := <-req.done:
		return res.records, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// attemptWrite reads the collection's current remote state, applies the
// request's mutation to it and writes the result with the revision it read.
func (s *Store) attemptWrite(req *writeRequest) ([]schema.Document, error) {
	ctx, cancel := s.bound(s.ctx)
	defer cancel()

	filePath := s.path(req.collection)
	file, err := s.remote.Fetch(ctx, filePath, "")
	if errors.Is(err, remote.ErrNotFound) {
		file, err = s.createCollection(ctx, req.collection, filePath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s before write: %w", req.collection, err)
	}

	records, err := remote.DecodeRecords(file.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s before write: %w", req.collection, err)
	}

	next, err := req.mutation(cloneRecords(records))
	if errors.Is(err, ErrNoChange) {
		return records, nil
	}
	if err != nil {
		return nil, err
	}

	content, err := remote.EncodeRecords(next)
	if err != nil {
		return nil, err
	}
	if _, err := s.remote.Put(ctx, filePath, content, file.Revision); err != nil {
		if remote.IsConflict(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to write %s: %w", req.collection, err)
	}

	s.logger.Debug("Collection written",
		zap.String("collection", req.collection),
		zap.Int("records", len(next)),
		zap.Int("retries", req.retries),
	)
	return next, nil
}

func (s *Store) onConflict(req *writeRequest, err error) {
	s.logger.Info("Write conflict, retrying",
		zap.String("collection", req.collection),
		zap.Int("attempt", req.retries),
		zap.Error(err),
	)
	s.emitEvent(createEvent(WriteConflict, "write", req.collection, nil, nil, nil, nil, time.Time{}))
}

// settleWrite completes a popped request. The cache is re-synced with the
// remote store either way: after success to pick up the new revision, after
// failure to drop the request's optimistic change. Subscribers learn about
// the re-synced records through the dispatcher, so a callback that writes
// never waits on this worker.
func (s *Store) settleWrite(req *writeRequest, records []schema.Document, err error) {
	if err != nil {
		if remote.IsConflict(err) {
			err = fmt.Errorf("write to %s failed after %d retries: %w", req.collection, req.retries, err)
		}
		s.logger.Warn("Write failed", zap.String("collection", req.collection), zap.Error(err))
	}

	s.cache.bumpEpoch(req.collection)
	ctx, cancel := s.bound(s.ctx)
	if _, rerr := s.load(ctx, req.collection, true, s.notices.enqueue); rerr != nil && s.ctx.Err() == nil {
		s.logger.Warn("Cache re-sync failed", zap.String("collection", req.collection), zap.Error(rerr))
	}
	cancel()

	req.done <- writeResult{records: cloneRecords(records), err: err}
}
