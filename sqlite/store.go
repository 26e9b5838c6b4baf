// Package sqlite provides a remote.Store backed by a single SQLite table. It
// offers the same compare-and-swap contract as the hosted contents API, which
// makes it suitable for local development and offline deployments.
package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/asaidimu/go-repodb/core/remote"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// dbRunner abstracts the common methods of *sql.DB and *sql.Tx.
type dbRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Options configures a Store.
type Options struct {
	// TableName defaults to "repodb_files".
	TableName string
	// IfNotExists adds IF NOT EXISTS to the CREATE TABLE statement.
	IfNotExists bool
	// Timeout bounds every statement. Zero disables the bound.
	Timeout time.Duration
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() *Options {
	return &Options{
		TableName:   "repodb_files",
		IfNotExists: true,
		Timeout:     15 * time.Second,
	}
}

// Store implements remote.Store over a SQLite database.
type Store struct {
	db      *sql.DB
	logger  *zap.Logger
	options *Options
	now     func() time.Time
}

var _ remote.Store = (*Store)(nil)

// NewStore wraps db. Call Migrate before first use.
func NewStore(db *sql.DB, logger *zap.Logger, options *Options) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if options == nil {
		options = DefaultOptions()
	}
	if options.TableName == "" {
		options.TableName = DefaultOptions().TableName
	}
	return &Store{
		db:      db,
		logger:  logger,
		options: options,
		now:     time.Now,
	}
}

// Open opens the database file at path with the sqlite3 driver and creates
// the files table.
func Open(ctx context.Context, path string, logger *zap.Logger, options *Options) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	// A single connection serializes writers and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	store := NewStore(db, logger, options)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) table() string {
	return quoteIdentifier(s.options.TableName)
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.options.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.options.Timeout)
}

func etagOf(content []byte) string {
	return fmt.Sprintf(`"%x"`, sha256.Sum256(content))
}

// Fetch implements remote.Store.
func (s *Store) Fetch(ctx context.Context, path string, ifNoneMatch string) (*remote.File, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	stmt := fmt.Sprintf("SELECT content, revision, etag FROM %s WHERE path = ?", s.table())
	s.logger.Debug("Executing SQL SELECT", zap.String("sql", stmt), zap.String("path", path))

	var (
		content        []byte
		revision, etag string
	)
	err := s.db.QueryRowContext(ctx, stmt, path).Scan(&content, &revision, &etag)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, remote.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if ifNoneMatch != "" && ifNoneMatch == etag {
		return nil, remote.ErrNotModified
	}
	return &remote.File{Path: path, Content: content, Revision: revision, ETag: etag}, nil
}

// Create implements remote.Store.
func (s *Store) Create(ctx context.Context, path string, content []byte) (*remote.File, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	file := &remote.File{Path: path, Content: content, Revision: uuid.NewString(), ETag: etagOf(content)}
	stmt := fmt.Sprintf(
		"INSERT INTO %s (path, content, revision, etag, updated_at) VALUES (?, ?, ?, ?, ?) ON CONFLICT(path) DO NOTHING",
		s.table(),
	)
	s.logger.Debug("Executing SQL INSERT", zap.String("sql", stmt), zap.String("path", path))

	n, err := s.exec(ctx, s.db, stmt, path, content, file.Revision, file.ETag, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	if n == 0 {
		return nil, remote.ErrAlreadyExists
	}
	return file, nil
}

// Put implements remote.Store. The row is only replaced when its revision
// still equals expectedRevision.
func (s *Store) Put(ctx context.Context, path string, content []byte, expectedRevision string) (*remote.File, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	file := &remote.File{Path: path, Content: content, Revision: uuid.NewString(), ETag: etagOf(content)}
	stmt := fmt.Sprintf(
		"UPDATE %s SET content = ?, revision = ?, etag = ?, updated_at = ? WHERE path = ? AND revision = ?",
		s.table(),
	)
	s.logger.Debug("Executing SQL UPDATE", zap.String("sql", stmt), zap.String("path", path))

	n, err := s.exec(ctx, tx, stmt, content, file.Revision, file.ETag, s.now().UTC(), path, expectedRevision)
	if err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", path, err)
	}
	if n == 0 {
		var current string
		err := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT revision FROM %s WHERE path = ?", s.table()), path).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, remote.ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read revision of %s: %w", path, err)
		}
		return nil, &remote.ConflictError{Path: path, ExpectedRevision: expectedRevision, CurrentRevision: current}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit update of %s: %w", path, err)
	}
	return file, nil
}

func (s *Store) exec(ctx context.Context, runner dbRunner, stmt string, args ...any) (int64, error) {
	result, err := runner.ExecContext(ctx, stmt, args...)
	if err != nil {
		s.logger.Error("Failed to execute statement", zap.Error(err), zap.String("sql", stmt))
		return 0, err
	}
	return result.RowsAffected()
}

// quoteIdentifier safely quotes a table or column name.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
