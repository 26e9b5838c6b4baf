package sqlite

import (
	"context"
	"fmt"
	"strings"
)

// CreateTableSQL returns the DDL for the files table and its index.
func (s *Store) CreateTableSQL() []string {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	if s.options.IfNotExists {
		sb.WriteString("IF NOT EXISTS ")
	}
	sb.WriteString(s.table())
	sb.WriteString(" (\n")
	sb.WriteString("  path TEXT PRIMARY KEY,\n")
	sb.WriteString("  content BLOB NOT NULL,\n")
	sb.WriteString("  revision TEXT NOT NULL,\n")
	sb.WriteString("  etag TEXT NOT NULL,\n")
	sb.WriteString("  updated_at TIMESTAMP NOT NULL\n")
	sb.WriteString(")")

	index := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (updated_at)",
		quoteIdentifier(s.options.TableName+"_updated_at_idx"), s.table())

	return []string{sb.String(), index}
}

// Migrate creates the files table inside a transaction, so either every
// statement applies or none does.
func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range s.CreateTableSQL() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute SQL statement '%s': %w", stmt, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	s.logger.Debug("Files table ready")
	return nil
}
