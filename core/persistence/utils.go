package persistence

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/asaidimu/go-repodb/core/query"
	"github.com/asaidimu/go-repodb/core/schema"
	"github.com/google/uuid"
)

const (
	fieldID  = "id"
	fieldUID = "uid"
)

func createEvent(
	eventType PersistenceEventType,
	operation string,
	collectionName string,
	input any,
	output any,
	err *string,
	issues []schema.Issue,
	startTime time.Time,
) PersistenceEvent {
	var duration *int64
	if !startTime.IsZero() {
		d := time.Since(startTime).Milliseconds()
		duration = &d
	}

	var collection *string
	if collectionName != "" {
		collection = &collectionName
	}

	return PersistenceEvent{
		Type:       eventType,
		Timestamp:  time.Now().UnixMilli(),
		Operation:  operation,
		Collection: collection,
		Input:      input,
		Output:     output,
		Error:      err,
		Issues:     issues,
		Duration:   duration,
	}
}

func issuesOf(err error) []schema.Issue {
	var violation *schema.SchemaViolation
	if errors.As(err, &violation) {
		return violation.Issues
	}
	return nil
}

func newID() string {
	return uuid.NewString()
}

// cloneRecords copies the slice and each record's top-level map.
func cloneRecords(records []schema.Document) []schema.Document {
	if records == nil {
		return nil
	}
	out := make([]schema.Document, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// keyString renders an id field for comparison. JSON numbers decode as
// float64, so numeric ids are formatted without a fraction.
func keyString(v any) (string, bool) {
	switch k := v.(type) {
	case nil:
		return "", false
	case string:
		return k, true
	default:
		if f, ok := query.ToFloat64(k); ok {
			return strconv.FormatFloat(f, 'f', -1, 64), true
		}
		return fmt.Sprint(k), true
	}
}

// matchesKey reports whether key equals either the sequence id or the uid of
// record.
func matchesKey(record schema.Document, key string) bool {
	for _, field := range []string{fieldID, fieldUID} {
		if v, ok := keyString(record[field]); ok && v == key {
			return true
		}
	}
	return false
}

func findIndex(records []schema.Document, key string) int {
	for i, r := range records {
		if matchesKey(r, key) {
			return i
		}
	}
	return -1
}

// nextSequenceID returns one more than the largest numeric id in records.
func nextSequenceID(records []schema.Document) string {
	highest := 0
	for _, r := range records {
		s, ok := keyString(r[fieldID])
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(s); err == nil && n > highest {
			highest = n
		}
	}
	return strconv.Itoa(highest + 1)
}

// identity picks the most stable key of a record: its uid when present,
// otherwise its sequence id.
func identity(record schema.Document) string {
	if uid, ok := keyString(record[fieldUID]); ok && uid != "" {
		return uid
	}
	id, _ := keyString(record[fieldID])
	return id
}
