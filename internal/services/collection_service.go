package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/isdelr/records-be/internal/database"
	"github.com/isdelr/records-be/internal/models"
)

// DBProvider hands out the current database handle. It fails while the
// storage engine is unreachable.
type DBProvider interface {
	DB() (*sql.DB, error)
}

// Lister is anything a snapshot can enumerate.
type Lister interface {
	Name() string
	List(ctx context.Context) ([]models.Record, error)
}

// CollectionSource is a name-addressed persistence unit the backup core can
// enumerate, replay into and clear.
type CollectionSource interface {
	Lister
	Create(ctx context.Context, record models.Record) (models.Record, error)
	Clear(ctx context.Context) error
}

// ErrorKind classifies why a record was rejected by Create.
type ErrorKind int

const (
	ErrKindValidation ErrorKind = iota + 1
	ErrKindDuplicateKey
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindValidation:
		return "validation"
	case ErrKindDuplicateKey:
		return "duplicate_key"
	}
	return "unknown"
}

// CreateError is returned by Create when a record is rejected.
type CreateError struct {
	Kind       ErrorKind
	Collection string
	Key        string
	Reason     string
}

func (e *CreateError) Error() string {
	switch e.Kind {
	case ErrKindDuplicateKey:
		return fmt.Sprintf("%s: duplicate key %q", e.Collection, e.Key)
	default:
		return fmt.Sprintf("%s: invalid record: %s", e.Collection, e.Reason)
	}
}

// IsDuplicateKey reports whether err is a duplicate-key rejection.
func IsDuplicateKey(err error) bool {
	var ce *CreateError
	return errors.As(err, &ce) && ce.Kind == ErrKindDuplicateKey
}

// IsValidation reports whether err is a validation rejection.
func IsValidation(err error) bool {
	var ce *CreateError
	return errors.As(err, &ce) && ce.Kind == ErrKindValidation
}

// CollectionKeys maps each collection to the record field that must be unique.
var CollectionKeys = map[string]string{
	models.CollectionEmployees:      "employeeId",
	models.CollectionSkillFactories: "id",
	models.CollectionLearningPaths:  "id",
	models.CollectionAssessments:    "id",
	models.CollectionInstructions:   "id",
	models.CollectionAnnouncements:  "id",
}

// SQLCollection stores the records of one collection as JSON rows.
type SQLCollection struct {
	name     string
	table    string
	keyField string
	db       DBProvider
}

// NewSQLCollection creates the source for a known collection name.
func NewSQLCollection(db DBProvider, name string) (*SQLCollection, error) {
	table, ok := database.CollectionTable(name)
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", name)
	}
	return &SQLCollection{
		name:     name,
		table:    table,
		keyField: CollectionKeys[name],
		db:       db,
	}, nil
}

// NewSQLCollections creates a source for every collection in restore order.
func NewSQLCollections(db DBProvider) ([]CollectionSource, error) {
	sources := make([]CollectionSource, 0, len(models.RestoreOrder))
	for _, name := range models.RestoreOrder {
		c, err := NewSQLCollection(db, name)
		if err != nil {
			return nil, err
		}
		sources = append(sources, c)
	}
	return sources, nil
}

// Name returns the collection name.
func (c *SQLCollection) Name() string { return c.name }

// KeyField returns the record field that identifies a record.
func (c *SQLCollection) KeyField() string { return c.keyField }

// List returns every record in insertion order.
func (c *SQLCollection) List(ctx context.Context) ([]models.Record, error) {
	db, err := c.db.DB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT payload FROM %s ORDER BY seq ASC", c.table))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c.name, err)
	}
	defer rows.Close()

	records := make([]models.Record, 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("list %s: %w", c.name, err)
		}
		records = append(records, models.Record(payload))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", c.name, err)
	}
	return records, nil
}

// Create inserts a record. It fails with a *CreateError when the record is
// not a JSON object, lacks its key, or the key already exists.
func (c *SQLCollection) Create(ctx context.Context, record models.Record) (models.Record, error) {
	key, display, err := c.recordKey(record)
	if err != nil {
		return nil, err
	}

	db, err := c.db.DB()
	if err != nil {
		return nil, err
	}
	res, err := db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (record_key, payload) VALUES (?, ?) ON CONFLICT(record_key) DO NOTHING", c.table),
		key, string(record))
	if err != nil {
		return nil, fmt.Errorf("create in %s: %w", c.name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("create in %s: %w", c.name, err)
	}
	if n == 0 {
		return nil, &CreateError{Kind: ErrKindDuplicateKey, Collection: c.name, Key: display}
	}
	return record, nil
}

// Clear deletes every record of the collection.
func (c *SQLCollection) Clear(ctx context.Context) error {
	db, err := c.db.DB()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", c.table)); err != nil {
		return fmt.Errorf("clear %s: %w", c.name, err)
	}
	return nil
}

// Count returns the number of stored records.
func (c *SQLCollection) Count(ctx context.Context) (int, error) {
	db, err := c.db.DB()
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", c.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", c.name, err)
	}
	return n, nil
}

// recordKey returns the stored key and its display form. The stored key is
// tagged with the JSON type so "1" and 1 are distinct, and numbers are
// normalized so 1 and 1.0 are the same key.
func (c *SQLCollection) recordKey(record models.Record) (key, display string, err error) {
	invalid := func(reason string) error {
		return &CreateError{Kind: ErrKindValidation, Collection: c.name, Reason: reason}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(record, &fields); err != nil || fields == nil {
		return "", "", invalid("record must be a JSON object")
	}
	raw, ok := fields[c.keyField]
	if !ok {
		return "", "", invalid(fmt.Sprintf("missing %q", c.keyField))
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", "", invalid(fmt.Sprintf("unreadable %q", c.keyField))
	}
	switch v := v.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return "", "", invalid(fmt.Sprintf("empty %q", c.keyField))
		}
		return "s:" + v, v, nil
	case float64:
		n := strconv.FormatFloat(v, 'g', -1, 64)
		return "n:" + n, n, nil
	}
	return "", "", invalid(fmt.Sprintf("%q must be a string or number", c.keyField))
}
