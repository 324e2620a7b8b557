package services

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	"github.com/isdelr/records-be/internal/database"
	"github.com/isdelr/records-be/internal/models"
)

type staticDB struct{ db *sql.DB }

func (s staticDB) DB() (*sql.DB, error) { return s.db, nil }

type downDB struct{}

func (downDB) DB() (*sql.DB, error) { return nil, database.ErrNotConnected }

func newTestDB(t *testing.T) DBProvider {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "records.db"))
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return staticDB{db: db}
}

func newTestCollections(t *testing.T, db DBProvider) []CollectionSource {
	t.Helper()
	sources, err := NewSQLCollections(db)
	if err != nil {
		t.Fatalf("NewSQLCollections: %v", err)
	}
	return sources
}

func sourceByName(t *testing.T, sources []CollectionSource, name string) CollectionSource {
	t.Helper()
	for _, s := range sources {
		if s.Name() == name {
			return s
		}
	}
	t.Fatalf("no source named %q", name)
	return nil
}

func mustCreate(t *testing.T, src CollectionSource, raw string) {
	t.Helper()
	if _, err := src.Create(context.Background(), models.Record(raw)); err != nil {
		t.Fatalf("Create(%s) in %s: %v", raw, src.Name(), err)
	}
}

func listStrings(t *testing.T, src CollectionSource) []string {
	t.Helper()
	records, err := src.List(context.Background())
	if err != nil {
		t.Fatalf("List %s: %v", src.Name(), err)
	}
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = string(r)
	}
	return out
}

func asListers(sources []CollectionSource) []Lister {
	out := make([]Lister, len(sources))
	for i, s := range sources {
		out[i] = s
	}
	return out
}

type recordedEvent struct {
	Type  string
	Level string
}

type recordingEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingEvents) CreateEvent(_ context.Context, eventType, level, _ string, _ *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Type: eventType, Level: level})
	return nil
}

func (r *recordingEvents) GetRecentEvents(context.Context, int) ([]models.Event, error) {
	return nil, nil
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
