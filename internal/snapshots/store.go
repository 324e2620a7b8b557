// Package snapshots persists backup snapshots. Two interchangeable backends
// are provided: FileStore, the durable default, and MemoryStore.
package snapshots

import (
	"context"
	"crypto/rand"
	"errors"
	"time"

	"github.com/isdelr/records-be/internal/models"
	"github.com/oklog/ulid/v2"
)

// ErrCorrupt is returned when a stored snapshot exists but cannot be decoded.
var ErrCorrupt = errors.New("snapshots: corrupt snapshot")

// Store is the contract shared by every snapshot backend.
type Store interface {
	// Write persists a snapshot once and reports the id it was stored under.
	Write(ctx context.Context, snap models.Snapshot) (models.WriteResult, error)
	// List returns every stored snapshot without payload, newest first.
	List(ctx context.Context) ([]models.SnapshotInfo, error)
	// Read returns the snapshot with the given id. A missing snapshot is
	// reported with found=false and a nil error.
	Read(ctx context.Context, id string) (snap models.Snapshot, found bool, err error)
}

// newID returns a time-sortable, collision-free snapshot id.
func newID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

func infoOf(s models.Snapshot, size int64) models.SnapshotInfo {
	info := models.SnapshotInfo{
		ID:        s.ID,
		Timestamp: s.Timestamp,
		Kind:      s.Kind,
		SizeBytes: size,
	}
	if s.Metadata != nil {
		md := *s.Metadata
		info.Metadata = &md
	}
	return info
}
