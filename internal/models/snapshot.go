package models

import (
	"encoding/json"
	"time"
)

// Record is a single opaque JSON document owned by a collection.
// The backup core never interprets its fields.
type Record = json.RawMessage

// Snapshot kinds.
const (
	KindCollections = "collections.v1" // direct dump of every collection source
	KindEndpoint    = "endpoint.v1"    // aggregated dump of the public read endpoints
)

// Capture triggers.
const (
	TriggerAPI       = "api"
	TriggerScheduler = "scheduler"
)

// Collection names, case-sensitive. Restore replays them in this order:
// employees go first because other records reference employee ids.
const (
	CollectionEmployees      = "employees"
	CollectionSkillFactories = "skillFactories"
	CollectionLearningPaths  = "learningPaths"
	CollectionAssessments    = "assessments"
	CollectionInstructions   = "instructions"
	CollectionAnnouncements  = "announcements"

	// CollectionMetrics is the read-side aggregate captured alongside the
	// collections. It is informational and never replayed.
	CollectionMetrics = "metrics"
)

// RestoreOrder lists the collections a restore replays, in replay order.
var RestoreOrder = []string{
	CollectionEmployees,
	CollectionSkillFactories,
	CollectionLearningPaths,
	CollectionAssessments,
	CollectionInstructions,
	CollectionAnnouncements,
}

// Actor identifies who asked for a capture.
type Actor struct {
	ID       string
	Username string
	Role     string
}

// SnapshotMetadata records the provenance of a snapshot. It never affects restore.
type SnapshotMetadata struct {
	Trigger   string `json:"trigger"`
	ActorID   string `json:"actorId,omitempty"`
	ActorName string `json:"actorName,omitempty"`
	Role      string `json:"role,omitempty"`
}

// Snapshot is an immutable point-in-time copy of every collection.
type Snapshot struct {
	ID        string              `json:"id"`
	Timestamp time.Time           `json:"timestamp"`
	Kind      string              `json:"kind"`
	Metadata  *SnapshotMetadata   `json:"metadata,omitempty"`
	Data      map[string][]Record `json:"data"` // keep last: FileStore.List stops reading here
}

// Clone returns a deep copy so callers can never mutate a stored snapshot.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Metadata != nil {
		md := *s.Metadata
		out.Metadata = &md
	}
	if s.Data != nil {
		out.Data = make(map[string][]Record, len(s.Data))
		for name, records := range s.Data {
			cp := make([]Record, len(records))
			for i, r := range records {
				cp[i] = append(Record(nil), r...)
			}
			out.Data[name] = cp
		}
	}
	return out
}

// SnapshotInfo describes a stored snapshot without its payload.
type SnapshotInfo struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Kind      string            `json:"kind,omitempty"`
	SizeBytes int64             `json:"sizeBytes,omitempty"`
	Metadata  *SnapshotMetadata `json:"metadata,omitempty"`
}

// WriteResult is returned by a snapshot store after a successful write.
type WriteResult struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"sizeBytes,omitempty"`
}
