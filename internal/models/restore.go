package models

import "fmt"

// RestoreMode selects how a restore treats existing records.
type RestoreMode string

const (
	// RestoreReplace clears every collection before replaying.
	RestoreReplace RestoreMode = "replace"
	// RestoreMerge only inserts; existing keys are reported as failures.
	RestoreMerge RestoreMode = "merge"
)

// ParseRestoreMode validates a mode string. An empty string means merge.
func ParseRestoreMode(s string) (RestoreMode, error) {
	switch RestoreMode(s) {
	case "", RestoreMerge:
		return RestoreMerge, nil
	case RestoreReplace:
		return RestoreReplace, nil
	}
	return "", fmt.Errorf("unknown restore mode %q", s)
}

// CollectionCounts tallies the replay of one collection.
type CollectionCounts struct {
	Attempted int `json:"attempted"`
	Restored  int `json:"restored"`
	Failed    int `json:"failed"`
}

// RestoreError describes one record that could not be replayed.
type RestoreError struct {
	Resource string `json:"resource"`
	Index    int    `json:"index"`
	Message  string `json:"message"`
}

// RestoreSummary is the outcome of a restore. It is never persisted.
type RestoreSummary struct {
	SnapshotID  string                      `json:"snapshotId,omitempty"`
	Kind        string                      `json:"kind,omitempty"`
	RestoreMode RestoreMode                 `json:"restoreMode"`
	Summary     map[string]CollectionCounts `json:"summary"`
	Errors      []RestoreError              `json:"errors"`
	Warnings    []string                    `json:"warnings"`
}
