package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/isdelr/records-be/internal/metrics"
	"github.com/isdelr/records-be/internal/models"
	"github.com/isdelr/records-be/internal/snapshots"
	"github.com/rs/zerolog/log"
)

// ErrValidation marks a restore request rejected before any side effect.
var ErrValidation = errors.New("invalid restore request")

// RestoreRequest names the snapshot to restore. An inline Snapshot takes
// precedence over SnapshotID.
type RestoreRequest struct {
	Snapshot   *models.Snapshot
	SnapshotID string
	Mode       models.RestoreMode
}

// RestoreServiceProvider defines the interface for restore services.
type RestoreServiceProvider interface {
	Restore(ctx context.Context, req RestoreRequest) (models.RestoreSummary, error)
}

// RestoreService replays snapshots into the collection sources.
type RestoreService struct {
	sources      map[string]CollectionSource
	store        snapshots.Store
	eventService EventServiceProvider
}

// NewRestoreService creates a new RestoreService. Every collection in
// models.RestoreOrder must have a source.
func NewRestoreService(sources []CollectionSource, store snapshots.Store, eventService EventServiceProvider) (*RestoreService, error) {
	byName := make(map[string]CollectionSource, len(sources))
	for _, src := range sources {
		byName[src.Name()] = src
	}
	for _, name := range models.RestoreOrder {
		if _, ok := byName[name]; !ok {
			return nil, fmt.Errorf("missing collection source %q", name)
		}
	}
	return &RestoreService{
		sources:      byName,
		store:        store,
		eventService: eventService,
	}, nil
}

// Restore replays a snapshot. Records that fail to insert are reported in
// the summary and never stop the replay; only resolution, validation and
// clear failures are returned as errors. Cancelling ctx only has an effect
// before the snapshot is resolved.
func (s *RestoreService) Restore(ctx context.Context, req RestoreRequest) (models.RestoreSummary, error) {
	snap, err := s.resolve(ctx, req)
	if err != nil {
		return models.RestoreSummary{}, err
	}

	// From here on collections are mutated. A caller that goes away must not
	// leave them cleared but never refilled.
	ctx = context.WithoutCancel(ctx)

	summary := models.RestoreSummary{
		SnapshotID:  snap.ID,
		Kind:        snap.Kind,
		RestoreMode: req.Mode,
		Summary:     make(map[string]models.CollectionCounts, len(models.RestoreOrder)),
		Errors:      []models.RestoreError{},
		Warnings:    []string{},
	}

	if snap.Kind != "" && snap.Kind != models.KindCollections && snap.Kind != models.KindEndpoint {
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("unrecognized snapshot kind %q", snap.Kind))
	}

	// Unknown sections are ignored; missing ones replay as empty.
	sections := make(map[string][]models.Record, len(models.RestoreOrder))
	total := 0
	for _, name := range models.RestoreOrder {
		sections[name] = snap.Data[name]
		total += len(snap.Data[name])
	}
	if total == 0 {
		summary.Warnings = append(summary.Warnings, "snapshot contains no records for any known collection")
	}

	if req.Mode == models.RestoreReplace {
		// There is no cross-collection transaction: a failure here leaves
		// the collections cleared so far empty.
		for _, name := range models.RestoreOrder {
			if err := s.sources[name].Clear(ctx); err != nil {
				log.Error().Err(err).Str("collection", name).Str("snapshot_id", snap.ID).Msg("Restore aborted while clearing collections")
				recordEvent(ctx, s.eventService, "backup.restore.fail", "error", fmt.Sprintf("Restore of '%s' failed while clearing %s: %v", snap.ID, name, err), optionalID(snap.ID))
				return models.RestoreSummary{}, fmt.Errorf("clear %s: %w", name, err)
			}
		}
	}

	for _, name := range models.RestoreOrder {
		counts := s.replay(ctx, name, sections[name], &summary.Errors)
		summary.Summary[name] = counts
	}

	restored, failed := 0, 0
	for _, c := range summary.Summary {
		restored += c.Restored
		failed += c.Failed
	}
	log.Info().
		Str("snapshot_id", snap.ID).
		Str("mode", string(req.Mode)).
		Int("restored", restored).
		Int("failed", failed).
		Msg("Restore finished")
	level := "info"
	if failed > 0 {
		level = "warn"
	}
	recordEvent(ctx, s.eventService, "backup.restore", level,
		fmt.Sprintf("Restore of '%s' (%s): %d restored, %d failed.", snap.ID, req.Mode, restored, failed), optionalID(snap.ID))

	return summary, nil
}

// replay inserts records one by one in snapshot order so every failure can
// be attributed to its index.
func (s *RestoreService) replay(ctx context.Context, name string, records []models.Record, errs *[]models.RestoreError) models.CollectionCounts {
	src := s.sources[name]
	var counts models.CollectionCounts
	for i, rec := range records {
		counts.Attempted++
		if _, err := src.Create(ctx, rec); err != nil {
			counts.Failed++
			*errs = append(*errs, models.RestoreError{Resource: name, Index: i, Message: err.Error()})
			metrics.RestoredRecords.WithLabelValues(name, "failed").Inc()
			continue
		}
		counts.Restored++
		metrics.RestoredRecords.WithLabelValues(name, "restored").Inc()
	}
	return counts
}

func (s *RestoreService) resolve(ctx context.Context, req RestoreRequest) (models.Snapshot, error) {
	switch req.Mode {
	case models.RestoreReplace, models.RestoreMerge:
	default:
		return models.Snapshot{}, fmt.Errorf("%w: unknown restore mode %q", ErrValidation, req.Mode)
	}

	if req.Snapshot != nil {
		if req.Snapshot.Data == nil {
			return models.Snapshot{}, fmt.Errorf("%w: inline snapshot has no data", ErrValidation)
		}
		return req.Snapshot.Clone(), nil
	}
	if req.SnapshotID == "" {
		return models.Snapshot{}, fmt.Errorf("%w: a snapshot or snapshot id is required", ErrValidation)
	}

	snap, found, err := s.store.Read(ctx, req.SnapshotID)
	if err != nil {
		return models.Snapshot{}, err
	}
	if !found {
		return models.Snapshot{}, fmt.Errorf("%w: snapshot %q not found", ErrValidation, req.SnapshotID)
	}
	if snap.Data == nil {
		return models.Snapshot{}, fmt.Errorf("%w: snapshot %q has no data", ErrValidation, req.SnapshotID)
	}
	return snap, nil
}

func optionalID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
