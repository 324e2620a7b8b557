package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/isdelr/records-be/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/mem"
)

// Counter is a collection that can report its size.
type Counter interface {
	Name() string
	Count(ctx context.Context) (int, error)
}

// CollectionCount is one entry of the metrics read-side.
type CollectionCount struct {
	Collection string `json:"collection"`
	Count      int    `json:"count"`
}

// HostStats is the host section of the metrics read-side.
type HostStats struct {
	Host              bool    `json:"host"`
	MemoryTotalBytes  uint64  `json:"memoryTotalBytes"`
	MemoryUsedPercent float64 `json:"memoryUsedPercent"`
}

// MetricsSource exposes aggregated counts as one more snapshot section.
type MetricsSource struct {
	counters []Counter
	withHost bool
}

// NewMetricsSource creates the read-side source. Host statistics are
// included when withHost is set.
func NewMetricsSource(counters []Counter, withHost bool) *MetricsSource {
	return &MetricsSource{counters: counters, withHost: withHost}
}

// Name returns the snapshot section name.
func (m *MetricsSource) Name() string { return models.CollectionMetrics }

// List returns one record per collection count, followed by host stats.
// Count failures fail the listing; host stats are best-effort.
func (m *MetricsSource) List(ctx context.Context) ([]models.Record, error) {
	records := make([]models.Record, 0, len(m.counters)+1)
	for _, c := range m.counters {
		n, err := c.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", c.Name(), err)
		}
		b, err := json.Marshal(CollectionCount{Collection: c.Name(), Count: n})
		if err != nil {
			return nil, err
		}
		records = append(records, b)
	}

	if m.withHost {
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Could not read host memory stats for metrics section")
			return records, nil
		}
		b, err := json.Marshal(HostStats{Host: true, MemoryTotalBytes: vm.Total, MemoryUsedPercent: vm.UsedPercent})
		if err != nil {
			return nil, err
		}
		records = append(records, b)
	}
	return records, nil
}
