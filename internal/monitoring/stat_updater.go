package monitoring

import (
	"context"
	"time"

	"github.com/isdelr/records-be/internal/metrics"
	"github.com/isdelr/records-be/internal/services"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/mem"
)

// ConnectionState reports whether the storage engine is reachable.
type ConnectionState interface {
	Connected() bool
}

// StatUpdater periodically refreshes the record-count, database and host gauges.
type StatUpdater struct {
	counters []services.Counter
	conn     ConnectionState
	interval time.Duration
	done     chan struct{}
}

// NewStatUpdater creates a new StatUpdater.
func NewStatUpdater(counters []services.Counter, conn ConnectionState, interval time.Duration) *StatUpdater {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &StatUpdater{
		counters: counters,
		conn:     conn,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Run starts the periodic updates.
func (su *StatUpdater) Run() {
	log.Info().Msg("Starting background stat updater...")
	ticker := time.NewTicker(su.interval)
	defer ticker.Stop()

	// Run once immediately on start
	su.update()

	for {
		select {
		case <-su.done:
			log.Info().Msg("Stopping background stat updater.")
			return
		case <-ticker.C:
			su.update()
		}
	}
}

// Stop halts the periodic updates.
func (su *StatUpdater) Stop() {
	close(su.done)
}

func (su *StatUpdater) update() {
	ctx, cancel := context.WithTimeout(context.Background(), su.interval)
	defer cancel()

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		metrics.HostMemoryUsed.Set(vm.UsedPercent)
	} else {
		log.Debug().Err(err).Msg("StatUpdater: Could not read host memory")
	}

	connected := su.conn.Connected()
	metrics.SetDBConnected(connected)
	if !connected {
		// Counts would only fail; keep the last known values.
		return
	}

	for _, c := range su.counters {
		n, err := c.Count(ctx)
		if err != nil {
			log.Warn().Err(err).Str("collection", c.Name()).Msg("StatUpdater: Failed to count records")
			continue
		}
		metrics.CollectionRecords.WithLabelValues(c.Name()).Set(float64(n))
	}
}
