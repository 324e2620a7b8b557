package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// ErrMissingDSN is a configuration error: there is nothing to retry against.
	ErrMissingDSN = errors.New("database: connection string is required")
	// ErrNotConnected is returned by DB while the storage engine is unreachable.
	ErrNotConnected = errors.New("database: not connected")
)

// OpenFunc dials the storage engine and returns a ready handle.
type OpenFunc func(dsn string) (*sql.DB, error)

// Connector owns the lifecycle of the database handle. Connection failures
// are retried in the background until Close is called; they never stop the process.
type Connector struct {
	open           OpenFunc
	backoff        time.Duration
	healthInterval time.Duration
	onState        func(connected bool)

	mu     sync.RWMutex
	db     *sql.DB
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Connector.
type Option func(*Connector)

// WithOpenFunc replaces the dial function (Open by default).
func WithOpenFunc(fn OpenFunc) Option {
	return func(c *Connector) { c.open = fn }
}

// WithBackoff sets the fixed delay between reconnect attempts.
func WithBackoff(d time.Duration) Option {
	return func(c *Connector) { c.backoff = d }
}

// WithHealthInterval sets how often a live connection is pinged.
func WithHealthInterval(d time.Duration) Option {
	return func(c *Connector) { c.healthInterval = d }
}

// WithStateHook registers a callback invoked on every connect/disconnect.
func WithStateHook(fn func(connected bool)) Option {
	return func(c *Connector) { c.onState = fn }
}

// NewConnector creates a Connector. Nothing is dialed until Connect.
func NewConnector(opts ...Option) *Connector {
	c := &Connector{
		open:           Open,
		backoff:        5 * time.Second,
		healthInterval: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect validates the connection string, makes a first attempt inline and
// hands over to a background supervisor. Only a missing connection string
// is reported as an error; unreachable storage is retried silently.
func (c *Connector) Connect(ctx context.Context, dsn string) error {
	if strings.TrimSpace(dsn) == "" {
		return ErrMissingDSN
	}

	c.mu.Lock()
	if c.done != nil {
		c.mu.Unlock()
		return errors.New("database: connector already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	connected := c.attempt(dsn, 1)
	go c.supervise(loopCtx, dsn, connected)
	return nil
}

// DB returns the live handle or ErrNotConnected.
func (c *Connector) DB() (*sql.DB, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.db == nil {
		return nil, ErrNotConnected
	}
	return c.db, nil
}

// Connected reports whether a handle is currently available.
func (c *Connector) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db != nil
}

// Close stops the supervisor, waits for it to exit and closes the handle.
func (c *Connector) Close() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	c.mu.Lock()
	db := c.db
	c.db = nil
	c.mu.Unlock()
	if db != nil {
		return db.Close()
	}
	return nil
}

func (c *Connector) supervise(ctx context.Context, dsn string, connected bool) {
	defer close(c.done)
	for {
		if !connected && !c.retry(ctx, dsn) {
			return
		}
		if !c.watch(ctx) {
			return
		}
		connected = false
	}
}

// retry sleeps the backoff and redials until it succeeds. It returns false
// when the context is cancelled first.
func (c *Connector) retry(ctx context.Context, dsn string) bool {
	timer := time.NewTimer(c.backoff)
	defer timer.Stop()

	for attempt := 2; ; attempt++ {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
		}
		if c.attempt(dsn, attempt) {
			return true
		}
		timer.Reset(c.backoff)
	}
}

// watch pings the live handle. It returns true after a lost connection has
// been dropped, false when the context is cancelled.
func (c *Connector) watch(ctx context.Context) bool {
	ticker := time.NewTicker(c.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}

		db, err := c.DB()
		if err != nil {
			return true
		}
		pingCtx, cancel := context.WithTimeout(ctx, c.healthInterval)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return false
		}
		log.Error().Err(err).Msg("Database connection lost, reconnecting in background")
		c.setDB(nil)
		db.Close()
		return true
	}
}

func (c *Connector) attempt(dsn string, attempt int) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Int("attempt", attempt).Msg("Database dial panicked")
			ok = false
		}
	}()

	db, err := c.open(dsn)
	if err != nil {
		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", c.backoff).Msg("Database connection failed")
		return false
	}
	if db == nil {
		log.Warn().Err(fmt.Errorf("dial returned no handle")).Int("attempt", attempt).Msg("Database connection failed")
		return false
	}
	c.setDB(db)
	log.Info().Int("attempt", attempt).Msg("Database connected")
	return true
}

func (c *Connector) setDB(db *sql.DB) {
	c.mu.Lock()
	c.db = db
	c.mu.Unlock()
	if c.onState != nil {
		c.onState(db != nil)
	}
}
