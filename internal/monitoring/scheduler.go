package monitoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/isdelr/records-be/internal/metrics"
	"github.com/isdelr/records-be/internal/models"
	"github.com/isdelr/records-be/internal/services"
	"github.com/isdelr/records-be/internal/websocket"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// ErrJobRunning is returned by RunNow while another capture is in flight.
var ErrJobRunning = errors.New("a backup job is already running")

// Capturer takes a snapshot of every collection.
type Capturer interface {
	Capture(ctx context.Context, trigger string, actor *models.Actor) (models.WriteResult, error)
}

// Publisher pushes job updates to live clients.
type Publisher interface {
	Publish(topic, action string, payload interface{})
}

// Scheduler fires backup captures on a fixed interval and records every
// run in the job history.
type Scheduler struct {
	backupSvc Capturer
	history   *services.JobHistory
	publisher Publisher
	timeout   time.Duration
	cron      *cron.Cron
}

// NewScheduler creates a new scheduler instance. A zero timeout means captures are unbounded.
func NewScheduler(backupSvc Capturer, history *services.JobHistory, publisher Publisher, timeout time.Duration) *Scheduler {
	logger := cronLogger{}
	return &Scheduler{
		backupSvc: backupSvc,
		history:   history,
		publisher: publisher,
		timeout:   timeout,
		cron:      cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger))),
	}
}

// Start schedules a capture every interval, which must be a whole number of
// seconds. The cron goroutines never keep the process alive on their own.
func (s *Scheduler) Start(interval time.Duration) error {
	if interval < time.Second {
		return fmt.Errorf("backup interval must be at least 1s, got %v", interval)
	}
	// cron.Every truncates to whole seconds.
	if interval%time.Second != 0 {
		return fmt.Errorf("backup interval must be a whole number of seconds, got %v", interval)
	}
	s.cron.Schedule(cron.Every(interval), cron.FuncJob(s.tick))
	s.cron.Start()
	log.Info().Dur("interval", interval).Msg("Starting backup scheduler...")
	return nil
}

// StartSpec schedules captures from a cron expression such as "0 3 * * *" or "@every 6h".
func (s *Scheduler) StartSpec(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return fmt.Errorf("invalid backup schedule %q: %w", spec, err)
	}
	s.cron.Start()
	log.Info().Str("schedule", spec).Msg("Starting backup scheduler...")
	return nil
}

// Stop cancels future ticks. An in-flight capture keeps running; the
// returned context is done once it has finished.
func (s *Scheduler) Stop() context.Context {
	log.Info().Msg("Stopping backup scheduler.")
	return s.cron.Stop()
}

// RunNow performs a capture immediately through the same overlap guard as
// the timer. The capture is detached from ctx cancellation so a client
// hanging up does not truncate it.
func (s *Scheduler) RunNow(ctx context.Context, trigger string, actor *models.Actor) (models.JobRun, models.WriteResult, error) {
	run, ok := s.history.TryStart(trigger)
	if !ok {
		return run, models.WriteResult{}, ErrJobRunning
	}
	return s.execute(context.WithoutCancel(ctx), run, actor)
}

// Jobs returns the job history, most recent first.
func (s *Scheduler) Jobs() []models.JobRun {
	return s.history.List()
}

// tick is one timer firing. If the latest run is still running the tick is skipped, not queued.
func (s *Scheduler) tick() {
	run, ok := s.history.TryStart(models.TriggerScheduler)
	if !ok {
		metrics.SkippedTicks.Inc()
		log.Warn().Str("running_job_id", run.ID).Msg("Scheduler: previous backup still running, skipping tick")
		return
	}
	s.execute(context.Background(), run, nil)
}

// execute runs the capture for a started job and finishes the job exactly
// once, whatever the outcome.
func (s *Scheduler) execute(ctx context.Context, run models.JobRun, actor *models.Actor) (models.JobRun, models.WriteResult, error) {
	s.publish(run)
	log.Info().Str("job_id", run.ID).Str("trigger", run.Trigger).Msg("Scheduler: executing backup job")

	res, err := s.capture(ctx, run.Trigger, actor)

	finished, ok := s.history.Finish(run.ID, res.ID, err)
	if !ok {
		log.Error().Str("job_id", run.ID).Msg("Scheduler: job run vanished from history before it finished")
		finished = run
	}
	s.publish(finished)

	if err != nil {
		log.Error().Err(err).Str("job_id", run.ID).Msg("Scheduler: backup job failed")
		return finished, models.WriteResult{}, err
	}
	log.Info().Str("job_id", run.ID).Str("backup_id", res.ID).Msg("Scheduler: backup job succeeded")
	return finished, res, nil
}

func (s *Scheduler) capture(ctx context.Context, trigger string, actor *models.Actor) (res models.WriteResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("capture panicked: %v", r)
		}
	}()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.backupSvc.Capture(ctx, trigger, actor)
}

func (s *Scheduler) publish(run models.JobRun) {
	if s.publisher != nil {
		s.publisher.Publish(websocket.TopicJobs, websocket.ActionJobUpdate, run)
	}
}

// cronLogger routes robfig/cron's internal logging to zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
