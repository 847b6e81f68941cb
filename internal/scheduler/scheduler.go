// Package scheduler manages background jobs.
package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/dkaragian/verdict/internal/events"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// Scheduler manages background jobs
type Scheduler struct {
	cron     *cron.Cron
	eventBus *events.Bus
	log      zerolog.Logger
}

// New creates a new scheduler
func New(eventBus *events.Bus, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		eventBus: eventBus,
		log:      log.With().Str("component", "scheduler").Logger(),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a new job with cron schedule
// Schedule examples:
//   - "0 */5 * * * *"      - Every 5 minutes
//   - "@hourly"            - Every hour
//   - "@every 15m"         - Every 15 minutes
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.runJob(job)
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")
	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	s.runJob(job)
	return nil
}

func (s *Scheduler) runJob(job Job) {
	s.log.Debug().Str("job", job.Name()).Msg("Running job")
	s.publishStatus(job.Name(), "started", nil, 0)

	start := time.Now()
	err := job.Run()
	elapsed := time.Since(start)

	if err != nil {
		s.log.Error().
			Err(err).
			Str("job", job.Name()).
			Dur("elapsed", elapsed).
			Msg("Job failed")
		s.publishStatus(job.Name(), "failed", err, elapsed.Seconds())
		return
	}

	s.log.Debug().Str("job", job.Name()).Dur("elapsed", elapsed).Msg("Job completed")
	s.publishStatus(job.Name(), "completed", nil, elapsed.Seconds())
}

func (s *Scheduler) publishStatus(name, status string, err error, duration float64) {
	if s.eventBus == nil {
		return
	}
	data := &events.JobStatusData{
		JobName:   name,
		Status:    status,
		Duration:  duration,
		Timestamp: time.Now(),
	}
	if err != nil {
		data.Error = err.Error()
	}
	s.eventBus.Publish("scheduler", data)
}
