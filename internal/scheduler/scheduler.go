package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hzhao/stock-selector/pkg/logger"
)

// A-share sessions run on Beijing time; every cron expression is
// evaluated in this zone regardless of the host clock.
const cronLocation = "Asia/Shanghai"

// Scheduler wraps cron with named jobs and run history
// ⭐ SSOT: 定时任务的注册与移除只在这里
type Scheduler struct {
	cron    *cron.Cron
	logger  *logger.Logger
	entries map[string]cron.EntryID
	jobs    map[string]Job
	history map[string]*JobHistory
	mu      sync.RWMutex

	// Root context for every job run; cancelled by Stop so in-flight
	// jobs can bail out instead of riding out the grace period.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler with a seconds field and the exchange
// timezone.
func New(log *logger.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(cronLocation)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", cronLocation, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		logger:  log.WithField("component", "scheduler"),
		entries: make(map[string]cron.EntryID),
		jobs:    make(map[string]Job),
		history: make(map[string]*JobHistory),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// AddJob registers a job under its cron expression. Duplicate names
// are rejected.
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already exists", name)
	}

	id, err := s.cron.AddFunc(job.Schedule(), func() {
		s.runJob(job)
	})
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", name, err)
	}

	s.entries[name] = id
	s.jobs[name] = job
	s.history[name] = &JobHistory{}

	s.logger.WithFields(map[string]interface{}{
		"job":      name,
		"schedule": job.Schedule(),
	}).Info("Job registered")
	return nil
}

// RemoveJob unschedules a job. Used for dynamic jobs such as the
// per-date probe ticker.
func (s *Scheduler) RemoveJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, exists := s.entries[name]
	if !exists {
		return fmt.Errorf("job %s not found", name)
	}

	s.cron.Remove(id)
	delete(s.entries, name)
	delete(s.jobs, name)

	s.logger.WithField("job", name).Info("Job removed")
	return nil
}

// HasJob reports whether a job is currently scheduled.
func (s *Scheduler) HasJob(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.jobs[name]
	return exists
}

// RunJob triggers a job immediately, outside its schedule.
func (s *Scheduler) RunJob(name string) error {
	s.mu.RLock()
	job, exists := s.jobs[name]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("job %s not found", name)
	}

	go s.runJob(job)
	return nil
}

// Start begins dispatching scheduled jobs.
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.cron.Start()
}

// Stop stops dispatching, cancels the context running jobs were given,
// and waits up to grace for them to return.
func (s *Scheduler) Stop(grace time.Duration) {
	s.logger.Info("Stopping scheduler")

	s.cancel()
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
		s.logger.Info("Scheduler stopped")
	case <-time.After(grace):
		s.logger.Warn("Shutdown grace expired with jobs still running")
	}
}

// runJob executes one job and records the outcome. Jobs own their
// retry policy: the run-state machine re-enters failed dates on the
// next tick, so the scheduler never re-runs a job itself.
func (s *Scheduler) runJob(job Job) {
	name := job.Name()
	start := time.Now()

	s.logger.WithField("job", name).Info("Job started")

	err := job.Run(s.ctx)
	end := time.Now()

	result := JobResult{
		JobName:   name,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
		Success:   err == nil,
	}
	if err != nil {
		result.Error = err.Error()
	}

	s.mu.Lock()
	if history, exists := s.history[name]; exists {
		history.AddResult(result)
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.WithFields(map[string]interface{}{
			"job":      name,
			"duration": result.Duration,
			"error":    err.Error(),
		}).Error("Job failed")
		return
	}

	s.logger.WithFields(map[string]interface{}{
		"job":      name,
		"duration": result.Duration,
	}).Info("Job completed")
}

// History returns the run history for a job.
func (s *Scheduler) History(name string) (*JobHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, exists := s.history[name]
	if !exists {
		return nil, fmt.Errorf("job %s not found", name)
	}
	return history, nil
}

// JobNames returns all scheduled job names.
func (s *Scheduler) JobNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}
