package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "github.com/Nik4ant/SfuTelegramBot/internal/log"
)

// DefaultSpec resets the cache once a day.
const DefaultSpec = "@every 24h"

// Resetter is what gets reset on every tick.
type Resetter interface {
	Reset() error
}

// Job is an extra periodic task run next to the reset, e.g. pruning
// inactive profiles.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Scheduler periodically resets the image cache. Scheduled and manual
// resets go through the same function.
type Scheduler struct {
	target Resetter
	spec   string
	loc    *time.Location
	jobs   []Job

	mu        sync.Mutex
	cron      *cron.Cron
	resetID   cron.EntryID
	running   bool
	lastReset time.Time

	// resetMu serializes resets so a manual trigger and a tick never overlap.
	resetMu sync.Mutex
}

func New(target Resetter, spec string, loc *time.Location) *Scheduler {
	if spec == "" {
		spec = DefaultSpec
	}
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{target: target, spec: spec, loc: loc}
}

// AddJob registers an extra job. Must be called before Start.
func (s *Scheduler) AddJob(j Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, j)
}

// ValidateSpec reports whether spec is accepted by the scheduler.
func ValidateSpec(spec string) error {
	_, err := cron.ParseStandard(spec)
	return err
}

// Start performs one reset immediately and schedules the next ones. The
// schedule stops when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}

	c := cron.New(cron.WithLocation(s.loc))
	id, err := c.AddFunc(s.spec, func() {
		if err := s.Trigger(); err != nil {
			appLog.Error("scheduled cache reset failed", err)
		}
	})
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("refresh: bad schedule %q: %w", s.spec, err)
	}
	for _, j := range s.jobs {
		if _, err := c.AddFunc(j.Spec, func() {
			start := time.Now()
			if err := j.Run(ctx); err != nil {
				appLog.Error("scheduled job failed", err, "job", j.Name)
				return
			}
			appLog.Info("scheduled job done", "job", j.Name, "took", time.Since(start))
		}); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("refresh: bad schedule %q for %s: %w", j.Spec, j.Name, err)
		}
	}
	s.cron = c
	s.resetID = id
	s.running = true
	s.mu.Unlock()

	// The cache starts empty, but stale images from a previous run may
	// still be on disk.
	if err := s.Trigger(); err != nil {
		appLog.Error("initial cache reset failed", err)
	}

	c.Start()
	appLog.Info("refresh scheduler started", "spec", s.spec, "jobs", len(s.jobs))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts the schedule and waits for a running job to finish. Calling
// Stop more than once is harmless.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	c := s.cron
	s.running = false
	s.mu.Unlock()

	<-c.Stop().Done()
	appLog.Info("refresh scheduler stopped")
}

// Trigger resets the cache now. It is the same operation the schedule runs.
func (s *Scheduler) Trigger() error {
	if s.target == nil {
		return errors.New("refresh: no reset target")
	}
	s.resetMu.Lock()
	defer s.resetMu.Unlock()

	if err := s.target.Reset(); err != nil {
		return err
	}
	s.mu.Lock()
	s.lastReset = time.Now()
	s.mu.Unlock()
	return nil
}

// LastReset returns when the last successful reset finished.
func (s *Scheduler) LastReset() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReset
}

// Next returns when the next scheduled reset fires, zero if not running.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return time.Time{}
	}
	return s.cron.Entry(s.resetID).Next
}
