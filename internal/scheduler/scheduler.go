// Package scheduler runs the briefing pipeline on a daily cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultJobTimeout bounds a single scheduled run
const DefaultJobTimeout = 30 * time.Minute

// Job is a scheduled task
type Job func(ctx context.Context) error

// Scheduler manages named cron jobs in one timezone
type Scheduler struct {
	cron     *cron.Cron
	timezone *time.Location

	mu   sync.Mutex
	jobs map[string]cron.EntryID

	// JobTimeout bounds each run; zero means DefaultJobTimeout
	JobTimeout time.Duration
}

// New creates a scheduler in the given IANA timezone
func New(timezone string) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", timezone, err)
	}

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		jobs:     make(map[string]cron.EntryID),
		timezone: loc,
	}, nil
}

// AddJob registers job under name with a standard five-field cron spec
func (s *Scheduler) AddJob(name, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s is already scheduled", name)
	}

	entryID, err := s.cron.AddFunc(spec, func() {
		s.run(name, job)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.jobs[name] = entryID
	log.Printf("[scheduler] Added job: %s (schedule: %s %s)", name, spec, s.timezone)
	return nil
}

// AddDailyJob runs job every day at timeStr ("07:00", "18:30")
func (s *Scheduler) AddDailyJob(name, timeStr string, job Job) error {
	spec, err := DailySpec(timeStr)
	if err != nil {
		return err
	}
	return s.AddJob(name, spec, job)
}

// DailySpec converts "HH:MM" into a cron spec
func DailySpec(timeStr string) (string, error) {
	t, err := time.Parse("15:04", timeStr)
	if err != nil {
		return "", fmt.Errorf("invalid time format %q, want HH:MM: %w", timeStr, err)
	}
	return fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour()), nil
}

func (s *Scheduler) run(name string, job Job) {
	timeout := s.JobTimeout
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	log.Printf("[scheduler] Starting job: %s", name)
	start := time.Now()

	if err := job(ctx); err != nil {
		log.Printf("[scheduler] Job %s failed: %v", name, err)
		return
	}
	log.Printf("[scheduler] Job %s completed in %v", name, time.Since(start).Round(time.Second))
}

// RemoveJob removes a scheduled job
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.jobs[name]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
		log.Printf("[scheduler] Removed job: %s", name)
	}
}

func (s *Scheduler) Start() {
	log.Println("[scheduler] Starting scheduler")
	s.cron.Start()
}

// Stop halts the scheduler. The returned context is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	log.Println("[scheduler] Stopping scheduler")
	return s.cron.Stop()
}

// RunNow executes job immediately with the job timeout
func (s *Scheduler) RunNow(ctx context.Context, name string, job Job) error {
	timeout := s.JobTimeout
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Printf("[scheduler] Running job now: %s", name)
	return job(ctx)
}

// JobInfo describes a scheduled job
type JobInfo struct {
	Name    string
	NextRun time.Time
	LastRun time.Time
}

// ListJobs returns the scheduled jobs. NextRun is only known once the
// scheduler has started.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, entryID := range s.jobs {
		entry := s.cron.Entry(entryID)
		if !entry.Valid() {
			continue
		}
		infos = append(infos, JobInfo{
			Name:    name,
			NextRun: entry.Next,
			LastRun: entry.Prev,
		})
	}
	return infos
}

// NextRun computes when a daily job at timeStr next fires after from
func NextRun(timeStr string, loc *time.Location, from time.Time) (time.Time, error) {
	spec, err := DailySpec(timeStr)
	if err != nil {
		return time.Time{}, err
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from.In(loc)), nil
}
