// Package scheduler runs the periodic maintenance jobs: the nightly fine
// sweep and audit retention cleanup.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

// JobStatus describes a registered job.
type JobStatus struct {
	Name     string     `json:"name"`
	Schedule string     `json:"schedule"`
	Running  bool       `json:"running"`
	LastRun  *time.Time `json:"last_run,omitempty"`
	LastErr  string     `json:"last_error,omitempty"`
	NextRun  *time.Time `json:"next_run,omitempty"`
}

type job struct {
	name     string
	schedule string
	fn       Job
	timeout  time.Duration
	entryID  cron.EntryID

	running bool
	lastRun *time.Time
	lastErr string
}

// Scheduler runs named jobs on five-field cron schedules. A job whose
// previous run is still in progress is skipped rather than stacked.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger

	mu        sync.RWMutex
	jobs      map[string]*job
	isRunning bool
	ctx       context.Context
	cancel    context.CancelFunc
}

func New(log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		cron: cron.New(cron.WithParser(parser)),
		log:  log.Named("scheduler"),
		jobs: make(map[string]*job),
		ctx:  context.Background(),
	}
}

// ValidateSchedule reports whether spec is a valid five-field cron expression.
func ValidateSchedule(spec string) error {
	_, err := parser.Parse(spec)
	return err
}

// NextRun returns the first activation of spec after from.
func NextRun(spec string, from time.Time) (time.Time, error) {
	sched, err := parser.Parse(spec)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}

// Add registers fn under name. timeout bounds each run; zero means none.
func (s *Scheduler) Add(name, spec string, timeout time.Duration, fn Job) error {
	if err := ValidateSchedule(spec); err != nil {
		return fmt.Errorf("invalid cron schedule '%s' for %s: %w", spec, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	j := &job{name: name, schedule: spec, fn: fn, timeout: timeout}
	entryID, err := s.cron.AddFunc(spec, func() { s.run(j) })
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	j.entryID = entryID
	s.jobs[name] = j
	return nil
}

// Start begins firing jobs. Cancelling ctx stops the scheduler.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.isRunning = true
	runCtx := s.ctx
	s.cron.Start()
	s.mu.Unlock()

	for _, st := range s.Status() {
		s.log.Info("job scheduled",
			zap.String("job", st.Name),
			zap.String("schedule", st.Schedule),
			zap.Timep("next_run", st.NextRun))
	}

	go func() {
		<-runCtx.Done()
		s.Stop()
	}()
}

// Stop stops firing jobs and waits for running ones to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.cancel()
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// RunNow runs the named job immediately in the background.
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	j, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown job %s", name)
	}
	go s.run(j)
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Status lists every registered job, ordered by registration.
func (s *Scheduler) Status() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	next := make(map[cron.EntryID]time.Time)
	if s.isRunning {
		for _, e := range s.cron.Entries() {
			next[e.ID] = e.Next
		}
	}

	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		st := JobStatus{
			Name:     j.name,
			Schedule: j.schedule,
			Running:  j.running,
			LastRun:  j.lastRun,
			LastErr:  j.lastErr,
		}
		if t, ok := next[j.entryID]; ok {
			st.NextRun = &t
		}
		out = append(out, st)
	}
	sortByEntry(out, s.jobs)
	return out
}

func sortByEntry(out []JobStatus, jobs map[string]*job) {
	for i := 1; i < len(out); i++ {
		for k := i; k > 0 && jobs[out[k].Name].entryID < jobs[out[k-1].Name].entryID; k-- {
			out[k], out[k-1] = out[k-1], out[k]
		}
	}
}

func (s *Scheduler) run(j *job) {
	s.mu.Lock()
	if j.running {
		s.mu.Unlock()
		s.log.Info("job skipped, previous run still in progress", zap.String("job", j.name))
		return
	}
	j.running = true
	ctx := s.ctx
	s.mu.Unlock()

	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	start := time.Now().UTC()
	err := j.fn(ctx)

	s.mu.Lock()
	j.running = false
	j.lastRun = &start
	j.lastErr = ""
	if err != nil {
		j.lastErr = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error("job failed", zap.String("job", j.name), zap.Error(err))
		return
	}
	s.log.Info("job finished", zap.String("job", j.name), zap.Duration("duration", time.Since(start)))
}
