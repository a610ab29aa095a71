// Package jobs runs registered background jobs on fixed intervals. It backs
// the nightly auto-settlement pass; anything periodic the server grows later
// registers here too.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"timecoach/app/pkg/logger"
)

var (
	ErrJobExists    = errors.New("jobs: job already exists")
	ErrAlreadyStart = errors.New("jobs: already started")
)

type JobSpec struct {
	Name       string
	Interval   time.Duration
	Timeout    time.Duration
	RunOnStart bool
	Run        func(context.Context) error
}

type JobStatus struct {
	Name        string
	Runs        int64
	LastStartAt time.Time
	LastEndAt   time.Time
	LastError   string
}

type Runner struct {
	mu      sync.Mutex
	jobs    map[string]JobSpec
	status  map[string]JobStatus
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewRunner() *Runner {
	return &Runner{
		jobs:   make(map[string]JobSpec),
		status: make(map[string]JobStatus),
	}
}

func (r *Runner) Register(job JobSpec) error {
	if job.Name == "" || job.Run == nil || job.Interval <= 0 {
		return fmt.Errorf("jobs: invalid job spec %q", job.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.Name]; exists {
		return fmt.Errorf("%w: %s", ErrJobExists, job.Name)
	}
	r.jobs[job.Name] = job
	r.status[job.Name] = JobStatus{Name: job.Name}
	if r.started {
		r.startJobLocked(job)
	}
	return nil
}

func (r *Runner) Start(parent context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return ErrAlreadyStart
	}
	r.ctx, r.cancel = context.WithCancel(parent)
	r.started = true
	for _, job := range r.jobs {
		r.startJobLocked(job)
	}
	return nil
}

func (r *Runner) startJobLocked(job JobSpec) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if job.RunOnStart {
			r.runOnce(job)
		}
		ticker := time.NewTicker(job.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				r.runOnce(job)
			}
		}
	}()
}

func (r *Runner) runOnce(job JobSpec) {
	runCtx := r.ctx
	var cancel context.CancelFunc
	if job.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(r.ctx, job.Timeout)
		defer cancel()
	}

	startAt := time.Now()
	err := job.Run(runCtx)
	endAt := time.Now()
	if err != nil {
		logger.Error("job %s failed: %v", job.Name, err)
	}

	r.mu.Lock()
	st := r.status[job.Name]
	st.Runs++
	st.LastStartAt = startAt
	st.LastEndAt = endAt
	st.LastError = ""
	if err != nil {
		st.LastError = err.Error()
	}
	r.status[job.Name] = st
	r.mu.Unlock()
}

func (r *Runner) Status() []JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]JobStatus, 0, len(r.status))
	for _, st := range r.status {
		items = append(items, st)
	}
	return items
}

// Stop cancels all jobs and waits up to timeout for them to drain.
func (r *Runner) Stop(timeout time.Duration) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	r.cancel()
	r.started = false
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("jobs: shutdown timed out")
	}
}
