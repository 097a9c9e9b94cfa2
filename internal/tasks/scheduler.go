package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/motifd/internal/auth"
	"github.com/desertthunder/motifd/internal/paths"
	"github.com/desertthunder/motifd/internal/providers"
	"github.com/desertthunder/motifd/internal/quota"
	"github.com/desertthunder/motifd/internal/shared"
)

// Archive receives terminal task snapshots for durable record keeping.
// Recording is best-effort; failures are logged, never surfaced to callers.
type Archive interface {
	Record(task Task) error
}

// SchedulerOpts contains the dependencies and limits for a Scheduler.
type SchedulerOpts struct {
	Gate        *auth.Gate
	Ledger      *quota.Ledger
	Guard       *paths.Guard
	Provider    providers.Provider
	Archive     Archive
	OutputDir   string
	Concurrency int
	Logger      *log.Logger
}

// Scheduler admits, queues and executes render tasks.
//
// Tasks are owned exclusively by the scheduler until terminal; Submit, Status
// and Cancel only touch metadata under a short-held mutex and never block on
// an in-flight provider call. At most Concurrency tasks run at once; the rest
// wait in FIFO arrival order.
type Scheduler struct {
	gate     *auth.Gate
	ledger   *quota.Ledger
	guard    *paths.Guard
	provider providers.Provider
	archive  Archive
	outDir   string
	workers  int
	logger   *log.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	tasks   map[string]*Task
	queue   []string
	cancels map[string]context.CancelFunc
	done    map[string]chan struct{}
	closed  bool

	wg sync.WaitGroup
}

// NewScheduler creates a Scheduler. Concurrency below 1 is raised to 1 so a
// misconfigured limit can never wedge the queue entirely.
func NewScheduler(opts SchedulerOpts) *Scheduler {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	s := &Scheduler{
		gate:     opts.Gate,
		ledger:   opts.Ledger,
		guard:    opts.Guard,
		provider: opts.Provider,
		archive:  opts.Archive,
		outDir:   opts.OutputDir,
		workers:  opts.Concurrency,
		logger:   opts.Logger,
		tasks:    make(map[string]*Task),
		cancels:  make(map[string]context.CancelFunc),
		done:     make(map[string]chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start launches the worker pool. Workers exit when ctx is cancelled or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop wakes all idle workers and waits for them to exit. Queued tasks stay
// queued; running tasks finish their current checkpoint-bounded work.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
	s.wg.Wait()
}

// Submit runs the admission gates in order (auth, quota, path validation) and
// creates a queued task. Returns the task id immediately; rendering happens in
// the background. The first failing gate's error is returned and no task is
// created.
func (s *Scheduler) Submit(ctx context.Context, authHeader string, input Input, params providers.Params) (string, error) {
	owner, err := s.gate.Authenticate(authHeader)
	if err != nil {
		return "", err
	}

	allowed, err := s.ledger.CheckAndConsume(ctx, owner)
	if err != nil {
		return "", err
	}
	if !allowed {
		return "", fmt.Errorf("%w: daily free quota reached for this account", shared.ErrQuotaExceeded)
	}

	inputPath, err := s.resolveInput(input)
	if err != nil {
		return "", err
	}

	task := &Task{
		ID:        shared.GenerateID(),
		Owner:     owner,
		Status:    StatusQueued,
		InputPath: inputPath,
		Params:    params,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.tasks[task.ID] = task
	s.done[task.ID] = make(chan struct{})
	s.queue = append(s.queue, task.ID)
	s.cond.Signal()
	s.mu.Unlock()

	s.logger.Info("task queued", "task", task.ID, "owner", owner, "input", filepath.Base(inputPath))
	return task.ID, nil
}

// resolveInput validates a path input against the guard, or persists an
// inline payload into the output directory.
func (s *Scheduler) resolveInput(input Input) (string, error) {
	if len(input.Data) > 0 {
		name := input.Name
		if name == "" {
			name = "input.mid"
		}
		ext := filepath.Ext(name)
		if ext == "" {
			ext = ".mid"
		}
		path := filepath.Join(s.outDir, fmt.Sprintf("upload_%s%s", shared.GenerateID()[:8], ext))
		if err := os.WriteFile(path, input.Data, 0644); err != nil {
			return "", fmt.Errorf("%w: failed to persist uploaded input: %v", shared.ErrServiceUnavailable, err)
		}
		return path, nil
	}
	if input.Path == "" {
		return "", fmt.Errorf("%w: either an input path or an inline payload is required", shared.ErrValidation)
	}
	return s.guard.ResolveFile(input.Path)
}

// Status returns a snapshot of the task, enforcing ownership.
func (s *Scheduler) Status(id, owner string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(id, owner)
}

// Cancel requests cancellation of a task, enforcing ownership.
//
// Queued tasks become cancelled immediately and never reach the provider.
// Running tasks have their context cancelled; the provider observes it at its
// next retry or poll boundary. Cancelling a terminal task is a no-op that
// returns the existing snapshot.
func (s *Scheduler) Cancel(id, owner string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("%w: unknown task", shared.ErrNotFound)
	}
	if task.Owner != owner {
		return Task{}, fmt.Errorf("%w: task belongs to a different owner", shared.ErrForbidden)
	}
	if task.Status.Terminal() {
		return task.snapshot(), nil
	}

	task.CancelRequested = true
	switch task.Status {
	case StatusQueued:
		s.completeLocked(task, StatusCancelled)
		s.logger.Info("task cancelled before start", "task", id)
	case StatusRunning:
		if cancel, ok := s.cancels[id]; ok {
			cancel()
		}
		s.logger.Info("task cancellation requested", "task", id)
	}

	return task.snapshot(), nil
}

// Wait blocks until the task reaches a terminal state and returns its final
// snapshot. Intended for the development-only synchronous mode and the CLI.
func (s *Scheduler) Wait(ctx context.Context, id, owner string) (Task, error) {
	s.mu.Lock()
	if _, err := s.snapshotLocked(id, owner); err != nil {
		s.mu.Unlock()
		return Task{}, err
	}
	done := s.done[id]
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return Task{}, ctx.Err()
	case <-done:
	}
	return s.Status(id, owner)
}

// worker pulls queued task ids in FIFO order and drives each to completion.
func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}

		id := s.queue[0]
		s.queue = s.queue[1:]
		task := s.tasks[id]
		if task == nil || task.Status != StatusQueued {
			// Cancelled while waiting in the queue.
			s.mu.Unlock()
			continue
		}

		now := time.Now()
		task.Status = StatusRunning
		task.StartedAt = &now
		taskCtx, cancel := context.WithCancel(ctx)
		s.cancels[id] = cancel
		if task.CancelRequested {
			cancel()
		}
		input, params := task.InputPath, task.Params
		s.mu.Unlock()

		s.execute(taskCtx, id, input, params)
		cancel()
	}
}

// execute runs the provider call for one task and records the terminal state.
func (s *Scheduler) execute(ctx context.Context, id, input string, params providers.Params) {
	started := time.Now()
	artifact, err := s.provider.Render(ctx, input, params, func(percent int) {
		s.setProgress(id, percent)
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok || task.Status.Terminal() {
		return
	}
	delete(s.cancels, id)

	switch {
	case err != nil && (errors.Is(err, context.Canceled) || task.CancelRequested && ctx.Err() != nil):
		s.completeLocked(task, StatusCancelled)
		s.logger.Info("task cancelled", "task", id, "elapsed", time.Since(started))
	case err != nil:
		task.Error = &TaskError{Code: shared.CodeFor(err), Message: err.Error()}
		task.Progress = 100
		s.completeLocked(task, StatusFailed)
		s.logger.Error("task failed", "task", id, "code", task.Error.Code, "err", err)
	default:
		task.Result = &Result{
			AudioPath:   artifact.Path,
			AudioURL:    artifact.URL,
			Format:      artifact.Format,
			DurationSec: artifact.DurationSec,
			Provider:    artifact.Provider,
		}
		task.Progress = 100
		s.completeLocked(task, StatusSucceeded)
		s.logger.Info("task succeeded", "task", id, "provider", artifact.Provider, "elapsed", time.Since(started))
	}
}

// completeLocked moves a task into a terminal state exactly once.
// Callers must hold s.mu.
func (s *Scheduler) completeLocked(task *Task, status Status) {
	if task.Status.Terminal() {
		return
	}
	now := time.Now()
	task.Status = status
	task.CompletedAt = &now
	if done, ok := s.done[task.ID]; ok {
		close(done)
	}
	if s.archive != nil {
		snap := task.snapshot()
		go func() {
			if err := s.archive.Record(snap); err != nil {
				s.logger.Warn("failed to archive task record", "task", snap.ID, "err", err)
			}
		}()
	}
}

// setProgress records best-effort progress, clamped to 0..100. Updates after
// a task turned terminal are dropped.
func (s *Scheduler) setProgress(id string, percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if task, ok := s.tasks[id]; ok && !task.Status.Terminal() {
		task.Progress = percent
	}
}

// snapshotLocked fetches a task snapshot with ownership enforcement.
// Callers must hold s.mu.
func (s *Scheduler) snapshotLocked(id, owner string) (Task, error) {
	task, ok := s.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("%w: unknown task", shared.ErrNotFound)
	}
	if task.Owner != owner {
		return Task{}, fmt.Errorf("%w: task belongs to a different owner", shared.ErrForbidden)
	}
	return task.snapshot(), nil
}
