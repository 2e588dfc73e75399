package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// ErrQueueFull is returned by Submit when the job queue is at capacity.
// Callers should surface it as backpressure rather than blocking.
var ErrQueueFull = errors.New("job queue is full")

// Job is a unit of background work tied to a tracked task id.
type Job struct {
	TaskID string
	Run    func(ctx context.Context) (result string, err error)
}

// RunnerConfig sizes the runner. Zero values fall back to two workers, a
// queue of 32 and a thirty minute per-job deadline.
type RunnerConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// Runner executes jobs on a fixed pool of workers fed by a bounded queue.
// Each job runs under its own deadline; a panic inside a job is captured
// and recorded as an error status instead of taking the process down.
type Runner struct {
	tracker *Tracker
	workers int
	timeout time.Duration

	queue  chan Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewRunner builds a runner over the tracker. Call Start before Submit.
func NewRunner(tracker *Tracker, cfg RunnerConfig) *Runner {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 32
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		tracker: tracker,
		workers: workers,
		timeout: timeout,
		queue:   make(chan Job, queueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the worker goroutines. Safe to call once.
func (r *Runner) Start() {
	r.startOnce.Do(func() {
		for i := 0; i < r.workers; i++ {
			r.wg.Add(1)
			go r.worker(i)
		}
		slog.Info("task runner started", "workers", r.workers, "queue", cap(r.queue))
	})
}

// Submit enqueues a job after recording its processing status. When the
// queue is full it returns ErrQueueFull and marks the task as errored so
// the caller's task id never dangles.
func (r *Runner) Submit(ctx context.Context, job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %s has no work function", job.TaskID)
	}
	if err := r.tracker.Set(ctx, job.TaskID, StatusProcessing, "", "Task accepted"); err != nil {
		return err
	}

	select {
	case r.queue <- job:
		return nil
	default:
		_ = r.tracker.Set(ctx, job.TaskID, StatusError, "", "Server is busy, try again later")
		return ErrQueueFull
	}
}

// Stop cancels in-flight jobs and waits for the workers to drain.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		r.cancel()
		close(r.queue)
		r.wg.Wait()
		slog.Info("task runner stopped")
	})
}

func (r *Runner) worker(id int) {
	defer r.wg.Done()
	for job := range r.queue {
		select {
		case <-r.ctx.Done():
			_ = r.tracker.Set(context.Background(), job.TaskID, StatusError, "", "Server shutting down")
			continue
		default:
		}
		r.execute(id, job)
	}
}

func (r *Runner) execute(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()

	start := time.Now()
	if err := r.tracker.Set(ctx, job.TaskID, StatusRunning, "", "Crew is running"); err != nil {
		slog.Warn("mark task running", "task_id", job.TaskID, "error", err)
	}

	result, err := r.run(ctx, job)
	// Status writes after the deadline must still land in the store.
	bg := context.Background()
	switch {
	case err == nil:
		_ = r.tracker.Set(bg, job.TaskID, StatusSuccess, result, "Crew completed")
		slog.Info("task finished", "task_id", job.TaskID, "worker", workerID,
			"duration", time.Since(start).Round(time.Millisecond))
	case errors.Is(err, context.DeadlineExceeded):
		_ = r.tracker.Set(bg, job.TaskID, StatusError, "",
			fmt.Sprintf("Task timed out after %s", r.timeout))
		slog.Warn("task timed out", "task_id", job.TaskID, "timeout", r.timeout)
	default:
		_ = r.tracker.Set(bg, job.TaskID, StatusError, "", err.Error())
		slog.Error("task failed", "task_id", job.TaskID, "error", err)
	}
}

// run invokes the job and converts panics into errors.
func (r *Runner) run(ctx context.Context, job Job) (result string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task panicked: %v", rec)
			slog.Error("task panic", "task_id", job.TaskID, "panic", rec,
				"stack", string(debug.Stack()))
		}
	}()
	return job.Run(ctx)
}
