package mainloop

import (
	"sync"

	"github.com/X3n0m0rph59/precached/internal/prefetch"
)

// TaskScheduler queues deferred work raised during a tick for execution at
// the end of that same tick: worker-pool jobs run first (in parallel, one
// submission per job), then main-thread jobs run serially afterward.
//
// Grounded on original_source/src/util/task_scheduler.rs's
// backlog/main_backlog split (ScheduleJob vs RunOnMainThread) and
// run_jobs's submit-then-drain-main-backlog sequence. Must only be driven
// from MainLoop's own goroutine, matching the original's "must not be
// called from other threads" note.
type TaskScheduler struct {
	mu          sync.Mutex
	backlog     []func()
	mainBacklog []func()
	pool        *prefetch.Pool
}

// NewTaskScheduler binds a scheduler to the worker pool its backlog jobs
// run on.
func NewTaskScheduler(pool *prefetch.Pool) *TaskScheduler {
	return &TaskScheduler{pool: pool}
}

// ScheduleJob queues job to run on the worker pool after this tick.
func (s *TaskScheduler) ScheduleJob(job func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backlog = append(s.backlog, job)
}

// RunOnMainThread queues job to run serially on the main loop's own
// goroutine after this tick's worker-pool jobs have been submitted.
func (s *TaskScheduler) RunOnMainThread(job func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mainBacklog = append(s.mainBacklog, job)
}

// RunJobs submits the worker-pool backlog (without waiting for it to
// drain — callers needing a join point use a separate WaitGroup inside
// their own job), then runs the main-thread backlog serially. Both
// backlogs are cleared before running, so a job scheduling more work
// during RunJobs lands in the NEXT tick, not this one.
func (s *TaskScheduler) RunJobs() {
	s.mu.Lock()
	backlog := s.backlog
	mainBacklog := s.mainBacklog
	s.backlog = nil
	s.mainBacklog = nil
	s.mu.Unlock()

	for _, job := range backlog {
		job := job
		s.pool.Submit(job)
	}

	for _, job := range mainBacklog {
		job()
	}
}
