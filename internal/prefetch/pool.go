package prefetch

import (
	"runtime"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/X3n0m0rph59/precached/internal/logging"
)

// Pool is a bounded, niceness-classed goroutine pool dedicated to
// cache-priming jobs, grounded on
// original_source/src/util/thread_pool.rs's PrefetchThreadPool (bounded
// size, explicit niceness, spread affinity). Go has no direct thread
// affinity primitive exposed to goroutines, so "spread affinity" is
// approximated by pinning each worker goroutine to its own OS thread via
// runtime.LockOSThread and letting the Go scheduler's default spreading
// across Ms do the rest — the niceness class is what the kernel actually
// honors for scheduling priority.
type Pool struct {
	jobs chan func()
	wg   sync.WaitGroup
}

// NewPool starts n worker goroutines, each niced to the given value
// (Linux `nice`, e.g. WORKER_THREAD_NICENESS=4 for the worker pool or
// NUM_PREFETCHER_THREADS' implicit niceness for the prefetch pool).
func NewPool(n int, nice int) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{jobs: make(chan func(), n*4)}
	log := logging.For("prefetch-pool")

	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func(worker int) {
			defer p.wg.Done()
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()

			if err := unix.Setpriority(unix.PRIO_PROCESS, 0, nice); err != nil {
				log.Warn("failed to set worker niceness", "worker", worker, "nice", nice, "error", err)
			}

			for job := range p.jobs {
				job()
			}
		}(i)
	}

	return p
}

// Submit enqueues a job. Blocks if the pool's backlog is full, applying
// natural backpressure rather than an unbounded queue.
func (p *Pool) Submit(job func()) {
	p.jobs <- job
}

// Close stops accepting new jobs and waits for in-flight jobs to finish.
func (p *Pool) Close() {
	close(p.jobs)
	p.wg.Wait()
}
