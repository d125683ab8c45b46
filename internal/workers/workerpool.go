package workers

import "sync"

// WorkerPool runs jobs on a fixed set of goroutines with a bounded queue.
// The image cache uses it to prefetch a menu's worth of images without
// unbounded goroutine fan-out.
type WorkerPool struct {
	jobCh    chan func()
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewWorkerPool starts workerCount workers over a queue of jobBufferSize.
func NewWorkerPool(workerCount, jobBufferSize int) *WorkerPool {
	wp := &WorkerPool{
		jobCh: make(chan func(), jobBufferSize),
	}
	for i := 0; i < workerCount; i++ {
		go wp.worker()
	}
	return wp
}

func (wp *WorkerPool) worker() {
	for job := range wp.jobCh {
		job()
	}
}

// AddJob enqueues a job without blocking; a full queue drops the job and
// returns false.
func (wp *WorkerPool) AddJob(job func()) bool {
	wp.wg.Add(1)
	select {
	case wp.jobCh <- func() {
		defer wp.wg.Done()
		job()
	}:
		return true
	default:
		wp.wg.Done()
		return false
	}
}

// Wait blocks until every accepted job has completed.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

// Stop closes the queue and waits for in-flight jobs.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		close(wp.jobCh)
		wp.wg.Wait()
	})
}
