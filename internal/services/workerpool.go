package services

import "sync"

// WorkerPool runs async work (push fan-out, batch status flips) off the
// request path on a fixed number of goroutines with a bounded queue. When
// the queue is full the task runs on the submitting goroutine instead, so
// bursts slow callers down rather than dropping work.
type WorkerPool struct {
	tasks chan func()
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewWorkerPool(workers, queueSize int) *WorkerPool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	p := &WorkerPool{tasks: make(chan func(), queueSize)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task()
			}
		}()
	}
	return p
}

// Submit queues the task, running it inline when the queue is full or the
// pool has shut down. Work is never dropped.
func (p *WorkerPool) Submit(task func()) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		task()
		return
	}
	select {
	case p.tasks <- task:
		p.mu.RUnlock()
	default:
		p.mu.RUnlock()
		task()
	}
}

// Shutdown stops accepting queued work and waits for in-flight tasks.
func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}
