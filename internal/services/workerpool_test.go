package services

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkerPoolRunsAllTasks(t *testing.T) {
	p := NewWorkerPool(4, 16)
	var count int64
	for i := 0; i < 100; i++ {
		p.Submit(func() { atomic.AddInt64(&count, 1) })
	}
	p.Shutdown()
	assert.Equal(t, int64(100), atomic.LoadInt64(&count))
}

func TestWorkerPoolOverflowRunsInline(t *testing.T) {
	// One worker stuck on a blocking task and a full queue force Submit
	// onto the caller's goroutine.
	p := NewWorkerPool(1, 1)
	block := make(chan struct{})
	started := make(chan struct{})
	p.Submit(func() { close(started); <-block })
	<-started
	p.Submit(func() {}) // fills the queue

	ran := make(chan struct{})
	done := make(chan struct{})
	go func() {
		p.Submit(func() { close(ran) })
		close(done)
	}()
	<-done
	select {
	case <-ran:
	default:
		t.Fatal("overflow task did not run inline")
	}

	close(block)
	p.Shutdown()
}

func TestWorkerPoolSubmitAfterShutdown(t *testing.T) {
	p := NewWorkerPool(2, 4)
	p.Shutdown()

	var mu sync.Mutex
	ran := false
	p.Submit(func() {
		mu.Lock()
		ran = true
		mu.Unlock()
	})
	mu.Lock()
	defer mu.Unlock()
	assert.True(t, ran, "tasks submitted after shutdown must run inline")
}
