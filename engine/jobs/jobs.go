// Package jobs runs CPU work, such as decoding images, on a fixed pool of
// workers.
package jobs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/lumen/engine/core"
)

var (
	ErrNoWorkers         = fmt.Errorf("attempting to create worker pool with less than 1 worker")
	ErrNegativeQueueSize = fmt.Errorf("attempting to create worker pool with a negative queue size")
	ErrClosed            = errors.New("job pool is shut down")
)

// Task is one unit of work. OnComplete or OnFailure runs on the worker after
// Run returns.
type Task struct {
	Name       string
	Run        func() error
	OnComplete func()
	OnFailure  func(err error)
}

type Pool struct {
	workers int
	queue   chan Task
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewPool(workers int, queueSize int) (*Pool, error) {
	if workers <= 0 {
		return nil, ErrNoWorkers
	}
	if queueSize < 0 {
		return nil, ErrNegativeQueueSize
	}
	p := &Pool{
		workers: workers,
		queue:   make(chan Task, queueSize),
	}
	p.start()
	core.LogDebug("job pool started with %d workers", workers)
	return p, nil
}

func (p *Pool) start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for t := range p.queue {
				p.run(t)
			}
		}()
	}
}

func (p *Pool) run(t Task) {
	if err := t.Run(); err != nil {
		core.LogError("job %s failed: %v", t.Name, err)
		if t.OnFailure != nil {
			t.OnFailure(err)
		}
		return
	}
	if t.OnComplete != nil {
		t.OnComplete()
	}
}

// Submit queues t, blocking while the queue is full.
func (p *Pool) Submit(t Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	p.queue <- t
	return nil
}

// RunAll runs every function on the pool and waits for all of them. The
// errors are joined in the order of fns.
func (p *Pool) RunAll(name string, fns []func() error) error {
	errs := make([]error, len(fns))
	var wg sync.WaitGroup
	for i, fn := range fns {
		wg.Add(1)
		err := p.Submit(Task{
			Name:       fmt.Sprintf("%s[%d]", name, i),
			Run:        fn,
			OnComplete: wg.Done,
			OnFailure: func(err error) {
				errs[i] = err
				wg.Done()
			},
		})
		if err != nil {
			errs[i] = err
			wg.Done()
		}
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Shutdown drains the queue and stops the workers.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}
