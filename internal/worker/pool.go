package worker

import (
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog/log"

	"rtb-client/internal/observability"
)

// Pool runs tasks on background goroutines with a cap on how many run at once.
// Submit never blocks: tasks beyond the cap wait for a slot off the caller's goroutine.
type Pool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

func New(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Size is the concurrency cap.
func (p *Pool) Size() int { return cap(p.sem) }

// Submit schedules fn under the concurrency cap.
func (p *Pool) Submit(fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.sem <- struct{}{}
		defer func() { <-p.sem }()
		run(fn)
	}()
}

// Go schedules fn outside the cap. Used for tasks that wait on other pool tasks.
func (p *Pool) Go(fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		run(fn)
	}()
}

// Wait blocks until every scheduled task has returned.
func (p *Pool) Wait() { p.wg.Wait() }

func run(fn func()) {
	observability.WorkersActive.Inc()
	defer observability.WorkersActive.Dec()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("worker task panicked")
		}
	}()
	fn()
}
