// Package processor implements the bounded async processor: a dispatcher
// that accepts arbitrarily many submitted units of work and runs at most
// N concurrently, admission-controlling access to an external,
// IP-rate-limited API. It is not a general task scheduler: no priorities,
// no preemption, no work stealing.
package processor

import (
	"context"
	"errors"
	"sync"

	"github.com/quilan1/ffxiv-market-query/internal/metrics"
)

// ErrDisconnected is returned by Submit once Disconnect has been called.
var ErrDisconnected = errors.New("processor: disconnected, not accepting submissions")

// Task is a unit of work. Its return value encodes its own success or
// failure; the Processor never inspects it.
type Task func() any

type job struct {
	id       uint64
	task     Task
	resultCh chan any
}

// Processor is a process-lifetime bounded dispatcher. Submissions are
// admitted into the active set strictly FIFO and run concurrently up to
// maxActive; completion order is arbitrary.
type Processor struct {
	maxActive int

	mu          sync.Mutex
	queue       []*job
	nextID      uint64
	numFinished uint64
	disconnected bool

	wake chan struct{}
	done chan struct{}
}

// New creates a Processor that runs at most maxActive submissions
// concurrently and starts its dispatch loop immediately.
func New(maxActive int) *Processor {
	if maxActive < 1 {
		maxActive = 1
	}
	p := &Processor{
		maxActive: maxActive,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go p.run()
	return p
}

// Submission is a handle to a single submitted Task: its admission-order
// ID and a future that resolves to the task's return value. Dropping a
// Submission without waiting on it does not cancel the underlying task.
type Submission struct {
	id       uint64
	resultCh <-chan any
}

// ID returns the submission's monotonically increasing ID.
func (s Submission) ID() uint64 { return s.id }

// Wait blocks until the task completes or ctx is done.
func (s Submission) Wait(ctx context.Context) (any, error) {
	select {
	case v := <-s.resultCh:
		return v, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Submit enqueues a task and returns its Submission immediately. IDs are
// assigned under a short critical section and are strictly increasing in
// submission order.
func (p *Processor) Submit(task Task) (Submission, error) {
	p.mu.Lock()
	if p.disconnected {
		p.mu.Unlock()
		return Submission{}, ErrDisconnected
	}
	id := p.nextID
	p.nextID++
	resultCh := make(chan any, 1)
	p.queue = append(p.queue, &job{id: id, task: task, resultCh: resultCh})
	queueLen := len(p.queue)
	p.mu.Unlock()

	metrics.ProcessorSubmissionsTotal.Inc()
	metrics.ProcessorQueuedTasks.Set(float64(queueLen))

	p.signalWake()
	return Submission{id: id, resultCh: resultCh}, nil
}

// Disconnect stops accepting new submissions. Already-queued and active
// work drains to completion; Wait then returns once drained.
func (p *Processor) Disconnect() {
	p.mu.Lock()
	p.disconnected = true
	p.mu.Unlock()
	p.signalWake()
}

// NumFinished returns the number of submissions that have completed so
// far. It is used for queue-position display; it never blocks.
func (p *Processor) NumFinished() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.numFinished
}

// Wait blocks until the processor has disconnected and fully drained, or
// ctx is done.
func (p *Processor) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Processor) signalWake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// run is the single dispatch loop: it admits queued jobs into the active
// set FIFO, up to maxActive, and tracks completions. No lock is held
// across a task's execution.
func (p *Processor) run() {
	active := 0
	activeDone := make(chan struct{}, p.maxActive)

	for {
		p.mu.Lock()
		for len(p.queue) > 0 && active < p.maxActive {
			j := p.queue[0]
			p.queue = p.queue[1:]
			active++
			go func(j *job) {
				j.resultCh <- j.task()
				activeDone <- struct{}{}
			}(j)
		}
		drained := p.disconnected && len(p.queue) == 0 && active == 0
		queueLen := len(p.queue)
		p.mu.Unlock()

		metrics.ProcessorActiveTasks.Set(float64(active))
		metrics.ProcessorQueuedTasks.Set(float64(queueLen))

		if drained {
			close(p.done)
			return
		}

		select {
		case <-p.wake:
		case <-activeDone:
			p.mu.Lock()
			active--
			p.numFinished++
			p.mu.Unlock()
			metrics.ProcessorFinishedTotal.Inc()
			metrics.ProcessorActiveTasks.Set(float64(active))
		}
	}
}
