// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dispatch runs the fixed-size worker pool that drains the
// in-memory priority queue and hands each message to the sender.
package dispatch

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/btouchard/dispatchd/internal/domain/models"
	"github.com/btouchard/dispatchd/internal/domain/retrypolicy"
	"github.com/btouchard/dispatchd/pkg/logger"
)

const dequeueTimeout = time.Second

// sender is the slice of email.Sender that Dispatcher depends on.
type sender interface {
	Send(ctx context.Context, messageID int64) models.SendOutcome
}

// retryHandler is the slice of retrypolicy.Policy that Dispatcher depends on.
type retryHandler interface {
	Handle(ctx context.Context, messageID int64) (retrypolicy.Decision, error)
}

// Dispatcher owns the priority queue and a fixed pool of workers that pull
// from it, send, and requeue on retryable failure.
type Dispatcher struct {
	mu     sync.Mutex
	queue  priorityQueue
	seq    uint64
	notify chan struct{}

	sender  sender
	retry   retryHandler
	workers int

	lifecycle sync.Mutex
	started   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func New(s sender, retry retryHandler, workers int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		sender:  s,
		retry:   retry,
		workers: workers,
		notify:  make(chan struct{}, 1),
	}
}

// Enqueue adds messageID to the queue at the given priority, assigning it
// the next monotonic sequence number so equal-priority jobs are processed
// in submission order.
func (d *Dispatcher) Enqueue(priority int, messageID int64) {
	d.mu.Lock()
	d.seq++
	heap.Push(&d.queue, &job{priority: priority, seq: d.seq, messageID: messageID})
	d.mu.Unlock()

	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// Len reports the current queue depth, mainly for tests and diagnostics.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Start spins up the worker pool. Calling Start on an already-started
// Dispatcher is a no-op.
func (d *Dispatcher) Start(ctx context.Context) {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	if d.started {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.started = true

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.runWorker(ctx)
	}

	logger.Logger.Info("dispatcher started", "workers", d.workers)
}

// Stop cancels all workers and waits for them to drain, up to 5 seconds.
func (d *Dispatcher) Stop() error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	if !d.started {
		return nil
	}

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Logger.Warn("dispatcher stop timed out waiting for workers")
	}

	d.started = false
	return nil
}

func (d *Dispatcher) runWorker(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		j, ok := d.dequeue(ctx)
		if !ok {
			continue
		}

		// A dequeued job runs to completion even if Stop cancels ctx meanwhile.
		d.safeProcessJob(context.WithoutCancel(ctx), j)
	}
}

// safeProcessJob runs processJob behind a recover so a single unexpected
// panic degrades one attempt instead of killing the worker goroutine.
func (d *Dispatcher) safeProcessJob(ctx context.Context, j *job) {
	defer func() {
		if r := recover(); r != nil {
			logger.Logger.Error("worker recovered from panic", "message_id", j.messageID, "panic", r)
			time.Sleep(time.Second)
		}
	}()

	d.processJob(ctx, j)
}

func (d *Dispatcher) dequeue(ctx context.Context) (*job, bool) {
	d.mu.Lock()
	if len(d.queue) > 0 {
		j := heap.Pop(&d.queue).(*job)
		d.mu.Unlock()
		return j, true
	}
	d.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, false
	case <-d.notify:
		return d.dequeue(ctx)
	case <-time.After(dequeueTimeout):
		return nil, false
	}
}

func (d *Dispatcher) processJob(ctx context.Context, j *job) {
	attemptID := uuid.NewString()
	log := logger.Logger.With("message_id", j.messageID, "attempt_id", attemptID, "priority", j.priority)

	outcome := d.sender.Send(ctx, j.messageID)
	log.Info("send attempt completed", "outcome", outcome.Kind, "info", outcome.Info)
	if !outcome.Failed() {
		return
	}

	decision, err := d.retry.Handle(ctx, j.messageID)
	if err != nil {
		log.Error("retry evaluation failed", "error", err)
		return
	}

	if decision.Requeue {
		d.Enqueue(decision.Priority, j.messageID)
	}
}
