// Package concurrency bounds how many requests per model may run at once,
// queueing the rest up to a configured limit and rejecting beyond that.
// Mirrors the teacher's internal/infrastructure/llm.Router in spirit
// (per-entity stats under a guarded map) but tracks admission slots rather
// than provider failover.
package concurrency

import (
	"container/list"
	"context"
	"sync"
	"time"

	apperr "github.com/sentrygate/gateway/pkg/errors"
)

// ewmaAlpha weights each new sample against the running average.
const ewmaAlpha = 0.2

func ewma(prev, sample float64, n int64) float64 {
	if n <= 1 {
		return sample
	}
	return ewmaAlpha*sample + (1-ewmaAlpha)*prev
}

// Stats is a point-in-time snapshot of one model's queue.
type Stats struct {
	Model         string  `json:"model"`
	ParallelLimit int     `json:"parallel_limit"`
	QueueLimit    int     `json:"queue_limit"`
	Active        int     `json:"active"`
	Queued        int     `json:"queued"`
	Processed     int64   `json:"processed"`
	Rejected      int64   `json:"rejected"`
	EwmaWaitMs    float64 `json:"ewma_wait_ms"`
	EwmaProcessMs float64 `json:"ewma_process_ms"`
}

// waiter is one admitted-but-not-yet-slotted request in FIFO order.
type waiter struct {
	ch         chan struct{}
	enqueuedAt time.Time
	granted    bool
	canceled   bool
}

// modelQueue is the per-model admission queue: a bounded wait list guarding
// a bounded number of active slots.
type modelQueue struct {
	model string

	mu            sync.Mutex
	parallelLimit int
	queueLimit    int
	queued        int
	active        int
	processed     int64
	rejected      int64
	ewmaWaitMs    float64
	ewmaProcessMs float64
	waiters       list.List
}

func newModelQueue(model string, parallelLimit, queueLimit int) *modelQueue {
	return &modelQueue{model: model, parallelLimit: parallelLimit, queueLimit: queueLimit}
}

// admit enqueues the caller if room remains in the queue, returning an
// AdmissionTicket whose Acquire blocks for a free slot. It returns
// server_busy immediately if the queue is already full.
func (q *modelQueue) admit() (*AdmissionTicket, error) {
	q.mu.Lock()
	// Only reject when there is neither a free active slot nor room in
	// the queue: a queue_limit of 0 still allows a request that can run
	// immediately, and only rejects the ones that would have to wait.
	if q.active >= q.parallelLimit && q.queued >= q.queueLimit {
		q.rejected++
		q.mu.Unlock()
		return nil, apperr.New(apperr.KindServerBusy, "model queue is full")
	}
	q.queued++
	w := &waiter{ch: make(chan struct{}), enqueuedAt: time.Now()}
	q.waiters.PushBack(w)
	q.mu.Unlock()

	q.dispatch()
	return &AdmissionTicket{queue: q, waiter: w}, nil
}

// dispatch grants slots to front-of-line waiters while capacity allows.
func (q *modelQueue) dispatch() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.active < q.parallelLimit {
		e := q.waiters.Front()
		if e == nil {
			return
		}
		q.waiters.Remove(e)
		w := e.Value.(*waiter)
		if w.canceled {
			continue
		}
		w.granted = true
		q.queued--
		q.active++
		close(w.ch)
	}
}

// cancelWaiter removes a waiter that gave up before a slot was granted. If
// the waiter had already been granted a slot by the time the cancellation
// is observed, the now-unwanted slot is released instead.
func (q *modelQueue) cancelWaiter(w *waiter) {
	q.mu.Lock()
	if w.granted {
		q.active--
		q.mu.Unlock()
		q.dispatch()
		return
	}
	w.canceled = true
	q.queued--
	q.mu.Unlock()
}

// release returns a held slot and records how long it was held.
func (q *modelQueue) release(processMs float64) {
	q.mu.Lock()
	q.active--
	q.processed++
	q.ewmaProcessMs = ewma(q.ewmaProcessMs, processMs, q.processed)
	q.mu.Unlock()
	q.dispatch()
}

func (q *modelQueue) recordWait(waitMs float64) {
	q.mu.Lock()
	// Use processed+1 as a stand-in sample count so the very first wait
	// sample isn't smoothed against a zero baseline.
	q.ewmaWaitMs = ewma(q.ewmaWaitMs, waitMs, q.processed+1)
	q.mu.Unlock()
}

func (q *modelQueue) reconfigure(parallelLimit, queueLimit *int) {
	q.mu.Lock()
	if parallelLimit != nil {
		q.parallelLimit = *parallelLimit
	}
	if queueLimit != nil {
		q.queueLimit = *queueLimit
	}
	q.mu.Unlock()
	q.dispatch()
}

func (q *modelQueue) stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Model:         q.model,
		ParallelLimit: q.parallelLimit,
		QueueLimit:    q.queueLimit,
		Active:        q.active,
		Queued:        q.queued,
		Processed:     q.processed,
		Rejected:      q.rejected,
		EwmaWaitMs:    q.ewmaWaitMs,
		EwmaProcessMs: q.ewmaProcessMs,
	}
}

// AdmissionTicket is returned by admit; Acquire blocks until a slot opens
// or ctx is cancelled.
type AdmissionTicket struct {
	queue  *modelQueue
	waiter *waiter
}

// Acquire blocks until a parallel slot is free, or ctx is cancelled while
// waiting. A cancellation never consumes a slot: either the waiter is
// removed before being granted one, or an already-granted slot is handed
// back immediately.
func (t *AdmissionTicket) Acquire(ctx context.Context) (*SlotGuard, error) {
	select {
	case <-t.waiter.ch:
		t.queue.recordWait(float64(time.Since(t.waiter.enqueuedAt).Milliseconds()))
		return &SlotGuard{queue: t.queue, startedAt: time.Now()}, nil
	case <-ctx.Done():
		t.queue.cancelWaiter(t.waiter)
		return nil, ctx.Err()
	}
}

// SlotGuard represents one held concurrency slot. Release must be called
// exactly once, on every code path (success, failure, or panic); it is
// safe to call more than once; only the first call has effect.
type SlotGuard struct {
	queue     *modelQueue
	startedAt time.Time
	once      sync.Once
}

// Release frees the slot and records the processing duration.
func (g *SlotGuard) Release() {
	g.once.Do(func() {
		g.queue.release(float64(time.Since(g.startedAt).Milliseconds()))
	})
}

// Manager owns one modelQueue per model, created lazily on first use with
// the configured defaults.
type Manager struct {
	mu                   sync.RWMutex
	queues               map[string]*modelQueue
	defaultParallelLimit int
	defaultQueueLimit    int
}

// NewManager builds a Manager. defaultParallelLimit should already be
// resolved from any "auto" configuration value (see config.ParallelLimit)
// before reaching here.
func NewManager(defaultParallelLimit, defaultQueueLimit int) *Manager {
	return &Manager{
		queues:               make(map[string]*modelQueue),
		defaultParallelLimit: defaultParallelLimit,
		defaultQueueLimit:    defaultQueueLimit,
	}
}

func (m *Manager) queueFor(model string) *modelQueue {
	m.mu.RLock()
	q, ok := m.queues[model]
	m.mu.RUnlock()
	if ok {
		return q
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.queues[model]; ok {
		return q
	}
	q = newModelQueue(model, m.defaultParallelLimit, m.defaultQueueLimit)
	m.queues[model] = q
	return q
}

// Admit enqueues a request for model, creating the model's queue with
// default limits on first use.
func (m *Manager) Admit(model string) (*AdmissionTicket, error) {
	return m.queueFor(model).admit()
}

// Reconfigure resizes a model's limits. Existing in-flight work is
// unaffected; a larger parallel limit wakes waiters to fill the slack.
func (m *Manager) Reconfigure(model string, parallelLimit, queueLimit *int) {
	m.queueFor(model).reconfigure(parallelLimit, queueLimit)
}

// Stats returns the snapshot for one model.
func (m *Manager) Stats(model string) Stats {
	return m.queueFor(model).stats()
}

// AllStats returns a snapshot for every model that has been admitted at
// least once.
func (m *Manager) AllStats() []Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Stats, 0, len(m.queues))
	for _, q := range m.queues {
		out = append(out, q.stats())
	}
	return out
}

// Reset zeroes the processed/rejected counters for a model without
// affecting active work or configured limits.
func (m *Manager) Reset(model string) {
	q := m.queueFor(model)
	q.mu.Lock()
	q.processed = 0
	q.rejected = 0
	q.ewmaWaitMs = 0
	q.ewmaProcessMs = 0
	q.mu.Unlock()
}
