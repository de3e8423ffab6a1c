// Package scheduler owns the wall-clock timers that drive an auction.
package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"auctionworker/pkg/logger"
	"auctionworker/pkg/metrics"
)

// Job names. At most one job per name is pending at a time.
const (
	JobStart      = "start"
	JobNextStage  = "next-stage"
	JobAuctionEnd = "auction-end"
)

var ErrQueueClosed = errors.New("scheduler queue is closed")

// JobFunc runs with the shared lock held. firedAt is the actual run time.
type JobFunc func(ctx context.Context, firedAt time.Time)

type Job struct {
	Name string
	At   time.Time
	Run  JobFunc
}

// PendingJob describes a scheduled, not yet fired job.
type PendingJob struct {
	Name string
	At   time.Time
}

type entry struct {
	job   Job
	gen   uint64
	timer *time.Timer
}

// Queue is a delay queue of named jobs. A fired job takes the shared lock
// and runs only if it is still the entry scheduled under its name, so a
// Replace made by a lock holder always wins over timers that fired
// meanwhile.
type Queue struct {
	mu      sync.Mutex
	entries map[string]*entry
	gen     uint64
	closed  bool
	wg      sync.WaitGroup

	lock    sync.Locker
	grace   time.Duration
	ctx     context.Context
	now     func() time.Time
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewQueue(ctx context.Context, lock sync.Locker, grace time.Duration, log *logger.Logger, m *metrics.Metrics) *Queue {
	return &Queue{
		entries: make(map[string]*entry),
		lock:    lock,
		grace:   grace,
		ctx:     ctx,
		now:     time.Now,
		log:     log,
		metrics: m,
	}
}

// Add schedules job, replacing a pending job with the same name.
func (q *Queue) Add(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.addLocked(job)
}

func (q *Queue) addLocked(job Job) error {
	if q.closed {
		return ErrQueueClosed
	}
	if old, ok := q.entries[job.Name]; ok {
		old.timer.Stop()
	}

	q.gen++
	e := &entry{job: job, gen: q.gen}
	delay := job.At.Sub(q.now())
	if delay < 0 {
		delay = 0
	}
	e.timer = time.AfterFunc(delay, func() { q.fire(job.Name, e.gen) })
	q.entries[job.Name] = e

	q.log.Debug("Scheduled job", "job", job.Name, "at", job.At)
	return nil
}

// Remove cancels the job scheduled under name, if any.
func (q *Queue) Remove(name string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.entries[name]; ok {
		e.timer.Stop()
		delete(q.entries, name)
	}
}

func (q *Queue) RemoveAll() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeAllLocked()
}

func (q *Queue) removeAllLocked() {
	for name, e := range q.entries {
		e.timer.Stop()
		delete(q.entries, name)
	}
}

// Replace cancels every pending job and installs jobs in one step.
func (q *Queue) Replace(jobs ...Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.removeAllLocked()
	for _, job := range jobs {
		if err := q.addLocked(job); err != nil {
			return err
		}
	}
	return nil
}

// Pending lists scheduled jobs ordered by fire time.
func (q *Queue) Pending() []PendingJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	pending := make([]PendingJob, 0, len(q.entries))
	for _, e := range q.entries {
		pending = append(pending, PendingJob{Name: e.job.Name, At: e.job.At})
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].At.Equal(pending[j].At) {
			return pending[i].Name < pending[j].Name
		}
		return pending[i].At.Before(pending[j].At)
	})
	return pending
}

// Shutdown cancels every pending job and waits for running ones.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	q.closed = true
	q.removeAllLocked()
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *Queue) fire(name string, gen uint64) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.wg.Add(1)
	q.mu.Unlock()
	defer q.wg.Done()

	q.lock.Lock()
	defer q.lock.Unlock()

	q.mu.Lock()
	e, ok := q.entries[name]
	if !ok || e.gen != gen || q.closed {
		q.mu.Unlock()
		q.log.Debug("Skipping superseded job", "job", name)
		return
	}
	delete(q.entries, name)
	q.mu.Unlock()

	firedAt := q.now()
	lateness := firedAt.Sub(e.job.At)
	if lateness < 0 {
		lateness = 0
	}
	misfired := lateness > q.grace
	q.metrics.TimerFired(name, lateness, misfired)
	if misfired {
		q.log.Warn("Job fired past its grace window, running anyway",
			"job", name,
			"scheduled_at", e.job.At,
			"lateness", lateness,
		)
	}

	e.job.Run(q.ctx, firedAt)
}
