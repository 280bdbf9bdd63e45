package gojob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"

	"github.com/goliatone/go-messaging/core"
)

const (
	DefaultMaintenanceInterval = 5 * time.Minute
	dedupPolicyDrop            = "drop"
)

// MaintenanceService is the part of the messaging service that schedules
// and executes maintenance jobs.
type MaintenanceService interface {
	EnqueueMaintenance(ctx context.Context, enqueuer core.JobEnqueuer) error
	ProcessMaintenanceJob(ctx context.Context, dequeuer core.JobDequeuer) error
}

// LocalQueue is an in-process go-job queue. Messages with the drop dedup
// policy are ignored while a message with the same idempotency key is
// still pending. Each delivery reports how many times its message has been
// handed out.
type LocalQueue struct {
	mu       sync.Mutex
	pending  []queuedJob
	inFlight map[string]struct{}
	dead     []*job.ExecutionMessage
}

type queuedJob struct {
	msg      *job.ExecutionMessage
	attempts int
}

func NewLocalQueue() *LocalQueue {
	return &LocalQueue{inFlight: map[string]struct{}{}}
}

func (q *LocalQueue) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	key := strings.TrimSpace(msg.IdempotencyKey)
	if key != "" && strings.EqualFold(string(msg.DedupPolicy), dedupPolicyDrop) {
		if _, exists := q.inFlight[key]; exists {
			return nil
		}
		q.inFlight[key] = struct{}{}
	}
	q.pending = append(q.pending, queuedJob{msg: msg})
	return nil
}

// Dequeue returns the oldest pending message or nil when the queue is empty.
func (q *LocalQueue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, nil
	}
	next := q.pending[0]
	q.pending = q.pending[1:]
	next.attempts++
	return &localDelivery{queue: q, entry: next}, nil
}

func (q *LocalQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *LocalQueue) DeadLetters() []*job.ExecutionMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*job.ExecutionMessage(nil), q.dead...)
}

func (q *LocalQueue) settle(settled queuedJob, opts *queue.NackOptions) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if opts != nil && opts.Requeue && !opts.DeadLetter {
		q.pending = append(q.pending, settled)
		return
	}
	delete(q.inFlight, strings.TrimSpace(settled.msg.IdempotencyKey))
	if opts != nil && opts.DeadLetter {
		q.dead = append(q.dead, settled.msg)
	}
}

type localDelivery struct {
	queue *LocalQueue
	entry queuedJob
	once  sync.Once
}

func (d *localDelivery) Message() *job.ExecutionMessage {
	return d.entry.msg
}

func (d *localDelivery) Attempt() int {
	return d.entry.attempts
}

func (d *localDelivery) Ack(context.Context) error {
	d.once.Do(func() { d.queue.settle(d.entry, nil) })
	return nil
}

func (d *localDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	d.once.Do(func() { d.queue.settle(d.entry, &opts) })
	return nil
}

// MaintenanceRunner enqueues the maintenance jobs on every tick and drains
// the queue through the service.
type MaintenanceRunner struct {
	service  MaintenanceService
	enqueuer core.JobEnqueuer
	dequeuer core.JobDequeuer
	depth    func() int
	interval time.Duration
	logger   core.Logger
}

func NewMaintenanceRunner(service MaintenanceService, local *LocalQueue, policy RetryPolicy, interval time.Duration, logger core.Logger) (*MaintenanceRunner, error) {
	if service == nil {
		return nil, fmt.Errorf("gojob: maintenance service is required")
	}
	if local == nil {
		local = NewLocalQueue()
	}
	if interval <= 0 {
		interval = DefaultMaintenanceInterval
	}
	return &MaintenanceRunner{
		service:  service,
		enqueuer: NewEnqueuerAdapter(local),
		dequeuer: NewDequeuerAdapter(local, policy),
		depth:    local.Len,
		interval: interval,
		logger:   logger,
	}, nil
}

// RunOnce schedules one maintenance round and processes every queued job.
// Jobs that fail stay requeued for the next round.
func (r *MaintenanceRunner) RunOnce(ctx context.Context) error {
	if err := r.service.EnqueueMaintenance(ctx, r.enqueuer); err != nil {
		return err
	}
	var errs []error
	for remaining := r.depth(); remaining > 0; remaining-- {
		if err := r.service.ProcessMaintenanceJob(ctx, r.dequeuer); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run calls RunOnce on every interval until ctx is done.
func (r *MaintenanceRunner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if err := r.RunOnce(ctx); err != nil && r.logger != nil {
			r.logger.Warn("maintenance round failed", "error", err.Error())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

var (
	_ queue.Enqueuer = (*LocalQueue)(nil)
	_ queue.Dequeuer = (*LocalQueue)(nil)
	_ queue.Delivery = (*localDelivery)(nil)
	_ attemptCounter = (*localDelivery)(nil)
)
