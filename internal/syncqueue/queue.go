// Package syncqueue serializes version-control mutations against one working
// tree. Operations run one at a time, in submission order, on a dedicated
// worker goroutine; submitters never wait for them.
package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/starford/gitnotes/internal/git"
)

// ErrClosed is returned by Enqueue after Close has been called.
var ErrClosed = errors.New("syncqueue: closed")

// Operation is a named unit of work. Run receives the queue's context, which
// is only cancelled when Close gives up waiting.
type Operation struct {
	Name string
	Run  func(ctx context.Context) error
}

// Observer is notified about operation lifecycle transitions
// (queued → running → succeeded|failed). Methods are called from the queue's
// goroutines and must not block.
type Observer interface {
	OperationQueued(name string, pending int)
	OperationStarted(name string)
	OperationFinished(name string, elapsed time.Duration, err error)
}

// DepthObserver is an optional Observer extension. QueueDepth is called by
// the dispatcher alone, after every change to the number of waiting
// operations, so successive values are totally ordered.
type DepthObserver interface {
	QueueDepth(pending int)
}

// Status is a point-in-time view of the queue, used to surface synchronization
// problems to readers without failing their requests. Failing reflects the
// most recently finished operation.
type Status struct {
	Pending       int       `json:"pending"`
	Running       string    `json:"running,omitempty"`
	Failing       bool      `json:"failing"`
	LastError     string    `json:"last_error,omitempty"`
	LastErrorOp   string    `json:"last_error_op,omitempty"`
	LastErrorAt   time.Time `json:"last_error_at,omitzero"`
	LastSuccessAt time.Time `json:"last_success_at,omitzero"`
}

type result struct {
	op  Operation
	err error
	at  time.Time
}

// Queue owns the pending operation list. A dispatcher goroutine holds the
// FIFO and all status fields; a single worker goroutine executes operations.
// Public methods talk to the dispatcher through channels, so no mutexes are
// needed and at most one operation can touch the working tree at a time.
type Queue struct {
	client    git.Client
	logger    *slog.Logger
	observers []Observer

	ctx    context.Context
	cancel context.CancelFunc

	submitCh    chan Operation
	workCh      chan Operation
	resultCh    chan result
	statusReqCh chan chan Status

	closeCh        chan struct{}
	closed         atomic.Bool
	dispatcherDone chan struct{}
	workerDone     chan struct{}

	final Status // written by the dispatcher before dispatcherDone closes
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithObserver registers an observer for operation transitions.
func WithObserver(o Observer) Option {
	return func(q *Queue) {
		if o != nil {
			q.observers = append(q.observers, o)
		}
	}
}

// New creates a queue bound to client and starts its goroutines.
func New(client git.Client, opts ...Option) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		client:         client,
		logger:         slog.Default(),
		ctx:            ctx,
		cancel:         cancel,
		submitCh:       make(chan Operation),
		workCh:         make(chan Operation),
		resultCh:       make(chan result),
		statusReqCh:    make(chan chan Status),
		closeCh:        make(chan struct{}),
		dispatcherDone: make(chan struct{}),
		workerDone:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}

	go q.dispatch()
	go q.work()
	return q
}

func (q *Queue) dispatch() {
	defer close(q.dispatcherDone)

	var (
		pending  []Operation
		status   Status
		busy     bool
		draining bool
		// Fires once when Close gives up; parked afterwards.
		cancelled = q.ctx.Done()
	)

	for {
		if draining && !busy && len(pending) == 0 {
			close(q.workCh)
			status.Pending = 0
			q.final = status
			return
		}

		// Offer the head to the worker only when there is one and the worker
		// is idle; a nil channel parks that select case.
		var workCh chan Operation
		var head Operation
		if !busy && len(pending) > 0 && q.ctx.Err() == nil {
			workCh = q.workCh
			head = pending[0]
		}

		select {
		case op := <-q.submitCh:
			pending = append(pending, op)
			for _, o := range q.observers {
				o.OperationQueued(op.Name, len(pending))
			}
			q.reportDepth(len(pending))

		case workCh <- head:
			pending[0] = Operation{}
			pending = pending[1:]
			busy = true
			status.Running = head.Name
			q.reportDepth(len(pending))

		case <-cancelled:
			cancelled = nil
			if len(pending) > 0 {
				q.logger.Error("sync: dropping queued operations",
					slog.Int("count", len(pending)))
				pending = nil
				q.reportDepth(0)
			}

		case res := <-q.resultCh:
			busy = false
			status.Running = ""
			status.Failing = res.err != nil
			if res.err != nil {
				status.LastError = res.err.Error()
				status.LastErrorOp = res.op.Name
				status.LastErrorAt = res.at
			} else {
				status.LastSuccessAt = res.at
			}

		case resp := <-q.statusReqCh:
			s := status
			s.Pending = len(pending)
			resp <- s

		case <-q.closeCh:
			draining = true
			// Parks this case; closeCh stays closed.
			q.closeCh = nil
		}
	}
}

func (q *Queue) reportDepth(n int) {
	for _, o := range q.observers {
		if d, ok := o.(DepthObserver); ok {
			d.QueueDepth(n)
		}
	}
}

func (q *Queue) work() {
	defer close(q.workerDone)
	for op := range q.workCh {
		for _, o := range q.observers {
			o.OperationStarted(op.Name)
		}
		q.logger.Debug("sync: operation started", slog.String("op", op.Name))

		start := time.Now()
		err := q.runSafely(op)
		elapsed := time.Since(start)

		if err != nil {
			q.logger.Error("sync: operation failed",
				slog.String("op", op.Name),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()))
		} else {
			q.logger.Info("sync: operation succeeded",
				slog.String("op", op.Name),
				slog.Duration("elapsed", elapsed))
		}
		for _, o := range q.observers {
			o.OperationFinished(op.Name, elapsed, err)
		}
		q.resultCh <- result{op: op, err: err, at: time.Now()}
	}
}

func (q *Queue) runSafely(op Operation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("syncqueue: %s panicked: %v", op.Name, r)
		}
	}()
	if op.Run == nil {
		return fmt.Errorf("syncqueue: %s has no Run func", op.Name)
	}
	return op.Run(q.ctx)
}

// Enqueue appends op to the tail of the queue and returns without waiting for
// it to run. Failures of op are logged and recorded in Status, never returned.
func (q *Queue) Enqueue(op Operation) error {
	if q.closed.Load() {
		return ErrClosed
	}
	select {
	case q.submitCh <- op:
		return nil
	case <-q.dispatcherDone:
		return ErrClosed
	}
}

// CommitAndPush enqueues the canonical mutation: best-effort pull, stage path,
// commit with message, push.
func (q *Queue) CommitAndPush(path, message string) error {
	return q.Enqueue(Operation{
		Name: "commit-and-push " + path,
		Run: func(ctx context.Context) error {
			return q.commitAndPush(ctx, path, message)
		},
	})
}

func (q *Queue) commitAndPush(ctx context.Context, path, message string) error {
	// Pulling first narrows the window for a non-fast-forward push. A missing
	// remote must not block the local commit.
	if err := q.client.Pull(ctx); err != nil {
		q.logger.Warn("sync: pull before commit failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
	if err := q.client.Add(ctx, path); err != nil {
		return fmt.Errorf("syncqueue: add %s: %w", path, err)
	}
	if err := q.client.Commit(ctx, message); err != nil {
		return fmt.Errorf("syncqueue: commit %s: %w", path, err)
	}
	if err := q.client.Push(ctx); err != nil {
		return fmt.Errorf("syncqueue: push %s: %w", path, err)
	}
	return nil
}

// Pull integrates remote changes immediately, bypassing the queue.
//
// It is not serialized with queued operations: a manual pull can interleave
// with the pull, commit and push of a running commit-and-push.
func (q *Queue) Pull(ctx context.Context) error {
	q.logger.Info("sync: manual pull")
	if err := q.client.Pull(ctx); err != nil {
		return fmt.Errorf("syncqueue: pull: %w", err)
	}
	return nil
}

// Status returns the current queue state.
func (q *Queue) Status() Status {
	resp := make(chan Status, 1)
	select {
	case q.statusReqCh <- resp:
	case <-q.dispatcherDone:
		return q.final
	}
	select {
	case s := <-resp:
		return s
	case <-q.dispatcherDone:
		return q.final
	}
}

// Close stops accepting operations and waits for the queued ones to finish.
// If ctx ends first, the running operation's context is cancelled, operations
// still queued are dropped without running, and ctx.Err() is returned.
func (q *Queue) Close(ctx context.Context) error {
	if q.closed.CompareAndSwap(false, true) {
		close(q.closeCh)
	}
	done := make(chan struct{})
	go func() {
		<-q.dispatcherDone
		<-q.workerDone
		close(done)
	}()
	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		return ctx.Err()
	}
}
