package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/gitnotes/internal/git/gittest"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func closeQueue(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingObserver) OperationQueued(name string, pending int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf("queued %s %d", name, pending))
}

func (r *recordingObserver) OperationStarted(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "started "+name)
}

func (r *recordingObserver) OperationFinished(name string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := "ok"
	if err != nil {
		result = "failed"
	}
	r.events = append(r.events, "finished "+name+" "+result)
}

func (r *recordingObserver) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func TestCommitAndPushSequence(t *testing.T) {
	fake := gittest.NewFake()
	q := New(fake, WithLogger(quietLogger()))

	if err := q.CommitAndPush("new/a.md", "Create a.md"); err != nil {
		t.Fatalf("CommitAndPush: %v", err)
	}
	closeQueue(t, q)

	want := []string{"pull", "add new/a.md", "commit Create a.md", "push"}
	if got := fake.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if _, ok := fake.Commits["new/a.md"]; !ok {
		t.Error("expected commit recorded for new/a.md")
	}
}

func TestPullFailureDoesNotBlockCommit(t *testing.T) {
	fake := gittest.NewFake()
	fake.SetError("pull", errors.New("no upstream"))
	q := New(fake, WithLogger(quietLogger()))

	_ = q.CommitAndPush("a.md", "Update a.md")
	closeQueue(t, q)

	want := []string{"pull", "add a.md", "commit Update a.md", "push"}
	if got := fake.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if s := q.Status(); s.LastError != "" {
		t.Errorf("unexpected LastError %q", s.LastError)
	}
}

func TestOperationsRunInOrderWithoutOverlap(t *testing.T) {
	q := New(gittest.NewFake(), WithLogger(quietLogger()))

	release := make(chan struct{})
	var (
		mu      sync.Mutex
		order   []int
		running atomic.Int32
		overlap atomic.Bool
	)
	for i := range 5 {
		err := q.Enqueue(Operation{
			Name: fmt.Sprintf("op-%d", i),
			Run: func(context.Context) error {
				if running.Add(1) > 1 {
					overlap.Store(true)
				}
				defer running.Add(-1)
				if i == 0 {
					<-release
				}
				time.Sleep(5 * time.Millisecond)
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			},
		})
		if err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
	}

	// Submitters are not blocked by the first operation stalling.
	if s := q.Status(); s.Pending+boolToInt(s.Running != "") != 5 {
		t.Errorf("status = %+v, want 5 operations outstanding", s)
	}
	close(release)
	closeQueue(t, q)

	if want := []int{0, 1, 2, 3, 4}; !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
	if overlap.Load() {
		t.Error("operations overlapped")
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func TestFailureDoesNotStopQueue(t *testing.T) {
	obs := &recordingObserver{}
	q := New(gittest.NewFake(), WithLogger(quietLogger()), WithObserver(obs))

	var ran atomic.Bool
	_ = q.Enqueue(Operation{Name: "bad", Run: func(context.Context) error { return errors.New("boom") }})
	_ = q.Enqueue(Operation{Name: "panicky", Run: func(context.Context) error { panic("kaboom") }})
	_ = q.Enqueue(Operation{Name: "good", Run: func(context.Context) error { ran.Store(true); return nil }})
	closeQueue(t, q)

	if !ran.Load() {
		t.Fatal("operation after failures did not run")
	}
	s := q.Status()
	if s.LastErrorOp != "panicky" {
		t.Errorf("LastErrorOp = %q, want panicky", s.LastErrorOp)
	}
	if s.LastSuccessAt.IsZero() {
		t.Error("LastSuccessAt not set")
	}
	if s.Failing {
		t.Error("queue should not report failing after a later success")
	}

	events := obs.Events()
	finished := 0
	for _, e := range events {
		if len(e) > 8 && e[:8] == "finished" {
			finished++
		}
	}
	if finished != 3 {
		t.Errorf("finished events = %d, want 3 (%v)", finished, events)
	}
	if events[0] != "queued bad 1" {
		t.Errorf("first event = %q", events[0])
	}
}

func TestFailedCommitIsNotRetried(t *testing.T) {
	fake := gittest.NewFake()
	fake.SetError("push", errors.New("rejected"))
	q := New(fake, WithLogger(quietLogger()))

	_ = q.CommitAndPush("a.md", "Update a.md")
	closeQueue(t, q)

	pushes := 0
	for _, c := range fake.Calls() {
		if c == "push" {
			pushes++
		}
	}
	if pushes != 1 {
		t.Errorf("push attempts = %d, want 1", pushes)
	}
	if s := q.Status(); !s.Failing || s.LastErrorOp != "commit-and-push a.md" {
		t.Errorf("status = %+v, want failing commit-and-push a.md", s)
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	q := New(gittest.NewFake(), WithLogger(quietLogger()))
	closeQueue(t, q)

	if err := q.Enqueue(Operation{Name: "late", Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrClosed) {
		t.Errorf("Enqueue after close = %v, want ErrClosed", err)
	}
	// Second Close is a no-op.
	closeQueue(t, q)
}

func TestCloseTimeoutCancelsRunningOperation(t *testing.T) {
	q := New(gittest.NewFake(), WithLogger(quietLogger()))

	cancelled := make(chan struct{})
	_ = q.Enqueue(Operation{Name: "slow", Run: func(ctx context.Context) error {
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := q.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Close = %v, want deadline exceeded", err)
	}
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("running operation was not cancelled")
	}
}

func TestPullBypassesQueue(t *testing.T) {
	fake := gittest.NewFake()
	q := New(fake, WithLogger(quietLogger()))
	defer closeQueue(t, q)

	block := make(chan struct{})
	_ = q.Enqueue(Operation{Name: "stall", Run: func(context.Context) error { <-block; return nil }})

	if err := q.Pull(context.Background()); err != nil {
		t.Fatalf("Pull: %v", err)
	}
	close(block)
	if got := fake.Calls(); len(got) != 1 || got[0] != "pull" {
		t.Errorf("calls = %v, want [pull]", got)
	}

	fake.SetError("pull", errors.New("offline"))
	if err := q.Pull(context.Background()); err == nil {
		t.Error("expected Pull error")
	}
}

type depthRecorder struct {
	recordingObserver
	depths []int
}

func (d *depthRecorder) QueueDepth(pending int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.depths = append(d.depths, pending)
}

func (d *depthRecorder) Depths() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.depths...)
}

func TestQueueDepthReportedOnEnqueueAndDispatch(t *testing.T) {
	obs := &depthRecorder{}
	q := New(gittest.NewFake(), WithLogger(quietLogger()), WithObserver(obs))

	release := make(chan struct{})
	_ = q.Enqueue(Operation{Name: "a", Run: func(context.Context) error { <-release; return nil }})
	_ = q.Enqueue(Operation{Name: "b", Run: func(context.Context) error { return nil }})
	_ = q.Enqueue(Operation{Name: "c", Run: func(context.Context) error { return nil }})
	close(release)
	closeQueue(t, q)

	depths := obs.Depths()
	// Three pushes and three pops; the interleaving depends on the worker.
	if len(depths) != 6 {
		t.Fatalf("depths = %v, want 6 reports", depths)
	}
	for _, d := range depths {
		if d < 0 {
			t.Fatalf("negative depth in %v", depths)
		}
	}
	if depths[len(depths)-1] != 0 {
		t.Errorf("depths = %v, want to end at 0", depths)
	}
}

func TestCloseTimeoutDropsQueuedOperations(t *testing.T) {
	obs := &depthRecorder{}
	q := New(gittest.NewFake(), WithLogger(quietLogger()), WithObserver(obs))

	var ran atomic.Bool
	_ = q.Enqueue(Operation{Name: "slow", Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	_ = q.Enqueue(Operation{Name: "late", Run: func(context.Context) error {
		ran.Store(true)
		return nil
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := q.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Close = %v, want deadline exceeded", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		st := q.Status()
		if st.Running == "" && st.Pending == 0 && st.LastErrorOp == "slow" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("queue did not settle: %+v", st)
		}
		time.Sleep(5 * time.Millisecond)
	}
	// Give a wrongly dispatched operation time to show up.
	time.Sleep(20 * time.Millisecond)
	if ran.Load() {
		t.Error("operation queued behind a timed out Close must not run")
	}
	if d := obs.Depths(); d[len(d)-1] != 0 {
		t.Errorf("depths = %v, want to end at 0", d)
	}
}
