package sse

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func receive(t *testing.T, ch chan []byte) string {
	t.Helper()
	select {
	case msg := <-ch:
		return string(msg)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return ""
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishNoteEvent(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishNoteEvent(TypeNoteCreated, "2026-01-01_10:00:00")

	s := receive(t, ch)
	if !strings.Contains(s, "event: note.created") {
		t.Errorf("missing event type in %q", s)
	}
	if !strings.Contains(s, `"filename":"2026-01-01_10:00:00"`) {
		t.Errorf("missing data in %q", s)
	}
}

func TestSyncObserverEvents(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.OperationQueued("commit-and-push a.md", 1)
	b.OperationStarted("commit-and-push a.md")
	b.OperationFinished("commit-and-push a.md", 5*time.Millisecond, nil)
	b.OperationFinished("commit-and-push b.md", time.Millisecond, errors.New("rejected"))

	if s := receive(t, ch); !strings.Contains(s, "event: sync.queued") || !strings.Contains(s, `"pending":1`) {
		t.Errorf("queued event = %q", s)
	}
	if s := receive(t, ch); !strings.Contains(s, "event: sync.succeeded") {
		t.Errorf("succeeded event = %q", s)
	}
	if s := receive(t, ch); !strings.Contains(s, "event: sync.failed") || !strings.Contains(s, `"error":"rejected"`) {
		t.Errorf("failed event = %q", s)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(20 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishNoteEvent(TypeNoteUpdated, "x")
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: note.updated") {
		t.Errorf("handler output missing event: %q", body)
	}
	if !strings.Contains(body, ": keep-alive") {
		t.Errorf("handler output missing keep-alive: %q", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Client buffer holds 64; the rest must be skipped without stalling.
	for range 500 {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(time.Second)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.PublishNoteEvent(TypeNoteUpdated, "x")
	b.OperationFinished("pull", 0, nil)
}
