package sender

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

func fastDispatcher(retries int) *Dispatcher {
	return NewDispatcher(Options{
		Workers:      1,
		QueueSize:    4,
		MaxRetries:   retries,
		RetryBackoff: time.Millisecond,
		MaxDuration:  time.Second,
	})
}

func TestDoRetriesTransientErrors(t *testing.T) {
	d := fastDispatcher(2)
	defer d.Close()

	var calls int
	err := d.Do(context.Background(), "send.text", "sendMessage", func() error {
		calls++
		if calls < 3 {
			return &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if d.ErrorCount() != 0 {
		t.Fatalf("error count = %d", d.ErrorCount())
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	d := fastDispatcher(3)
	defer d.Close()

	want := errors.New("telegram: chat not found (400)")
	var calls int
	err := d.Do(context.Background(), "send.text", "sendMessage", func() error {
		calls++
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if d.ErrorCount() != 1 {
		t.Fatalf("error count = %d, want 1", d.ErrorCount())
	}
}

func TestEnqueueRunsAndClosedQueueRejects(t *testing.T) {
	d := fastDispatcher(0)
	var ran atomic.Int32
	if err := d.Enqueue(context.Background(), "answer", "answerCallbackQuery", func() error {
		ran.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	d.Close()
	if ran.Load() != 1 {
		t.Fatalf("queued job did not run before Close returned")
	}
	if err := d.Enqueue(context.Background(), "answer", "", func() error { return nil }); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("Enqueue after Close = %v, want ErrQueueClosed", err)
	}
}

func TestClassifyAndSanitize(t *testing.T) {
	if got := classifyError(context.DeadlineExceeded); got != "timeout" {
		t.Fatalf("classify deadline = %s", got)
	}
	if got := classifyError(errors.New("telegram: Internal Server Error (500)")); got != "http_5xx" {
		t.Fatalf("classify 500 = %s", got)
	}
	if got := classifyError(errors.New("telegram: Too Many Requests: retry after 3 (429)")); got != "flood" {
		t.Fatalf("classify 429 = %s", got)
	}
	msg := redactToken(errors.New(`Post "https://api.telegram.org/bot123:AbC-def/sendMessage": EOF`))
	if msg != `Post "https://api.telegram.org/bot<redacted>/sendMessage": EOF` {
		t.Fatalf("redact = %s", msg)
	}
}

func TestEnqueueDetachesFromCallerDeadline(t *testing.T) {
	d := fastDispatcher(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var ran atomic.Int32
	if err := d.Enqueue(ctx, "answer", "answerCallbackQuery", func() error {
		ran.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	d.Close()
	if ran.Load() != 1 || d.ErrorCount() != 0 {
		t.Fatalf("ran=%d errors=%d", ran.Load(), d.ErrorCount())
	}
}
