package audit

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"
	"time"
)

type failingRecorder struct {
	err   error
	panic bool
	calls int
}

func (f *failingRecorder) Record(ctx context.Context, event Event) error {
	f.calls++
	if f.panic {
		panic("recorder wedged")
	}
	return f.err
}

func TestEmitSwallowsRecorderError(t *testing.T) {
	var buf bytes.Buffer
	recorder := &failingRecorder{err: errors.New("disk full")}
	sink := NewSink(recorder, log.New(&buf, "", 0))

	sink.Emit(context.Background(), Event{Actor: "user-1", Reason: "ALLOWED"})

	if recorder.calls != 1 {
		t.Fatalf("recorder calls %d", recorder.calls)
	}
	if !strings.Contains(buf.String(), "disk full") {
		t.Fatalf("failure not logged: %q", buf.String())
	}
}

func TestEmitRecoversRecorderPanic(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSink(&failingRecorder{panic: true}, log.New(&buf, "", 0))

	sink.Emit(context.Background(), Event{Actor: "user-1", Reason: "ALLOWED"})

	if !strings.Contains(buf.String(), "panic") {
		t.Fatalf("panic not logged: %q", buf.String())
	}
}

func TestEmitFillsOccurredAt(t *testing.T) {
	var got Event
	sink := NewSink(recorderFunc(func(ctx context.Context, event Event) error {
		got = event
		return nil
	}), log.New(&bytes.Buffer{}, "", 0))

	sink.Emit(context.Background(), Event{Actor: "user-1"})
	if got.OccurredAt.IsZero() {
		t.Fatalf("expected occurred_at to be stamped")
	}

	stamped := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	sink.Emit(context.Background(), Event{Actor: "user-1", OccurredAt: stamped})
	if !got.OccurredAt.Equal(stamped) {
		t.Fatalf("explicit timestamp must be kept, got %s", got.OccurredAt)
	}
}

func TestEmitNilSinkAndRecorder(t *testing.T) {
	var sink *Sink
	sink.Emit(context.Background(), Event{Actor: "user-1"})

	NewSink(nil, nil).Emit(context.Background(), Event{Actor: "user-1"})
}

type recorderFunc func(ctx context.Context, event Event) error

func (f recorderFunc) Record(ctx context.Context, event Event) error {
	return f(ctx, event)
}
