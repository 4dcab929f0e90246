package audit

import (
	"context"
	"log"
	"time"
)

// Event is one security-relevant decision outcome.
type Event struct {
	Actor      string
	OrgID      string
	Allowed    bool
	Reason     string
	Warning    string
	Path       string
	OccurredAt time.Time
}

// Recorder persists audit events. Implementations may fail; the sink
// swallows those failures.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// Sink wraps a Recorder with fire-and-forget semantics: recorder errors are
// logged locally and never propagate to the request that produced the event.
type Sink struct {
	Recorder Recorder
	Logger   *log.Logger
}

func NewSink(recorder Recorder, logger *log.Logger) *Sink {
	if logger == nil {
		logger = log.Default()
	}
	return &Sink{Recorder: recorder, Logger: logger}
}

// Emit records the event best-effort. A nil sink or recorder is a no-op.
func (s *Sink) Emit(ctx context.Context, event Event) {
	if s == nil || s.Recorder == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Printf("audit record panic actor=%s reason=%s panic=%v", event.Actor, event.Reason, r)
		}
	}()
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := s.Recorder.Record(ctx, event); err != nil {
		s.Logger.Printf("audit record failed actor=%s reason=%s err=%v", event.Actor, event.Reason, err)
	}
}
