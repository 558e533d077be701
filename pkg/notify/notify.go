// Package notify delivers fire-and-forget progress signals about user actions.
// Every workflow call emits at most one Loading event followed by exactly one
// terminal event (Success or Error).
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Level classifies an event.
type Level string

const (
	Loading Level = "loading"
	Success Level = "success"
	Error   Level = "error"
)

// Terminal reports whether l ends an action.
func (l Level) Terminal() bool {
	return l == Success || l == Error
}

// Event kinds.
const (
	KindSubmitted    = "project.submitted"
	KindApproved     = "project.approved"
	KindRejected     = "project.rejected"
	KindMediaUpdated = "project.media_updated"
	KindDeleted      = "project.deleted"
	KindUserCreated  = "user.created"
)

// Event is a single notification.
type Event struct {
	Kind      string    `json:"kind"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	ProjectID string    `json:"projectId,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	Time      time.Time `json:"time"`
}

// Notifier receives events. Implementations must not block the caller for long
// and never report delivery failures back.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, ev Event)

func (f Func) Notify(ctx context.Context, ev Event) { f(ctx, ev) }

// Nop discards events.
var Nop Notifier = Func(func(context.Context, Event) {})

// Multi fans an event out to several notifiers in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, ev)
		}
	}
}

// SlogNotifier writes events as structured log lines.
type SlogNotifier struct {
	Logger *slog.Logger
}

func (s SlogNotifier) Notify(ctx context.Context, ev Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	switch ev.Level {
	case Loading:
		level = slog.LevelDebug
	case Error:
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "notification",
		"kind", ev.Kind,
		"level", string(ev.Level),
		"message", ev.Message,
		"project_id", ev.ProjectID,
		"actor", ev.Actor,
	)
}

// WriterNotifier prints events for a human at a terminal.
type WriterNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterNotifier returns a notifier writing to w.
func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{w: w}
}

func (n *WriterNotifier) Notify(_ context.Context, ev Event) {
	prefix := "..."
	switch ev.Level {
	case Success:
		prefix = "ok:"
	case Error:
		prefix = "error:"
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.w, "%s %s\n", prefix, ev.Message)
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Terminal returns the recorded Success and Error events.
func (r *Recorder) Terminal() []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Level.Terminal() {
			out = append(out, ev)
		}
	}
	return out
}

// Reset drops recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
