// Package instrument traces the work the engine does for a form: whole-form
// validation, per-field rule runs, recalculation, event dispatch and the
// actions an event runs. Spans nest through the context and are recorded
// as rows of the _events table.
package instrument

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind names what a span measured.
type Kind string

const (
	KindRequest     Kind = "http.request"
	KindValidate    Kind = "form.validate"
	KindRecalculate Kind = "form.recalculate"
	KindField       Kind = "rules.field"
	KindEvent       Kind = "form.event"
	KindAction      Kind = "form.action"
	// KindClient marks events reported by a renderer through the API.
	KindClient Kind = "client"
)

// Status is the outcome of a span.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
	// StatusInvalid marks a field span whose value failed a rule.
	StatusInvalid Status = "invalid"
)

// Attrs identify the form element a span worked on. Empty members are
// stored as NULL.
type Attrs struct {
	Form   string `json:"form_key,omitempty"`
	Node   string `json:"node_key,omitempty"`
	Rule   string `json:"rule_key,omitempty"`
	Event  string `json:"event_name,omitempty"`
	Action string `json:"action_name,omitempty"`
}

// Event is one recorded span or client mark.
type Event struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	Kind         Kind
	Attrs
	UserID     string
	DurationMs *float64
	Status     Status
	Detail     map[string]any
}

// Recorder receives finished events. EventBuffer is the database-backed one.
type Recorder interface {
	Enqueue(Event)
}

// Tracer starts spans that report to a Recorder.
type Tracer struct {
	rec Recorder
}

func NewTracer(rec Recorder) *Tracer {
	return &Tracer{rec: rec}
}

// trace is shared by every span of one trace; the user is filled in once
// authentication has run.
type trace struct {
	tracer *Tracer
	id     string

	mu   sync.Mutex
	user string
}

func (t *trace) userID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.user
}

type ctxKey int

const (
	traceKey ctxKey = iota
	parentKey
)

// WithTrace starts a trace on ctx. An empty traceID gets a fresh one.
func WithTrace(ctx context.Context, tracer *Tracer, traceID string) context.Context {
	if traceID == "" {
		traceID = uuid.NewString()
	}
	return context.WithValue(ctx, traceKey, &trace{tracer: tracer, id: traceID})
}

func traceFrom(ctx context.Context) *trace {
	t, _ := ctx.Value(traceKey).(*trace)
	return t
}

// TraceID returns the trace id carried by ctx, or "".
func TraceID(ctx context.Context) string {
	if t := traceFrom(ctx); t != nil {
		return t.id
	}
	return ""
}

// SetUser attributes the spans of ctx's trace to userID, including spans
// already started.
func SetUser(ctx context.Context, userID string) {
	if t := traceFrom(ctx); t != nil {
		t.mu.Lock()
		t.user = userID
		t.mu.Unlock()
	}
}

// Start opens a span of kind under the span carried by ctx. Without a trace
// it returns a nil span; all Span methods accept a nil receiver.
func Start(ctx context.Context, kind Kind, attrs Attrs) (context.Context, *Span) {
	t := traceFrom(ctx)
	if t == nil || t.tracer == nil || t.tracer.rec == nil {
		return ctx, nil
	}
	parent, _ := ctx.Value(parentKey).(string)
	s := &Span{
		trace: t,
		start: time.Now(),
		event: Event{
			TraceID:      t.id,
			SpanID:       uuid.NewString(),
			ParentSpanID: parent,
			Kind:         kind,
			Attrs:        attrs,
		},
	}
	return context.WithValue(ctx, parentKey, s.event.SpanID), s
}

// Mark records a one-shot event with no duration.
func Mark(ctx context.Context, kind Kind, attrs Attrs, detail map[string]any) {
	t := traceFrom(ctx)
	if t == nil || t.tracer == nil || t.tracer.rec == nil {
		return
	}
	parent, _ := ctx.Value(parentKey).(string)
	t.tracer.rec.Enqueue(Event{
		TraceID:      t.id,
		SpanID:       uuid.NewString(),
		ParentSpanID: parent,
		Kind:         kind,
		Attrs:        attrs,
		UserID:       t.userID(),
		Status:       StatusOK,
		Detail:       detail,
	})
}

// Span times one unit of work.
type Span struct {
	trace *trace
	start time.Time

	mu    sync.Mutex
	event Event
	ended bool
}

// ID returns the span id, or "" for a nil span.
func (s *Span) ID() string {
	if s == nil {
		return ""
	}
	return s.event.SpanID
}

// Set adds a detail value.
func (s *Span) Set(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.event.Detail == nil {
		s.event.Detail = make(map[string]any)
	}
	s.event.Detail[key] = value
}

// Reject marks a field span invalid because rule failed with message.
func (s *Span) Reject(rule, message string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.event.Rule = rule
	s.event.Status = StatusInvalid
	s.mu.Unlock()
	s.Set("message", message)
}

// Fail marks the span as errored.
func (s *Span) Fail(err error) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.event.Status = StatusError
	s.mu.Unlock()
	if err != nil {
		s.Set("error", err.Error())
	}
}

// End records the span once. A span with no outcome set ends ok.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	ms := float64(time.Since(s.start).Microseconds()) / 1000.0
	ev := s.event
	ev.DurationMs = &ms
	if ev.Status == "" {
		ev.Status = StatusOK
	}
	s.mu.Unlock()

	ev.UserID = s.trace.userID()
	s.trace.tracer.rec.Enqueue(ev)
}
