package instrument

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"form-engine/internal/store"
)

var eventColumns = []string{
	"id", "trace_id", "span_id", "parent_span_id", "kind",
	"form_key", "node_key", "rule_key", "event_name", "action_name",
	"user_id", "duration_ms", "status", "detail",
}

// nullable turns "" into a NULL parameter.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// row returns the insert values of e in eventColumns order.
func (e Event) row() []any {
	var detail any
	if len(e.Detail) > 0 {
		if b, err := json.Marshal(e.Detail); err == nil {
			detail = string(b)
		}
	}
	traceID := e.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}
	return []any{
		uuid.NewString(), traceID, e.SpanID, nullable(e.ParentSpanID), string(e.Kind),
		nullable(e.Form), nullable(e.Node), nullable(e.Rule), nullable(e.Event), nullable(e.Action),
		nullable(e.UserID), e.DurationMs, string(e.Status), detail,
	}
}

// EventBuffer is a Recorder that collects events in memory and periodically flushes them
// to the _events table in a batch insert.
type EventBuffer struct {
	mu      sync.Mutex
	events  []Event
	db      *sql.DB
	dialect store.Dialect
	maxSize int
	ticker  *time.Ticker
	done    chan struct{}
	stop    sync.Once
}

// NewEventBuffer creates a buffer that flushes on a timer or when full.
func NewEventBuffer(db *sql.DB, dialect store.Dialect, maxSize int, flushIntervalMs int) *EventBuffer {
	if maxSize <= 0 {
		maxSize = 500
	}
	if flushIntervalMs <= 0 {
		flushIntervalMs = 100
	}
	eb := &EventBuffer{
		db:      db,
		dialect: dialect,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	eb.ticker = time.NewTicker(time.Duration(flushIntervalMs) * time.Millisecond)
	go eb.run()
	return eb
}

func (eb *EventBuffer) run() {
	for {
		select {
		case <-eb.done:
			return
		case <-eb.ticker.C:
			eb.Flush()
		}
	}
}

// Enqueue adds an event to the buffer. If the buffer is full, a flush
// is triggered asynchronously.
func (eb *EventBuffer) Enqueue(event Event) {
	eb.mu.Lock()
	eb.events = append(eb.events, event)
	shouldFlush := len(eb.events) >= eb.maxSize
	eb.mu.Unlock()
	if shouldFlush {
		go eb.Flush()
	}
}

// Pending returns the number of events not yet flushed.
func (eb *EventBuffer) Pending() int {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	return len(eb.events)
}

// Flush writes all buffered events to the database in a single batch insert.
func (eb *EventBuffer) Flush() {
	eb.mu.Lock()
	if len(eb.events) == 0 {
		eb.mu.Unlock()
		return
	}
	batch := eb.events
	eb.events = nil
	eb.mu.Unlock()

	if err := eb.insert(context.Background(), batch); err != nil {
		logrus.WithError(err).WithField("events", len(batch)).Error("event buffer flush")
	}
}

func (eb *EventBuffer) insert(ctx context.Context, batch []Event) error {
	tx, err := eb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if stmt := eb.dialect.SyncCommitOff(); stmt != "" {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("set sync commit: %w", err)
		}
	}

	pb := eb.dialect.NewParamBuilder()
	placeholders := make([]string, 0, len(batch))
	for _, e := range batch {
		values := e.row()
		ph := make([]string, len(values))
		for j, v := range values {
			ph[j] = pb.Add(v)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")
	}

	sqlStr := fmt.Sprintf("INSERT INTO _events (%s) VALUES %s", strings.Join(eventColumns, ","), strings.Join(placeholders, ","))
	if _, err := tx.ExecContext(ctx, sqlStr, pb.Params()...); err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return tx.Commit()
}

// Stop halts the background ticker and flushes remaining events.
func (eb *EventBuffer) Stop() {
	eb.stop.Do(func() {
		eb.ticker.Stop()
		close(eb.done)
	})
	eb.Flush()
}
