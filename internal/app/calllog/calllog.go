/*
Package calllog keeps an append-only record of call lifecycle events.

Records are handed over through Record, which never blocks: a background worker drains a
buffered queue into a Store (in memory, or PostgreSQL when a database is configured), so
the presence registry can log from inside its critical section.
*/
package calllog

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"callrelay/internal/pkg/logx"
)

// Status is the lifecycle step a record describes.
type Status string

const (
	StatusRequest   Status = "request"
	StatusBusy      Status = "busy"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusMissed    Status = "missed"
	StatusEnded     Status = "ended"
)

// Reasons attached to rejected and ended records.
const (
	ReasonHangup     = "hangup"
	ReasonDisconnect = "disconnect"
	ReasonEvicted    = "evicted"
	ReasonNoAnswer   = "no_answer"
	ReasonReplaced   = "replaced"
)

// defaultQueueSize is the number of records buffered before Record starts dropping.
const defaultQueueSize = 256

// Entry is one call record. From is the party whose action produced the record.
type Entry struct {
	From       string    `json:"from"`
	To         string    `json:"to"`
	Status     Status    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	RecordedAt time.Time `json:"recordedAt"`
}

// Store persists call records.
type Store interface {
	Append(ctx context.Context, entry Entry) error

	// List returns the newest records between a and b (either direction), newest first.
	List(ctx context.Context, a, b string, limit int) ([]Entry, error)
}

// Log is the asynchronous front of a Store.
type Log struct {
	store   Store
	entries chan Entry

	mu     sync.RWMutex
	closed bool

	wg     sync.WaitGroup
	logger zerolog.Logger
}

// NewLog starts a Log writing into store.
func NewLog(store Store) *Log {
	l := &Log{
		store:   store,
		entries: make(chan Entry, defaultQueueSize),
		logger:  logx.Component("CallLog"),
	}

	l.wg.Add(1)
	go l.run()

	return l
}

func (l *Log) run() {
	defer l.wg.Done()

	for entry := range l.entries {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := l.store.Append(ctx, entry); err != nil {
			l.logger.Error().Err(err).
				Str("from", entry.From).
				Str("to", entry.To).
				Str("status", string(entry.Status)).
				Msg("Failed to append call record.")
		}
		cancel()
	}
}

// Record queues entry without blocking. Entries are dropped when the queue is full or the log is closed.
func (l *Log) Record(entry Entry) {
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now()
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return
	}

	select {
	case l.entries <- entry:
	default:
		l.logger.Warn().Str("status", string(entry.Status)).Msg("Call log queue full, dropping record.")
	}
}

// List reads records for the pair a, b from the underlying store.
func (l *Log) List(ctx context.Context, a, b string, limit int) ([]Entry, error) {
	return l.store.List(ctx, a, b, limit)
}

// Close stops accepting records and waits until every queued record was written.
func (l *Log) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.entries)
	l.mu.Unlock()

	l.wg.Wait()
	l.logger.Info().Msg("Call log closed.")
}
