package store

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"
)

// RecordKind labels the shape of a persisted record.
type RecordKind string

const (
	RecordKindSession     RecordKind = "session"
	RecordKindParticipant RecordKind = "participant"
	RecordKindOrder       RecordKind = "order"
	RecordKindTrade       RecordKind = "trade"
	RecordKindEvent       RecordKind = "event"
)

// Record is one line of persisted output. All identifiers are opaque
// strings, all timestamps ISO-8601 UTC, all monetary and quantity fields
// integers.
type Record struct {
	Kind       RecordKind `json:"kind"`
	RecordedAt string     `json:"recorded_at"`
	Data       any        `json:"data"`
}

// Recorder is the engine's append-only persistence sink. Record must not
// block: implementations enqueue and write on their own goroutine, so the
// engine never suspends on I/O while holding its lock.
type Recorder interface {
	Record(kind RecordKind, data any)
	Close() error
}

// FileRecorder appends JSON lines to a writer from a background goroutine.
type FileRecorder struct {
	ch     chan Record
	done   chan struct{}
	logger *slog.Logger

	mu      sync.Mutex
	closed  bool
	dropped int64
}

// NewFileRecorder starts a recorder writing to w. The channel buffer
// absorbs bursts; records are dropped with a log line if the writer
// cannot keep up, since persistence is opaque to engine correctness.
func NewFileRecorder(w io.Writer, logger *slog.Logger) *FileRecorder {
	r := &FileRecorder{
		ch:     make(chan Record, 1024),
		done:   make(chan struct{}),
		logger: logger,
	}
	go r.drain(w)
	return r
}

// Record enqueues a record without blocking.
func (r *FileRecorder) Record(kind RecordKind, data any) {
	rec := Record{
		Kind:       kind,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Data:       data,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.ch <- rec:
	default:
		r.dropped++
		r.logger.Warn("record dropped, sink backlogged",
			slog.String("kind", string(kind)),
			slog.Int64("dropped_total", r.dropped),
		)
	}
}

// Close stops accepting records, flushes the queue, and stops the writer
// goroutine.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.ch)
	r.mu.Unlock()
	<-r.done
	return nil
}

func (r *FileRecorder) drain(w io.Writer) {
	defer close(r.done)
	enc := json.NewEncoder(w)
	for rec := range r.ch {
		if err := enc.Encode(rec); err != nil {
			r.logger.Error("record write failed", slog.String("error", err.Error()))
		}
	}
}

// MemoryRecorder collects records in memory. Used in tests and as the
// sink when no record path is configured.
type MemoryRecorder struct {
	mu      sync.Mutex
	records []Record
}

// NewMemoryRecorder creates an empty MemoryRecorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// Record appends the record to the in-memory list.
func (r *MemoryRecorder) Record(kind RecordKind, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, Record{
		Kind:       kind,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Data:       data,
	})
}

// Close is a no-op.
func (r *MemoryRecorder) Close() error { return nil }

// Records returns a copy of everything recorded so far.
func (r *MemoryRecorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// ByKind returns the recorded entries of one kind, in order.
func (r *MemoryRecorder) ByKind(kind RecordKind) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Record
	for _, rec := range r.records {
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out
}
