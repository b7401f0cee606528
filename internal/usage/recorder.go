package usage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alecgard/gabelle/internal/session"
	"github.com/google/uuid"
)

// ErrNoContext is returned by Record when the session context is not fully
// resolved. It is a skip, not a failure: the user still gets their OCR text,
// nothing is billed.
var ErrNoContext = errors.New("usage: session context not resolved, skipping record")

// BatchInserter is the interface the Recorder persists through. It exists to
// allow testing without a real database.
type BatchInserter interface {
	BatchInsert(ctx context.Context, records []Record) error
}

// Metrics is an optional interface for observing recorder behaviour.
type Metrics interface {
	IncRecordsQueued()
	IncRecordsSkipped()
	IncFlush(status string)
	SetQueueDepth(n int)
}

// Recorder builds usage records from recognition results and persists them
// asynchronously. Persistence is decoupled from the caller: Record returns
// as soon as the record is queued, and flush failures are logged and counted
// rather than propagated. It is safe for concurrent use.
type Recorder struct {
	store         BatchInserter
	buffer        []Record
	mu            sync.Mutex
	batchSize     int
	flushInterval time.Duration
	done          chan struct{}
	metrics       Metrics

	now   func() time.Time // injectable clock for testing
	newID func() string    // injectable id source for testing
}

// NewRecorder creates a Recorder that flushes to the store when the buffer
// reaches batchSize or every flushInterval, whichever comes first.
func NewRecorder(store BatchInserter, batchSize int, flushInterval time.Duration) *Recorder {
	return &Recorder{
		store:         store,
		buffer:        make([]Record, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

// SetMetrics sets the optional metrics sink.
func (r *Recorder) SetMetrics(m Metrics) {
	r.metrics = m
}

// Record creates a usage record for one recognition result and queues it for
// persistence. The session context must be fully resolved; otherwise the call
// is a no-op returning ErrNoContext. The returned id identifies the queued
// record. Two identical recognition results produce two distinct records:
// usage is metered per invocation, not per unique document.
func (r *Recorder) Record(sctx session.Context, text string, wordCount int) (string, error) {
	if !sctx.Complete() {
		if r.metrics != nil {
			r.metrics.IncRecordsSkipped()
		}
		return "", ErrNoContext
	}

	rec := Record{
		ID:             r.newID(),
		SubscriptionID: sctx.SubscriptionID,
		PlanID:         sctx.PlanID,
		DimensionID:    sctx.DimensionID,
		OcrText:        text,
		WordCount:      wordCount,
		MeterProcessed: false,
		CreatedAt:      r.now().UTC(),
	}

	r.mu.Lock()
	r.buffer = append(r.buffer, rec)
	depth := len(r.buffer)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.IncRecordsQueued()
		r.metrics.SetQueueDepth(depth)
	}

	if depth >= r.batchSize {
		r.flush()
	}

	return rec.ID, nil
}

// Start begins a background goroutine that flushes queued records on a
// timer. It blocks until Stop is called or the context is cancelled.
func (r *Recorder) Start(ctx context.Context) {
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.flush()
		case <-ctx.Done():
			r.flush()
			return
		case <-r.done:
			r.flush()
			return
		}
	}
}

// flush drains all queued records and writes them to the store. Errors are
// logged rather than returned so the recognition response path is never
// blocked on persistence.
func (r *Recorder) flush() {
	r.mu.Lock()
	if len(r.buffer) == 0 {
		r.mu.Unlock()
		return
	}
	batch := r.buffer
	r.buffer = make([]Record, 0, r.batchSize)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SetQueueDepth(0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := r.store.BatchInsert(ctx, batch); err != nil {
		if r.metrics != nil {
			r.metrics.IncFlush("error")
		}
		slog.Error("failed to flush usage records", "count", len(batch), "error", err)
		return
	}
	if r.metrics != nil {
		r.metrics.IncFlush("ok")
	}
}

// Stop signals the background goroutine to exit and performs a final flush.
func (r *Recorder) Stop() {
	close(r.done)
}
