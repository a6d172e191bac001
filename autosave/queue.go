// Package autosave buffers rapid, partial record edits and writes them
// out reliably: edits to the same record coalesce into one logical
// write, dispatch waits for input to quiesce, transient failures are
// retried a bounded number of times, and a local cache keeps every
// value the user typed visible while writes are in flight.
package autosave

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-tenant-client/internal/errors"
)

// Dispatcher writes the merged field set for a record and returns the
// canonical persisted record.
type Dispatcher interface {
	SaveRecord(ctx context.Context, recordID string, fields Fields) (Fields, error)
}

// Validator reports whether the merged field set is complete enough to
// dispatch. An incomplete set is not an error; the queue waits silently
// for the missing fields.
type Validator func(recordID string, fields Fields) bool

// FailureFunc is notified once when a record's write has exhausted its
// retry budget. The staged optimistic values are not rolled back.
type FailureFunc func(recordID string, err error)

// pendingWrite is the single uncommitted logical write for a record.
type pendingWrite struct {
	fields    Fields
	attempts  int
	createdAt time.Time
}

// Queue is the auto-save queue. One pending write exists per record;
// dispatches for a record are strictly sequential, with edits arriving
// mid-flight held for the next dispatch.
type Queue struct {
	dispatcher      Dispatcher
	cache           *Cache
	validator       Validator
	onFailure       FailureFunc
	clock           clock.Clock
	debounce        time.Duration
	retryDelay      time.Duration
	maxAttempts     int
	dispatchTimeout time.Duration
	logger          zerolog.Logger

	lock     sync.Mutex
	pending  map[string]*pendingWrite
	timers   map[string]*clock.Timer
	held     map[string]Fields
	inFlight map[string]bool
	closed   bool
}

// QueueOption modifies a Queue.
type QueueOption func(*Queue)

// WithClock sets the clock used for debounce and retry timers
// (primarily for testing).
func WithClock(c clock.Clock) QueueOption {
	return func(q *Queue) { q.clock = c }
}

// WithDebounce sets the quiescence window before a dispatch.
func WithDebounce(d time.Duration) QueueOption {
	return func(q *Queue) { q.debounce = d }
}

// WithRetry sets the retry budget and the fixed delay between attempts.
func WithRetry(maxAttempts int, delay time.Duration) QueueOption {
	return func(q *Queue) {
		q.maxAttempts = maxAttempts
		q.retryDelay = delay
	}
}

// WithDispatchTimeout bounds each write attempt.
func WithDispatchTimeout(d time.Duration) QueueOption {
	return func(q *Queue) { q.dispatchTimeout = d }
}

// WithFailureFunc sets the terminal-failure notification callback.
func WithFailureFunc(fn FailureFunc) QueueOption {
	return func(q *Queue) { q.onFailure = fn }
}

// NewQueue creates an auto-save queue. validator may be nil, in which
// case every staged set is considered dispatchable.
func NewQueue(dispatcher Dispatcher, cache *Cache, validator Validator, logger zerolog.Logger, options ...QueueOption) (*Queue, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("[NewQueue] dispatcher is required")
	}
	if cache == nil {
		return nil, fmt.Errorf("[NewQueue] cache is required")
	}
	if validator == nil {
		validator = func(string, Fields) bool { return true }
	}

	q := &Queue{
		dispatcher:      dispatcher,
		cache:           cache,
		validator:       validator,
		clock:           clock.New(),
		debounce:        600 * time.Millisecond,
		retryDelay:      2 * time.Second,
		maxAttempts:     3,
		dispatchTimeout: 30 * time.Second,
		logger:          logger,
		pending:         make(map[string]*pendingWrite),
		timers:          make(map[string]*clock.Timer),
		held:            make(map[string]Fields),
		inFlight:        make(map[string]bool),
	}
	for _, opt := range options {
		opt(q)
	}
	return q, nil
}

// Stage merges partial into the record's pending write (creating one if
// absent), overlays the values on the read cache immediately, and
// restarts the record's debounce timer. Edits arriving while a dispatch
// for the record is in flight are held and merged into the next
// dispatch once the current one settles.
func (q *Queue) Stage(recordID string, partial Fields) {
	if len(partial) == 0 {
		return
	}
	q.cache.Stage(recordID, partial)

	q.lock.Lock()
	defer q.lock.Unlock()
	if q.closed {
		return
	}

	if q.inFlight[recordID] {
		held, ok := q.held[recordID]
		if !ok {
			held = Fields{}
			q.held[recordID] = held
		}
		held.merge(partial)
		return
	}

	entry, ok := q.pending[recordID]
	if !ok {
		entry = &pendingWrite{fields: Fields{}, createdAt: q.clock.Now()}
		q.pending[recordID] = entry
	}
	entry.fields.merge(partial)

	q.scheduleLocked(recordID, q.debounce)
}

// ForceFlush dispatches every staged write whose field set is complete,
// bypassing the debounce delay, and blocks until each settles. Returns
// the last terminal error, if any; terminal failures are also reported
// through the failure callback.
func (q *Queue) ForceFlush() error {
	q.lock.Lock()
	ready := make([]string, 0, len(q.pending))
	for recordID, entry := range q.pending {
		if q.inFlight[recordID] || !q.validator(recordID, entry.fields) {
			continue
		}
		if timer, ok := q.timers[recordID]; ok {
			timer.Stop()
			delete(q.timers, recordID)
		}
		ready = append(ready, recordID)
	}
	q.lock.Unlock()

	var lastErr error
	for _, recordID := range ready {
		if err := q.dispatch(recordID); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Close stops all debounce timers and discards writes that were never
// dispatched. In-flight dispatches run to completion; no new ones are
// scheduled.
func (q *Queue) Close() {
	q.lock.Lock()
	defer q.lock.Unlock()
	q.closed = true
	for recordID, timer := range q.timers {
		timer.Stop()
		delete(q.timers, recordID)
	}
	for recordID := range q.pending {
		if !q.inFlight[recordID] {
			delete(q.pending, recordID)
		}
	}
	q.held = make(map[string]Fields)
	q.logger.Debug().Msg("auto-save queue closed")
}

// scheduleLocked restarts the record's debounce timer. Callers hold the
// lock.
func (q *Queue) scheduleLocked(recordID string, delay time.Duration) {
	if timer, ok := q.timers[recordID]; ok {
		timer.Stop()
	}
	q.timers[recordID] = q.clock.AfterFunc(delay, func() {
		_ = q.dispatch(recordID)
	})
}

// dispatch runs one dispatch wave for a record: up to maxAttempts
// writes of the field set merged at wave start, a fixed delay apart.
// A set that is not yet complete is left staged and waits silently.
func (q *Queue) dispatch(recordID string) error {
	q.lock.Lock()
	delete(q.timers, recordID)
	entry, ok := q.pending[recordID]
	if !ok || q.inFlight[recordID] {
		q.lock.Unlock()
		return nil
	}
	if !q.validator(recordID, entry.fields) {
		q.lock.Unlock()
		q.logger.Debug().Str("record_id", recordID).Msg("field set incomplete, dispatch deferred")
		return nil
	}
	q.inFlight[recordID] = true
	fields := entry.fields.clone()
	q.lock.Unlock()

	var lastErr error
	for attempt := 1; attempt <= q.maxAttempts; attempt++ {
		canonical, err := q.attempt(recordID, fields)
		if err == nil {
			q.settle(recordID, canonical, nil)
			return nil
		}
		lastErr = err
		q.logger.Warn().
			Err(err).
			Str("record_id", recordID).
			Int("attempt", attempt).
			Msg("write dispatch failed")
		if attempt < q.maxAttempts {
			<-q.clock.After(q.retryDelay)
		}
	}

	terminal := errors.Wrapf(errors.ErrRetryExceeded, "[dispatch] record %s (%v)", recordID, lastErr)
	q.settle(recordID, nil, terminal)
	return terminal
}

func (q *Queue) attempt(recordID string, fields Fields) (Fields, error) {
	ctx, cancel := context.WithTimeout(context.Background(), q.dispatchTimeout)
	defer cancel()

	q.lock.Lock()
	if entry, ok := q.pending[recordID]; ok {
		entry.attempts++
	}
	q.lock.Unlock()

	return q.dispatcher.SaveRecord(ctx, recordID, fields)
}

// settle finishes a dispatch wave: the pending write is destroyed
// either way, held edits become the next pending write, and the cache
// is reconciled on success. On terminal failure the staged optimistic
// values stay visible — rolling back a value the user can still see,
// without explanation, is worse than showing an unconfirmed one.
func (q *Queue) settle(recordID string, canonical Fields, terminal error) {
	q.lock.Lock()
	delete(q.pending, recordID)
	delete(q.inFlight, recordID)

	held, hasHeld := q.held[recordID]
	if hasHeld {
		delete(q.held, recordID)
		if !q.closed {
			q.pending[recordID] = &pendingWrite{fields: held, createdAt: q.clock.Now()}
			q.scheduleLocked(recordID, q.debounce)
		}
	}
	q.lock.Unlock()

	if terminal != nil {
		if q.onFailure != nil {
			q.onFailure(recordID, terminal)
		}
		return
	}

	if !hasHeld {
		q.cache.ClearStaged(recordID)
	}
	q.cache.Confirm(recordID, canonical, q.clock.Now())
	q.logger.Debug().Str("record_id", recordID).Msg("write confirmed")
}
