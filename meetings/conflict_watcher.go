package meetings

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ConflictChecker is satisfied by *Service.
type ConflictChecker interface {
	CheckConflicts(ctx context.Context, query ConflictQuery) (*ConflictResult, error)
}

// ConflictDraft is the part of an in-progress meeting that affects conflicts.
type ConflictDraft struct {
	StartTime        time.Time
	EndTime          time.Time
	Emails           []string
	ExcludeMeetingID string
}

// query returns the conflict query for the draft, or false when the draft is
// not complete enough to check.
func (d ConflictDraft) query() (ConflictQuery, bool) {
	emails := make([]string, 0, len(d.Emails))
	for _, email := range d.Emails {
		email = strings.TrimSpace(email)
		if strings.Contains(email, "@") {
			emails = append(emails, email)
		}
	}
	if d.StartTime.IsZero() || d.EndTime.IsZero() || len(emails) == 0 {
		return ConflictQuery{}, false
	}
	return ConflictQuery{
		StartTime:         d.StartTime.UTC(),
		EndTime:           d.EndTime.UTC(),
		ParticipantEmails: emails,
		ExcludeMeetingID:  d.ExcludeMeetingID,
	}, true
}

// ConflictWatcher debounces conflict checks for a meeting being edited. Each
// Update restarts the quiet period and abandons any check still running, so
// only the latest draft's result is ever reported. Failed checks are dropped.
type ConflictWatcher struct {
	checker  ConflictChecker
	delay    time.Duration
	onResult func(conflicts map[string][]ConflictingMeeting)
	logger   zerolog.Logger

	mu      sync.Mutex
	seq     uint64
	timer   *time.Timer
	pending pendingCheck
	cancel  context.CancelFunc
	closed  bool
	running sync.WaitGroup

	// deliver serialises onResult calls so a stale result cannot overtake a
	// newer one.
	deliver sync.Mutex
}

type pendingCheck struct {
	ctx   context.Context
	seq   uint64
	query ConflictQuery
}

type WatcherOption func(*ConflictWatcher)

func WithWatcherLogger(logger zerolog.Logger) WatcherOption {
	return func(w *ConflictWatcher) {
		w.logger = logger
	}
}

// NewConflictWatcher creates a watcher reporting results to onResult, which
// must not call back into the watcher.
func NewConflictWatcher(checker ConflictChecker, delay time.Duration, onResult func(map[string][]ConflictingMeeting), options ...WatcherOption) *ConflictWatcher {
	w := &ConflictWatcher{
		checker:  checker,
		delay:    delay,
		onResult: onResult,
		logger:   zerolog.Nop(),
	}
	for _, opt := range options {
		opt(w)
	}
	return w
}

// Update records a new draft. Incomplete drafts report no conflicts at once.
func (w *ConflictWatcher) Update(draft ConflictDraft) {
	query, ok := draft.query()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.stopLocked()
	w.seq++
	seq := w.seq

	if !ok {
		w.mu.Unlock()
		w.report(seq, map[string][]ConflictingMeeting{})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.pending = pendingCheck{ctx: ctx, seq: seq, query: query}
	w.running.Add(1)
	w.timer = time.AfterFunc(w.delay, func() {
		defer w.running.Done()
		w.check(ctx, seq, query)
	})
	w.mu.Unlock()
}

// Flush runs a check still waiting out its quiet period immediately and
// waits until every started check has reported. It must not be called
// concurrently with Update.
func (w *ConflictWatcher) Flush() {
	w.mu.Lock()
	if w.timer != nil && w.timer.Stop() {
		p := w.pending
		w.timer = nil
		w.mu.Unlock()
		w.check(p.ctx, p.seq, p.query)
		w.running.Done()
	} else {
		w.mu.Unlock()
	}
	w.running.Wait()
}

// Close stops pending and running checks and waits for them to finish.
func (w *ConflictWatcher) Close() {
	w.mu.Lock()
	w.closed = true
	w.stopLocked()
	w.mu.Unlock()
	w.running.Wait()
}

func (w *ConflictWatcher) stopLocked() {
	if w.timer != nil && w.timer.Stop() {
		// The callback will never run, so balance its Add here.
		w.running.Done()
	}
	w.timer = nil
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
}

func (w *ConflictWatcher) check(ctx context.Context, seq uint64, query ConflictQuery) {
	result, err := w.checker.CheckConflicts(ctx, query)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Debug().Err(err).Msg("conflict check failed")
		}
		return
	}
	w.report(seq, result.Conflicts)
}

func (w *ConflictWatcher) report(seq uint64, conflicts map[string][]ConflictingMeeting) {
	w.deliver.Lock()
	defer w.deliver.Unlock()

	w.mu.Lock()
	current := seq == w.seq && !w.closed
	w.mu.Unlock()
	if current && w.onResult != nil {
		w.onResult(conflicts)
	}
}
