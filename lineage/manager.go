package lineage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/joshbouncesecurity/pinot/cleanup"
	"github.com/joshbouncesecurity/pinot/internal/backoff"
	"github.com/joshbouncesecurity/pinot/lineageerr"
	"github.com/joshbouncesecurity/pinot/metrics"
	"github.com/joshbouncesecurity/pinot/store"
)

// Manager implements the segment replacement protocol on top of a versioned
// record store. It holds no per-table state of its own: every operation is a
// read-validate-write cycle against the store, resolved by retry on version
// conflicts rather than by locking. Any number of Managers in any number of
// processes may operate on the same tables concurrently.
type Manager struct {
	store   store.Store
	oracle  SegmentOracle
	cleanup cleanup.Trigger
	logger  *slog.Logger
	tracer  trace.Tracer

	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration

	// retainGenerations bounds how many data snapshots of a refresh-mode
	// table may coexist on disk: the one being uploaded plus
	// retainGenerations-1 completed ones.
	retainGenerations int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithTracerProvider enables tracing of lineage operations.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(m *Manager) { m.tracer = tp.Tracer("lineage") }
}

// WithMaxAttempts sets the bounded retry count for conditional writes.
func WithMaxAttempts(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// WithBackoff sets the retry backoff bounds.
func WithBackoff(base, cap time.Duration) Option {
	return func(m *Manager) {
		if base > 0 {
			m.backoffBase = base
		}
		if cap > 0 {
			m.backoffCap = cap
		}
	}
}

// WithRetainedGenerations sets how many live data generations a refresh
// table may keep. Minimum and default is 2: the snapshot currently served
// and the one being uploaded.
func WithRetainedGenerations(n int) Option {
	return func(m *Manager) {
		if n >= 2 {
			m.retainGenerations = n
		}
	}
}

// NewManager creates a Manager using the given record store, segment oracle,
// and deletion trigger.
func NewManager(st store.Store, oracle SegmentOracle, cl cleanup.Trigger, opts ...Option) *Manager {
	m := &Manager{
		store:             st,
		oracle:            oracle,
		cleanup:           cl,
		logger:            slog.Default(),
		tracer:            noop.NewTracerProvider().Tracer("lineage"),
		maxAttempts:       10,
		backoffBase:       50 * time.Millisecond,
		backoffCap:        2 * time.Second,
		retainGenerations: 2,
	}
	for _, o := range opts {
		o(m)
	}
	m.logger = m.logger.With("component", "lineage")
	return m
}

// sideEffect is a deletion enqueued during validation but executed only
// after the conditional write commits. Deletions are best effort and
// idempotent; they run regardless of what the caller does next.
type sideEffect func(ctx context.Context)

// StartReplaceSegments records the intent to replace segmentsFrom with
// segmentsTo and returns the new entry's id. The caller uploads the new
// segments out of band and then calls EndReplaceSegments, or abandons the
// attempt with RevertReplaceSegments.
//
// An empty segmentsFrom is the append or first-load case and is always a
// valid source set. With forceCleanup, a conflicting in-progress replacement
// over the same source set is proactively reverted instead of failing the
// call, and refresh-mode tables additionally shed data generations older
// than the retention bound.
func (m *Manager) StartReplaceSegments(ctx context.Context, table string, segmentsFrom, segmentsTo []string, forceCleanup bool) (string, error) {
	ctx, span := m.tracer.Start(ctx, "lineage.StartReplaceSegments", trace.WithAttributes(
		attribute.String("table", table),
		attribute.Int("segments.from", len(segmentsFrom)),
		attribute.Int("segments.to", len(segmentsTo)),
		attribute.Bool("force_cleanup", forceCleanup),
	))
	defer span.End()
	timer := time.Now()
	defer func() {
		metrics.OperationDuration.WithLabelValues("start").Observe(time.Since(timer).Seconds())
	}()

	entryID := newEntryID()
	err := m.withRetry(ctx, table, func(ctx context.Context, l *SegmentLineage) ([]sideEffect, error) {
		return m.validateStart(ctx, l, entryID, segmentsFrom, segmentsTo, forceCleanup)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	span.SetAttributes(attribute.String("entry_id", entryID))
	metrics.ReplacementsStarted.WithLabelValues(table).Inc()
	m.logger.Info("segment replacement started",
		"table", table, "entry", entryID,
		"from", segmentsFrom, "to", segmentsTo, "force_cleanup", forceCleanup)
	return entryID, nil
}

func (m *Manager) validateStart(ctx context.Context, l *SegmentLineage, entryID string, segmentsFrom, segmentsTo []string, forceCleanup bool) ([]sideEffect, error) {
	table := l.Table()

	if len(segmentsTo) == 0 {
		return nil, &lineageerr.DuplicateSegmentsToError{Table: table}
	}

	// The destination set must be disjoint from the source set.
	fromSet := make(map[string]bool, len(segmentsFrom))
	for _, s := range segmentsFrom {
		fromSet[s] = true
	}
	var overlap []string
	for _, s := range segmentsTo {
		if fromSet[s] {
			overlap = append(overlap, s)
		}
	}
	if len(overlap) > 0 {
		return nil, &lineageerr.DuplicateSegmentsToError{Table: table, Segments: overlap}
	}

	// Entries that forceCleanup will revert in this same update do not count
	// for the duplicate check: a retried job may legitimately reuse the
	// segment names of the attempt it is replacing.
	willRevert := make(map[string]bool)
	if forceCleanup {
		for _, e := range l.entries {
			if e.State == StateInProgress && segmentsIntersect(e.SegmentsFrom, segmentsFrom) {
				willRevert[e.ID] = true
			}
		}
	}

	// No segment may be produced twice.
	toSet := make(map[string]bool, len(segmentsTo))
	for _, s := range segmentsTo {
		toSet[s] = true
	}
	var dups []string
	for _, e := range l.entries {
		if e.State == StateReverted || willRevert[e.ID] {
			continue
		}
		for _, s := range e.SegmentsTo {
			if toSet[s] {
				dups = append(dups, s)
			}
		}
	}
	if len(dups) > 0 {
		return nil, &lineageerr.DuplicateSegmentsToError{Table: table, Segments: dups}
	}

	// Every source segment must be in the currently served view.
	var registered []string
	if len(segmentsFrom) > 0 {
		var err error
		registered, err = m.oracle.ListSegments(ctx, table)
		if err != nil {
			return nil, err
		}
		served := make(map[string]bool, len(registered))
		for _, s := range servedView(l, registered) {
			served[s] = true
		}
		var missing []string
		for _, s := range segmentsFrom {
			if !served[s] {
				missing = append(missing, s)
			}
		}
		if len(missing) > 0 {
			return nil, &lineageerr.SegmentsNotAvailableError{Table: table, Segments: missing}
		}
	}

	var effects []sideEffect

	// Source-set exclusivity: only one in-flight replacement may consume a
	// given source set. Two empty source sets conflict as well, so repeated
	// full-refresh attempts serialize.
	for _, e := range l.entries {
		if e.State != StateInProgress || !segmentsIntersect(e.SegmentsFrom, segmentsFrom) {
			continue
		}
		if !forceCleanup {
			return nil, &lineageerr.ConflictingReplacementError{Table: table, EntryID: e.ID}
		}
		l.setState(e.ID, StateReverted)
		effects = append(effects, m.deleteUploaded(table, e.ID, e.SegmentsTo))
		m.logger.Warn("force cleanup reverted a conflicting in-progress replacement",
			"table", table, "entry", e.ID)
		metrics.ReplacementsReverted.WithLabelValues(table).Inc()
	}

	refresh := false
	if forceCleanup || len(segmentsFrom) == 0 {
		mode, err := m.oracle.IngestionMode(ctx, table)
		if err != nil {
			return nil, err
		}
		refresh = mode == ModeRefresh
	}

	if refresh && forceCleanup && len(segmentsFrom) > 0 {
		// The new replacement consumes an earlier snapshot's output: the
		// inputs of that completed snapshot are a generation nobody can read
		// anymore, so shed them now instead of waiting for a collector.
		for _, e := range l.entries {
			if e.State == StateCompleted && len(e.SegmentsFrom) > 0 && overlaps(e.SegmentsTo, segmentsFrom) {
				effects = append(effects, m.deleteSegments(table, e.SegmentsFrom))
			}
		}
	}

	if refresh && len(segmentsFrom) == 0 {
		fx, err := m.pruneGenerations(ctx, l, registered, toSet)
		if err != nil {
			return nil, err
		}
		effects = append(effects, fx...)
	}

	l.add(&Entry{
		ID:           entryID,
		SegmentsFrom: append([]string(nil), segmentsFrom...),
		SegmentsTo:   append([]string(nil), segmentsTo...),
		State:        StateInProgress,
	})
	return effects, nil
}

// pruneGenerations bounds the number of live data generations of a
// refresh-mode table. A generation is the output of a completed replacement
// that no later replacement has consumed; when starting a new upload would
// exceed the retention bound, the oldest generations are enqueued for
// deletion.
func (m *Manager) pruneGenerations(ctx context.Context, l *SegmentLineage, registered []string, newSegments map[string]bool) ([]sideEffect, error) {
	table := l.Table()
	if registered == nil {
		var err error
		registered, err = m.oracle.ListSegments(ctx, table)
		if err != nil {
			return nil, err
		}
	}
	regSet := make(map[string]bool, len(registered))
	for _, s := range registered {
		regSet[s] = true
	}

	consumed := make(map[string]bool)
	for _, e := range l.entries {
		if e.State == StateCompleted {
			for _, s := range e.SegmentsFrom {
				consumed[s] = true
			}
		}
	}

	var live []*Entry
	for _, e := range l.entries {
		if e.State != StateCompleted {
			continue
		}
		for _, s := range e.SegmentsTo {
			if regSet[s] && !consumed[s] {
				live = append(live, e)
				break
			}
		}
	}

	keep := m.retainGenerations - 1 // room for the generation being created
	if len(live) <= keep {
		return nil, nil
	}

	var effects []sideEffect
	for _, e := range live[:len(live)-keep] {
		var victims []string
		for _, s := range e.SegmentsTo {
			if regSet[s] && !consumed[s] && !newSegments[s] {
				victims = append(victims, s)
			}
		}
		if len(victims) > 0 {
			m.logger.Info("pruning old data generation",
				"table", table, "entry", e.ID, "segments", victims)
			effects = append(effects, m.deleteSegments(table, victims))
		}
	}
	return effects, nil
}

// EndReplaceSegments marks the replacement as completed once every
// destination segment has been uploaded, atomically retiring the source
// segments from the served view. Superseded source segments and any
// replacement made impossible by their retirement are cleaned up after the
// commit.
func (m *Manager) EndReplaceSegments(ctx context.Context, table, entryID string) error {
	ctx, span := m.tracer.Start(ctx, "lineage.EndReplaceSegments", trace.WithAttributes(
		attribute.String("table", table),
		attribute.String("entry_id", entryID),
	))
	defer span.End()
	timer := time.Now()
	defer func() {
		metrics.OperationDuration.WithLabelValues("end").Observe(time.Since(timer).Seconds())
	}()

	err := m.withRetry(ctx, table, func(ctx context.Context, l *SegmentLineage) ([]sideEffect, error) {
		e, ok := l.byID[entryID]
		if !ok {
			return nil, &lineageerr.UnknownEntryError{Table: table, EntryID: entryID}
		}
		if e.State != StateInProgress {
			return nil, &lineageerr.InvalidStateTransitionError{
				Table: table, EntryID: entryID,
				From: string(e.State), To: string(StateCompleted),
			}
		}

		var missing []string
		for _, s := range e.SegmentsTo {
			ok, err := m.oracle.IsAvailable(ctx, table, s)
			if err != nil {
				return nil, err
			}
			if !ok {
				missing = append(missing, s)
			}
		}
		if len(missing) > 0 {
			return nil, &lineageerr.SegmentsNotUploadedError{Table: table, EntryID: entryID, Missing: missing}
		}

		l.setState(entryID, StateCompleted)

		var effects []sideEffect
		if len(e.SegmentsFrom) > 0 {
			effects = append(effects, m.deleteSegments(table, e.SegmentsFrom))
		}
		// Any other in-flight replacement over the same source set can no
		// longer complete: its inputs are gone. Revert it in the same commit
		// and clean up whatever it already uploaded.
		for _, other := range l.entries {
			if other.ID == entryID || other.State != StateInProgress {
				continue
			}
			if segmentsIntersect(other.SegmentsFrom, e.SegmentsFrom) {
				l.setState(other.ID, StateReverted)
				effects = append(effects, m.deleteUploaded(table, other.ID, other.SegmentsTo))
				metrics.ReplacementsReverted.WithLabelValues(table).Inc()
			}
		}
		return effects, nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	metrics.ReplacementsCompleted.WithLabelValues(table).Inc()
	m.logger.Info("segment replacement completed", "table", table, "entry", entryID)
	return nil
}

// RevertReplaceSegments abandons an in-progress replacement, leaving the
// source segments as the served set. If destination segments were already
// uploaded the revert is refused unless forceRevert confirms discarding
// them; a forced revert enqueues their deletion.
func (m *Manager) RevertReplaceSegments(ctx context.Context, table, entryID string, forceRevert bool) error {
	ctx, span := m.tracer.Start(ctx, "lineage.RevertReplaceSegments", trace.WithAttributes(
		attribute.String("table", table),
		attribute.String("entry_id", entryID),
		attribute.Bool("force_revert", forceRevert),
	))
	defer span.End()
	timer := time.Now()
	defer func() {
		metrics.OperationDuration.WithLabelValues("revert").Observe(time.Since(timer).Seconds())
	}()

	err := m.withRetry(ctx, table, func(ctx context.Context, l *SegmentLineage) ([]sideEffect, error) {
		e, ok := l.byID[entryID]
		if !ok {
			return nil, &lineageerr.UnknownEntryError{Table: table, EntryID: entryID}
		}
		if e.State != StateInProgress {
			return nil, &lineageerr.InvalidStateTransitionError{
				Table: table, EntryID: entryID,
				From: string(e.State), To: string(StateReverted),
			}
		}

		var uploaded []string
		for _, s := range e.SegmentsTo {
			ok, err := m.oracle.IsAvailable(ctx, table, s)
			if err != nil {
				return nil, err
			}
			if ok {
				uploaded = append(uploaded, s)
			}
		}
		if len(uploaded) > 0 && !forceRevert {
			return nil, &lineageerr.PartialUploadError{Table: table, EntryID: entryID, Uploaded: uploaded}
		}

		l.setState(entryID, StateReverted)
		var effects []sideEffect
		if len(uploaded) > 0 {
			effects = append(effects, m.deleteSegments(table, uploaded))
		}
		return effects, nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	metrics.ReplacementsReverted.WithLabelValues(table).Inc()
	m.logger.Info("segment replacement reverted",
		"table", table, "entry", entryID, "force_revert", forceRevert)
	return nil
}

// GetLineage returns the table's current lineage. A table with no recorded
// replacements yields an empty lineage.
func (m *Manager) GetLineage(ctx context.Context, table string) (*SegmentLineage, error) {
	l, _, err := m.readLineage(ctx, table)
	return l, err
}

// ServedSegments returns the table's currently served segment set: all
// registered segments minus those retired by a completed replacement and
// minus the not-yet-committed outputs of in-progress ones.
func (m *Manager) ServedSegments(ctx context.Context, table string) ([]string, error) {
	l, _, err := m.readLineage(ctx, table)
	if err != nil {
		return nil, err
	}
	registered, err := m.oracle.ListSegments(ctx, table)
	if err != nil {
		return nil, err
	}
	served := servedView(l, registered)
	sort.Strings(served)
	return served, nil
}

// DropLineage destroys the table's lineage record. Only valid when the
// table itself is being dropped.
func (m *Manager) DropLineage(ctx context.Context, table string) error {
	return m.store.Delete(ctx, table)
}

func (m *Manager) readLineage(ctx context.Context, table string) (*SegmentLineage, store.Version, error) {
	rec, err := m.store.Read(ctx, table)
	if errors.Is(err, store.ErrNotFound) {
		return NewSegmentLineage(table), store.NoVersion, nil
	}
	if err != nil {
		return nil, store.NoVersion, err
	}
	l, err := UnmarshalSegmentLineage(table, rec.Data)
	if err != nil {
		return nil, store.NoVersion, err
	}
	return l, rec.Version, nil
}

// withRetry runs one read-validate-write cycle and retries it with jittered
// backoff as long as the conditional write keeps losing to concurrent
// writers, up to the attempt budget. Validation errors abort immediately
// and leave the record untouched; side effects run only after a commit.
func (m *Manager) withRetry(ctx context.Context, table string, mutate func(ctx context.Context, l *SegmentLineage) ([]sideEffect, error)) error {
	var lastErr error
	for attempt := 0; attempt < m.maxAttempts; attempt++ {
		l, version, err := m.readLineage(ctx, table)
		if err != nil {
			return err
		}

		effects, err := mutate(ctx, l)
		if err != nil {
			return err
		}

		data, err := json.Marshal(l)
		if err != nil {
			return err
		}

		if _, err = m.store.Write(ctx, table, data, version); err == nil {
			for _, fx := range effects {
				fx(ctx)
			}
			return nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return err
		}
		lastErr = err
		metrics.CASConflicts.WithLabelValues(table).Inc()
		m.logger.Debug("lineage write lost to a concurrent writer, retrying",
			"table", table, "attempt", attempt+1)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff.Jitter(attempt, m.backoffBase, m.backoffCap)):
		}
	}
	metrics.CASExhausted.WithLabelValues(table).Inc()
	return &lineageerr.ConcurrentModificationError{Table: table, Attempts: m.maxAttempts, Err: lastErr}
}

// deleteSegments returns a side effect that hands the segments to the
// cleanup trigger.
func (m *Manager) deleteSegments(table string, segments []string) sideEffect {
	segs := append([]string(nil), segments...)
	return func(ctx context.Context) {
		m.cleanup.DeleteSegments(ctx, table, segs)
	}
}

// deleteUploaded returns a side effect that deletes only the segments that
// were actually uploaded. Availability is checked at execution time so the
// check reflects the post-commit state.
func (m *Manager) deleteUploaded(table, entryID string, segments []string) sideEffect {
	segs := append([]string(nil), segments...)
	return func(ctx context.Context) {
		var uploaded []string
		for _, s := range segs {
			ok, err := m.oracle.IsAvailable(ctx, table, s)
			if err != nil {
				m.logger.Warn("availability check failed during cleanup, skipping segment",
					"table", table, "entry", entryID, "segment", s, "error", err)
				continue
			}
			if ok {
				uploaded = append(uploaded, s)
			}
		}
		if len(uploaded) > 0 {
			m.cleanup.DeleteSegments(ctx, table, uploaded)
		}
	}
}

// servedView computes the served segment set: registered segments minus the
// inputs consumed by completed replacements and minus the uncommitted
// outputs of in-progress ones.
func servedView(l *SegmentLineage, registered []string) []string {
	hidden := make(map[string]bool)
	for _, e := range l.entries {
		switch e.State {
		case StateCompleted:
			for _, s := range e.SegmentsFrom {
				hidden[s] = true
			}
		case StateInProgress:
			for _, s := range e.SegmentsTo {
				hidden[s] = true
			}
		}
	}
	var served []string
	for _, s := range registered {
		if !hidden[s] {
			served = append(served, s)
		}
	}
	return served
}

// overlaps reports plain set intersection, with no special case for empty
// sets.
func overlaps(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		if set[s] {
			return true
		}
	}
	return false
}
