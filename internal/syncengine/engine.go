// Package syncengine reconciles the locally edited document with the
// snapshot held by the remote store: explicit saves, timestamp-based
// conflict detection on sync, and a binary keep-local/use-remote decision
// when both sides changed.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/versebook/internal/apperr"
	"github.com/starford/versebook/internal/document"
	"github.com/starford/versebook/internal/models"
	"github.com/starford/versebook/internal/storage"
	"github.com/starford/versebook/internal/tracker"
)

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides node id generation.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithListener registers a listener for engine events.
func WithListener(l Listener) Option {
	return func(e *Engine) { e.listeners = append(e.listeners, l) }
}

type pendingRemote struct {
	doc      *models.Document
	revision string
	conflict *Conflict
}

// Engine owns the active document for one session.
//
// Load, Save, Sync and Resolve are sync-class operations: at most one runs
// at a time and a second caller gets apperr.ErrBusy. Mutations and reads
// may run while a sync-class operation waits on the network.
type Engine struct {
	store     storage.Provider
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
	listeners []Listener

	busy    atomic.Bool
	tracker *tracker.Tracker

	lmu sync.RWMutex // guards listeners

	mu       sync.Mutex
	tree     *document.Tree
	revision string // base token for the next save
	pending  *pendingRemote
}

// New builds an engine in the Loading state. Call Load before saving.
func New(store storage.Provider, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		logger:  slog.Default(),
		now:     time.Now,
		tracker: tracker.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	treeOpts := []document.Option{
		document.WithClock(e.now),
		document.WithObserver(e.tracker),
	}
	if e.newID != nil {
		treeOpts = append(treeOpts, document.WithIDGenerator(e.newID))
	}
	e.tree = document.New(nil, treeOpts...)
	return e
}

// Subscribe registers an additional listener.
func (e *Engine) Subscribe(l Listener) {
	e.lmu.Lock()
	e.listeners = append(e.listeners, l)
	e.lmu.Unlock()
}

// Info returns the current state.
func (e *Engine) Info() Info {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.tracker.Snapshot()
	info := Info{
		Status:       e.statusLocked(),
		Dirty:        st.Dirty,
		Mutations:    st.Mutations,
		LastModified: e.tree.Document().LastModified,
		ChangedAt:    st.ChangedAt,
		Revision:     e.revision,
		Busy:         e.busy.Load(),
	}
	if e.pending != nil {
		info.Conflict = e.pending.conflict
	}
	return info
}

// Status returns the current sync status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

func (e *Engine) statusLocked() Status {
	st := e.tracker.Snapshot()
	switch {
	case st.Loading:
		return StatusLoading
	case e.pending != nil:
		return StatusConflictPending
	case st.Dirty:
		return StatusDirty
	default:
		return StatusClean
	}
}

// Revision returns the base revision token of the next save.
func (e *Engine) Revision() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.revision
}

// Document returns a deep copy of the active document.
func (e *Engine) Document() *models.Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tree.Document().Clone()
}

// View runs fn with the live document under the engine lock. fn must not
// retain or modify it.
func (e *Engine) View(fn func(t *document.Tree)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.tree)
}

// Load fetches the remote document once and makes it the active document.
// On failure the engine stays Loading and Load may be retried. Once loaded,
// Load behaves like Sync.
func (e *Engine) Load(ctx context.Context) (Result, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return e.resultNow(""), apperr.ErrBusy
	}
	defer e.busy.Store(false)
	if !e.tracker.Snapshot().Loading {
		return e.sync(ctx)
	}
	return e.load(ctx)
}

func (e *Engine) load(ctx context.Context) (Result, error) {
	if err := e.store.Ping(ctx); err != nil {
		return e.fail("load", fmt.Errorf("sync: remote store unavailable: %w", err))
	}

	doc, revision, err := e.fetch(ctx)
	if err != nil {
		return e.fail("load", err)
	}
	if doc == nil {
		doc = models.New(e.now())
	}

	e.mu.Lock()
	e.tree.Replace(doc)
	e.revision = revision
	e.pending = nil
	e.tracker.FinishLoad()
	res := e.resultLocked(OutcomeLoaded)
	e.mu.Unlock()

	e.logger.Info("sync: loaded",
		slog.String("store", e.store.Describe()),
		slog.String("revision", revision),
		slog.Time("last_modified", doc.LastModified))
	e.emit(Event{Kind: EventLoaded, Op: "load", Outcome: OutcomeLoaded, Status: res.Status, Revision: revision})
	return res, nil
}

// fetch returns the decoded remote document and its revision. A missing
// document yields (nil, "", nil).
func (e *Engine) fetch(ctx context.Context) (*models.Document, string, error) {
	snap, err := e.store.Fetch(ctx)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("sync: fetch: %w", err)
	}
	doc, err := models.Decode(snap.Content)
	if err != nil {
		return nil, "", fmt.Errorf("sync: remote document: %w", err)
	}
	return doc, snap.Revision, nil
}

// Save stamps the document and writes it to the remote store. Saving is
// refused while a conflict awaits resolution.
func (e *Engine) Save(ctx context.Context) (Result, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return e.resultNow(""), apperr.ErrBusy
	}
	defer e.busy.Store(false)

	e.mu.Lock()
	status := e.statusLocked()
	e.mu.Unlock()
	switch status {
	case StatusLoading:
		return e.resultNow(""), apperr.ErrNotLoaded
	case StatusConflictPending:
		return e.resultNow(""), apperr.ErrConflictPending
	}
	return e.save(ctx, "save", OutcomeSaved)
}

func (e *Engine) save(ctx context.Context, op string, outcome Outcome) (Result, error) {
	e.mu.Lock()
	doc := e.tree.Document()
	previous := doc.LastModified
	stamp := e.now()
	doc.LastModified = stamp
	snapshot := doc.Clone()
	generation := e.tracker.Snapshot().Generation
	base := e.revision
	e.mu.Unlock()

	content, err := models.Encode(snapshot)
	if err == nil {
		var receipt storage.Receipt
		receipt, err = e.store.Save(ctx, content, base)
		if err == nil {
			return e.saved(op, outcome, receipt, generation), nil
		}
	}

	// Leave the in-memory document as it was before the attempt.
	e.mu.Lock()
	if doc.LastModified.Equal(stamp) {
		doc.LastModified = previous
	}
	e.mu.Unlock()

	if errors.Is(err, apperr.ErrConflict) {
		return e.reevaluate(ctx, op, err)
	}
	return e.fail(op, fmt.Errorf("sync: save: %w", err))
}

func (e *Engine) saved(op string, outcome Outcome, receipt storage.Receipt, generation uint64) Result {
	e.mu.Lock()
	e.revision = receipt.Revision
	clean := e.tracker.MarkSaved(generation)
	res := e.resultLocked(outcome)
	e.mu.Unlock()

	res.Receipt = &receipt
	attrs := []any{slog.String("op", op), slog.String("revision", receipt.Revision)}
	if !clean {
		attrs = append(attrs, slog.Bool("edited_during_save", true))
	}
	e.logger.Info("sync: saved", attrs...)
	e.emit(Event{Kind: EventSaved, Op: op, Outcome: outcome, Status: res.Status, Revision: receipt.Revision})
	return res
}

// reevaluate handles a store-level revision rejection: the remote moved
// since the last fetch, so it is fetched again and compared instead of
// retrying the write.
func (e *Engine) reevaluate(ctx context.Context, op string, conflictErr error) (Result, error) {
	e.logger.Warn("sync: save rejected, remote revision moved", slog.String("op", op), slog.String("error", conflictErr.Error()))

	remote, revision, err := e.fetch(ctx)
	if err != nil {
		return e.fail(op, errors.Join(fmt.Errorf("sync: save: %w", conflictErr), err))
	}
	res, _ := e.compare(remote, revision)
	if res.Outcome == OutcomeConflict {
		return res, nil
	}
	return res, fmt.Errorf("sync: save: %w", conflictErr)
}

// Sync fetches the remote document and reconciles it with the local one by
// lastModified: remote newer and local clean adopts the remote, remote newer
// and local dirty enters ConflictPending, anything else keeps local.
func (e *Engine) Sync(ctx context.Context) (Result, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return e.resultNow(""), apperr.ErrBusy
	}
	defer e.busy.Store(false)
	if e.tracker.Snapshot().Loading {
		return e.load(ctx)
	}
	return e.sync(ctx)
}

func (e *Engine) sync(ctx context.Context) (Result, error) {
	remote, revision, err := e.fetch(ctx)
	if err != nil {
		return e.fail("sync", err)
	}
	return e.compare(remote, revision)
}

// compare applies the timestamp rule. A nil remote means the store holds
// no document, which leaves the local one current.
func (e *Engine) compare(remote *models.Document, revision string) (Result, error) {
	e.mu.Lock()
	local := e.tree.Document()
	st := e.tracker.Snapshot()

	var outcome Outcome
	var conflict *Conflict
	switch {
	case remote != nil && remote.LastModified.After(local.LastModified):
		if st.Dirty {
			conflict = &Conflict{
				Local:      Side{Summary: models.Summarize(local), Mutations: st.Mutations, Revision: e.revision},
				Remote:     Side{Summary: models.Summarize(remote), Revision: revision},
				DetectedAt: e.now(),
			}
			e.pending = &pendingRemote{doc: remote, revision: revision, conflict: conflict}
			outcome = OutcomeConflict
		} else {
			e.tree.Replace(remote)
			e.revision = revision
			e.pending = nil
			e.tracker.Reset()
			outcome = OutcomeAdoptedRemote
		}
	case remote != nil && remote.LastModified.Equal(local.LastModified):
		// Same tick on both sides: no conflict, local wins.
		e.revision = revision
		e.pending = nil
		outcome = OutcomeEqual
	default:
		e.revision = revision
		e.pending = nil
		outcome = OutcomeLocalNewer
	}
	res := e.resultLocked(outcome)
	res.Conflict = conflict
	e.mu.Unlock()

	ev := Event{Kind: EventSynced, Op: "sync", Outcome: outcome, Status: res.Status, Revision: res.Revision}
	if conflict != nil {
		ev.Kind = EventConflict
		ev.Conflict = conflict
		e.logger.Info("sync: conflict pending",
			slog.Time("local_modified", conflict.Local.LastModified),
			slog.Time("remote_modified", conflict.Remote.LastModified),
			slog.Int("local_mutations", conflict.Local.Mutations))
	} else {
		e.logger.Info("sync: compared", slog.String("outcome", string(outcome)), slog.String("status", string(res.Status)))
	}
	e.emit(ev)
	return res, nil
}

// Resolve settles a pending conflict. KeepLocal saves the local document
// over the remote one; UseRemote adopts the fetched remote document without
// saving. A failed keep-local save leaves the conflict pending.
func (e *Engine) Resolve(ctx context.Context, choice Choice) (Result, error) {
	if !choice.Valid() {
		return e.resultNow(""), fmt.Errorf("%w: unknown resolution %q", apperr.ErrValidation, choice)
	}
	if !e.busy.CompareAndSwap(false, true) {
		return e.resultNow(""), apperr.ErrBusy
	}
	defer e.busy.Store(false)

	e.mu.Lock()
	p := e.pending
	if p == nil {
		e.mu.Unlock()
		return e.resultNow(""), apperr.ErrNoConflict
	}

	if choice == UseRemote {
		e.tree.Replace(p.doc)
		e.revision = p.revision
		e.pending = nil
		e.tracker.Reset()
		res := e.resultLocked(OutcomeUsedRemote)
		e.mu.Unlock()

		e.logger.Info("sync: conflict resolved", slog.String("choice", string(choice)))
		e.emit(Event{Kind: EventResolved, Op: "resolve", Outcome: OutcomeUsedRemote, Status: res.Status, Revision: res.Revision})
		return res, nil
	}

	e.revision = p.revision
	e.pending = nil
	e.mu.Unlock()

	res, err := e.save(ctx, "resolve", OutcomeKeptLocal)
	if err != nil {
		if res.Outcome == OutcomeFailed {
			e.mu.Lock()
			if e.pending == nil {
				e.pending = p
			}
			res = e.resultLocked(OutcomeFailed)
			e.mu.Unlock()
		}
		return res, err
	}
	if res.Outcome == OutcomeKeptLocal {
		e.logger.Info("sync: conflict resolved", slog.String("choice", string(choice)))
		e.emit(Event{Kind: EventResolved, Op: "resolve", Outcome: OutcomeKeptLocal, Status: res.Status, Revision: res.Revision})
	}
	return res, nil
}

// fail logs and reports a failed operation. State is left untouched.
func (e *Engine) fail(op string, err error) (Result, error) {
	e.logger.Warn("sync: "+op+" failed", slog.String("error", err.Error()))
	res := e.resultNow(OutcomeFailed)
	e.emit(Event{Kind: EventFailed, Op: op, Outcome: OutcomeFailed, Status: res.Status, Revision: res.Revision, Err: err})
	return res, err
}

func (e *Engine) resultNow(outcome Outcome) Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resultLocked(outcome)
}

func (e *Engine) resultLocked(outcome Outcome) Result {
	return Result{Outcome: outcome, Status: e.statusLocked(), Revision: e.revision}
}

func (e *Engine) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = e.now()
	}
	e.lmu.RLock()
	listeners := append([]Listener(nil), e.listeners...)
	e.lmu.RUnlock()
	for _, l := range listeners {
		l(ev)
	}
}
