package schema

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/chrisdevereux/earthstar-data/docstore"
	"github.com/chrisdevereux/earthstar-data/errors"
	"github.com/chrisdevereux/earthstar-data/paths"
)

// ObserveOption configures a live view.
type ObserveOption func(*observeOptions)

type observeOptions struct {
	logger *slog.Logger
}

// WithLogger sets the logger the view reports lifecycle events on.
func WithLogger(logger *slog.Logger) ObserveOption {
	return func(o *observeOptions) { o.logger = logger }
}

// Observe builds a live view of t at path. The event stream is acquired
// before the initial read so a write landing between the two is never
// lost; at worst an event re-folds a document the read already saw,
// which converges to the same value.
//
// The returned view is open. It keeps folding store events until the
// stream ends, an event fails to fold, the last observer releases, or
// Close is called.
func Observe(ctx context.Context, st docstore.ReadWatcher, t Type, path string, opts ...ObserveOption) (*LiveView, error) {
	if err := paths.Validate(path); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidPath, err), "schema", "Observe", "path validation")
	}
	options := observeOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}

	stream, err := st.GetEventStream(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "schema", "Observe", "event stream acquisition")
	}
	snapshot, err := Read(ctx, st, t, path)
	if err != nil {
		stream.Stop()
		return nil, err
	}

	view := &LiveView{
		store:     st,
		typ:       t,
		path:      path,
		logger:    options.logger,
		snapshot:  snapshot,
		observers: make(map[string]func(any)),
	}
	view.open(stream)
	return view, nil
}

// LiveView holds a value assembled from the store and keeps it current by
// folding events as they arrive. Snapshot is safe from any goroutine;
// observer callbacks run sequentially on the view's event loop.
//
// A view is either open or closed. It closes when its stream ends, when
// an event cannot be folded, when the last observer releases, or on
// Close. A closed view retains its last snapshot, and a new Subscribe
// reopens it against a fresh event stream.
type LiveView struct {
	store  docstore.ReadWatcher
	typ    Type
	path   string
	logger *slog.Logger

	// notifyMu serializes observer notifications, initial deliveries
	// included, so every observer sees snapshots in fold order.
	notifyMu sync.Mutex

	mu        sync.Mutex
	snapshot  any
	observers map[string]func(any)
	stream    docstore.EventStream
	cancel    context.CancelFunc
	closed    bool
	err       error
}

// open wires a stream into the view and starts its event loop. Callers
// hold mu or have exclusive access to the view.
func (v *LiveView) open(stream docstore.EventStream) {
	ctx, cancel := context.WithCancel(context.Background())
	v.stream = stream
	v.cancel = cancel
	v.closed = false
	v.err = nil
	go v.eventLoop(ctx, stream)
}

func (v *LiveView) eventLoop(ctx context.Context, stream docstore.EventStream) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("live view event loop panicked", "path", v.path, "panic", r)
			v.shutdown(stream, errors.WrapFatal(fmt.Errorf("panic: %v", r), "LiveView", "eventLoop", "event processing"))
		}
	}()
	for ev := range stream.Events() {
		if err := v.apply(ctx, stream, ev); err != nil {
			v.shutdown(stream, err)
			return
		}
	}
	v.shutdown(stream, nil)
}

// apply folds one store event into the snapshot and notifies observers.
// Events outside the observed subtree are ignored. An expired document
// folds like a wipe of its path.
func (v *LiveView) apply(ctx context.Context, stream docstore.EventStream, ev docstore.Event) error {
	switch ev.Kind {
	case docstore.EventDocSet, docstore.EventDocExpire:
	default:
		return nil
	}
	doc := ev.Doc
	if ev.Kind == docstore.EventDocExpire {
		doc.Text = ""
		doc.Attachment = nil
	}
	rest, ok := paths.Components(doc.Path, v.path)
	if !ok {
		return nil
	}
	if !docstore.FormatSupported(doc.Format) {
		return errors.WrapFatal(fmt.Errorf("%w: format %q", errors.ErrUnsupportedFormat, doc.Format), "LiveView", "apply", "document format check")
	}

	v.mu.Lock()
	prev := v.snapshot
	v.mu.Unlock()

	next, err := v.typ.Reduce(ctx, v.store, doc, rest, prev)
	if err != nil {
		return errors.Wrap(err, "LiveView", "apply", "event fold")
	}

	v.notifyMu.Lock()
	defer v.notifyMu.Unlock()

	v.mu.Lock()
	if v.closed || v.stream != stream {
		v.mu.Unlock()
		return nil
	}
	v.snapshot = next
	fns := make([]func(any), 0, len(v.observers))
	for _, fn := range v.observers {
		fns = append(fns, fn)
	}
	v.mu.Unlock()

	for _, fn := range fns {
		fn(next)
	}
	return nil
}

// shutdown transitions to closed on behalf of the event loop that owns
// stream. A stale loop left over from before a reopen finds the stream
// replaced and leaves the view alone.
func (v *LiveView) shutdown(stream docstore.EventStream, err error) {
	v.mu.Lock()
	if v.closed || v.stream != stream {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.err = err
	v.stream = nil
	cancel := v.cancel
	v.cancel = nil
	v.mu.Unlock()

	stream.Stop()
	if cancel != nil {
		cancel()
	}
	if err != nil {
		v.logger.Error("live view closed on fold failure", "path", v.path, "error", err)
	}
}

// Subscribe registers fn and immediately delivers the current snapshot to
// it. Each subsequent fold delivers the new snapshot to every observer in
// fold order. The returned release function removes the observer, and
// releasing the last one closes the view.
//
// Subscribing to a closed view reopens it against a fresh event stream,
// resuming from the retained snapshot. Writes made while the view was
// closed are not refolded, so a reopened view lags until the next event
// arrives. fn must not call Subscribe on the same view.
func (v *LiveView) Subscribe(fn func(snapshot any)) (func(), error) {
	v.notifyMu.Lock()
	defer v.notifyMu.Unlock()

	v.mu.Lock()
	if v.closed {
		stream, err := v.store.GetEventStream(context.Background())
		if err != nil {
			v.mu.Unlock()
			return nil, errors.Wrap(err, "LiveView", "Subscribe", "event stream acquisition")
		}
		v.open(stream)
		v.logger.Debug("live view reopened", "path", v.path)
	}
	id := uuid.NewString()
	v.observers[id] = fn
	snap := v.snapshot
	v.mu.Unlock()

	fn(snap)
	return func() { v.release(id) }, nil
}

func (v *LiveView) release(id string) {
	v.mu.Lock()
	if _, ok := v.observers[id]; !ok {
		v.mu.Unlock()
		return
	}
	delete(v.observers, id)
	empty := len(v.observers) == 0 && !v.closed
	v.mu.Unlock()
	if empty {
		v.Close()
	}
}

// Close stops the view and drops every observer. Idempotent. The final
// snapshot stays readable after closing.
func (v *LiveView) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.observers = make(map[string]func(any))
	stream := v.stream
	v.stream = nil
	cancel := v.cancel
	v.cancel = nil
	v.mu.Unlock()

	if stream != nil {
		stream.Stop()
	}
	if cancel != nil {
		cancel()
	}
}

// Snapshot returns the most recently folded value.
func (v *LiveView) Snapshot() any {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshot
}

// Err reports why the view closed itself. It is nil while the view is
// open and after a deliberate Close.
func (v *LiveView) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

// IsClosed reports whether the view is closed.
func (v *LiveView) IsClosed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}
