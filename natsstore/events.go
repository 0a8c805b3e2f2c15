package natsstore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/chrisdevereux/earthstar-data/docstore"
	"github.com/chrisdevereux/earthstar-data/errors"
)

// GetEventStream implements docstore.Watcher. The watch feed starts at the
// current end of the bucket, so the stream carries only changes made after
// acquisition. The given context bounds acquisition; the stream itself runs
// until Stop.
func (s *Store) GetEventStream(ctx context.Context) (docstore.EventStream, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	s.metrics.recordOp("watch")

	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	watcher, err := s.kv.WatchAll(wctx, jetstream.UpdatesOnly())
	if err != nil {
		cancel()
		s.metrics.recordError("watch")
		return nil, errors.WrapTransient(err, "Store", "GetEventStream", "kv watch")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		if serr := watcher.Stop(); serr != nil {
			s.logger.Warn("kv watcher stop", "error", serr)
		}
		return nil, errors.ErrStoreClosed
	}
	id := s.nextID
	s.nextID++
	stream := &kvEventStream{
		store:   s,
		id:      id,
		watcher: watcher,
		events:  make(chan docstore.Event),
		ctx:     wctx,
		cancel:  cancel,
		logger:  s.logger,
	}
	s.streams[id] = stream
	s.mu.Unlock()

	stream.wg.Add(1)
	go stream.run()
	return stream, nil
}

// kvEventStream adapts a KV watcher into a docstore.EventStream. A single
// goroutine pumps watch entries into the events channel. Delivery applies
// backpressure to the watcher rather than dropping, so consumers see every
// change in order.
type kvEventStream struct {
	store   *Store
	id      int
	watcher jetstream.KeyWatcher
	events  chan docstore.Event
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *slog.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// Events implements docstore.EventStream.
func (st *kvEventStream) Events() <-chan docstore.Event {
	return st.events
}

// Stop implements docstore.EventStream. Idempotent and safe from any
// goroutine.
func (st *kvEventStream) Stop() {
	st.stopOnce.Do(func() {
		st.store.dropStream(st.id)
		st.cancel()
		if err := st.watcher.Stop(); err != nil {
			st.logger.Warn("kv watcher stop", "error", err)
		}

		done := make(chan struct{})
		go func() {
			st.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			st.logger.Warn("event stream shutdown timeout exceeded")
		}
	})
}

// run pumps watch entries to the consumer until the watcher ends or the
// stream is stopped.
func (st *kvEventStream) run() {
	defer st.wg.Done()
	defer close(st.events)
	defer func() {
		if r := recover(); r != nil {
			st.logger.Error("event stream panic recovered", "panic", r)
		}
	}()

	for {
		select {
		case <-st.ctx.Done():
			return

		case entry, ok := <-st.watcher.Updates():
			if !ok {
				return
			}
			if entry == nil {
				// Marker separating replayed state from live updates.
				continue
			}

			ev, ok := st.store.eventFromEntry(entry)
			if !ok {
				continue
			}

			select {
			case st.events <- ev:
				st.store.metrics.recordEvent()
			case <-st.ctx.Done():
				return
			}
		}
	}
}

// eventFromEntry maps one KV watch entry to a document event. Put entries
// carry the new envelope. Delete and purge entries mean the key was removed
// at the KV layer, outside the tombstone protocol, which reads as the
// document expiring. Entries with foreign keys or undecodable envelopes are
// skipped.
func (s *Store) eventFromEntry(entry jetstream.KeyValueEntry) (docstore.Event, bool) {
	path, err := pathForKey(entry.Key())
	if err != nil {
		s.logger.Warn("ignoring watch entry with foreign key", "key", entry.Key(), "error", err)
		s.metrics.recordSkipped()
		return docstore.Event{}, false
	}

	switch entry.Operation() {
	case jetstream.KeyValuePut:
		doc, err := decodeEnvelope(entry.Value())
		if err != nil {
			s.logger.Warn("ignoring watch entry with undecodable envelope",
				"key", entry.Key(), "error", err)
			s.metrics.recordSkipped()
			return docstore.Event{}, false
		}
		return docstore.Event{Kind: docstore.EventDocSet, Doc: doc}, true

	case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
		return docstore.Event{
			Kind: docstore.EventDocExpire,
			Doc: docstore.Document{
				Format:    docstore.FormatEs5,
				Path:      path,
				Timestamp: entry.Created(),
			},
		}, true

	default:
		return docstore.Event{
			Kind: docstore.EventOther,
			Doc:  docstore.Document{Format: docstore.FormatEs5, Path: path},
		}, true
	}
}
