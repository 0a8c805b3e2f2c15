package docstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chrisdevereux/earthstar-data/errors"
	"github.com/chrisdevereux/earthstar-data/paths"
)

// RejectFunc decides whether a mutation is accepted. A non-nil return
// rejects the write; the store surfaces it wrapping ErrWriteRejected.
type RejectFunc func(author Author, input SetInput) error

// MemStore is a deterministic in-memory Store.
//
// It backs local single-process use and every unit test in the schema
// package. Determinism guarantees:
//   - QueryDocs and QueryPaths return results in lexical path order
//   - each event stream observes mutations in the order they were applied
//
// Attachment bodies are stored by SHA-256 hex hash. Failure injection for
// tests: WithRejectFunc forces write rejections, WipeAttachment drops a
// stored blob so reads hit the attachment-unavailable path.
//
// All methods are safe for concurrent use.
type MemStore struct {
	mu      sync.Mutex
	docs    map[string]Document
	blobs   map[string][]byte
	streams map[int]*memStream
	nextID  int
	closed  bool

	reject RejectFunc
	clock  func() time.Time
	logger *slog.Logger
}

// MemOption configures a MemStore.
type MemOption func(*MemStore)

// WithRejectFunc installs a write-rejection policy.
func WithRejectFunc(fn RejectFunc) MemOption {
	return func(s *MemStore) {
		s.reject = fn
	}
}

// WithClock overrides the timestamp source for deterministic tests.
func WithClock(clock func() time.Time) MemOption {
	return func(s *MemStore) {
		s.clock = clock
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) MemOption {
	return func(s *MemStore) {
		s.logger = logger
	}
}

// NewMemStore creates an empty in-memory store.
func NewMemStore(opts ...MemOption) *MemStore {
	s := &MemStore{
		docs:    make(map[string]Document),
		blobs:   make(map[string][]byte),
		streams: make(map[int]*memStream),
		clock:   time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetLatestDocAtPath implements Reader.
func (s *MemStore) GetLatestDocAtPath(ctx context.Context, path string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Document{}, errors.ErrStoreClosed
	}

	doc, ok := s.docs[path]
	if !ok {
		return Document{}, fmt.Errorf("%w: %s", errors.ErrDocNotFound, path)
	}
	return doc, nil
}

// QueryDocs implements Reader. Results are sorted by path.
func (s *MemStore) QueryDocs(ctx context.Context, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.ErrStoreClosed
	}

	var docs []Document
	for path, doc := range s.docs {
		if strings.HasPrefix(path, q.PathStartsWith) {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

// QueryPaths implements Reader. Tombstoned paths are excluded: the path
// namespace scan backs inverse lookup, and a deleted relation must not be
// found. Results are sorted.
func (s *MemStore) QueryPaths(ctx context.Context, q PathQuery) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.ErrStoreClosed
	}

	var result []string
	for path, doc := range s.docs {
		if doc.IsDeleted() {
			continue
		}
		if !strings.HasPrefix(path, q.PathStartsWith) {
			continue
		}
		if !strings.HasSuffix(path, q.PathEndsWith) {
			continue
		}
		result = append(result, path)
	}
	sort.Strings(result)
	return result, nil
}

// GetAttachment implements Reader.
func (s *MemStore) GetAttachment(ctx context.Context, doc Document) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.ErrStoreClosed
	}

	if doc.Attachment == nil {
		return nil, errors.ErrNoAttachment
	}

	data, ok := s.blobs[doc.Attachment.Hash]
	if !ok {
		return nil, errors.Wrap(errors.ErrAttachmentUnavailable,
			"MemStore", "GetAttachment", fmt.Sprintf("blob %s lookup", doc.Attachment.Hash))
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	return io.NopCloser(bytes.NewReader(buf)), nil
}

// Set implements Writer. Empty text writes a tombstone and drops any
// attachment. The event reaches every open stream in mutation order.
func (s *MemStore) Set(ctx context.Context, author Author, input SetInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := paths.Validate(input.Path); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidPath, err),
			"MemStore", "Set", "path validation")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.ErrStoreClosed
	}

	if s.reject != nil {
		if rerr := s.reject(author, input); rerr != nil {
			if !stderrors.Is(rerr, errors.ErrWriteRejected) {
				rerr = errors.Rejected(rerr.Error())
			}
			return errors.Wrap(rerr, "MemStore", "Set", "write")
		}
	}

	doc := Document{
		Format:    FormatEs5,
		Path:      input.Path,
		Author:    author,
		Text:      input.Text,
		Timestamp: s.clock(),
	}

	if input.Text != "" && input.Attachment != nil {
		sum := sha256.Sum256(input.Attachment)
		hash := hex.EncodeToString(sum[:])
		buf := make([]byte, len(input.Attachment))
		copy(buf, input.Attachment)
		s.blobs[hash] = buf
		doc.Attachment = &AttachmentInfo{
			Size: int64(len(input.Attachment)),
			Hash: hash,
		}
	}

	s.docs[input.Path] = doc

	// Publish under the store lock so per-stream order matches mutation order.
	ev := Event{Kind: EventDocSet, Doc: doc}
	for _, stream := range s.streams {
		stream.push(ev)
	}
	return nil
}

// WipeDocAtPath implements Writer. A wipe is a tombstone write.
func (s *MemStore) WipeDocAtPath(ctx context.Context, author Author, path string) error {
	return s.Set(ctx, author, SetInput{Path: path})
}

// GetEventStream implements Watcher. The context bounds acquisition only;
// release the stream with Stop.
func (s *MemStore) GetEventStream(ctx context.Context) (EventStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.ErrStoreClosed
	}

	id := s.nextID
	s.nextID++

	stream := &memStream{
		store:  s,
		id:     id,
		events: make(chan Event),
		done:   make(chan struct{}),
	}
	stream.cond = sync.NewCond(&stream.mu)
	s.streams[id] = stream

	go stream.run()
	return stream, nil
}

// Close releases the store. Open event streams flush pending events and
// end; subsequent operations fail with ErrStoreClosed. Idempotent.
func (s *MemStore) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	streams := make([]*memStream, 0, len(s.streams))
	for _, stream := range s.streams {
		streams = append(streams, stream)
	}
	s.streams = make(map[int]*memStream)
	s.mu.Unlock()

	for _, stream := range streams {
		stream.finish()
	}
	s.logger.Debug("mem store closed", "streams", len(streams))
}

// WipeAttachment drops a stored attachment body, simulating a replica that
// holds a document but cannot supply its blob. Test hook.
func (s *MemStore) WipeAttachment(hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, hash)
}

// memStream is one subscriber's view of the store's mutations. Events
// queue without bound under the stream's own lock and a pump goroutine
// delivers them, so publishers never block on slow consumers.
type memStream struct {
	store *MemStore
	id    int

	mu      sync.Mutex
	cond    *sync.Cond
	pending []Event
	closed  bool

	events   chan Event
	done     chan struct{}
	stopOnce sync.Once
}

// Events implements EventStream.
func (st *memStream) Events() <-chan Event {
	return st.events
}

// Stop implements EventStream. Pending undelivered events are discarded.
func (st *memStream) Stop() {
	st.stopOnce.Do(func() {
		st.store.mu.Lock()
		delete(st.store.streams, st.id)
		st.store.mu.Unlock()

		st.mu.Lock()
		st.closed = true
		st.cond.Signal()
		st.mu.Unlock()

		close(st.done)
	})
}

// finish ends the stream gracefully: pending events still deliver, then
// the events channel closes. Used when the store itself closes.
func (st *memStream) finish() {
	st.mu.Lock()
	st.closed = true
	st.cond.Signal()
	st.mu.Unlock()
}

// push queues an event. Caller holds the store lock, which serializes
// pushes across streams in mutation order.
func (st *memStream) push(ev Event) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return
	}
	st.pending = append(st.pending, ev)
	st.cond.Signal()
}

// run pumps queued events to the consumer until stopped or drained after
// close.
func (st *memStream) run() {
	defer close(st.events)

	for {
		st.mu.Lock()
		for len(st.pending) == 0 && !st.closed {
			st.cond.Wait()
		}
		if len(st.pending) == 0 && st.closed {
			st.mu.Unlock()
			return
		}
		ev := st.pending[0]
		st.pending = st.pending[1:]
		st.mu.Unlock()

		// A stopped stream drops instead of delivering.
		select {
		case <-st.done:
			return
		default:
		}

		select {
		case st.events <- ev:
		case <-st.done:
			return
		}
	}
}
