package docstore

import (
	"context"
	"io"
)

// Reader is the read side of a document store.
//
// The reduction engine consumes exactly this capability set: point lookup
// of the latest document at a path, prefix queries over documents and over
// the path namespace, and attachment body access.
//
// Thread Safety:
// All Reader implementations must be safe for concurrent use from multiple
// goroutines.
type Reader interface {
	// GetLatestDocAtPath returns the latest document at exactly the given
	// path. Tombstones (empty text) are returned like any other document.
	// A path that has never been written returns errors.ErrDocNotFound.
	GetLatestDocAtPath(ctx context.Context, path string) (Document, error)

	// QueryDocs returns the latest document at every path matching the
	// query, tombstones included. Order is implementation-specific; the
	// reduction fold does not rely on an order across independent keys.
	QueryDocs(ctx context.Context, q Query) ([]Document, error)

	// QueryPaths returns the paths of live (non-tombstone) documents
	// matching the query, without loading document contents. This backs
	// inverse lookup, which scans the path namespace rather than reading
	// documents.
	QueryPaths(ctx context.Context, q PathQuery) ([]string, error)

	// GetAttachment opens the binary body of a document's attachment.
	// Returns errors.ErrNoAttachment if the document claims none, and an
	// error wrapping errors.ErrAttachmentUnavailable if the document
	// claims one the store cannot supply. The caller owns the returned
	// reader and must close it.
	GetAttachment(ctx context.Context, doc Document) (io.ReadCloser, error)
}

// Writer is the write side of a document store.
//
// Thread Safety:
// All Writer implementations must be safe for concurrent use from multiple
// goroutines.
type Writer interface {
	// Set writes a document at input.Path. Writing empty text is the
	// deletion protocol: the document becomes a tombstone and any
	// attachment is dropped. A store that refuses the mutation returns an
	// error wrapping errors.ErrWriteRejected; the layer above never
	// retries rejected writes.
	Set(ctx context.Context, author Author, input SetInput) error

	// WipeDocAtPath writes a tombstone at the given path, clearing text
	// and attachment in one step. Idempotent: wiping an already absent or
	// tombstoned path succeeds.
	WipeDocAtPath(ctx context.Context, author Author, path string) error
}

// Watcher provides the store's ordered document-change event stream.
type Watcher interface {
	// GetEventStream opens a stream of document events in store order.
	// The context bounds stream acquisition only; the returned stream is
	// released via its Stop method.
	GetEventStream(ctx context.Context) (EventStream, error)
}

// ReadWriter combines the read and write sides of a store. Schema node
// writes take this: clearing a subtree queries the path namespace before
// wiping.
type ReadWriter interface {
	Reader
	Writer
}

// ReadWatcher combines document reads with the event stream. Observing a
// path takes this: the initial snapshot is a read, kept current by events.
type ReadWatcher interface {
	Reader
	Watcher
}

// Store combines the full capability set the schema layer is built on.
//
// Example implementations:
//   - MemStore: deterministic in-memory store for local use and tests
//   - natsstore.Store: NATS JetStream KV + ObjectStore backend
type Store interface {
	Reader
	Writer
	Watcher
}

// EventStream is a cancelable, ordered stream of document events.
//
// Events are delivered strictly in store order on the Events channel. The
// channel closes on end of stream, whether from Stop or from the store
// shutting down. Stop is idempotent and safe to call from any goroutine.
type EventStream interface {
	Events() <-chan Event
	Stop()
}
