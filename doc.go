// Package earthstardata maps typed application data onto a flat, path-addressed
// document store with eventual consistency.
//
// # Model
//
// The underlying store is deliberately simple: every document lives at a path,
// holds a short text plus an optional binary attachment, and the newest write
// at a path wins. There are no schemas, no transactions and no joins at the
// store level. This module layers a typed schema system on top of that model
// so applications read and write structured values while every piece of state
// remains an independently replicated document.
//
//	┌─────────────────────────────────────┐
//	│            schema                   │  Typed composition
//	│  (atoms, objects, collections,      │  Read / Write / Observe
//	│   attachments, formats, LiveView)   │  Inverse lookup
//	└─────────────────────────────────────┘
//	           ↓ consumes
//	┌─────────────────────────────────────┐
//	│           docstore                  │  Document, Event,
//	│   (Reader, Writer, Watcher)         │  Store contract
//	└─────────────────────────────────────┘
//	           ↓ implemented by
//	┌──────────────┐     ┌──────────────┐
//	│   MemStore   │     │  natsstore   │
//	│  (in-memory) │     │ (JetStream   │
//	│              │     │  KV + Object)│
//	└──────────────┘     └──────────────┘
//
// A schema is built by composing types: atoms hold scalar leaves, objects map
// named fields to subpaths, collections map dynamic percent-encoded keys to
// entries, attachments carry binary blobs, and format wrappers version a whole
// namespace. Because every composite decomposes into per-path documents,
// concurrent writers merge per field rather than per value, and partially
// synced state is always readable.
//
// # Packages
//
// Core:
//   - schema: type composition and the derived Read, Write and Observe
//     operations, plus LiveView and collection inverse lookup
//   - docstore: the store contract (Document, Event, Reader/Writer/Watcher)
//     and MemStore, a deterministic in-memory implementation
//   - paths: path validation, splitting and the percent key codec
//
// Infrastructure:
//   - natsstore: a production Store on NATS JetStream, documents in a KV
//     bucket and attachment blobs in an ObjectStore bucket
//   - errors: classified error handling (transient, invalid, fatal)
//   - pkg/retry: retry policies with exponential backoff and jitter
//
// # Usage
//
// Declare a shape once, then read and write whole values through it:
//
//	post := schema.MustObject(map[string]schema.Field{
//	    "content": {Type: schema.String(), Self: true},
//	    "title":   {Type: schema.String()},
//	    "tags":    {Type: schema.Set()},
//	})
//
//	err := schema.Write(ctx, store, post, "alice", "/posts/1", map[string]any{
//	    "content": "Hello world",
//	    "title":   "Hello",
//	    "tags":    map[string]any{"greetings": true},
//	})
//
//	value, err := schema.Read(ctx, store, post, "/posts/1")
//
// Observe a path to keep a value current as documents arrive:
//
//	view, err := schema.Observe(ctx, store, post, "/posts/1")
//	unsubscribe, err := view.Subscribe(func(snapshot any) {
//	    render(snapshot)
//	})
//
// # Design Principles
//
// Documents stay primary:
//   - Every field is its own document; schemas interpret, never own
//   - Unknown paths and unknown formats are tolerated, not rejected
//   - Deletion is an empty-text tombstone, so removals replicate
//
// Convergence over coordination:
//   - Newest timestamp wins at each path independently
//   - Composite writes fan out per child with no cross-document atomicity
//   - Reads and live views fold whatever subset has arrived
//
// Testability:
//   - Store access goes through small interfaces
//   - MemStore gives deterministic ordering and failure injection
//   - natsstore integration tests run against a containerized server
package earthstardata
