// Package docstore defines the document store contract the schema layer
// is built on, plus an in-memory reference implementation.
//
// # Overview
//
// The store is a flat, path-addressed, eventually-consistent collection of
// documents. Each document holds a text payload and at most one binary
// attachment; empty text marks a tombstone. Conflict resolution,
// replication and authorship verification belong to store implementations,
// not to this contract.
//
// The capability set mirrors exactly what the reduction engine consumes:
//
//   - point lookup of the latest document at a path (Reader.GetLatestDocAtPath)
//   - prefix query over documents (Reader.QueryDocs)
//   - prefix/suffix query over the path namespace (Reader.QueryPaths)
//   - attachment body access (Reader.GetAttachment)
//   - idempotent document writes and wipes (Writer.Set, Writer.WipeDocAtPath)
//   - an ordered, cancelable event stream (Watcher.GetEventStream)
//
// # Deletion Protocol
//
// Deletion is a write: setting a document's text to the empty string
// tombstones the path and drops its attachment. Tombstones remain visible
// to GetLatestDocAtPath and QueryDocs so that folds can clear prior
// contributions, but their paths disappear from QueryPaths.
//
// # MemStore
//
// MemStore is the deterministic in-memory implementation used for local
// single-process stores and throughout the test suites:
//
//	store := docstore.NewMemStore()
//	err := store.Set(ctx, "alice", docstore.SetInput{Path: "/posts/1", Text: "hello"})
//
// Query results come back in lexical path order and every event stream
// observes mutations in application order, which keeps fold and live-view
// tests reproducible.
package docstore
