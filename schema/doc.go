// Package schema maps structured values onto subtrees of flat documents.
//
// # Overview
//
// The document store speaks one shape: a path with a text payload and an
// optional attachment. This package layers typed values over that
// surface. A schema is a tree of nodes, each implementing the Type
// contract: Reduce folds one document into an accumulated value, Write
// fans a value out into document mutations. Composing nodes composes
// both directions, so an application model round-trips through the store
// without the store learning anything about it.
//
// # Schema Nodes
//
//   - Atom: one scalar in one document (String, Int, BigInt, Bool, Time,
//     JSON, or a custom codec via NewAtom)
//   - Object: named fields, each mounted on a subpath or on the object's
//     own root document (a Self field)
//   - Collection: arbitrary string keys percent-encoded into path
//     segments; Set is the membership-only specialization
//   - Attachment: binary payloads in the store's attachment side channel
//   - Metadata: read-only author and timestamp of the root document
//   - Format: versioned namespace so schema generations can coexist
//
// # Quick Start
//
//	post := schema.MustFormat("post", 1, 0, schema.MustObject(map[string]schema.Field{
//		"content": {Type: schema.String(), Self: true},
//		"meta":    {Type: schema.NewMetadata(), Self: true},
//		"title":   {Type: schema.String()},
//		"related": {Type: schema.Set()},
//	}))
//
//	st := docstore.NewMemStore()
//	defer st.Close()
//
//	err := schema.Write(ctx, st, post, "alice", "/posts/1", map[string]any{
//		"content": "hello",
//		"title":   "First Post",
//	})
//
//	value, err := schema.Read(ctx, st, post, "/posts/1")
//
// # Deletion
//
// Absence is a value. Writing nil to any node clears it: an atom wipes
// its document, a composite clears its whole subtree. A node whose
// children have all vanished reads as nil rather than an empty shell, so
// deletions propagate upward on their own.
//
// # Partial Updates
//
// Object and Collection writes touch only the keys present in the value
// map. A present key holding nil deletes that child. Keys absent from
// the map keep their stored state. There is no atomicity across
// children: concurrent writers interleave per document, and a failed
// write may leave a subtree partially applied.
//
// # Live Views
//
// Observe assembles a value and keeps it current by folding store
// events:
//
//	view, err := schema.Observe(ctx, st, post, "/posts/1")
//	defer view.Close()
//
//	release, err := view.Subscribe(func(snapshot any) {
//		render(snapshot)
//	})
//	defer release()
//
// The event stream is acquired before the initial read, so no write can
// slip between snapshot and subscription.
//
// # Inverse Lookup
//
// Collection keys are often themselves document paths, which percent
// encoding turns into single path segments. FindByCollectionKey scans
// the path namespace backwards and reports which paths own a member
// stored under a given key.
//
// # Error Handling
//
// The package follows the classified error model: bad input and schema
// misuse are Invalid, a lost attachment or an unsupported document
// format is Fatal, and store failures pass through with their own class.
// See the errors package for classification helpers.
package schema
