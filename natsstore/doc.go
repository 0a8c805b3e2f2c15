// Package natsstore implements docstore.Store on NATS JetStream.
//
// # Layout
//
// Each document lives as a JSON envelope in a KV bucket, one key per path,
// so the bucket always holds the latest revision per path. Attachment
// bodies live in an object store bucket keyed by SHA-256 content hash; the
// envelope carries only the hash and size. Both buckets are created on
// first use.
//
// # Key Encoding
//
// Document paths map bijectively onto KV keys: path segments become
// dot-separated subject tokens, with bytes outside the token-safe set
// escaped as "=HH". Keys in the bucket that do not decode are treated as
// foreign and ignored by scans and watches, so the buckets can be shared
// with other tooling.
//
// # Conflict Resolution
//
// Set runs a compare-and-swap loop against the envelope's KV revision.
// The incoming document must supersede the stored one under newer-wins
// resolution (timestamp, then author, then text); obsolete writes are
// rejected with errors.ErrWriteRejected and never retried. Revision races
// with concurrent writers re-read and retry with jittered backoff.
// Tombstones are ordinary envelopes with empty text: they keep their
// timestamp, which is what stops a delayed older write from resurrecting a
// deleted document.
//
// # Event Streams
//
// GetEventStream adapts a KV watch into the ordered docstore event stream.
// Envelope puts surface as set events. KV-level deletes and purges, which
// happen outside the tombstone protocol, surface as expire events. Delivery
// applies backpressure rather than dropping, so a consumer sees every
// change in order.
//
// # Configuration
//
// New takes functional options for bucket names, replicas, TTL, the CAS
// retry policy, logging and Prometheus metrics:
//
//	store, err := natsstore.New(ctx, js,
//	    natsstore.WithDocsBucket("APP_DOCS"),
//	    natsstore.WithMetrics(prometheus.DefaultRegisterer),
//	)
package natsstore
