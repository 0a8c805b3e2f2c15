package docstore

import (
	"time"
)

// Author identifies the writer of a document. Identity verification and
// signing are the store's concern; this layer treats authors as opaque.
type Author string

// Document is the store's atomic unit: a path, a text payload, and
// optionally one binary attachment. Documents are immutable per write.
// A new write at the same path supersedes the prior one.
type Document struct {
	// Identity
	Format string `json:"format"`
	Path   string `json:"path"`
	Author Author `json:"author"`

	// Payload. Empty text is the store's sentinel for absent/deleted.
	Text string `json:"text"`

	// Audit
	Timestamp time.Time `json:"timestamp"`

	// Attachment metadata, nil when the document has none. The binary
	// body travels through the store's attachment channel, not here.
	Attachment *AttachmentInfo `json:"attachment,omitempty"`
}

// AttachmentInfo describes a document's binary attachment.
type AttachmentInfo struct {
	Size int64  `json:"size"`
	Hash string `json:"hash"`
}

// IsDeleted reports whether the document is a tombstone.
func (d Document) IsDeleted() bool {
	return d.Text == ""
}

// HasAttachment reports whether the document claims a binary attachment.
func (d Document) HasAttachment() bool {
	return d.Attachment != nil
}

// FormatEs5 is the document format this layer currently reads and writes.
const FormatEs5 = "es.5"

// SupportedFormats lists the document formats the reduction engine
// understands. Live views stop with an unsupported-format error when an
// event carries a format outside this set.
var SupportedFormats = []string{FormatEs5}

// FormatSupported reports whether the reduction engine understands the
// given document format.
func FormatSupported(format string) bool {
	for _, f := range SupportedFormats {
		if f == format {
			return true
		}
	}
	return false
}

// Query selects documents by path prefix.
type Query struct {
	// PathStartsWith matches documents whose path begins with this
	// string. Plain byte prefix, no segment awareness.
	PathStartsWith string `json:"path_starts_with"`
}

// PathQuery selects paths (no document contents) by prefix and suffix.
type PathQuery struct {
	PathStartsWith string `json:"path_starts_with,omitempty"`
	PathEndsWith   string `json:"path_ends_with,omitempty"`
}

// SetInput is the payload of a document write.
type SetInput struct {
	Path string `json:"path"`
	Text string `json:"text"`

	// Attachment carries the binary body for documents that have one.
	// nil means no attachment.
	Attachment []byte `json:"attachment,omitempty"`
}

// EventKind classifies document store events.
type EventKind string

// Event kinds emitted by a store's event stream:
//   - EventDocSet: a document was written or superseded (including tombstones)
//   - EventDocExpire: a document was removed by the store itself (TTL, purge)
//   - EventOther: store-specific events the reduction engine does not interpret
const (
	EventDocSet    EventKind = "set"
	EventDocExpire EventKind = "expire"
	EventOther     EventKind = "other"
)

// Event is one entry in a store's ordered event stream.
type Event struct {
	Kind EventKind `json:"kind"`
	Doc  Document  `json:"doc"`
}
