package schema

import (
	"context"
	"time"

	"github.com/chrisdevereux/earthstar-data/docstore"
	"github.com/chrisdevereux/earthstar-data/errors"
)

// DocMetadata is the value a Metadata field produces: who last wrote the
// document it observes, and when.
type DocMetadata struct {
	Author    docstore.Author
	Timestamp time.Time
}

// Metadata exposes a document's write metadata as a read-only value. Use
// it as a Self field on an Object, where it reports on the object's root
// document without claiming that document for writes.
type Metadata struct{}

// NewMetadata builds a metadata node.
func NewMetadata() Metadata {
	return Metadata{}
}

func (Metadata) readOnlyType() {}

// Reduce reports the document's author and timestamp. A deleted document
// has nothing to report and collapses to nil.
func (Metadata) Reduce(ctx context.Context, st docstore.Reader, doc docstore.Document, rest []string, prev any) (any, error) {
	if len(rest) > 0 {
		return prev, nil
	}
	if doc.IsDeleted() {
		return nil, nil
	}
	return DocMetadata{Author: doc.Author, Timestamp: doc.Timestamp}, nil
}

// Write always fails. Metadata is derived from writes made through other
// nodes, never written directly, and that includes writing nil.
func (Metadata) Write(ctx context.Context, st docstore.ReadWriter, author docstore.Author, path string, data any) error {
	return errors.WrapInvalid(errors.ErrInvalidSchemaUsage, "Metadata", "Write", "write through read-only node")
}
