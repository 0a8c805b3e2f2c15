package natsstore

import (
	"encoding/json"
	"fmt"

	"github.com/chrisdevereux/earthstar-data/docstore"
	"github.com/chrisdevereux/earthstar-data/paths"
)

// encodeEnvelope serializes a document for storage as a KV value.
func encodeEnvelope(doc docstore.Document) ([]byte, error) {
	return json.Marshal(doc)
}

// decodeEnvelope parses a stored KV value back into a document. Values not
// written by this package fail here rather than flowing into a fold.
func decodeEnvelope(data []byte) (docstore.Document, error) {
	if len(data) == 0 {
		return docstore.Document{}, fmt.Errorf("empty envelope")
	}
	var doc docstore.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return docstore.Document{}, fmt.Errorf("envelope unmarshal: %w", err)
	}
	if err := paths.Validate(doc.Path); err != nil {
		return docstore.Document{}, fmt.Errorf("envelope path: %w", err)
	}
	return doc, nil
}

// supersedes reports whether incoming replaces current under newer-wins
// resolution. Timestamp ties break on author then text so every replica
// picks the same winner regardless of arrival order.
func supersedes(incoming, current docstore.Document) bool {
	if !incoming.Timestamp.Equal(current.Timestamp) {
		return incoming.Timestamp.After(current.Timestamp)
	}
	if incoming.Author != current.Author {
		return incoming.Author > current.Author
	}
	return incoming.Text > current.Text
}

// sameDocument reports whether two documents carry identical content. A
// re-ingest of the stored document is a no-op, not an obsolete write.
func sameDocument(a, b docstore.Document) bool {
	if a.Format != b.Format || a.Path != b.Path || a.Author != b.Author || a.Text != b.Text {
		return false
	}
	if !a.Timestamp.Equal(b.Timestamp) {
		return false
	}
	switch {
	case a.Attachment == nil && b.Attachment == nil:
		return true
	case a.Attachment == nil || b.Attachment == nil:
		return false
	}
	return *a.Attachment == *b.Attachment
}
