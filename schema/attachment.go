package schema

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strconv"

	"github.com/chrisdevereux/earthstar-data/docstore"
	"github.com/chrisdevereux/earthstar-data/errors"
)

// Attachment maps a binary blob onto a single document. The document text
// carries the decimal byte size while the bytes live in the store's
// attachment side channel. Its value is []byte.
type Attachment struct{}

// NewAttachment builds an attachment node.
func NewAttachment() Attachment {
	return Attachment{}
}

// Reduce fetches the attachment bytes for the document. A surviving
// document under this node claims an attachment, so a failure to produce
// the bytes is a fatal condition rather than an absence.
func (Attachment) Reduce(ctx context.Context, st docstore.Reader, doc docstore.Document, rest []string, prev any) (any, error) {
	if len(rest) > 0 {
		return prev, nil
	}
	if doc.IsDeleted() {
		return nil, nil
	}
	rc, err := st.GetAttachment(ctx, doc)
	if err != nil {
		return nil, attachmentLost(err, "attachment fetch")
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, attachmentLost(err, "attachment read")
	}
	return data, nil
}

// Write stores data as the document's attachment with the byte size as
// text. A nil data wipes the document and the blob goes with it.
func (Attachment) Write(ctx context.Context, st docstore.ReadWriter, author docstore.Author, path string, data any) error {
	if data == nil {
		return st.WipeDocAtPath(ctx, author, path)
	}
	b, ok := data.([]byte)
	if !ok {
		return errors.WrapInvalid(fmt.Errorf("%w: got %T, want []byte", errors.ErrInvalidData, data), "Attachment", "Write", "value type check")
	}
	if b == nil {
		b = []byte{}
	}
	return st.Set(ctx, author, docstore.SetInput{
		Path:       path,
		Text:       strconv.Itoa(len(b)),
		Attachment: b,
	})
}

// attachmentLost normalizes a fetch failure to the fatal
// AttachmentUnavailable condition.
func attachmentLost(err error, action string) error {
	if !stderrors.Is(err, errors.ErrAttachmentUnavailable) {
		err = fmt.Errorf("%w: %v", errors.ErrAttachmentUnavailable, err)
	}
	return errors.WrapFatal(err, "Attachment", "Reduce", action)
}
