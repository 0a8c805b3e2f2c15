package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dataerrors "github.com/chrisdevereux/earthstar-data/errors"
)

func TestAttachment_RoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	payload := []byte("png bytes would go here")
	require.NoError(t, Write(ctx, st, NewAttachment(), "alice", "/posts/1/cover", payload))

	doc, err := st.GetLatestDocAtPath(ctx, "/posts/1/cover")
	require.NoError(t, err)
	assert.Equal(t, "23", doc.Text, "document text carries the byte size")
	require.NotNil(t, doc.Attachment)
	assert.Equal(t, int64(23), doc.Attachment.Size)

	got, err := Read(ctx, st, NewAttachment(), "/posts/1/cover")
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestAttachment_EmptyPayload(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	require.NoError(t, Write(ctx, st, NewAttachment(), "alice", "/posts/1/cover", []byte{}))

	doc, err := st.GetLatestDocAtPath(ctx, "/posts/1/cover")
	require.NoError(t, err)
	assert.Equal(t, "0", doc.Text)

	got, err := Read(ctx, st, NewAttachment(), "/posts/1/cover")
	require.NoError(t, err)
	assert.Len(t, got, 0)
}

func TestAttachment_NilWipes(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	require.NoError(t, Write(ctx, st, NewAttachment(), "alice", "/posts/1/cover", []byte("data")))
	require.NoError(t, Write(ctx, st, NewAttachment(), "alice", "/posts/1/cover", nil))

	got, err := Read(ctx, st, NewAttachment(), "/posts/1/cover")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAttachment_MissingBlobIsFatal(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	require.NoError(t, Write(ctx, st, NewAttachment(), "alice", "/posts/1/cover", []byte("data")))

	doc, err := st.GetLatestDocAtPath(ctx, "/posts/1/cover")
	require.NoError(t, err)
	require.NotNil(t, doc.Attachment)
	st.WipeAttachment(doc.Attachment.Hash)

	_, err = Read(ctx, st, NewAttachment(), "/posts/1/cover")
	require.Error(t, err)
	assert.ErrorIs(t, err, dataerrors.ErrAttachmentUnavailable)
	assert.True(t, dataerrors.IsFatal(err))
}

func TestAttachment_WriteRejectsWrongType(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	err := Write(ctx, st, NewAttachment(), "alice", "/posts/1/cover", "not bytes")
	require.Error(t, err)
	assert.ErrorIs(t, err, dataerrors.ErrInvalidData)
}

func TestAttachment_AsObjectField(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	media := MustObject(map[string]Field{
		"title": {Type: String()},
		"cover": {Type: NewAttachment()},
	})

	require.NoError(t, Write(ctx, st, media, "alice", "/media/1", map[string]any{
		"title": "Sunset",
		"cover": []byte{0x89, 0x50, 0x4E, 0x47},
	}))

	got, err := Read(ctx, st, media, "/media/1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"title": "Sunset",
		"cover": []byte{0x89, 0x50, 0x4E, 0x47},
	}, got)
}
