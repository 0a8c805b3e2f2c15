package natsstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisdevereux/earthstar-data/docstore"
)

func TestEnvelope_RoundTrip(t *testing.T) {
	doc := docstore.Document{
		Format:    docstore.FormatEs5,
		Path:      "/posts/1/title",
		Author:    "alice",
		Text:      "First Post",
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Attachment: &docstore.AttachmentInfo{
			Size: 4,
			Hash: "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		},
	}

	data, err := encodeEnvelope(doc)
	require.NoError(t, err)

	back, err := decodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, doc.Format, back.Format)
	assert.Equal(t, doc.Path, back.Path)
	assert.Equal(t, doc.Author, back.Author)
	assert.Equal(t, doc.Text, back.Text)
	assert.True(t, doc.Timestamp.Equal(back.Timestamp))
	require.NotNil(t, back.Attachment)
	assert.Equal(t, *doc.Attachment, *back.Attachment)
}

func TestEnvelope_TombstoneHasNoAttachment(t *testing.T) {
	doc := docstore.Document{
		Format:    docstore.FormatEs5,
		Path:      "/posts/1",
		Author:    "alice",
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := encodeEnvelope(doc)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "attachment")

	back, err := decodeEnvelope(data)
	require.NoError(t, err)
	assert.True(t, back.IsDeleted())
	assert.Nil(t, back.Attachment)
}

func TestDecodeEnvelope_RejectsGarbage(t *testing.T) {
	cases := map[string][]byte{
		"empty":         nil,
		"not json":      []byte("not json"),
		"relative path": []byte(`{"format":"es.5","path":"relative","text":"x"}`),
		"missing path":  []byte(`{"format":"es.5","text":"x"}`),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := decodeEnvelope(data)
			assert.Error(t, err)
		})
	}
}

func TestSupersedes(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	doc := func(author docstore.Author, text string, ts time.Time) docstore.Document {
		return docstore.Document{
			Format:    docstore.FormatEs5,
			Path:      "/posts/1",
			Author:    author,
			Text:      text,
			Timestamp: ts,
		}
	}

	t.Run("newer timestamp wins", func(t *testing.T) {
		assert.True(t, supersedes(doc("alice", "new", base.Add(time.Second)), doc("alice", "old", base)))
		assert.False(t, supersedes(doc("alice", "old", base), doc("alice", "new", base.Add(time.Second))))
	})

	t.Run("timestamp tie breaks on author", func(t *testing.T) {
		assert.True(t, supersedes(doc("bob", "x", base), doc("alice", "x", base)))
		assert.False(t, supersedes(doc("alice", "x", base), doc("bob", "x", base)))
	})

	t.Run("author tie breaks on text", func(t *testing.T) {
		assert.True(t, supersedes(doc("alice", "b", base), doc("alice", "a", base)))
		assert.False(t, supersedes(doc("alice", "a", base), doc("alice", "b", base)))
	})

	t.Run("identical documents never supersede each other", func(t *testing.T) {
		a := doc("alice", "x", base)
		assert.False(t, supersedes(a, a))
		assert.True(t, sameDocument(a, a))
	})
}

func TestSameDocument_ComparesAttachments(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := docstore.Document{
		Format:     docstore.FormatEs5,
		Path:       "/files/report",
		Author:     "alice",
		Text:       "4",
		Timestamp:  ts,
		Attachment: &docstore.AttachmentInfo{Size: 4, Hash: "h1"},
	}

	same := a
	same.Attachment = &docstore.AttachmentInfo{Size: 4, Hash: "h1"}
	assert.True(t, sameDocument(a, same))

	otherHash := a
	otherHash.Attachment = &docstore.AttachmentInfo{Size: 4, Hash: "h2"}
	assert.False(t, sameDocument(a, otherHash))

	missing := a
	missing.Attachment = nil
	assert.False(t, sameDocument(a, missing))
	assert.False(t, sameDocument(missing, a))
}
