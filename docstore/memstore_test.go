package docstore

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisdevereux/earthstar-data/errors"
)

func TestMemStore_SetAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	err := store.Set(ctx, "alice", SetInput{Path: "/posts/1", Text: "hello"})
	require.NoError(t, err)

	doc, err := store.GetLatestDocAtPath(ctx, "/posts/1")
	require.NoError(t, err)
	assert.Equal(t, "/posts/1", doc.Path)
	assert.Equal(t, Author("alice"), doc.Author)
	assert.Equal(t, "hello", doc.Text)
	assert.Equal(t, FormatEs5, doc.Format)
	assert.False(t, doc.IsDeleted())
	assert.False(t, doc.Timestamp.IsZero())
}

func TestMemStore_GetAbsent(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	_, err := store.GetLatestDocAtPath(ctx, "/nowhere")
	assert.ErrorIs(t, err, errors.ErrDocNotFound)
}

func TestMemStore_Supersede(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	require.NoError(t, store.Set(ctx, "alice", SetInput{Path: "/posts/1", Text: "first"}))
	require.NoError(t, store.Set(ctx, "bob", SetInput{Path: "/posts/1", Text: "second"}))

	doc, err := store.GetLatestDocAtPath(ctx, "/posts/1")
	require.NoError(t, err)
	assert.Equal(t, "second", doc.Text)
	assert.Equal(t, Author("bob"), doc.Author)
}

func TestMemStore_InvalidPath(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	tests := []struct {
		name string
		path string
	}{
		{"relative", "posts/1"},
		{"empty", ""},
		{"root only", "/"},
		{"trailing slash", "/posts/"},
		{"empty segment", "/posts//1"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := store.Set(ctx, "alice", SetInput{Path: test.path, Text: "v"})
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidPath)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestMemStore_QueryDocsLexicalOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	// Insert out of order, expect lexical order back.
	for _, p := range []string{"/z/1", "/a/1", "/m/1", "/a/2"} {
		require.NoError(t, store.Set(ctx, "alice", SetInput{Path: p, Text: "v"}))
	}

	docs, err := store.QueryDocs(ctx, Query{PathStartsWith: "/"})
	require.NoError(t, err)

	var got []string
	for _, d := range docs {
		got = append(got, d.Path)
	}
	assert.Equal(t, []string{"/a/1", "/a/2", "/m/1", "/z/1"}, got)
}

func TestMemStore_QueryDocsPrefix(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	require.NoError(t, store.Set(ctx, "alice", SetInput{Path: "/posts/1", Text: "a"}))
	require.NoError(t, store.Set(ctx, "alice", SetInput{Path: "/posts/2", Text: "b"}))
	require.NoError(t, store.Set(ctx, "alice", SetInput{Path: "/other/1", Text: "c"}))

	docs, err := store.QueryDocs(ctx, Query{PathStartsWith: "/posts/"})
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestMemStore_TombstoneVisibility(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	require.NoError(t, store.Set(ctx, "alice", SetInput{Path: "/posts/1", Text: "hello"}))
	require.NoError(t, store.Set(ctx, "alice", SetInput{Path: "/posts/2", Text: "world"}))
	require.NoError(t, store.WipeDocAtPath(ctx, "alice", "/posts/1"))

	// Point lookup returns the tombstone.
	doc, err := store.GetLatestDocAtPath(ctx, "/posts/1")
	require.NoError(t, err)
	assert.True(t, doc.IsDeleted())

	// Document queries include the tombstone so folds can clear state.
	docs, err := store.QueryDocs(ctx, Query{PathStartsWith: "/posts/"})
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	// Path queries exclude it.
	live, err := store.QueryPaths(ctx, PathQuery{PathStartsWith: "/posts/"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/posts/2"}, live)
}

func TestMemStore_QueryPathsSuffix(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	require.NoError(t, store.Set(ctx, "alice", SetInput{Path: "/posts/1/related/x", Text: "1"}))
	require.NoError(t, store.Set(ctx, "alice", SetInput{Path: "/posts/2/related/x", Text: "1"}))
	require.NoError(t, store.Set(ctx, "alice", SetInput{Path: "/posts/3/related/y", Text: "1"}))

	found, err := store.QueryPaths(ctx, PathQuery{
		PathStartsWith: "/posts/",
		PathEndsWith:   "/related/x",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/posts/1/related/x", "/posts/2/related/x"}, found)
}

func TestMemStore_AttachmentLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	data := []byte("hello attachment")
	err := store.Set(ctx, "alice", SetInput{
		Path:       "/files/a",
		Text:       fmt.Sprintf("%d", len(data)),
		Attachment: data,
	})
	require.NoError(t, err)

	doc, err := store.GetLatestDocAtPath(ctx, "/files/a")
	require.NoError(t, err)
	require.True(t, doc.HasAttachment())
	assert.Equal(t, int64(len(data)), doc.Attachment.Size)
	assert.NotEmpty(t, doc.Attachment.Hash)

	rc, err := store.GetAttachment(ctx, doc)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, data, got)
}

func TestMemStore_AttachmentAbsent(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	require.NoError(t, store.Set(ctx, "alice", SetInput{Path: "/files/plain", Text: "no body"}))

	doc, err := store.GetLatestDocAtPath(ctx, "/files/plain")
	require.NoError(t, err)

	_, err = store.GetAttachment(ctx, doc)
	assert.ErrorIs(t, err, errors.ErrNoAttachment)
}

func TestMemStore_AttachmentUnavailable(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	data := []byte("soon to vanish")
	require.NoError(t, store.Set(ctx, "alice", SetInput{
		Path:       "/files/a",
		Text:       fmt.Sprintf("%d", len(data)),
		Attachment: data,
	}))

	doc, err := store.GetLatestDocAtPath(ctx, "/files/a")
	require.NoError(t, err)
	require.True(t, doc.HasAttachment())

	store.WipeAttachment(doc.Attachment.Hash)

	_, err = store.GetAttachment(ctx, doc)
	assert.ErrorIs(t, err, errors.ErrAttachmentUnavailable)
	assert.True(t, errors.IsFatal(err))
}

func TestMemStore_WipeDropsAttachment(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	require.NoError(t, store.Set(ctx, "alice", SetInput{
		Path:       "/files/a",
		Text:       "4",
		Attachment: []byte("data"),
	}))
	require.NoError(t, store.WipeDocAtPath(ctx, "alice", "/files/a"))

	doc, err := store.GetLatestDocAtPath(ctx, "/files/a")
	require.NoError(t, err)
	assert.True(t, doc.IsDeleted())
	assert.Nil(t, doc.Attachment)
}

func TestMemStore_RejectHook(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore(WithRejectFunc(func(author Author, input SetInput) error {
		if strings.HasPrefix(input.Path, "/locked/") {
			return fmt.Errorf("path locked")
		}
		return nil
	}))

	err := store.Set(ctx, "alice", SetInput{Path: "/locked/x", Text: "v"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrWriteRejected)
	assert.True(t, errors.IsInvalid(err))
	assert.Contains(t, err.Error(), "path locked")

	require.NoError(t, store.Set(ctx, "alice", SetInput{Path: "/open/x", Text: "v"}))
}

func TestMemStore_ClockInjection(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemStore(WithClock(func() time.Time { return fixed }))

	require.NoError(t, store.Set(ctx, "alice", SetInput{Path: "/posts/1", Text: "v"}))

	doc, err := store.GetLatestDocAtPath(ctx, "/posts/1")
	require.NoError(t, err)
	assert.True(t, doc.Timestamp.Equal(fixed))
}

func TestMemStore_EventOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	stream, err := store.GetEventStream(ctx)
	require.NoError(t, err)
	defer stream.Stop()

	const n = 20
	for i := 0; i < n; i++ {
		require.NoError(t, store.Set(ctx, "alice", SetInput{
			Path: fmt.Sprintf("/docs/%02d", i),
			Text: fmt.Sprintf("v%d", i),
		}))
	}

	for i := 0; i < n; i++ {
		select {
		case ev := <-stream.Events():
			assert.Equal(t, EventDocSet, ev.Kind)
			assert.Equal(t, fmt.Sprintf("/docs/%02d", i), ev.Doc.Path)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestMemStore_EventFanOut(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	a, err := store.GetEventStream(ctx)
	require.NoError(t, err)
	defer a.Stop()
	b, err := store.GetEventStream(ctx)
	require.NoError(t, err)
	defer b.Stop()

	require.NoError(t, store.Set(ctx, "alice", SetInput{Path: "/posts/1", Text: "v"}))

	for _, stream := range []EventStream{a, b} {
		select {
		case ev := <-stream.Events():
			assert.Equal(t, "/posts/1", ev.Doc.Path)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fan-out event")
		}
	}
}

func TestMemStore_StreamStop(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	stream, err := store.GetEventStream(ctx)
	require.NoError(t, err)

	stream.Stop()
	stream.Stop() // Idempotent

	select {
	case _, ok := <-stream.Events():
		assert.False(t, ok, "events channel should be closed after Stop")
	case <-time.After(time.Second):
		t.Fatal("events channel did not close after Stop")
	}

	// Writes after a stream stops must not block.
	require.NoError(t, store.Set(ctx, "alice", SetInput{Path: "/posts/1", Text: "v"}))
}

func TestMemStore_CloseEndsStreams(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	stream, err := store.GetEventStream(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "alice", SetInput{Path: "/posts/1", Text: "v"}))
	store.Close()
	store.Close() // Idempotent

	// The pending event still delivers, then the channel closes.
	deadline := time.After(time.Second)
	var events []Event
	for {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				require.Len(t, events, 1)
				assert.Equal(t, "/posts/1", events[0].Doc.Path)

				err := store.Set(ctx, "alice", SetInput{Path: "/posts/2", Text: "v"})
				assert.ErrorIs(t, err, errors.ErrStoreClosed)

				_, err = store.GetLatestDocAtPath(ctx, "/posts/1")
				assert.ErrorIs(t, err, errors.ErrStoreClosed)
				return
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatal("stream did not close after store Close")
		}
	}
}

func TestMemStore_CancelledContext(t *testing.T) {
	store := NewMemStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Set(ctx, "alice", SetInput{Path: "/posts/1", Text: "v"})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = store.QueryDocs(ctx, Query{PathStartsWith: "/"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFormatSupported(t *testing.T) {
	assert.True(t, FormatSupported(FormatEs5))
	assert.False(t, FormatSupported("es.4"))
	assert.False(t, FormatSupported(""))
}
