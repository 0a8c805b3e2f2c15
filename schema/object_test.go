package schema

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisdevereux/earthstar-data/docstore"
	dataerrors "github.com/chrisdevereux/earthstar-data/errors"
)

var testClock = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// postSchema mirrors a typical document model: a scalar payload on the
// root document, read-only metadata beside it, and two subpath fields.
func postSchema() Object {
	return MustObject(map[string]Field{
		"content": {Type: String(), Self: true},
		"meta":    {Type: NewMetadata(), Self: true},
		"title":   {Type: String()},
		"related": {Type: Set()},
	})
}

func fixedStore(t *testing.T) *docstore.MemStore {
	t.Helper()
	return newStore(t, docstore.WithClock(func() time.Time { return testClock }))
}

func TestNewObject_Validation(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]Field
		ok     bool
	}{
		{
			name:   "empty field name",
			fields: map[string]Field{"": {Type: String()}},
		},
		{
			name:   "slash in field name",
			fields: map[string]Field{"a/b": {Type: String()}},
		},
		{
			name:   "missing type",
			fields: map[string]Field{"title": {}},
		},
		{
			name: "two writable self fields",
			fields: map[string]Field{
				"content": {Type: String(), Self: true},
				"summary": {Type: String(), Self: true},
			},
		},
		{
			name: "writable self plus metadata self",
			fields: map[string]Field{
				"content": {Type: String(), Self: true},
				"meta":    {Type: NewMetadata(), Self: true},
			},
			ok: true,
		},
		{
			name:   "plain fields only",
			fields: map[string]Field{"title": {Type: String()}},
			ok:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewObject(tt.fields)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, dataerrors.ErrInvalidSchemaUsage)
			assert.True(t, dataerrors.IsInvalid(err))
		})
	}
}

func TestMustObject_PanicsOnBadTable(t *testing.T) {
	assert.Panics(t, func() {
		MustObject(map[string]Field{"": {Type: String()}})
	})
}

func TestObject_RoundTrip(t *testing.T) {
	ctx := context.Background()
	st := fixedStore(t)
	post := postSchema()

	require.NoError(t, Write(ctx, st, post, "alice", "/posts/1", map[string]any{
		"content": "hello",
		"title":   "First Post",
	}))

	got, err := Read(ctx, st, post, "/posts/1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"content": "hello",
		"meta":    DocMetadata{Author: "alice", Timestamp: testClock},
		"title":   "First Post",
	}, got)
}

func TestObject_DocumentLayout(t *testing.T) {
	ctx := context.Background()
	st := fixedStore(t)

	require.NoError(t, Write(ctx, st, postSchema(), "alice", "/posts/1", map[string]any{
		"content": "hello",
		"title":   "First Post",
	}))

	doc, err := st.GetLatestDocAtPath(ctx, "/posts/1")
	require.NoError(t, err)
	assert.Equal(t, "hello", doc.Text, "self field lands on the root document")

	doc, err = st.GetLatestDocAtPath(ctx, "/posts/1/title")
	require.NoError(t, err)
	assert.Equal(t, "First Post", doc.Text, "plain field lands on its subpath")
}

func TestObject_PartialUpdate(t *testing.T) {
	ctx := context.Background()
	st := fixedStore(t)
	post := postSchema()

	require.NoError(t, Write(ctx, st, post, "alice", "/posts/1", map[string]any{
		"content": "hello",
		"title":   "First Post",
	}))
	require.NoError(t, Write(ctx, st, post, "alice", "/posts/1", map[string]any{
		"title": "Changed",
	}))

	got, err := Read(ctx, st, post, "/posts/1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"content": "hello",
		"meta":    DocMetadata{Author: "alice", Timestamp: testClock},
		"title":   "Changed",
	}, got)
}

func TestObject_SelfFieldDeletion(t *testing.T) {
	ctx := context.Background()
	st := fixedStore(t)
	post := postSchema()

	require.NoError(t, Write(ctx, st, post, "alice", "/posts/1", map[string]any{
		"content": "hello",
		"title":   "SomeObject",
	}))
	require.NoError(t, Write(ctx, st, post, "alice", "/posts/1", map[string]any{
		"content": nil,
	}))

	// wiping the root document takes the metadata with it
	got, err := Read(ctx, st, post, "/posts/1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "SomeObject"}, got)
}

func TestObject_SubpathFieldDeletion(t *testing.T) {
	ctx := context.Background()
	st := fixedStore(t)
	post := postSchema()

	require.NoError(t, Write(ctx, st, post, "alice", "/posts/1", map[string]any{
		"content": "hello",
		"title":   "First Post",
	}))
	require.NoError(t, Write(ctx, st, post, "alice", "/posts/1", map[string]any{
		"title": nil,
	}))

	got, err := Read(ctx, st, post, "/posts/1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"content": "hello",
		"meta":    DocMetadata{Author: "alice", Timestamp: testClock},
	}, got)
}

func TestObject_WholeDeletion(t *testing.T) {
	ctx := context.Background()
	st := fixedStore(t)
	post := postSchema()

	require.NoError(t, Write(ctx, st, post, "alice", "/posts/1", map[string]any{
		"content": "hello",
		"title":   "First Post",
		"related": map[string]any{"/posts/2": true},
	}))
	require.NoError(t, Write(ctx, st, post, "alice", "/posts/1", nil))

	got, err := Read(ctx, st, post, "/posts/1")
	require.NoError(t, err)
	assert.Nil(t, got)

	live, err := st.QueryPaths(ctx, docstore.PathQuery{PathStartsWith: "/posts/1"})
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestObject_UnknownFieldRejected(t *testing.T) {
	ctx := context.Background()
	st := fixedStore(t)
	post := postSchema()

	err := Write(ctx, st, post, "alice", "/posts/1", map[string]any{"bogus": "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, dataerrors.ErrInvalidSchemaUsage)

	got, err := Read(ctx, st, post, "/posts/1")
	require.NoError(t, err)
	assert.Nil(t, got, "rejected writes leave no documents behind")
}

func TestObject_MetadataFieldRejectsWrites(t *testing.T) {
	ctx := context.Background()
	st := fixedStore(t)
	post := postSchema()

	err := Write(ctx, st, post, "alice", "/posts/1", map[string]any{
		"meta": DocMetadata{Author: "alice", Timestamp: testClock},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, dataerrors.ErrInvalidSchemaUsage)

	err = Write(ctx, st, post, "alice", "/posts/1", map[string]any{"meta": nil})
	require.Error(t, err)
	assert.ErrorIs(t, err, dataerrors.ErrInvalidSchemaUsage)
}

func TestObject_WriteRejectsNonMap(t *testing.T) {
	ctx := context.Background()
	st := fixedStore(t)

	err := Write(ctx, st, postSchema(), "alice", "/posts/1", "not a map")
	require.Error(t, err)
	assert.ErrorIs(t, err, dataerrors.ErrInvalidData)
}

func TestObject_Nested(t *testing.T) {
	ctx := context.Background()
	st := fixedStore(t)

	address := MustObject(map[string]Field{
		"street": {Type: String()},
		"city":   {Type: String()},
	})
	person := MustObject(map[string]Field{
		"name":    {Type: String(), Self: true},
		"address": {Type: address},
	})

	require.NoError(t, Write(ctx, st, person, "alice", "/people/ada", map[string]any{
		"name": "Ada",
		"address": map[string]any{
			"street": "1 Main St",
			"city":   "Zurich",
		},
	}))

	got, err := Read(ctx, st, person, "/people/ada")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"name": "Ada",
		"address": map[string]any{
			"street": "1 Main St",
			"city":   "Zurich",
		},
	}, got)

	// partial update reaches through the nesting
	require.NoError(t, Write(ctx, st, person, "alice", "/people/ada", map[string]any{
		"address": map[string]any{"city": "Bern"},
	}))

	got, err = Read(ctx, st, person, "/people/ada")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"name": "Ada",
		"address": map[string]any{
			"street": "1 Main St",
			"city":   "Bern",
		},
	}, got)

	// deleting the inner object collapses it entirely
	require.NoError(t, Write(ctx, st, person, "alice", "/people/ada", map[string]any{
		"address": nil,
	}))

	got, err = Read(ctx, st, person, "/people/ada")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Ada"}, got)
}

func TestObject_AbsentReadsNil(t *testing.T) {
	ctx := context.Background()
	st := fixedStore(t)

	got, err := Read(ctx, st, postSchema(), "/posts/404")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestObject_StrayDocumentsIgnored(t *testing.T) {
	ctx := context.Background()
	st := fixedStore(t)
	post := postSchema()

	require.NoError(t, Write(ctx, st, post, "alice", "/posts/1", map[string]any{
		"content": "hello",
		"title":   "First Post",
	}))
	require.NoError(t, st.Set(ctx, "bob", docstore.SetInput{Path: "/posts/1/zzz", Text: "noise"}))
	require.NoError(t, st.Set(ctx, "bob", docstore.SetInput{Path: "/posts/1/title/deep", Text: "noise"}))

	got, err := Read(ctx, st, post, "/posts/1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"content": "hello",
		"meta":    DocMetadata{Author: "alice", Timestamp: testClock},
		"title":   "First Post",
	}, got)

	// a subtree holding nothing but strays still reads as absent
	require.NoError(t, st.Set(ctx, "bob", docstore.SetInput{Path: "/posts/9/zzz", Text: "noise"}))
	got, err = Read(ctx, st, post, "/posts/9")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestObject_RejectedWritePropagates(t *testing.T) {
	ctx := context.Background()
	st := newStore(t, docstore.WithRejectFunc(func(author docstore.Author, input docstore.SetInput) error {
		if strings.HasPrefix(input.Path, "/locked/") {
			return dataerrors.Rejected("path is locked")
		}
		return nil
	}))

	err := Write(ctx, st, postSchema(), "alice", "/locked/1", map[string]any{"title": "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, dataerrors.ErrWriteRejected)
}

func TestObject_NoRollbackAcrossFields(t *testing.T) {
	ctx := context.Background()
	// The reject func runs under the store lock, so the counter needs no
	// locking of its own: the first mutation commits, every later one is
	// refused.
	var writes int
	st := newStore(t, docstore.WithRejectFunc(func(author docstore.Author, input docstore.SetInput) error {
		writes++
		if writes > 1 {
			return dataerrors.Rejected("write quota exhausted")
		}
		return nil
	}))
	post := postSchema()

	err := Write(ctx, st, post, "alice", "/posts/1", map[string]any{
		"content": "hello",
		"title":   "First Post",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, dataerrors.ErrWriteRejected)

	// Field writes carry no transaction: the field that won the race stays
	// written even though the write as a whole failed.
	docs, err := st.QueryDocs(ctx, docstore.Query{PathStartsWith: "/posts/1"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Contains(t, []string{"/posts/1", "/posts/1/title"}, docs[0].Path)

	got, err := Read(ctx, st, post, "/posts/1")
	require.NoError(t, err)
	assert.NotNil(t, got, "the surviving field reads back")
}
