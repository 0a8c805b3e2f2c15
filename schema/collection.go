package schema

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/chrisdevereux/earthstar-data/docstore"
	"github.com/chrisdevereux/earthstar-data/errors"
	"github.com/chrisdevereux/earthstar-data/paths"
)

// Collection maps arbitrary string keys onto subpaths of its root. Keys
// are percent-encoded into a single path segment, so a key may itself be
// a document path. That property is what makes inverse lookup by path
// suffix work.
type Collection struct {
	inner Type
}

// NewCollection builds a collection whose members all share the inner
// node shape.
func NewCollection(inner Type) Collection {
	return Collection{inner: inner}
}

// Set is a collection of bare membership markers. A member is present
// while its document survives; remove members by writing nil, never
// false.
func Set() Collection {
	return NewCollection(presence())
}

// presence backs Set. Decode is deliberately lenient: any surviving
// document marks membership, only the deletion sentinel removes it.
func presence() Atom[bool] {
	return NewAtom(
		func(v bool) (string, error) {
			if !v {
				return "", fmt.Errorf("a member is removed by writing nil, not false")
			}
			return "1", nil
		},
		func(string) (bool, error) {
			return true, nil
		},
	)
}

// Reduce folds the document into the member named by its first path
// segment. A segment that does not decode as a key is not a member and
// passes through untouched, as does a document at the collection's own
// root.
func (c Collection) Reduce(ctx context.Context, st docstore.Reader, doc docstore.Document, rest []string, prev any) (any, error) {
	if len(rest) == 0 {
		return prev, nil
	}
	key, err := paths.DecodeKey(rest[0])
	if err != nil {
		return prev, nil
	}
	prevMap, _ := prev.(map[string]any)
	sub, err := c.inner.Reduce(ctx, st, doc, rest[1:], prevMap[key])
	if err != nil {
		return nil, err
	}
	return spliceEntry(prevMap, key, sub), nil
}

// Write applies a partial update keyed by member: a non-nil value writes
// that member, a nil value deletes it, absent keys are untouched. Member
// writes run concurrently without atomicity across members.
func (c Collection) Write(ctx context.Context, st docstore.ReadWriter, author docstore.Author, path string, data any) error {
	if data == nil {
		return clearSubtree(ctx, st, author, path)
	}
	m, ok := data.(map[string]any)
	if !ok {
		return errors.WrapInvalid(fmt.Errorf("%w: got %T, want map[string]any", errors.ErrInvalidData, data), "Collection", "Write", "value type check")
	}
	for key := range m {
		if key == "" {
			return errors.WrapInvalid(fmt.Errorf("%w: empty collection key", errors.ErrInvalidSchemaUsage), "Collection", "Write", "key check")
		}
	}
	eg, egCtx := errgroup.WithContext(ctx)
	for key, value := range m {
		target := paths.Child(path, paths.EncodeKey(key))
		memberValue := value
		eg.Go(func() error {
			return c.inner.Write(egCtx, st, author, target, memberValue)
		})
	}
	return eg.Wait()
}

// findOptions narrow an inverse lookup.
type findOptions struct {
	suffix string
	prefix string
}

// FindOption narrows FindByCollectionKey.
type FindOption func(*findOptions)

// WithCollectionSuffix states where the collection hangs below each
// owner, e.g. "/related" when owners keep their collection in a field
// named related. The returned paths are then the owners rather than the
// collection roots.
func WithCollectionSuffix(suffix string) FindOption {
	return func(o *findOptions) { o.suffix = suffix }
}

// WithPathPrefix restricts the scan to paths under the given prefix.
func WithPathPrefix(prefix string) FindOption {
	return func(o *findOptions) { o.prefix = prefix }
}

// FindByCollectionKey scans the path namespace for live collection
// members stored under key and returns the paths that own them. With a
// collection suffix the owner is the value the collection belongs to,
// without one it is the collection root itself.
//
// When keys are document paths this is the inverse lookup: it answers
// which values reference a given document.
func FindByCollectionKey(ctx context.Context, st docstore.Reader, key string, opts ...FindOption) ([]string, error) {
	if key == "" {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: empty collection key", errors.ErrInvalidSchemaUsage), "schema", "FindByCollectionKey", "key check")
	}
	var o findOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.suffix != "" && !strings.HasPrefix(o.suffix, "/") {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: collection suffix %q must start with /", errors.ErrInvalidSchemaUsage, o.suffix), "schema", "FindByCollectionKey", "suffix check")
	}
	tail := o.suffix + "/" + paths.EncodeKey(key)
	found, err := st.QueryPaths(ctx, docstore.PathQuery{PathStartsWith: o.prefix, PathEndsWith: tail})
	if err != nil {
		return nil, errors.Wrap(err, "schema", "FindByCollectionKey", "path scan")
	}
	owners := make([]string, 0, len(found))
	for _, p := range found {
		owner := strings.TrimSuffix(p, tail)
		if owner == "" {
			continue
		}
		owners = append(owners, owner)
	}
	return owners, nil
}
