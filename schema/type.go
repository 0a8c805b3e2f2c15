package schema

import (
	"context"
	stderrors "errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/chrisdevereux/earthstar-data/docstore"
	"github.com/chrisdevereux/earthstar-data/errors"
	"github.com/chrisdevereux/earthstar-data/paths"
)

// Type maps a structured value onto a subtree of flat documents. Every
// schema node implements the same two-sided contract: Reduce folds one
// document into an accumulated value, Write fans a value out into
// document mutations.
//
// A node never sees absolute paths during Reduce. The caller hands it the
// document plus the path components below the node's own root, so nodes
// compose without knowing where they are mounted.
type Type interface {
	// Reduce folds doc into prev and returns the next accumulated value.
	//
	// rest holds the components of doc.Path relative to the node's root:
	// empty for the root document itself, one entry per segment below it.
	// prev is the value accumulated so far, nil when nothing has folded
	// yet. Returning nil collapses the node back to absence.
	//
	// Documents that do not belong to the node's shape must be ignored by
	// returning prev unchanged. Fold order is root document first, then
	// content documents in ascending path order.
	Reduce(ctx context.Context, st docstore.Reader, doc docstore.Document, rest []string, prev any) (any, error)

	// Write applies data to the subtree rooted at path. A nil data clears
	// the node: scalars wipe their own document, composites clear the
	// whole subtree. Child writes run concurrently and are not atomic; a
	// failed write may leave the subtree partially applied.
	Write(ctx context.Context, st docstore.ReadWriter, author docstore.Author, path string, data any) error
}

// Read assembles the current value of t at path. The root document and
// the content documents below path are fetched concurrently, then folded
// root first. A path with no surviving documents reads as nil.
func Read(ctx context.Context, st docstore.Reader, t Type, path string) (any, error) {
	if err := paths.Validate(path); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidPath, err), "schema", "Read", "path validation")
	}

	var (
		root    *docstore.Document
		content []docstore.Document
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		doc, err := st.GetLatestDocAtPath(egCtx, path)
		if err != nil {
			if stderrors.Is(err, errors.ErrDocNotFound) {
				return nil
			}
			return err
		}
		root = &doc
		return nil
	})
	eg.Go(func() error {
		docs, err := st.QueryDocs(egCtx, docstore.Query{PathStartsWith: path + "/"})
		if err != nil {
			return err
		}
		content = docs
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, errors.Wrap(err, "schema", "Read", "document fetch")
	}

	var acc any
	fold := func(doc docstore.Document) error {
		next, err := foldDoc(ctx, st, t, path, doc, acc)
		if err != nil {
			return err
		}
		acc = next
		return nil
	}
	if root != nil {
		if err := fold(*root); err != nil {
			return nil, err
		}
	}
	for _, doc := range content {
		if err := fold(doc); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// Write applies data to the subtree rooted at path through t. See
// Type.Write for nil and concurrency semantics.
func Write(ctx context.Context, st docstore.ReadWriter, t Type, author docstore.Author, path string, data any) error {
	if err := paths.Validate(path); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidPath, err), "schema", "Write", "path validation")
	}
	return t.Write(ctx, st, author, path, data)
}

// foldDoc routes one document through t.Reduce. Documents outside the
// subtree pass through untouched, documents in a format this layer does
// not understand fail the fold.
func foldDoc(ctx context.Context, st docstore.Reader, t Type, root string, doc docstore.Document, prev any) (any, error) {
	rest, ok := paths.Components(doc.Path, root)
	if !ok {
		return prev, nil
	}
	if !docstore.FormatSupported(doc.Format) {
		return nil, errors.WrapFatal(fmt.Errorf("%w: format %q", errors.ErrUnsupportedFormat, doc.Format), "schema", "Read", "document format check")
	}
	return t.Reduce(ctx, st, doc, rest, prev)
}

// clearSubtree tombstones the document at root and every live document
// below it. Wipes run concurrently; already-deleted documents below root
// are left alone.
func clearSubtree(ctx context.Context, st docstore.ReadWriter, author docstore.Author, root string) error {
	live, err := st.QueryPaths(ctx, docstore.PathQuery{PathStartsWith: root + "/"})
	if err != nil {
		return errors.Wrap(err, "schema", "clearSubtree", "subtree path query")
	}
	eg, egCtx := errgroup.WithContext(ctx)
	wipe := func(p string) {
		eg.Go(func() error {
			return st.WipeDocAtPath(egCtx, author, p)
		})
	}
	wipe(root)
	for _, p := range live {
		wipe(p)
	}
	return eg.Wait()
}
