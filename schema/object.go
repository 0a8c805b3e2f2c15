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

// Field binds a schema node to one key of an Object value. A plain field
// mounts its node under a subpath named after the field. A Self field
// addresses the object's own root document instead and consumes no path
// segment, which is how a scalar payload lives on the same document that
// anchors the object.
type Field struct {
	Type Type
	Self bool
}

// readOnly marks schema nodes that never produce writes. An object allows
// any number of read-only Self fields alongside the writable one.
type readOnly interface {
	readOnlyType()
}

// Object composes named fields into a map value. Missing fields are
// simply absent from the map, and an object whose fields are all absent
// reads as nil rather than an empty map.
type Object struct {
	fields map[string]Field
}

// NewObject validates the field table and builds an object node. Field
// names double as path segments, so they must be non-empty and contain no
// slash. At most one Self field may be writable: two writable fields on
// the same root document would overwrite each other.
func NewObject(fields map[string]Field) (Object, error) {
	writableSelf := 0
	copied := make(map[string]Field, len(fields))
	for name, f := range fields {
		if name == "" || strings.Contains(name, "/") {
			return Object{}, errors.WrapInvalid(fmt.Errorf("%w: field name %q", errors.ErrInvalidSchemaUsage, name), "Object", "NewObject", "field table validation")
		}
		if f.Type == nil {
			return Object{}, errors.WrapInvalid(fmt.Errorf("%w: field %q has no type", errors.ErrInvalidSchemaUsage, name), "Object", "NewObject", "field table validation")
		}
		if f.Self {
			if _, ro := f.Type.(readOnly); !ro {
				writableSelf++
			}
		}
		copied[name] = f
	}
	if writableSelf > 1 {
		return Object{}, errors.WrapInvalid(fmt.Errorf("%w: %d writable self fields, at most one allowed", errors.ErrInvalidSchemaUsage, writableSelf), "Object", "NewObject", "field table validation")
	}
	return Object{fields: copied}, nil
}

// MustObject is NewObject for schema literals. It panics on a bad field
// table.
func MustObject(fields map[string]Field) Object {
	o, err := NewObject(fields)
	if err != nil {
		panic(err)
	}
	return o
}

// Reduce routes the document to the field that owns it. The root document
// folds through every Self field, a content document folds through the
// field named by its first path segment. Segments naming no field pass
// through untouched.
func (o Object) Reduce(ctx context.Context, st docstore.Reader, doc docstore.Document, rest []string, prev any) (any, error) {
	if len(rest) == 0 {
		return o.reduceRoot(ctx, st, doc, prev)
	}
	name := rest[0]
	f, ok := o.fields[name]
	if !ok || f.Self {
		return prev, nil
	}
	prevMap, _ := prev.(map[string]any)
	sub, err := f.Type.Reduce(ctx, st, doc, rest[1:], prevMap[name])
	if err != nil {
		return nil, err
	}
	return spliceEntry(prevMap, name, sub), nil
}

func (o Object) reduceRoot(ctx context.Context, st docstore.Reader, doc docstore.Document, prev any) (any, error) {
	next := prev
	for name, f := range o.fields {
		if !f.Self {
			continue
		}
		cur, _ := next.(map[string]any)
		sub, err := f.Type.Reduce(ctx, st, doc, nil, cur[name])
		if err != nil {
			return nil, err
		}
		next = spliceEntry(cur, name, sub)
	}
	return next, nil
}

// Write applies a partial update. Only keys present in data are touched:
// a non-nil value writes that field, a nil value deletes it, and keys
// absent from data keep their stored state. Unknown keys are rejected
// before any document changes. Field writes run concurrently without
// atomicity across fields.
func (o Object) Write(ctx context.Context, st docstore.ReadWriter, author docstore.Author, path string, data any) error {
	if data == nil {
		return clearSubtree(ctx, st, author, path)
	}
	m, ok := data.(map[string]any)
	if !ok {
		return errors.WrapInvalid(fmt.Errorf("%w: got %T, want map[string]any", errors.ErrInvalidData, data), "Object", "Write", "value type check")
	}
	for name := range m {
		if _, ok := o.fields[name]; !ok {
			return errors.WrapInvalid(fmt.Errorf("%w: unknown field %q", errors.ErrInvalidSchemaUsage, name), "Object", "Write", "field table check")
		}
	}
	eg, egCtx := errgroup.WithContext(ctx)
	for name, value := range m {
		f := o.fields[name]
		target := path
		if !f.Self {
			target = paths.Child(path, name)
		}
		fieldType, fieldValue := f.Type, value
		eg.Go(func() error {
			return fieldType.Write(egCtx, st, author, target, fieldValue)
		})
	}
	return eg.Wait()
}

// spliceEntry returns a copy of m with key set to value, or removed when
// value is nil. An empty result collapses to nil so vanished children
// leave no empty shell behind.
func spliceEntry(m map[string]any, key string, value any) any {
	next := make(map[string]any, len(m)+1)
	for k, v := range m {
		next[k] = v
	}
	if value == nil {
		delete(next, key)
	} else {
		next[key] = value
	}
	if len(next) == 0 {
		return nil
	}
	return next
}
