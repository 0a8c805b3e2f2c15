package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/chrisdevereux/earthstar-data/docstore"
	"github.com/chrisdevereux/earthstar-data/errors"
)

// Atom maps a single scalar value onto a single document. The codec pair
// is pure: encode turns a value into document text, decode turns text
// back into a value. Encoded text must be non-empty because empty text is
// the store's deletion sentinel.
type Atom[T any] struct {
	encode func(T) (string, error)
	decode func(string) (T, error)
}

// NewAtom builds an atom from an encode/decode pair.
func NewAtom[T any](encode func(T) (string, error), decode func(string) (T, error)) Atom[T] {
	return Atom[T]{encode: encode, decode: decode}
}

// Reduce decodes the document text into the atom's value. A deleted
// document collapses the value to nil. Documents below the atom's own
// path do not belong to a scalar and pass through untouched.
func (a Atom[T]) Reduce(ctx context.Context, st docstore.Reader, doc docstore.Document, rest []string, prev any) (any, error) {
	if len(rest) > 0 {
		return prev, nil
	}
	if doc.IsDeleted() {
		return nil, nil
	}
	v, err := a.decode(doc.Text)
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidData, err), "Atom", "Reduce", "text decode")
	}
	return v, nil
}

// Write encodes data and stores it at path. A nil data wipes the atom's
// document. Values of any other type than T are rejected.
func (a Atom[T]) Write(ctx context.Context, st docstore.ReadWriter, author docstore.Author, path string, data any) error {
	if data == nil {
		return st.WipeDocAtPath(ctx, author, path)
	}
	v, ok := data.(T)
	if !ok {
		var want T
		return errors.WrapInvalid(fmt.Errorf("%w: got %T, want %T", errors.ErrInvalidData, data, want), "Atom", "Write", "value type check")
	}
	text, err := a.encode(v)
	if err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidData, err), "Atom", "Write", "value encode")
	}
	return st.Set(ctx, author, docstore.SetInput{Path: path, Text: text})
}

// String stores text verbatim. An empty string encodes to the deletion
// sentinel, so writing "" behaves exactly like writing nil and the value
// reads back as absent.
func String() Atom[string] {
	return NewAtom(
		func(v string) (string, error) { return v, nil },
		func(text string) (string, error) { return text, nil },
	)
}

// Int stores a signed integer as decimal text.
func Int() Atom[int64] {
	return NewAtom(
		func(v int64) (string, error) { return strconv.FormatInt(v, 10), nil },
		func(text string) (int64, error) { return strconv.ParseInt(text, 10, 64) },
	)
}

// BigInt stores an arbitrary-precision integer as decimal text.
func BigInt() Atom[*big.Int] {
	return NewAtom(
		func(v *big.Int) (string, error) {
			if v == nil {
				return "", fmt.Errorf("nil *big.Int")
			}
			return v.String(), nil
		},
		func(text string) (*big.Int, error) {
			v, ok := new(big.Int).SetString(text, 10)
			if !ok {
				return nil, fmt.Errorf("%q is not a decimal integer", text)
			}
			return v, nil
		},
	)
}

// Bool stores true as "1" and false as "0".
func Bool() Atom[bool] {
	return NewAtom(
		func(v bool) (string, error) {
			if v {
				return "1", nil
			}
			return "0", nil
		},
		func(text string) (bool, error) {
			switch text {
			case "1":
				return true, nil
			case "0":
				return false, nil
			}
			return false, fmt.Errorf("%q is not a boolean marker", text)
		},
	)
}

// isoMillis is the wire layout for Time: millisecond precision, UTC
// rendered as a Z suffix.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Time stores an instant as ISO 8601 text with millisecond precision,
// normalized to UTC on write. Decoding accepts any RFC 3339 timestamp.
func Time() Atom[time.Time] {
	return NewAtom(
		func(v time.Time) (string, error) { return v.UTC().Format(isoMillis), nil },
		func(text string) (time.Time, error) { return time.Parse(time.RFC3339, text) },
	)
}

// JSON stores a value as compact JSON text. Useful for small structured
// leaves that do not warrant their own object schema.
func JSON[T any]() Atom[T] {
	return NewAtom(
		func(v T) (string, error) {
			b, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return string(b), nil
		},
		func(text string) (T, error) {
			var v T
			if err := json.Unmarshal([]byte(text), &v); err != nil {
				return v, err
			}
			return v, nil
		},
	)
}
