package schema

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/chrisdevereux/earthstar-data/docstore"
	"github.com/chrisdevereux/earthstar-data/errors"
	"github.com/chrisdevereux/earthstar-data/paths"
)

// Format namespaces an inner node under /<namespace>/<major>.<minor> so
// several generations of a schema can share one path without colliding.
// Reads accept any minor of the wrapper's major version and ignore
// everything else. Writes always land at the wrapper's exact version.
type Format struct {
	ns    string
	major int
	minor int
	inner Type
}

// NewFormat wraps inner under namespace ns at the given version. The
// namespace is a single path segment.
func NewFormat(ns string, major, minor int, inner Type) (Format, error) {
	if ns == "" || strings.Contains(ns, "/") {
		return Format{}, errors.WrapInvalid(fmt.Errorf("%w: namespace %q", errors.ErrInvalidSchemaUsage, ns), "Format", "NewFormat", "namespace validation")
	}
	if major < 0 || minor < 0 {
		return Format{}, errors.WrapInvalid(fmt.Errorf("%w: version %d.%d", errors.ErrInvalidSchemaUsage, major, minor), "Format", "NewFormat", "version validation")
	}
	if inner == nil {
		return Format{}, errors.WrapInvalid(fmt.Errorf("%w: nil inner type", errors.ErrInvalidSchemaUsage), "Format", "NewFormat", "inner type validation")
	}
	return Format{ns: ns, major: major, minor: minor, inner: inner}, nil
}

// MustFormat is NewFormat for schema literals. It panics on bad input.
func MustFormat(ns string, major, minor int, inner Type) Format {
	f, err := NewFormat(ns, major, minor, inner)
	if err != nil {
		panic(err)
	}
	return f
}

func (f Format) versionSegment() string {
	return strconv.Itoa(f.major) + "." + strconv.Itoa(f.minor)
}

// contentRoot is where writes land below path.
func (f Format) contentRoot(path string) string {
	return paths.Join(path, f.ns, f.versionSegment())
}

// Reduce folds documents under the wrapper's namespace and major version
// into the inner node. Foreign namespaces, other majors and malformed
// version markers pass through untouched, which is what lets schema
// generations coexist below one path.
func (f Format) Reduce(ctx context.Context, st docstore.Reader, doc docstore.Document, rest []string, prev any) (any, error) {
	if len(rest) < 2 {
		return prev, nil
	}
	if rest[0] != f.ns {
		return prev, nil
	}
	major, ok := parseVersion(rest[1])
	if !ok || major != f.major {
		return prev, nil
	}
	return f.inner.Reduce(ctx, st, doc, rest[2:], prev)
}

// Write routes data to the inner node at the wrapper's current version.
// A nil data clears the whole namespace, every version included, so
// documents written under an earlier minor cannot resurface on the next
// read.
func (f Format) Write(ctx context.Context, st docstore.ReadWriter, author docstore.Author, path string, data any) error {
	if data == nil {
		return clearSubtree(ctx, st, author, paths.Child(path, f.ns))
	}
	return f.inner.Write(ctx, st, author, f.contentRoot(path), data)
}

// parseVersion reads a "<major>.<minor>" marker segment and reports the
// major version. Segments that do not parse are not version markers.
func parseVersion(seg string) (int, bool) {
	majorText, minorText, ok := strings.Cut(seg, ".")
	if !ok {
		return 0, false
	}
	major, err := strconv.Atoi(majorText)
	if err != nil || major < 0 {
		return 0, false
	}
	minor, err := strconv.Atoi(minorText)
	if err != nil || minor < 0 {
		return 0, false
	}
	return major, true
}
