// Package paths provides utilities for the slash-separated document paths used
// throughout the data layer.
//
// A document path is absolute (leading "/"), has no trailing slash and no empty
// segments. Dynamic collection keys are percent-encoded into single path
// segments; the encoding is byte-compatible with JavaScript's
// encodeURIComponent so that paths written by other runtimes decode to the
// same keys (and vice versa).
//
// All functions are pure and allocation-light; none touch the store.
package paths

import (
	"fmt"
	"strings"
)

// Validate checks that path is a well-formed document path: absolute, no
// trailing slash, no empty segments. The bare root "/" is not a valid
// document path because no document can live there.
func Validate(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("path %q must start with /", path)
	}
	if path == "/" {
		return fmt.Errorf("path %q has no segments", path)
	}
	if strings.HasSuffix(path, "/") {
		return fmt.Errorf("path %q must not end with /", path)
	}
	if strings.Contains(path, "//") {
		return fmt.Errorf("path %q contains an empty segment", path)
	}
	return nil
}

// Split returns the segments of a path. Split("/posts/1") is ["posts", "1"].
// The input is assumed to pass Validate; malformed input yields whatever
// strings.Split produces.
func Split(path string) []string {
	return strings.Split(strings.TrimPrefix(path, "/"), "/")
}

// Join builds an absolute path from segments. Empty segments are skipped so
// Join("posts", "", "1") and Join("posts", "1") are the same path.
func Join(segments ...string) string {
	var b strings.Builder
	for _, seg := range segments {
		seg = strings.Trim(seg, "/")
		if seg == "" {
			continue
		}
		b.WriteByte('/')
		b.WriteString(seg)
	}
	return b.String()
}

// Child appends one segment to a base path.
func Child(base, segment string) string {
	return base + "/" + segment
}

// Components returns the path segments of path relative to root. It reports
// (nil, true) when path equals root, (segments, true) when path is strictly
// below root, and (nil, false) when path is outside root entirely.
func Components(path, root string) ([]string, bool) {
	if path == root {
		return nil, true
	}
	prefix := root + "/"
	if !strings.HasPrefix(path, prefix) {
		return nil, false
	}
	return strings.Split(path[len(prefix):], "/"), true
}

// IsUnder reports whether path lives strictly below root (root itself does
// not count).
func IsUnder(path, root string) bool {
	return strings.HasPrefix(path, root+"/")
}

const upperhex = "0123456789ABCDEF"

// keySafe reports whether a byte survives EncodeKey unescaped. The set is
// exactly encodeURIComponent's unreserved set: A-Z a-z 0-9 - _ . ! ~ * ' ( ).
func keySafe(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}

// EncodeKey percent-encodes a dynamic collection key into a single URL-safe
// path segment. The output matches encodeURIComponent byte for byte, which is
// the on-disk convention for existing stored data.
func EncodeKey(key string) string {
	hexCount := 0
	for i := 0; i < len(key); i++ {
		if !keySafe(key[i]) {
			hexCount++
		}
	}
	if hexCount == 0 {
		return key
	}

	var b strings.Builder
	b.Grow(len(key) + 2*hexCount)
	for i := 0; i < len(key); i++ {
		c := key[i]
		if keySafe(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&0xf])
	}
	return b.String()
}

// DecodeKey reverses EncodeKey, recovering the collection key from a path
// segment. It rejects truncated or non-hex escapes and any stray "/" (a
// segment cannot span a path separator).
func DecodeKey(segment string) (string, error) {
	if strings.Contains(segment, "/") {
		return "", fmt.Errorf("key segment %q contains /", segment)
	}
	if !strings.Contains(segment, "%") {
		return segment, nil
	}

	var b strings.Builder
	b.Grow(len(segment))
	for i := 0; i < len(segment); {
		c := segment[i]
		if c != '%' {
			b.WriteByte(c)
			i++
			continue
		}
		if len(segment) < i+3 {
			return "", fmt.Errorf("key segment %q has truncated escape", segment)
		}
		hi, ok1 := unhex(segment[i+1])
		lo, ok2 := unhex(segment[i+2])
		if !ok1 || !ok2 {
			return "", fmt.Errorf("key segment %q has invalid escape %q", segment, segment[i:i+3])
		}
		b.WriteByte(hi<<4 | lo)
		i += 3
	}
	return b.String(), nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
