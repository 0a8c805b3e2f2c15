package natsstore

import (
	"fmt"
	"strings"

	"github.com/chrisdevereux/earthstar-data/paths"
)

// NATS KV keys are dot-separated subject tokens drawn from a small safe
// charset. Document paths map onto them segment by segment: "/" becomes "."
// and any byte a token cannot carry is escaped as "=HH" (uppercase hex).
// "=" is key-legal and never emitted by the path layer, which makes it a
// collision-free escape introducer. The mapping is a bijection, so keys
// seen on watch and scan decode back to the exact original path.
//
//	/posts/1/title              posts.1.title
//	/users/alice smith          users.alice=20smith
//	/posts/2/links/%2Fposts%2F1 posts.2.links.=252Fposts=252F1

const kvHex = "0123456789ABCDEF"

// kvTokenSafe reports whether a byte may appear unescaped in a key token.
// "." separates tokens and "=" introduces escapes, so neither is in the
// set. "/" is legal in NATS keys but reserved here so each path has one
// canonical spelling.
func kvTokenSafe(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	case c == '-' || c == '_':
		return true
	}
	return false
}

// keyForPath converts a document path into its KV key. The path must pass
// paths.Validate.
func keyForPath(path string) (string, error) {
	if err := paths.Validate(path); err != nil {
		return "", err
	}
	segs := paths.Split(path)
	tokens := make([]string, len(segs))
	for i, seg := range segs {
		tokens[i] = encodeKVToken(seg)
	}
	return strings.Join(tokens, "."), nil
}

// pathForKey reverses keyForPath. Keys written by anything other than this
// package may not decode; callers treat those as foreign and skip them.
func pathForKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty key")
	}
	tokens := strings.Split(key, ".")
	segs := make([]string, len(tokens))
	for i, token := range tokens {
		seg, err := decodeKVToken(token)
		if err != nil {
			return "", err
		}
		if seg == "" || strings.Contains(seg, "/") {
			return "", fmt.Errorf("key token %q does not decode to a path segment", token)
		}
		segs[i] = seg
	}
	return "/" + strings.Join(segs, "/"), nil
}

func encodeKVToken(segment string) string {
	escapes := 0
	for i := 0; i < len(segment); i++ {
		if !kvTokenSafe(segment[i]) {
			escapes++
		}
	}
	if escapes == 0 {
		return segment
	}

	var b strings.Builder
	b.Grow(len(segment) + 2*escapes)
	for i := 0; i < len(segment); i++ {
		c := segment[i]
		if kvTokenSafe(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('=')
		b.WriteByte(kvHex[c>>4])
		b.WriteByte(kvHex[c&0xf])
	}
	return b.String()
}

func decodeKVToken(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("empty key token")
	}
	if !strings.Contains(token, "=") {
		return token, nil
	}

	var b strings.Builder
	b.Grow(len(token))
	for i := 0; i < len(token); {
		c := token[i]
		if c != '=' {
			b.WriteByte(c)
			i++
			continue
		}
		if len(token) < i+3 {
			return "", fmt.Errorf("key token %q has truncated escape", token)
		}
		hi, ok1 := unhex(token[i+1])
		lo, ok2 := unhex(token[i+2])
		if !ok1 || !ok2 {
			return "", fmt.Errorf("key token %q has invalid escape %q", token, token[i:i+3])
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
