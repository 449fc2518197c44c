package querycache

import "strings"

// Key identifies one cached request: resource, sub-resource, then the
// parameters that shape the response. Two keys are equal iff every part is.
type Key []string

func NewKey(parts ...string) Key {
	return Key(parts)
}

// String is the canonical form used for map lookups. Parts are joined with a
// unit separator so that ("a/b") and ("a", "b") never collide.
func (k Key) String() string {
	return strings.Join(k, "\x1f")
}

// HasPrefix reports whether the first len(prefix) parts of k equal prefix.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Resource returns the first part of the key, or "" for an empty key.
func (k Key) Resource() string {
	if len(k) == 0 {
		return ""
	}
	return k[0]
}

func (k Key) Equal(other Key) bool {
	return len(k) == len(other) && k.HasPrefix(other)
}
