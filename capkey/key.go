// Package capkey implements the capability identifier algebra: a flat,
// tag-structured key, its canonical string form, and the partial order of
// specificity used to rank capabilities against an incoming request.
package capkey

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Error codes for CapKey parsing and construction failures.
const (
	ErrorInvalidFormat    = 1
	ErrorEmptyTag         = 2
	ErrorInvalidCharacter = 3
	ErrorInvalidTagFormat = 4
)

// Error represents a failure parsing or building a CapKey.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string { return e.Message }

var tagComponentPattern = regexp.MustCompile(`^[A-Za-z0-9_\-\*]+$`)

// Key is an immutable mapping from tag name to tag value. The literal
// value "*" is the wildcard marker; a tag absent from a key behaves as if
// it were present with the wildcard value when matching.
type Key struct {
	tags map[string]string
}

// FromString parses "k1=v1;k2=v2;..." into a Key. A trailing ";" is
// accepted but never re-emitted by ToString. Errors are reported in the
// precedence order: InvalidTagFormat, EmptyTag, InvalidCharacter,
// InvalidFormat.
func FromString(s string) (*Key, error) {
	if s == "" {
		return nil, &Error{Code: ErrorInvalidFormat, Message: "capability key cannot be empty"}
	}

	tags := make(map[string]string)

	for _, tok := range strings.Split(s, ";") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}

		parts := strings.Split(tok, "=")
		if len(parts) != 2 {
			return nil, &Error{Code: ErrorInvalidTagFormat, Message: fmt.Sprintf("invalid tag format (must be key=value): %s", tok)}
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if key == "" || value == "" {
			return nil, &Error{Code: ErrorEmptyTag, Message: fmt.Sprintf("tag key or value cannot be empty: %s", tok)}
		}

		if !tagComponentPattern.MatchString(key) || !tagComponentPattern.MatchString(value) {
			return nil, &Error{Code: ErrorInvalidCharacter, Message: fmt.Sprintf("invalid character in tag: %s", tok)}
		}

		tags[key] = value
	}

	if len(tags) == 0 {
		return nil, &Error{Code: ErrorInvalidFormat, Message: "capability key cannot be empty"}
	}

	return &Key{tags: tags}, nil
}

// FromTags builds a Key from a tag map, defensively copied. Fails with
// InvalidFormat when the map is empty.
func FromTags(tags map[string]string) (*Key, error) {
	if len(tags) == 0 {
		return nil, &Error{Code: ErrorInvalidFormat, Message: "capability key cannot be empty"}
	}
	cp := make(map[string]string, len(tags))
	for k, v := range tags {
		cp[k] = v
	}
	return &Key{tags: cp}, nil
}

// Tag returns the value of a tag and whether it is present.
func (k *Key) Tag(name string) (string, bool) {
	v, ok := k.tags[name]
	return v, ok
}

// HasTag reports whether the key carries name=value exactly.
func (k *Key) HasTag(name, value string) bool {
	v, ok := k.tags[name]
	return ok && v == value
}

// WithTag returns a new key with name set to value.
func (k *Key) WithTag(name, value string) *Key {
	cp := k.copyTags()
	cp[name] = value
	return &Key{tags: cp}
}

// WithoutTag returns a new key with name removed.
func (k *Key) WithoutTag(name string) *Key {
	cp := k.copyTags()
	delete(cp, name)
	return &Key{tags: cp}
}

// WithWildcardTag returns a new key with name set to "*", only if name
// was already present; otherwise returns k unchanged.
func (k *Key) WithWildcardTag(name string) *Key {
	if _, ok := k.tags[name]; ok {
		return k.WithTag(name, "*")
	}
	return k
}

// Subset returns a new key containing only the named tags that are
// present in k.
func (k *Key) Subset(names []string) *Key {
	cp := make(map[string]string)
	for _, n := range names {
		if v, ok := k.tags[n]; ok {
			cp[n] = v
		}
	}
	return &Key{tags: cp}
}

// Merge returns a new key with other's tags overriding k's on conflict.
func (k *Key) Merge(other *Key) *Key {
	cp := k.copyTags()
	for key, v := range other.tags {
		cp[key] = v
	}
	return &Key{tags: cp}
}

func (k *Key) copyTags() map[string]string {
	cp := make(map[string]string, len(k.tags))
	for key, v := range k.tags {
		cp[key] = v
	}
	return cp
}

// Matches reports whether k can handle request: for every tag the request
// specifies, k either lacks that tag, carries a wildcard, accepts the
// request's wildcard, or matches the value exactly. Tags k carries that
// the request does not mention never affect the result — k is simply
// more specific than the request requires.
func (k *Key) Matches(request *Key) bool {
	if request == nil {
		return true
	}
	for name, reqValue := range request.tags {
		capValue, ok := k.tags[name]
		if !ok {
			continue
		}
		if capValue == "*" || reqValue == "*" {
			continue
		}
		if capValue != reqValue {
			return false
		}
	}
	return true
}

// CanHandle is an alias for Matches: "can this capability handle that
// request".
func (k *Key) CanHandle(request *Key) bool {
	return k.Matches(request)
}

// Specificity is the count of tags whose value is not the wildcard.
func (k *Key) Specificity() int {
	n := 0
	for _, v := range k.tags {
		if v != "*" {
			n++
		}
	}
	return n
}

// TagCount is the total number of tags, wildcard or not.
func (k *Key) TagCount() int {
	return len(k.tags)
}

// IsCompatibleWith is the symmetric compatibility relation: for every tag
// present in both keys, either value is wildcard or they are equal.
func (k *Key) IsCompatibleWith(other *Key) bool {
	if other == nil {
		return true
	}
	for name, v1 := range k.tags {
		v2, ok := other.tags[name]
		if !ok {
			continue
		}
		if v1 != "*" && v2 != "*" && v1 != v2 {
			return false
		}
	}
	return true
}

// IsMoreSpecificThan holds when k and other are compatible and k carries
// strictly more non-wildcard tags.
func (k *Key) IsMoreSpecificThan(other *Key) bool {
	if other == nil {
		return true
	}
	if !k.IsCompatibleWith(other) {
		return false
	}
	return k.Specificity() > other.Specificity()
}

// Convenience accessors for the well-known tag names.
func (k *Key) Type() (string, bool)   { return k.Tag("type") }
func (k *Key) Action() (string, bool) { return k.Tag("action") }
func (k *Key) Target() (string, bool) { return k.Tag("target") }
func (k *Key) Format() (string, bool) { return k.Tag("format") }
func (k *Key) Output() (string, bool) { return k.Tag("output") }

// IsBinary reports whether the output tag equals "binary".
func (k *Key) IsBinary() bool { return k.HasTag("output", "binary") }

// ToString returns the canonical "k1=v1;k2=v2" form, keys sorted
// byte-wise ascending, no trailing separator.
func (k *Key) ToString() string {
	if len(k.tags) == 0 {
		return ""
	}
	names := make([]string, 0, len(k.tags))
	for n := range k.tags {
		names = append(names, n)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, n+"="+k.tags[n])
	}
	return strings.Join(parts, ";")
}

func (k *Key) String() string { return k.ToString() }

// Equals holds iff both keys have identical tag maps.
func (k *Key) Equals(other *Key) bool {
	if other == nil || len(k.tags) != len(other.tags) {
		return false
	}
	for name, v := range k.tags {
		if ov, ok := other.tags[name]; !ok || ov != v {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the key as its canonical string.
func (k *Key) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.ToString())
}

// UnmarshalJSON decodes a canonical string into the key.
func (k *Key) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := FromString(s)
	if err != nil {
		return err
	}
	k.tags = parsed.tags
	return nil
}

// MarshalYAML encodes the key as its canonical string, mirroring
// MarshalJSON for manifest files loaded as YAML.
func (k *Key) MarshalYAML() (interface{}, error) {
	return k.ToString(), nil
}

// UnmarshalYAML decodes a canonical string into the key, mirroring
// UnmarshalJSON.
func (k *Key) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := FromString(s)
	if err != nil {
		return err
	}
	k.tags = parsed.tags
	return nil
}
