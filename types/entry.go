package types

import (
	"bytes"
	"fmt"

	"github.com/spacedata/sdchain/jsonx"
)

// Entry is an opaque record waiting for, or committed to, a block. It holds
// the compact JSON encoding of the payload so that a block hash never depends
// on how the producer happened to format it.
type Entry []byte

// NewEntry encodes v into its canonical form.
func NewEntry(v interface{}) (Entry, error) {
	b, err := jsonx.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode entry: %w", err)
	}
	return Entry(b), nil
}

// MustEntry is NewEntry for values known to be encodable.
func MustEntry(v interface{}) Entry {
	e, err := NewEntry(v)
	if err != nil {
		panic(err)
	}
	return e
}

// CanonicalEntry re-encodes raw JSON: whitespace is dropped, object keys are
// sorted and numbers keep their literal text.
func CanonicalEntry(raw []byte) (Entry, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty entry")
	}
	dec := jsonx.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decode entry: trailing data")
	}
	return NewEntry(v)
}

// Decode unmarshals the entry into v.
func (e Entry) Decode(v interface{}) error {
	return jsonx.Unmarshal(e, v)
}

func (e Entry) MarshalJSON() ([]byte, error) {
	if len(e) == 0 {
		return []byte("null"), nil
	}
	return e, nil
}

// UnmarshalJSON stores data in canonical form, so indented input decodes to
// the same entry as its compact encoding.
func (e *Entry) UnmarshalJSON(data []byte) error {
	if e == nil {
		return fmt.Errorf("types.Entry: UnmarshalJSON on nil pointer")
	}
	canonical, err := CanonicalEntry(data)
	if err != nil {
		return err
	}
	*e = canonical
	return nil
}

func (e Entry) String() string {
	return string(e)
}

// CloneEntries deep copies a slice of entries. A nil input yields an empty,
// non-nil slice.
func CloneEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = append(Entry(nil), e...)
	}
	return out
}
