package record

import "fmt"

// TagType identifies what a tag's value refers to. The space is open
// for application extension; unknown types are carried opaquely rather
// than rejected.
type TagType uint16

const (
	// TagPublicKey tags a public key (e.g. a mentioned or recipient user).
	TagPublicKey TagType = 0x1

	// TagReplyToID references the record being replied to, by id/address.
	TagReplyToID TagType = 0x2

	// TagReplyToAddr references the record being replied to, by address.
	TagReplyToAddr TagType = 0x3

	// TagRootID references the thread root, by id.
	TagRootID TagType = 0x4

	// TagRootAddr references the thread root, by address.
	TagRootAddr TagType = 0x5

	// TagQuoteByID references a quoted record, by id.
	TagQuoteByID TagType = 0x6

	// TagQuoteByAddr references a quoted record, by address.
	TagQuoteByAddr TagType = 0x7
)

const (
	// MaxTags bounds the tag list of a single record.
	MaxTags = 64

	// MaxTagValueLen bounds a single tag value.
	MaxTagValueLen = 1024
)

// Tag is one (type, value) pair. Values are opaque bytes whose meaning
// depends on the type.
type Tag struct {
	Type  TagType
	Value []byte
}

// Validate checks the tag against protocol limits.
func (t Tag) Validate() error {
	if len(t.Value) > MaxTagValueLen {
		return fmt.Errorf("record: tag value is %d bytes, max %d", len(t.Value), MaxTagValueLen)
	}
	return nil
}

// TagSet is an ordered tag list. Order is significant: it is part of
// the signed bytes, so two records with the same tags in different
// orders are different records.
type TagSet []Tag

// Validate checks the set against protocol limits.
func (ts TagSet) Validate() error {
	if len(ts) > MaxTags {
		return fmt.Errorf("record: %d tags, max %d", len(ts), MaxTags)
	}
	for i, t := range ts {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("tag %d: %w", i, err)
		}
	}
	return nil
}

// First returns the value of the first tag of the given type, or nil.
func (ts TagSet) First(tt TagType) []byte {
	for _, t := range ts {
		if t.Type == tt {
			return t.Value
		}
	}
	return nil
}

// clone deep-copies the set so records stay immutable even if the
// caller keeps mutating its input slices.
func (ts TagSet) clone() TagSet {
	if ts == nil {
		return nil
	}
	out := make(TagSet, len(ts))
	for i, t := range ts {
		out[i] = Tag{Type: t.Type, Value: append([]byte(nil), t.Value...)}
	}
	return out
}
