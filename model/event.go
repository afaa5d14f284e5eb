// SPDX-License-Identifier: ice License 1.0

package model

import (
	"strconv"
	"strings"

	"github.com/nbd-wtf/go-nostr"
)

type (
	// Event wraps nostr.Event the way the rest of this codebase expects to
	// extend it with relay-specific accessors, without re-declaring any of
	// the fields the wire format already defines.
	Event struct {
		nostr.Event
	}
)

// Class reports the retention class this event's kind belongs to.
func (e *Event) Class() Class {
	return ClassifyKind(e.Kind)
}

func (e *Event) IsEphemeral() bool    { return e.Class() == ClassEphemeral }
func (e *Event) IsReplaceable() bool  { return e.Class() == ClassReplaceable }
func (e *Event) IsAddressable() bool  { return e.Class() == ClassAddressable }
func (e *Event) IsSyncable() bool     { return e.Class() == ClassSyncable }
func (e *Event) IsPurge() bool        { return e.Class() == ClassPurge }
func (e *Event) IsRegular() bool      { return e.Class() == ClassRegular }

// GetTag returns the first tag whose name matches tagName, or nil.
func (e *Event) GetTag(tagName string) Tag {
	for _, tag := range e.Tags {
		if tag.Key() == tagName {
			return tag
		}
	}

	return nil
}

// DTag returns the value of this event's "d" tag, or "" if absent — the
// empty string is itself a valid addressable/document discriminator.
func (e *Event) DTag() string {
	if t := e.GetTag("d"); t != nil {
		return t.Value()
	}

	return ""
}

// KTag returns the integer value of this event's "k" tag and whether it was
// present and parseable.
func (e *Event) KTag() (int, bool) {
	t := e.GetTag("k")
	if t == nil || t.Value() == "" {
		return 0, false
	}
	k, err := strconv.Atoi(t.Value())
	if err != nil {
		return 0, false
	}

	return k, true
}

// RevisionID parses this event's "i" tag as "{generation}-{hash}". An absent
// or empty tag yields generation 0 and an empty hash. A value whose
// generation does not parse yields generation 0 and, as the hash, the text
// after the first '-' (or the whole value when it has no '-').
func (e *Event) RevisionID() (generation int, hash string) {
	t := e.GetTag("i")
	if t == nil || t.Value() == "" {
		return 0, ""
	}
	idx := strings.IndexByte(t.Value(), '-')
	if idx < 0 {
		return 0, t.Value()
	}
	gen, err := strconv.Atoi(t.Value()[:idx])
	if err != nil {
		return 0, t.Value()[idx+1:]
	}

	return gen, t.Value()[idx+1:]
}

// ParentRevisions returns the values of every "v" tag: the revision ids
// this event declares as its parents in the document's history.
func (e *Event) ParentRevisions() []string {
	var parents []string
	for _, tag := range e.Tags {
		if tag.Key() == "v" && tag.Value() != "" {
			parents = append(parents, tag.Value())
		}
	}

	return parents
}

// IsDeleted reports whether this revision carries a tombstone "deleted" tag.
// The relay never interprets the tag's value, only its presence.
func (e *Event) IsDeleted() bool {
	return e.GetTag("deleted") != nil
}
