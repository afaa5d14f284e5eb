// SPDX-License-Identifier: ice License 1.0

package model

import (
	"bytes"

	"github.com/cockroachdb/errors"
	"github.com/nbd-wtf/go-nostr"
)

var (
	ErrUnknownMessage = errors.New("unknown message")
	ErrParseMessage   = errors.New("parse message")
)

// ParseMessage byte-sniffs the label of a client->relay frame and decodes
// it into the matching Envelope type, without a full JSON parse up front.
func ParseMessage(message []byte) (Envelope, error) {
	// Single-element frames like ["LASTSEQ"] carry no comma at all; fall
	// back to scanning the whole frame for the label in that case.
	label := message
	if firstComma := bytes.IndexByte(message, ','); firstComma != -1 {
		label = message[:firstComma]
	}

	var v Envelope
	switch {
	case bytes.Contains(label, []byte(EnvelopeTypeEvent)):
		v = &nostr.EventEnvelope{}
	case bytes.Contains(label, []byte(EnvelopeTypeReq)):
		v = &ReqEnvelope{}
	case bytes.Contains(label, []byte(EnvelopeTypeClose)):
		x := nostr.CloseEnvelope("")
		v = &x
	case bytes.Contains(label, []byte(EnvelopeTypeChangesSub)):
		v = &ChangesSubEnvelope{}
	case bytes.Contains(label, []byte(EnvelopeTypeChangesUnsub)):
		v = &ChangesUnsubEnvelope{}
	case bytes.Contains(label, []byte(EnvelopeTypeChanges)):
		v = &ChangesEnvelope{}
	case bytes.Contains(label, []byte(EnvelopeTypeLastSeq)):
		v = &LastSeqEnvelope{}
	default:
		return nil, ErrUnknownMessage
	}

	if err := v.UnmarshalJSON(message); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal envelope")
	}

	return v, nil
}
