// SPDX-License-Identifier: ice License 1.0

package model

import (
	"encoding/json"
	"fmt"

	"github.com/mailru/easyjson"
	"github.com/nbd-wtf/go-nostr"
	"github.com/tidwall/gjson"
)

type (
	EnvelopeType string

	// Envelope is any client<->relay frame; every concrete type below
	// marshals to/from a JSON array whose first element is its Label.
	Envelope = nostr.Envelope

	// ReqEnvelope is client -> relay: ["REQ", <sub_id>, <filter>, ...].
	ReqEnvelope struct {
		SubscriptionID string
		Filters
	}

	// ChangesEnvelope is client -> relay: ["CHANGES", <options>].
	ChangesEnvelope struct {
		ChangesOptions
	}

	// LastSeqEnvelope is client -> relay: ["LASTSEQ"].
	LastSeqEnvelope struct{}

	// ChangesSubEnvelope is client -> relay: ["CHANGES_SUB", <sub_id>, <options>].
	ChangesSubEnvelope struct {
		SubscriptionID string
		ChangesOptions
	}

	// ChangesUnsubEnvelope is client -> relay: ["CHANGES_UNSUB", <sub_id>].
	ChangesUnsubEnvelope struct {
		SubscriptionID string
	}

	// ChangesResultEnvelope is relay -> client: ["CHANGES", {changes, lastSeq}].
	ChangesResultEnvelope struct {
		Changes []Change `json:"changes"`
		LastSeq int64    `json:"lastSeq"`
	}

	// LastSeqResultEnvelope is relay -> client: ["LASTSEQ", <int>].
	LastSeqResultEnvelope struct {
		LastSeq int64
	}

	// ChangesEventEnvelope is relay -> client: ["CHANGES_EVENT", <sub_id>, {seq, event}].
	ChangesEventEnvelope struct {
		SubscriptionID string
		Change         Change
	}

	// ChangesEOSEEnvelope is relay -> client: ["CHANGES_EOSE", <sub_id>, {lastSeq}].
	ChangesEOSEEnvelope struct {
		SubscriptionID string
		LastSeq        int64
	}
)

const (
	EnvelopeTypeEvent         EnvelopeType = "EVENT"
	EnvelopeTypeReq           EnvelopeType = "REQ"
	EnvelopeTypeClose         EnvelopeType = "CLOSE"
	EnvelopeTypeNotice        EnvelopeType = "NOTICE"
	EnvelopeTypeEOSE          EnvelopeType = "EOSE"
	EnvelopeTypeOK            EnvelopeType = "OK"
	EnvelopeTypeClosed        EnvelopeType = "CLOSED"
	EnvelopeTypeChanges       EnvelopeType = "CHANGES"
	EnvelopeTypeLastSeq       EnvelopeType = "LASTSEQ"
	EnvelopeTypeChangesSub    EnvelopeType = "CHANGES_SUB"
	EnvelopeTypeChangesUnsub  EnvelopeType = "CHANGES_UNSUB"
	EnvelopeTypeChangesEvent  EnvelopeType = "CHANGES_EVENT"
	EnvelopeTypeChangesEOSE   EnvelopeType = "CHANGES_EOSE"
)

func (*ReqEnvelope) Label() string { return string(EnvelopeTypeReq) }

func (v *ReqEnvelope) UnmarshalJSON(data []byte) error {
	arr := gjson.ParseBytes(data).Array()
	if len(arr) < 3 {
		return fmt.Errorf("failed to decode REQ envelope: missing filters")
	}
	v.SubscriptionID = arr[1].Str
	v.Filters = make(Filters, len(arr)-2)
	for i := 2; i < len(arr); i++ {
		if err := easyjson.Unmarshal([]byte(arr[i].Raw), &v.Filters[i-2]); err != nil {
			return fmt.Errorf("%w -- on filter %d", err, i-2)
		}
	}

	return nil
}

func (v *ReqEnvelope) MarshalJSON() ([]byte, error) {
	data := []any{EnvelopeTypeReq, v.SubscriptionID}
	for _, f := range v.Filters {
		data = append(data, f)
	}

	return json.Marshal(data)
}

func (v *ReqEnvelope) String() string {
	b, _ := json.Marshal(v)

	return string(b)
}

func (*ChangesEnvelope) Label() string { return string(EnvelopeTypeChanges) }

func (v *ChangesEnvelope) UnmarshalJSON(data []byte) error {
	arr := gjson.ParseBytes(data).Array()
	if len(arr) < 2 {
		return fmt.Errorf("failed to decode CHANGES envelope: missing options")
	}

	return json.Unmarshal([]byte(arr[1].Raw), &v.ChangesOptions)
}

func (v *ChangesEnvelope) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{EnvelopeTypeChanges, v.ChangesOptions})
}

func (v *ChangesEnvelope) String() string {
	b, _ := json.Marshal(v)

	return string(b)
}

func (*LastSeqEnvelope) Label() string { return string(EnvelopeTypeLastSeq) }

func (v *LastSeqEnvelope) UnmarshalJSON([]byte) error { return nil }

func (v *LastSeqEnvelope) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{EnvelopeTypeLastSeq})
}

func (v *LastSeqEnvelope) String() string {
	return string(EnvelopeTypeLastSeq)
}

func (*ChangesSubEnvelope) Label() string { return string(EnvelopeTypeChangesSub) }

func (v *ChangesSubEnvelope) UnmarshalJSON(data []byte) error {
	arr := gjson.ParseBytes(data).Array()
	if len(arr) < 3 {
		return fmt.Errorf("failed to decode CHANGES_SUB envelope: missing sub id or options")
	}
	v.SubscriptionID = arr[1].Str

	return json.Unmarshal([]byte(arr[2].Raw), &v.ChangesOptions)
}

func (v *ChangesSubEnvelope) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{EnvelopeTypeChangesSub, v.SubscriptionID, v.ChangesOptions})
}

func (v *ChangesSubEnvelope) String() string {
	b, _ := json.Marshal(v)

	return string(b)
}

func (*ChangesUnsubEnvelope) Label() string { return string(EnvelopeTypeChangesUnsub) }

func (v *ChangesUnsubEnvelope) UnmarshalJSON(data []byte) error {
	arr := gjson.ParseBytes(data).Array()
	if len(arr) < 2 {
		return fmt.Errorf("failed to decode CHANGES_UNSUB envelope: missing sub id")
	}
	v.SubscriptionID = arr[1].Str

	return nil
}

func (v *ChangesUnsubEnvelope) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{EnvelopeTypeChangesUnsub, v.SubscriptionID})
}

func (v *ChangesUnsubEnvelope) String() string {
	b, _ := json.Marshal(v)

	return string(b)
}

func (*ChangesResultEnvelope) Label() string { return string(EnvelopeTypeChanges) }

func (v *ChangesResultEnvelope) UnmarshalJSON(data []byte) error {
	arr := gjson.ParseBytes(data).Array()
	if len(arr) < 2 {
		return fmt.Errorf("failed to decode CHANGES result envelope")
	}

	return json.Unmarshal([]byte(arr[1].Raw), v)
}

func (v *ChangesResultEnvelope) MarshalJSON() ([]byte, error) {
	body := struct {
		Changes []Change `json:"changes"`
		LastSeq int64    `json:"lastSeq"`
	}{Changes: v.Changes, LastSeq: v.LastSeq}
	if body.Changes == nil {
		body.Changes = []Change{}
	}

	return json.Marshal([]any{EnvelopeTypeChanges, body})
}

func (v *ChangesResultEnvelope) String() string {
	b, _ := json.Marshal(v)

	return string(b)
}

func (*LastSeqResultEnvelope) Label() string { return string(EnvelopeTypeLastSeq) }

func (v *LastSeqResultEnvelope) UnmarshalJSON(data []byte) error {
	arr := gjson.ParseBytes(data).Array()
	if len(arr) < 2 {
		return fmt.Errorf("failed to decode LASTSEQ result envelope")
	}
	v.LastSeq = arr[1].Int()

	return nil
}

func (v *LastSeqResultEnvelope) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{EnvelopeTypeLastSeq, v.LastSeq})
}

func (v *LastSeqResultEnvelope) String() string {
	b, _ := json.Marshal(v)

	return string(b)
}

func (*ChangesEventEnvelope) Label() string { return string(EnvelopeTypeChangesEvent) }

func (v *ChangesEventEnvelope) UnmarshalJSON(data []byte) error {
	arr := gjson.ParseBytes(data).Array()
	if len(arr) < 3 {
		return fmt.Errorf("failed to decode CHANGES_EVENT envelope")
	}
	v.SubscriptionID = arr[1].Str

	return json.Unmarshal([]byte(arr[2].Raw), &v.Change)
}

func (v *ChangesEventEnvelope) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{EnvelopeTypeChangesEvent, v.SubscriptionID, v.Change})
}

func (v *ChangesEventEnvelope) String() string {
	b, _ := json.Marshal(v)

	return string(b)
}

func (*ChangesEOSEEnvelope) Label() string { return string(EnvelopeTypeChangesEOSE) }

func (v *ChangesEOSEEnvelope) UnmarshalJSON(data []byte) error {
	arr := gjson.ParseBytes(data).Array()
	if len(arr) < 3 {
		return fmt.Errorf("failed to decode CHANGES_EOSE envelope")
	}
	v.SubscriptionID = arr[1].Str
	var body struct {
		LastSeq int64 `json:"lastSeq"`
	}
	if err := json.Unmarshal([]byte(arr[2].Raw), &body); err != nil {
		return err
	}
	v.LastSeq = body.LastSeq

	return nil
}

func (v *ChangesEOSEEnvelope) MarshalJSON() ([]byte, error) {
	body := struct {
		LastSeq int64 `json:"lastSeq"`
	}{LastSeq: v.LastSeq}

	return json.Marshal([]any{EnvelopeTypeChangesEOSE, v.SubscriptionID, body})
}

func (v *ChangesEOSEEnvelope) String() string {
	b, _ := json.Marshal(v)

	return string(b)
}

// Change.MarshalJSON/UnmarshalJSON give {"seq":..,"event":..} wire shape.
func (c Change) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Seq   int64  `json:"seq"`
		Event *Event `json:"event"`
	}{Seq: c.Seq, Event: c.Event})
}

func (c *Change) UnmarshalJSON(data []byte) error {
	var body struct {
		Seq   int64  `json:"seq"`
		Event *Event `json:"event"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return err
	}
	c.Seq = body.Seq
	c.Event = body.Event

	return nil
}
