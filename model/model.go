// SPDX-License-Identifier: ice License 1.0

package model

import (
	"errors"

	"github.com/nbd-wtf/go-nostr"
)

type (
	TagMap    = nostr.TagMap
	Tag       = nostr.Tag
	Tags      = nostr.Tags
	Timestamp = nostr.Timestamp
	Kind      = int
	Filter    = nostr.Filter
	Filters   = nostr.Filters

	// Subscription is a REQ registration: an id plus the filters whose
	// union defines what gets replayed and later broadcast to it.
	Subscription struct {
		ID      string
		Filters Filters
	}

	// ChangesOptions narrows a CHANGES/CHANGES_SUB read: Since is the
	// last seq the caller has observed, Limit bounds a one-shot read,
	// Kinds/Authors optionally narrow which events qualify.
	ChangesOptions struct {
		Since   int64
		Limit   int
		Kinds   []int
		Authors []string
	}

	// ChangeFeedSubscription is a CHANGES_SUB registration.
	ChangeFeedSubscription struct {
		ID      string
		Kinds   []int
		Authors []string
	}

	// Change is one entry of a change-feed read or push: a persisted
	// event paired with the seq it was assigned at insert time.
	Change struct {
		Seq   int64
		Event *Event
	}

	// IngestResult is the outcome of running an Event through the
	// Ingest Pipeline.
	IngestResult struct {
		EventID   string
		Accepted  bool
		Reason    string
		Seq       *int64
		Broadcast bool
	}
)

var (
	ErrDuplicate  = errors.New("duplicate event")
	ErrInvalid    = errors.New("invalid event")
	ErrStorage    = errors.New("storage failure")
	ErrNotFound   = errors.New("not found")
)
