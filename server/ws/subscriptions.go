// SPDX-License-Identifier: ice License 1.0

package ws

import (
	"context"
	"log"

	"github.com/gookit/goutil/errorx"
	"github.com/hashicorp/go-multierror"
	"github.com/nbd-wtf/go-nostr"

	"github.com/ChristianChiarulli/nostr-sync-relay/model"
)

const (
	minSubscriptionIDLen = 1
	maxSubscriptionIDLen = 64
)

// handleEvent runs the ingest under the same registry lock that guards
// broadcast: otherwise a REQ or CHANGES_SUB could register in the gap
// between the ingest's commit and the broadcast that follows it, and the
// new subscriber would see the event twice — once in its replay, once live.
func (h *handler) handleEvent(ctx context.Context, respWriter Writer, ev *model.Event) {
	if ingestListener == nil {
		log.Panic("ingest listener not registered")
	}

	h.mu.Lock()
	result, err := ingestListener(ctx, ev)
	if err == nil && result.Broadcast {
		var seq int64
		if result.Seq != nil {
			seq = *result.Seq
		}
		h.broadcastLocked(ev, seq)
	}
	h.mu.Unlock()

	ok := &nostr.OKEnvelope{EventID: ev.ID, OK: true}
	if err != nil {
		ok.OK = false
		ok.Reason = "error: " + err.Error()
	} else {
		ok.OK = result.Accepted
		ok.Reason = result.Reason
	}

	if wErr := h.writeResponse(respWriter, ok); wErr != nil {
		log.Printf("ERROR: failed to write OK for event %v: %v", ev.ID, wErr)
	}
}

// handleReq validates the subscription, takes the registry lock to query
// and register atomically with respect to broadcast, then replays the
// matching stored events followed by EOSE.
func (h *handler) handleReq(ctx context.Context, respWriter Writer, e *model.ReqEnvelope) error {
	if len(e.SubscriptionID) < minSubscriptionIDLen || len(e.SubscriptionID) > maxSubscriptionIDLen || len(e.Filters) == 0 {
		return h.writeClosed(respWriter, e.SubscriptionID, "invalid: subscription id must be 1-64 chars and at least one filter is required")
	}
	if queryListener == nil {
		log.Panic("query listener not registered")
	}

	h.mu.Lock()
	events, err := queryListener(ctx, e.Filters)
	if err != nil {
		h.mu.Unlock()

		return errorx.Withf(err, "failed to query events for subscription %v", e.SubscriptionID)
	}
	h.registerSubLocked(respWriter, e.SubscriptionID, &model.Subscription{ID: e.SubscriptionID, Filters: e.Filters})
	h.mu.Unlock()

	var mErr *multierror.Error
	for _, ev := range events {
		mErr = multierror.Append(mErr, h.writeResponse(respWriter, &nostr.EventEnvelope{SubscriptionID: &e.SubscriptionID, Event: ev.Event}))
	}
	eose := nostr.EOSEEnvelope(e.SubscriptionID)
	mErr = multierror.Append(mErr, h.writeResponse(respWriter, &eose))

	return mErr.ErrorOrNil()
}

func (h *handler) registerSubLocked(respWriter Writer, subID string, sub *model.Subscription) {
	subsFromConn, ok := h.subs[respWriter]
	if !ok {
		subsFromConn = make(map[string]*model.Subscription)
		h.subs[respWriter] = subsFromConn
	}
	subsFromConn[subID] = sub
}

func (h *handler) writeClosed(respWriter Writer, subID, reason string) error {
	closed := nostr.ClosedEnvelope{SubscriptionID: subID, Reason: reason}

	return h.writeResponse(respWriter, &closed)
}

// broadcastLocked delivers ev (with its assigned seq, 0 for ephemeral) to
// every live subscriber. Regular subscriptions deliver at most once per
// connection — after the first match on a connection, remaining regular
// subscriptions on that connection are skipped, deliberately. Change-feed
// subscriptions are independent: every matching one on a connection fires.
// Callers must already hold h.mu: handleEvent brackets its ingest commit
// and the resulting broadcast under one critical section so that no
// REQ/CHANGES_SUB registration can land in the gap between them.
func (h *handler) broadcastLocked(ev *model.Event, seq int64) {
	var mErr *multierror.Error
	for writer, subs := range h.subs {
		for subID, sub := range subs {
			if model.MatchAny(sub.Filters, ev) {
				mErr = multierror.Append(mErr, h.writeResponse(writer, &nostr.EventEnvelope{SubscriptionID: &subID, Event: ev.Event}))

				break
			}
		}
	}

	if seq == 0 || ev.IsEphemeral() {
		if err := mErr.ErrorOrNil(); err != nil {
			log.Printf("ERROR: failed to broadcast event %v: %v", ev.ID, err)
		}

		return
	}

	for writer, changeSubs := range h.changeSubs {
		for subID, sub := range changeSubs {
			if model.MatchesChangeFeed(sub.Kinds, sub.Authors, ev) {
				change := model.Change{Seq: seq, Event: ev}
				mErr = multierror.Append(mErr, h.writeResponse(writer, &model.ChangesEventEnvelope{SubscriptionID: subID, Change: change}))
			}
		}
	}

	if err := mErr.ErrorOrNil(); err != nil {
		log.Printf("ERROR: failed to broadcast event %v: %v", ev.ID, err)
	}
}

func (h *handler) cancelSubscription(respWriter Writer, subID *string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, found := h.subs[respWriter]
	if !found {
		return
	}
	if subID == nil {
		delete(h.subs, respWriter)

		return
	}
	delete(subs, *subID)
	if len(subs) == 0 {
		delete(h.subs, respWriter)
	}
}

func (h *handler) closeConnection(respWriter Writer) {
	h.mu.Lock()
	delete(h.subs, respWriter)
	delete(h.changeSubs, respWriter)
	h.mu.Unlock()
}
