// SPDX-License-Identifier: ice License 1.0

package ws

import (
	"context"
	"log"

	"github.com/gookit/goutil/errorx"
	"github.com/hashicorp/go-multierror"

	"github.com/ChristianChiarulli/nostr-sync-relay/model"
)

func (h *handler) handleChanges(ctx context.Context, respWriter Writer, opts model.ChangesOptions) error {
	if changesListener == nil {
		log.Panic("changes listener not registered")
	}

	changes, lastSeq, err := changesListener(ctx, opts.Since, opts)
	if err != nil {
		return errorx.Withf(err, "failed to query changes since %v", opts.Since)
	}

	return h.writeResponse(respWriter, &model.ChangesResultEnvelope{Changes: changes, LastSeq: lastSeq})
}

func (h *handler) handleLastSeq(ctx context.Context, respWriter Writer) error {
	if lastSeqListener == nil {
		log.Panic("last seq listener not registered")
	}

	lastSeq, err := lastSeqListener(ctx)
	if err != nil {
		return errorx.Wrap(err, "failed to read last seq")
	}

	return h.writeResponse(respWriter, &model.LastSeqResultEnvelope{LastSeq: lastSeq})
}

// handleChangesSub registers a continuous change feed: under the same
// registry lock that serializes broadcast, it reads the persisted changes
// since e.Since with one call to the changes listener and registers the
// subscription, then writes those changes followed by CHANGES_EOSE, so no
// live event is lost or duplicated across the replay/live handoff. The
// replay is that single read, bounded by the listener's limit; it does not
// page through further changes. The lastSeq in CHANGES_EOSE is the one that
// read reports: the highest replayed seq, or the store's last seq when
// nothing matched.
func (h *handler) handleChangesSub(ctx context.Context, respWriter Writer, e *model.ChangesSubEnvelope) error {
	if len(e.SubscriptionID) < minSubscriptionIDLen || len(e.SubscriptionID) > maxSubscriptionIDLen {
		return h.writeClosed(respWriter, e.SubscriptionID, "invalid: subscription id must be 1-64 chars")
	}
	if changesListener == nil {
		log.Panic("changes listener not registered")
	}

	h.mu.Lock()
	changes, lastSeq, err := changesListener(ctx, e.Since, e.ChangesOptions)
	if err != nil {
		h.mu.Unlock()

		return errorx.Withf(err, "failed to query changes since %v", e.Since)
	}
	h.registerChangeSubLocked(respWriter, e.SubscriptionID, &model.ChangeFeedSubscription{
		ID: e.SubscriptionID, Kinds: e.Kinds, Authors: e.Authors,
	})
	h.mu.Unlock()

	var mErr *multierror.Error
	for _, change := range changes {
		mErr = multierror.Append(mErr, h.writeResponse(respWriter, &model.ChangesEventEnvelope{SubscriptionID: e.SubscriptionID, Change: change}))
	}
	mErr = multierror.Append(mErr, h.writeResponse(respWriter, &model.ChangesEOSEEnvelope{SubscriptionID: e.SubscriptionID, LastSeq: lastSeq}))

	return mErr.ErrorOrNil()
}

func (h *handler) registerChangeSubLocked(respWriter Writer, subID string, sub *model.ChangeFeedSubscription) {
	subsFromConn, ok := h.changeSubs[respWriter]
	if !ok {
		subsFromConn = make(map[string]*model.ChangeFeedSubscription)
		h.changeSubs[respWriter] = subsFromConn
	}
	subsFromConn[subID] = sub
}

func (h *handler) cancelChangeSubscription(respWriter Writer, subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, found := h.changeSubs[respWriter]; found {
		delete(subs, subID)
		if len(subs) == 0 {
			delete(h.changeSubs, respWriter)
		}
	}
}
