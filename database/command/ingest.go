// SPDX-License-Identifier: ice License 1.0

package command

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/ChristianChiarulli/nostr-sync-relay/database/query"
	"github.com/ChristianChiarulli/nostr-sync-relay/model"
)

// AcceptEvent runs the Ingest Pipeline: it validates and classifies ev,
// then applies the retention policy for its class inside one transaction,
// returning whatever the relay owes the submitting client on the wire
// (OK's accepted flag and reason) plus whether this event should now be
// fanned out to live subscribers.
func AcceptEvent(ctx context.Context, ev *model.Event) (*model.IngestResult, error) {
	if err := model.Validate(ev); err != nil {
		return &model.IngestResult{EventID: ev.ID, Accepted: false, Reason: err.Error()}, nil
	}

	if ev.IsEphemeral() {
		return &model.IngestResult{EventID: ev.ID, Accepted: true, Broadcast: true}, nil
	}

	var result *model.IngestResult
	err := query.Atomically(ctx, func(tx *query.Tx) error {
		var err error
		result, err = ingestTx(ctx, tx, ev)

		return err
	})
	if err != nil {
		return &model.IngestResult{EventID: ev.ID, Accepted: false, Reason: "error: " + err.Error()}, nil
	}

	return result, nil
}

func ingestTx(ctx context.Context, tx *query.Tx, ev *model.Event) (*model.IngestResult, error) {
	if seq, found, err := tx.SeqByID(ctx, ev.ID); err != nil {
		return nil, errors.Wrap(err, "failed to check for an existing event")
	} else if found {
		return &model.IngestResult{
			EventID: ev.ID, Accepted: true,
			Reason: "duplicate: already have this event", Seq: &seq,
		}, nil
	}

	switch {
	case ev.IsPurge():
		return ingestPurge(ctx, tx, ev)
	case ev.IsReplaceable():
		return ingestReplaceable(ctx, tx, ev)
	case ev.IsAddressable():
		return ingestAddressable(ctx, tx, ev)
	default:
		return insertAndBroadcast(ctx, tx, ev)
	}
}

func ingestPurge(ctx context.Context, tx *query.Tx, ev *model.Event) (*model.IngestResult, error) {
	dTag := ev.DTag()
	kTagRaw, hasKTag := ev.KTag()
	if dTag == "" || !hasKTag || model.ClassifyKind(kTagRaw) != model.ClassSyncable {
		return &model.IngestResult{
			EventID: ev.ID, Accepted: false,
			Reason: "invalid: purge event requires a d tag and a k tag naming a syncable kind",
		}, nil
	}

	if err := tx.PurgeDocument(ctx, ev.PubKey, kTagRaw, dTag); err != nil {
		return nil, errors.Wrap(err, "failed to purge document")
	}

	return insertAndBroadcast(ctx, tx, ev)
}

func ingestReplaceable(ctx context.Context, tx *query.Tx, ev *model.Event) (*model.IngestResult, error) {
	existing, err := tx.FindReplaceable(ctx, ev.PubKey, ev.Kind)
	if err != nil {
		return nil, errors.Wrap(err, "failed to look up existing replaceable event")
	}
	if existing != nil {
		if winsOver(existing, ev) {
			seq, found, err := tx.SeqByID(ctx, existing.ID)
			if err != nil || !found {
				return nil, errors.Wrap(err, "failed to read seq of existing replaceable event")
			}

			return &model.IngestResult{
				EventID: ev.ID, Accepted: true,
				Reason: "duplicate: have a newer version of this replaceable event", Seq: &seq,
			}, nil
		}
		if err = tx.DeleteByID(ctx, existing.ID); err != nil {
			return nil, errors.Wrap(err, "failed to delete superseded replaceable event")
		}
	}

	return insertAndBroadcast(ctx, tx, ev)
}

func ingestAddressable(ctx context.Context, tx *query.Tx, ev *model.Event) (*model.IngestResult, error) {
	dTag := ev.DTag()
	existing, err := tx.FindAddressable(ctx, ev.PubKey, ev.Kind, dTag)
	if err != nil {
		return nil, errors.Wrap(err, "failed to look up existing addressable event")
	}
	if existing != nil {
		if winsOver(existing, ev) {
			seq, found, err := tx.SeqByID(ctx, existing.ID)
			if err != nil || !found {
				return nil, errors.Wrap(err, "failed to read seq of existing addressable event")
			}

			return &model.IngestResult{
				EventID: ev.ID, Accepted: true,
				Reason: "duplicate: have a newer version of this addressable event", Seq: &seq,
			}, nil
		}
		if err = tx.DeleteByID(ctx, existing.ID); err != nil {
			return nil, errors.Wrap(err, "failed to delete superseded addressable event")
		}
	}

	return insertAndBroadcast(ctx, tx, ev)
}

func insertAndBroadcast(ctx context.Context, tx *query.Tx, ev *model.Event) (*model.IngestResult, error) {
	seq, err := tx.Insert(ctx, ev)
	if err != nil {
		return nil, errors.Wrap(err, "failed to insert event")
	}

	return &model.IngestResult{EventID: ev.ID, Accepted: true, Seq: &seq, Broadcast: true}, nil
}

// winsOver reports whether a is authoritative over b under the tie-break
// order (created_at desc, id asc): the event that sorts first wins.
func winsOver(a, b *model.Event) bool {
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt > b.CreatedAt
	}

	return a.ID < b.ID
}

