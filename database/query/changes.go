// SPDX-License-Identifier: ice License 1.0

package query

import (
	"context"

	"github.com/pkg/errors"

	"github.com/ChristianChiarulli/nostr-sync-relay/model"
)

// QueryChanges is the one-shot change feed: it returns up to opts.Limit
// events with seq > since, narrowed by opts.Kinds/opts.Authors if given,
// ascending by seq. lastSeq is the highest seq among the returned events,
// or the store's global last seq if nothing matched, so that a client
// polling an empty range can still advance its cursor.
func QueryChanges(ctx context.Context, since int64, opts model.ChangesOptions) (changes []model.Change, lastSeq int64, err error) {
	w := newWhereBuilder()
	w.WriteString("seq > :sinceSeq")
	w.Params["sinceSeq"] = since

	buildFromSlice(w, "changes_", opts.Kinds, "kind")
	buildFromSlice(w, "changes_", opts.Authors, "pubkey")

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	w.Params["queryLimit"] = limit

	sqlText := `select seq, id, pubkey, created_at, kind, tags_json, content, sig from events where ` +
		w.String() + ` order by seq asc limit :queryLimit`

	rows, err := db().DB.NamedQueryContext(ctx, sqlText, w.Params)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to run changes query")
	}
	defer rows.Close()

	for rows.Next() {
		var row eventRow
		if err = rows.StructScan(&row); err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan change row")
		}
		ev, err := fromRow(row)
		if err != nil {
			return nil, 0, err
		}
		changes = append(changes, model.Change{Seq: row.Seq, Event: ev})
		lastSeq = row.Seq
	}
	if err = rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "failed to iterate change rows")
	}

	if lastSeq == 0 {
		if lastSeq, err = LastSeq(ctx); err != nil {
			return nil, 0, err
		}
	}

	return changes, lastSeq, nil
}
