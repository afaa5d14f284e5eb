// SPDX-License-Identifier: ice License 1.0

package query

import (
	"context"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/ChristianChiarulli/nostr-sync-relay/model"
)

const defaultQueryLimit = 5000

// Query is the Filter Matcher's SQL-backed counterpart: it runs one SELECT
// per filter (each capped at its own limit), unions the results by id, and
// returns them sorted by (created_at desc, id asc).
func Query(ctx context.Context, filters model.Filters) ([]*model.Event, error) {
	byID := make(map[string]*model.Event)

	for idx := range filters {
		rows, err := queryOneFilter(ctx, db().DB, &filters[idx])
		if err != nil {
			return nil, errors.Wrapf(err, "failed to query filter %d", idx)
		}
		for _, ev := range rows {
			byID[ev.ID] = ev
		}
	}

	events := make([]*model.Event, 0, len(byID))
	for _, ev := range byID {
		events = append(events, ev)
	}
	sortEventsForQuery(events)

	return events, nil
}

func sortEventsForQuery(events []*model.Event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt != events[j].CreatedAt {
			return events[i].CreatedAt > events[j].CreatedAt
		}

		return events[i].ID < events[j].ID
	})
}

func queryOneFilter(ctx context.Context, ext sqlx.ExtContext, filter *model.Filter) ([]*model.Event, error) {
	w := newWhereBuilder()
	if err := w.applyFilter(0, filter); err != nil {
		return nil, err
	}
	whereSQL := w.String()
	if whereSQL == "" {
		whereSQL = whereBuilderDefaultWhere
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	w.Params["queryLimit"] = limit

	sqlText := `select seq, id, pubkey, created_at, kind, tags_json, content, sig from events where ` +
		whereSQL + ` order by created_at desc, id asc limit :queryLimit`

	stmt, err := sqlx.NamedQueryContext(ctx, ext, sqlText, w.Params)
	if err != nil {
		return nil, errors.Wrap(err, "failed to run filter query")
	}
	defer stmt.Close()

	var events []*model.Event
	for stmt.Next() {
		var row eventRow
		if err = stmt.StructScan(&row); err != nil {
			return nil, errors.Wrap(err, "failed to scan event row")
		}
		ev, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	return events, stmt.Err()
}
