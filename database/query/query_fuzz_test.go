// SPDX-License-Identifier: ice License 1.0

package query

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	combinations "github.com/mxschmitt/golang-combinations"
	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"
	"pgregory.net/rand"

	"github.com/ChristianChiarulli/nostr-sync-relay/model"
)

// fuzzFilterField mutates one field of an otherwise-empty filter, so that
// combinations.All can enumerate every subset of fields a REQ filter can
// populate at once: a client rarely sends every field, and the where
// builder must cope with any subset.
type fuzzFilterField struct {
	name string
	set  func(f *model.Filter, pool *fuzzPool)
}

type fuzzPool struct {
	ids     []string
	authors []string
	kinds   []int
	tagVals []string
}

func fuzzFilterFields() []fuzzFilterField {
	return []fuzzFilterField{
		{"ids", func(f *model.Filter, pool *fuzzPool) {
			f.IDs = []string{pool.ids[rand.Intn(len(pool.ids))], pool.ids[rand.Intn(len(pool.ids))]}
		}},
		{"kinds", func(f *model.Filter, pool *fuzzPool) {
			f.Kinds = []int{pool.kinds[rand.Intn(len(pool.kinds))]}
		}},
		{"authors", func(f *model.Filter, pool *fuzzPool) {
			f.Authors = []string{pool.authors[rand.Intn(len(pool.authors))]}
		}},
		{"tags", func(f *model.Filter, pool *fuzzPool) {
			f.Tags = nostr.TagMap{"e": []string{pool.tagVals[rand.Intn(len(pool.tagVals))]}}
		}},
		{"since", func(f *model.Filter, pool *fuzzPool) {
			ts := nostr.Timestamp(time.Now().Add(-time.Duration(rand.Int63n(720)) * time.Hour).Unix())
			f.Since = &ts
		}},
		{"until", func(f *model.Filter, pool *fuzzPool) {
			ts := nostr.Timestamp(time.Now().Add(time.Duration(rand.Int63n(720)) * time.Hour).Unix())
			f.Until = &ts
		}},
		{"limit", func(f *model.Filter, pool *fuzzPool) {
			f.Limit = 1 + rand.Intn(50)
		}},
	}
}

// fuzzKinds spans every retention class so combinations exercising Kinds
// alone still touch regular, replaceable, ephemeral, addressable, syncable
// and purge rows alike.
var fuzzKinds = []int{
	nostr.KindProfileMetadata, nostr.KindTextNote, nostr.KindFollowList,
	nostr.KindReaction, nostr.KindRepost, nostr.KindClientAuthentication,
	30000, 40000, 49999,
}

func fuzzSeedDatabase(t *testing.T, ctx context.Context, db *dbClient, size int) *fuzzPool {
	t.Helper()

	pool := &fuzzPool{}
	tx := &Tx{exec: db.DB, client: db}
	for range size {
		ev := &model.Event{Event: nostr.Event{
			ID:        uuid.NewString(),
			PubKey:    "fuzz-author-" + uuid.NewString(),
			CreatedAt: nostr.Timestamp(time.Now().Add(-time.Duration(rand.Intn(1000)) * time.Hour).Unix()),
			Kind:      fuzzKinds[rand.Intn(len(fuzzKinds))],
			Tags:      nostr.Tags{{"e", "fuzz-tag-" + uuid.NewString()}},
			Content:   "fuzz",
			Sig:       "fuzz-sig-" + uuid.NewString(),
		}}
		_, err := tx.Insert(ctx, ev)
		require.NoError(t, err)

		pool.ids = append(pool.ids, ev.ID)
		pool.authors = append(pool.authors, ev.PubKey)
		pool.kinds = append(pool.kinds, ev.Kind)
		pool.tagVals = append(pool.tagVals, ev.Tags[0][1])
	}

	return pool
}

// TestQueryFuzzEveryFieldCombinationRuns walks every non-empty subset of
// filter fields a client might populate and asserts the where builder never
// errors out building or running the resulting query, regardless of which
// fields are present together.
func TestQueryFuzzEveryFieldCombinationRuns(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), testDeadline)
	defer cancel()

	db := openDatabase(":memory:", true)
	defer db.Close()
	pool := fuzzSeedDatabase(t, ctx, db, 100)

	sets := combinations.All(fuzzFilterFields())
	t.Logf("found %d field combination(s)", len(sets))

	for i, combo := range sets {
		filter := model.Filter{}
		for _, field := range combo {
			field.set(&filter, pool)
		}

		_, err := queryOneFilter(ctx, db.DB, &filter)
		require.NoErrorf(t, err, "combination #%d %v", i+1, fuzzFieldNames(combo))
	}
}

func fuzzFieldNames(fields []fuzzFilterField) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.name
	}

	return names
}

// TestQueryPlanAvoidsTempSortOnIndexedHotPaths is a narrower regression
// guard than a blanket "never sorts" claim: only two filter shapes have a
// structural guarantee of matching the events_created_at_id_ix or
// events_kind_pubkey_created_at_ix index order exactly — an empty filter,
// and kind+author pinned together (optionally narrowed further by a
// created_at range, which does not break the index's sort order). Kind
// alone, or author alone, leaves the other composite-index column
// unconstrained and is not covered by either index for ordering purposes,
// so it is deliberately left out of this guard rather than asserted on
// faith.
func TestQueryPlanAvoidsTempSortOnIndexedHotPaths(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), testDeadline)
	defer cancel()

	db := openDatabase(":memory:", true)
	defer db.Close()
	pool := fuzzSeedDatabase(t, ctx, db, 100)

	since := nostr.Timestamp(time.Now().Add(-48 * time.Hour).Unix())
	hotPaths := []model.Filter{
		{},
		{Kinds: []int{pool.kinds[0]}, Authors: []string{pool.authors[0]}},
		{Kinds: []int{pool.kinds[0]}, Authors: []string{pool.authors[0]}, Since: &since},
	}

	for i, filter := range hotPaths {
		w := newWhereBuilder()
		require.NoError(t, w.applyFilter(0, &filter))
		whereSQL := w.String()
		if whereSQL == "" {
			whereSQL = whereBuilderDefaultWhere
		}
		w.Params["queryLimit"] = defaultQueryLimit

		sqlText := "EXPLAIN QUERY PLAN select seq, id, pubkey, created_at, kind, tags_json, content, sig from events where " +
			whereSQL + " order by created_at desc, id asc limit :queryLimit"

		rows, err := db.DB.NamedQueryContext(ctx, sqlText, w.Params)
		require.NoError(t, err)
		for rows.Next() {
			var selectID, order, from int
			var detail string
			require.NoError(t, rows.Scan(&selectID, &order, &from, &detail))
			if detail == "USE TEMP B-TREE FOR ORDER BY" || detail == "USE TEMP B-TREE FOR RIGHT PART OF ORDER BY" {
				rows.Close()
				t.Fatalf("hot path #%d (%+v) fell back to a temp sort: %s", i+1, filter, detail)
			}
		}
		require.NoError(t, rows.Err())
		rows.Close()
	}
}
