// SPDX-License-Identifier: ice License 1.0

package query

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"
	"github.com/schollz/progressbar/v3"
	"github.com/stretchr/testify/require"
	"pgregory.net/rand"

	"github.com/ChristianChiarulli/nostr-sync-relay/model"
)

// stressDB is filled once per test binary run and shared read-only across
// the TestWhereBuilderBy* suite below, mirroring how a relay's actual
// dataset is built once and queried many times.
var stressDB struct {
	sync.Mutex
	Ready  bool
	Client *dbClient
	Events []*model.Event
}

func stressGenerateKind() int {
	kinds := []int{
		nostr.KindProfileMetadata,
		nostr.KindTextNote,
		nostr.KindRecommendServer,
		nostr.KindFollowList,
		nostr.KindEncryptedDirectMessage,
		nostr.KindDeletion,
		nostr.KindRepost,
		nostr.KindReaction,
		nostr.KindRelayListMetadata,
		nostr.KindClientAuthentication,
		nostr.KindMuteList,
		nostr.KindCategorizedPeopleList,
		30000, 30001, 30023,
		40000, 40010,
		49999,
	}

	return kinds[rand.Intn(len(kinds))]
}

func stressGenerateContent(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ "

	b := make([]byte, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}

	return string(b)
}

func stressGenerateCreatedAt() int64 {
	const (
		start = 1700000000
		end   = 1790000000
	)

	return rand.Int63n(end-start) + start
}

func stressGenerateEvent(t require.TestingT, tx *Tx) *model.Event {
	ev := &model.Event{Event: nostr.Event{
		ID:        uuid.NewString(),
		PubKey:    "stress-author-" + uuid.New().String()[:8],
		CreatedAt: nostr.Timestamp(stressGenerateCreatedAt()),
		Kind:      stressGenerateKind(),
		Content:   stressGenerateContent(rand.Intn(512)),
		Sig:       "stress-sig-" + uuid.NewString(),
		Tags: nostr.Tags{
			{"e", "stress-e-" + uuid.NewString()},
			{"p", "stress-p-" + uuid.NewString()},
			{"d", "stress-d-" + uuid.NewString()},
		},
	}}

	_, err := tx.Insert(context.Background(), ev)
	require.NoError(t, err)

	return ev
}

func stressFillDatabase(t *testing.T, db *dbClient, size int) []*model.Event {
	t.Helper()

	tx := &Tx{exec: db.DB, client: db}
	events := make([]*model.Event, size)

	bar := progressbar.Default(int64(size), "generating events")
	for i := range size {
		events[i] = stressGenerateEvent(t, tx)
		_ = bar.Add(1)
	}

	return events
}

func ensureStressDatabase(t *testing.T) {
	t.Helper()

	const eventCount = 1000

	stressDB.Lock()
	defer stressDB.Unlock()

	if stressDB.Ready {
		return
	}

	stressDB.Client = openDatabase(":memory:", true)
	stressDB.Events = stressFillDatabase(t, stressDB.Client, eventCount)
	stressDB.Ready = true
}

func stressRandomEvent(t *testing.T) *model.Event {
	t.Helper()

	return stressDB.Events[rand.Intn(len(stressDB.Events))]
}

func stressQuery(t *testing.T, filters model.Filters) []*model.Event {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), testDeadline)
	defer cancel()

	byID := make(map[string]*model.Event)
	for idx := range filters {
		rows, err := queryOneFilter(ctx, stressDB.Client.DB, &filters[idx])
		require.NoError(t, err)
		for _, ev := range rows {
			byID[ev.ID] = ev
		}
	}

	events := make([]*model.Event, 0, len(byID))
	for _, ev := range byID {
		events = append(events, ev)
	}

	return events
}

func TestWhereBuilderByAuthor(t *testing.T) {
	ensureStressDatabase(t)

	events := stressQuery(t, model.Filters{
		{Authors: []string{stressRandomEvent(t).PubKey, stressRandomEvent(t).PubKey}},
		{Authors: []string{stressRandomEvent(t).PubKey}},
	})
	require.Len(t, events, 3)
}

func TestWhereBuilderByID(t *testing.T) {
	ensureStressDatabase(t)

	events := stressQuery(t, model.Filters{
		{IDs: []string{stressRandomEvent(t).ID}},
		{IDs: []string{stressRandomEvent(t).ID}},
	})
	require.Len(t, events, 2)
}

func TestWhereBuilderByKindAndAuthor(t *testing.T) {
	ensureStressDatabase(t)

	ev := stressRandomEvent(t)
	events := stressQuery(t, model.Filters{
		{Kinds: []int{ev.Kind}, Authors: []string{ev.PubKey}},
	})
	require.NotEmpty(t, events)
	for _, got := range events {
		require.Equal(t, ev.Kind, got.Kind)
		require.Equal(t, ev.PubKey, got.PubKey)
	}
}

func TestWhereBuilderByTag(t *testing.T) {
	ensureStressDatabase(t)

	ev := stressRandomEvent(t)
	tagValue := ev.Tags[0][1]
	events := stressQuery(t, model.Filters{
		{Tags: nostr.TagMap{"e": []string{tagValue}}},
	})
	require.Len(t, events, 1)
	require.Equal(t, ev.ID, events[0].ID)
}

func TestWhereBuilderByMany(t *testing.T) {
	ensureStressDatabase(t)

	ev1 := stressRandomEvent(t)
	ev2 := stressRandomEvent(t)
	since := ev2.CreatedAt
	until := ev2.CreatedAt

	events := stressQuery(t, model.Filters{
		{
			IDs:     []string{ev1.ID, "bogus-id"},
			Authors: []string{ev1.PubKey, "bogus-author"},
			Kinds:   []int{ev1.Kind},
		},
		{
			IDs:     []string{ev2.ID, "another-bogus-id"},
			Authors: []string{ev2.PubKey},
			Kinds:   []int{ev2.Kind, 1, 2, 3},
			Since:   &since,
			Until:   &until,
		},
	})
	require.Len(t, events, 2)
}

func TestWhereBuilderByCreatedAtRange(t *testing.T) {
	ensureStressDatabase(t)

	ev := stressRandomEvent(t)
	since := ev.CreatedAt - 1
	until := ev.CreatedAt + 1

	events := stressQuery(t, model.Filters{
		{Since: &since, Until: &until, Authors: []string{ev.PubKey}},
	})
	require.NotEmpty(t, events)
	for _, got := range events {
		require.GreaterOrEqual(t, int64(got.CreatedAt), int64(since))
		require.LessOrEqual(t, int64(got.CreatedAt), int64(until))
	}
}

func TestWhereBuilderLimitIsRespected(t *testing.T) {
	ensureStressDatabase(t)

	events := stressQuery(t, model.Filters{{Limit: 5}})
	require.LessOrEqual(t, len(events), 5)
}
