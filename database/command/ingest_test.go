// SPDX-License-Identifier: ice License 1.0

package command

import (
	"context"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"

	"github.com/ChristianChiarulli/nostr-sync-relay/database/query"
	"github.com/ChristianChiarulli/nostr-sync-relay/model"
)

const testDeadline = 30 * time.Second

func signedEvent(t *testing.T, sk string, kind int, tags nostr.Tags, content string) *model.Event {
	t.Helper()
	ev := &model.Event{Event: nostr.Event{
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      kind,
		Tags:      tags,
		Content:   content,
	}}
	require.NoError(t, ev.Sign(sk))

	return ev
}

func TestAcceptEventRegularRoundTrip(t *testing.T) {
	query.MustInit()
	ctx, cancel := context.WithTimeout(context.Background(), testDeadline)
	defer cancel()

	sk := nostr.GeneratePrivateKey()
	ev := signedEvent(t, sk, nostr.KindTextNote, nostr.Tags{}, "hello")

	result, err := AcceptEvent(ctx, ev)
	require.NoError(t, err)
	require.True(t, result.Accepted)
	require.Empty(t, result.Reason)
	require.NotNil(t, result.Seq)
	require.True(t, result.Broadcast)

	stored, err := query.GetByID(ctx, ev.ID)
	require.NoError(t, err)
	require.Equal(t, ev.ID, stored.ID)
	require.Equal(t, ev.Content, stored.Content)
}

func TestAcceptEventDuplicateIsNotRebroadcast(t *testing.T) {
	query.MustInit()
	ctx, cancel := context.WithTimeout(context.Background(), testDeadline)
	defer cancel()

	sk := nostr.GeneratePrivateKey()
	ev := signedEvent(t, sk, nostr.KindTextNote, nostr.Tags{}, "hello again")

	first, err := AcceptEvent(ctx, ev)
	require.NoError(t, err)
	require.True(t, first.Broadcast)

	second, err := AcceptEvent(ctx, ev)
	require.NoError(t, err)
	require.True(t, second.Accepted)
	require.Contains(t, second.Reason, "duplicate:")
	require.False(t, second.Broadcast)
	require.Equal(t, *first.Seq, *second.Seq)
}

func TestAcceptEventEphemeralNeverStored(t *testing.T) {
	query.MustInit()
	ctx, cancel := context.WithTimeout(context.Background(), testDeadline)
	defer cancel()

	sk := nostr.GeneratePrivateKey()
	ev := signedEvent(t, sk, nostr.KindClientAuthentication, nostr.Tags{}, "")

	result, err := AcceptEvent(ctx, ev)
	require.NoError(t, err)
	require.True(t, result.Accepted)
	require.Nil(t, result.Seq)
	require.True(t, result.Broadcast)

	stored, err := query.GetByID(ctx, ev.ID)
	require.NoError(t, err)
	require.Nil(t, stored)
}

func TestAcceptEventReplaceableSupersedesOlder(t *testing.T) {
	query.MustInit()
	ctx, cancel := context.WithTimeout(context.Background(), testDeadline)
	defer cancel()

	sk := nostr.GeneratePrivateKey()
	older := signedEvent(t, sk, nostr.KindFollowList, nostr.Tags{}, "older")
	time.Sleep(time.Second) // force a strictly later created_at, sqlite second resolution.
	newer := signedEvent(t, sk, nostr.KindFollowList, nostr.Tags{}, "newer")

	_, err := AcceptEvent(ctx, older)
	require.NoError(t, err)
	result, err := AcceptEvent(ctx, newer)
	require.NoError(t, err)
	require.True(t, result.Accepted)
	require.True(t, result.Broadcast)

	require.Nil(t, mustGet(t, ctx, older.ID))
	require.NotNil(t, mustGet(t, ctx, newer.ID))
}

func TestAcceptEventReplaceableKeepsNewerOnOlderSubmit(t *testing.T) {
	query.MustInit()
	ctx, cancel := context.WithTimeout(context.Background(), testDeadline)
	defer cancel()

	sk := nostr.GeneratePrivateKey()
	newer := signedEvent(t, sk, nostr.KindFollowList, nostr.Tags{}, "newer")
	time.Sleep(time.Second)
	evenNewer := signedEvent(t, sk, nostr.KindFollowList, nostr.Tags{}, "even newer")

	_, err := AcceptEvent(ctx, evenNewer)
	require.NoError(t, err)
	result, err := AcceptEvent(ctx, newer)
	require.NoError(t, err)
	require.True(t, result.Accepted)
	require.Contains(t, result.Reason, "duplicate:")
	require.False(t, result.Broadcast)

	require.NotNil(t, mustGet(t, ctx, evenNewer.ID))
}

func TestAcceptEventAddressableKeyedByDTag(t *testing.T) {
	query.MustInit()
	ctx, cancel := context.WithTimeout(context.Background(), testDeadline)
	defer cancel()

	sk := nostr.GeneratePrivateKey()
	first := signedEvent(t, sk, 30000, nostr.Tags{{"d", "profile-a"}}, "v1")
	time.Sleep(time.Second)
	second := signedEvent(t, sk, 30000, nostr.Tags{{"d", "profile-a"}}, "v2")
	other := signedEvent(t, sk, 30000, nostr.Tags{{"d", "profile-b"}}, "other")

	_, err := AcceptEvent(ctx, first)
	require.NoError(t, err)
	_, err = AcceptEvent(ctx, second)
	require.NoError(t, err)
	_, err = AcceptEvent(ctx, other)
	require.NoError(t, err)

	require.Nil(t, mustGet(t, ctx, first.ID))
	require.NotNil(t, mustGet(t, ctx, second.ID))
	require.NotNil(t, mustGet(t, ctx, other.ID))
}

func TestAcceptEventSyncableRetainsHistory(t *testing.T) {
	query.MustInit()
	ctx, cancel := context.WithTimeout(context.Background(), testDeadline)
	defer cancel()

	sk := nostr.GeneratePrivateKey()
	rev1 := signedEvent(t, sk, 40000, nostr.Tags{{"d", "doc-1"}, {"i", "1-aaa"}}, "rev1")
	rev2 := signedEvent(t, sk, 40000, nostr.Tags{{"d", "doc-1"}, {"i", "2-bbb"}, {"v", "1-aaa"}}, "rev2")

	_, err := AcceptEvent(ctx, rev1)
	require.NoError(t, err)
	_, err = AcceptEvent(ctx, rev2)
	require.NoError(t, err)

	require.NotNil(t, mustGet(t, ctx, rev1.ID))
	require.NotNil(t, mustGet(t, ctx, rev2.ID))
}

func TestAcceptEventPurgeDeletesMatchingDocuments(t *testing.T) {
	query.MustInit()
	ctx, cancel := context.WithTimeout(context.Background(), testDeadline)
	defer cancel()

	sk := nostr.GeneratePrivateKey()
	rev1 := signedEvent(t, sk, 40000, nostr.Tags{{"d", "doc-2"}}, "rev1")
	_, err := AcceptEvent(ctx, rev1)
	require.NoError(t, err)

	purge := signedEvent(t, sk, 49999, nostr.Tags{{"d", "doc-2"}, {"k", "40000"}}, "")
	result, err := AcceptEvent(ctx, purge)
	require.NoError(t, err)
	require.True(t, result.Accepted)

	require.Nil(t, mustGet(t, ctx, rev1.ID))
	require.NotNil(t, mustGet(t, ctx, purge.ID))
}

func TestAcceptEventPurgeRejectsMissingKTag(t *testing.T) {
	query.MustInit()
	ctx, cancel := context.WithTimeout(context.Background(), testDeadline)
	defer cancel()

	sk := nostr.GeneratePrivateKey()
	purge := signedEvent(t, sk, 49999, nostr.Tags{{"d", "doc-3"}}, "")

	result, err := AcceptEvent(ctx, purge)
	require.NoError(t, err)
	require.False(t, result.Accepted)
	require.Contains(t, result.Reason, "invalid:")
}

func TestAcceptEventRejectsInvalidSignature(t *testing.T) {
	query.MustInit()
	ctx, cancel := context.WithTimeout(context.Background(), testDeadline)
	defer cancel()

	sk := nostr.GeneratePrivateKey()
	ev := signedEvent(t, sk, nostr.KindTextNote, nostr.Tags{}, "tampered")
	ev.Content = "tampered with after signing"

	result, err := AcceptEvent(ctx, ev)
	require.NoError(t, err)
	require.False(t, result.Accepted)
	require.Contains(t, result.Reason, "invalid:")
}

func mustGet(t *testing.T, ctx context.Context, id string) *model.Event {
	t.Helper()
	ev, err := query.GetByID(ctx, id)
	require.NoError(t, err)

	return ev
}
