// SPDX-License-Identifier: ice License 1.0

package ws

import (
	"sync"

	"github.com/ChristianChiarulli/nostr-sync-relay/model"
	"github.com/ChristianChiarulli/nostr-sync-relay/server/ws/internal"
	"github.com/ChristianChiarulli/nostr-sync-relay/server/ws/internal/adapters"
	"github.com/ChristianChiarulli/nostr-sync-relay/server/ws/internal/config"
)

type (
	Writer = adapters.WSWriter
	Config = config.Config
	Router = internal.Router
)

type (
	// handler is the Subscription Registry and, through the same mutex,
	// the single serialization point that makes REQ/CHANGES_SUB replay +
	// registration atomic with respect to concurrent broadcast — see
	// broadcastLocked and handleChangesSub.
	handler struct {
		mu         sync.Mutex
		subs       map[Writer]map[string]*model.Subscription
		changeSubs map[Writer]map[string]*model.ChangeFeedSubscription
	}
)
