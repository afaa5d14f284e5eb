// SPDX-License-Identifier: ice License 1.0

package internal

import (
	"context"
	"net/http"
	"os"
	stdlibtime "time"

	"github.com/gin-gonic/gin"

	"github.com/ChristianChiarulli/nostr-sync-relay/server/ws/internal/adapters"
	"github.com/ChristianChiarulli/nostr-sync-relay/server/ws/internal/config"
)

type (
	Router = gin.Engine
	Server interface {
		// ListenAndServe starts everything and blocks indefinitely.
		ListenAndServe(ctx context.Context, cancel context.CancelFunc)
	}
	RegisterRoutes interface {
		RegisterRoutes(ctx context.Context, router *Router)
	}

	WSHandler = adapters.WSHandler
	WS        = adapters.WS
)

type (
	srv struct {
		server *http.Server
		router *Router
		cfg    *config.Config
		quit   chan os.Signal
	}
)

const shutdownGrace = 5 * stdlibtime.Second
