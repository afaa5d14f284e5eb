// SPDX-License-Identifier: ice License 1.0

package internal

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gobwas/ws"

	"github.com/ChristianChiarulli/nostr-sync-relay/server/ws/internal/adapters"
	"github.com/ChristianChiarulli/nostr-sync-relay/server/ws/internal/config"
)

// WithWS mounts a connection handler at a route: a request that looks like
// a websocket upgrade is upgraded and handed to wsHandler; everything else
// falls through to fallback (the capability document).
func WithWS(wsHandler WSHandler, cfg *config.Config, fallback http.Handler) gin.HandlerFunc {
	return func(ginCtx *gin.Context) {
		req := ginCtx.Request
		if req.Header.Get("Upgrade") != "websocket" {
			if fallback != nil {
				fallback.ServeHTTP(ginCtx.Writer, req)

				return
			}
			ginCtx.Status(http.StatusUpgradeRequired)

			return
		}

		conn, _, _, err := ws.UpgradeHTTP(req, ginCtx.Writer)
		if err != nil {
			return // ws.UpgradeHTTP already wrote the failure response.
		}

		wsocket, ctx := adapters.NewWebSocketAdapter(req.Context(), conn, cfg.ReadTimeout, cfg.WriteTimeout)
		go func() {
			defer wsocket.Close() //nolint:errcheck // Best-effort on a connection already torn down.
			go wsocket.Write(ctx)
			wsHandler.Read(ctx, wsocket)
		}()
	}
}
