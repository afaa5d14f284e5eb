// SPDX-License-Identifier: ice License 1.0

package server

import (
	"context"

	httpserver "github.com/ChristianChiarulli/nostr-sync-relay/server/http"
	wsserver "github.com/ChristianChiarulli/nostr-sync-relay/server/ws"
)

type (
	Config = wsserver.Config
	router struct {
		cfg      *Config
		httpCfg  *httpserver.Config
	}
)

func ListenAndServe(ctx context.Context, cancel context.CancelFunc, config *Config, httpCfg *httpserver.Config) {
	wsserver.New(config, &router{cfg: config, httpCfg: httpCfg}).ListenAndServe(ctx, cancel)
}

func (r *router) RegisterRoutes(ctx context.Context, wsroutes *wsserver.Router) {
	capabilityDoc := httpserver.NewCapabilityHandler(r.httpCfg)
	wsroutes.Any("/", wsserver.WithWS(wsserver.NewHandler(), r.cfg, capabilityDoc))
}
