// SPDX-License-Identifier: ice License 1.0

package main

import (
	"context"
	"log"
	stdlibtime "time"

	"github.com/gookit/goutil/errorx"
	"github.com/spf13/cobra"

	"github.com/ChristianChiarulli/nostr-sync-relay/cfg"
	"github.com/ChristianChiarulli/nostr-sync-relay/database/command"
	"github.com/ChristianChiarulli/nostr-sync-relay/database/query"
	"github.com/ChristianChiarulli/nostr-sync-relay/server"
	httpserver "github.com/ChristianChiarulli/nostr-sync-relay/server/http"
	wsserver "github.com/ChristianChiarulli/nostr-sync-relay/server/ws"
)

type relayConfig struct {
	Port                 uint16              `yaml:"port"`
	DBPath               string              `yaml:"dbPath"`
	ReadTimeout          stdlibtime.Duration `yaml:"readTimeout"`
	WriteTimeout         stdlibtime.Duration `yaml:"writeTimeout"`
	MaxFilters           int                 `yaml:"maxFilters"`
	MaxSubsPerConnection int                 `yaml:"maxSubsPerConnection"`
}

var (
	cfgPath string
	port    uint16
	dbPath  string

	relay = &cobra.Command{
		Use:   "relay",
		Short: "nostr-sync-relay",
		Run: func(cmd *cobra.Command, _ []string) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			if cfgPath != "" {
				cfg.MustInit(cfgPath)
			} else {
				cfg.MustInit()
			}
			relayCfg := cfg.MustGet[relayConfig]()
			if cmd.Flags().Changed("port") {
				relayCfg.Port = port
			}
			if cmd.Flags().Changed("db-path") {
				relayCfg.DBPath = dbPath
			}
			if relayCfg.ReadTimeout == 0 {
				relayCfg.ReadTimeout = 60 * stdlibtime.Second
			}
			if relayCfg.WriteTimeout == 0 {
				relayCfg.WriteTimeout = 10 * stdlibtime.Second
			}

			query.MustInit(relayCfg.DBPath)
			server.ListenAndServe(ctx, cancel,
				&server.Config{Port: relayCfg.Port, ReadTimeout: relayCfg.ReadTimeout, WriteTimeout: relayCfg.WriteTimeout},
				&httpserver.Config{MaxFilters: relayCfg.MaxFilters, MaxSubsPerConnection: relayCfg.MaxSubsPerConnection},
			)
		},
	}
)

func init() {
	relay.Flags().StringVar(&cfgPath, "config", "", "path to yaml configuration file")
	relay.Flags().Uint16Var(&port, "port", 0, "port to communicate with clients (http/websocket)")
	relay.Flags().StringVar(&dbPath, "db-path", "", "path to the sqlite database file (default :memory:)")

	wsserver.RegisterWSEventListener(command.AcceptEvent)
	wsserver.RegisterWSQueryListener(query.Query)
	wsserver.RegisterWSChangesListener(query.QueryChanges)
	wsserver.RegisterWSLastSeqListener(query.LastSeq)
}

func main() {
	if err := relay.Execute(); err != nil {
		log.Panic(errorx.Wrap(err, "failed to execute relay command"))
	}
}
