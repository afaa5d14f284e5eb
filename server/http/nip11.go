// SPDX-License-Identifier: ice License 1.0

package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/nbd-wtf/go-nostr/nip11"
)

type (
	Config struct {
		MaxFilters           int
		MaxSubsPerConnection int
	}
	nip11handler struct {
		cfg *Config
	}
)

// NewCapabilityHandler serves a minimal NIP-11 style document: the relay's
// name, NIP-01 as its only supported NIP, and the configured filter and
// subscription limits. It does not list the change-feed commands
// (CHANGES, LASTSEQ, CHANGES_SUB, CHANGES_UNSUB), nor the elaborate NIP-11
// fields (icon, fees, retention policy).
func NewCapabilityHandler(cfg *Config) http.Handler {
	return &nip11handler{cfg: cfg}
}

func (n *nip11handler) ServeHTTP(writer http.ResponseWriter, req *http.Request) {
	if req.Header.Get("Accept") != "application/nostr+json" {
		writer.WriteHeader(http.StatusBadRequest)

		return
	}
	writer.Header().Add("Content-Type", "application/json")
	info := n.info()
	bytes, err := json.Marshal(info)
	if err != nil {
		log.Printf("ERROR:%v", errors.Wrapf(err, "failed to serialize capability doc %+v", info))

		return
	}
	if _, err = writer.Write(bytes); err != nil {
		log.Printf("ERROR:%v", errors.Wrap(err, "failed to write capability doc response"))
	}
}

func (n *nip11handler) info() nip11.RelayInformationDocument {
	return nip11.RelayInformationDocument{
		Name:        "nostr-sync-relay",
		Description: "signed-event relay with a CouchDB-style change feed",
		PubKey:      "~",
		Contact:     "~",
		// Only NIP-01 (events/filters) applies; CHANGES/LASTSEQ/CHANGES_SUB/
		// CHANGES_UNSUB are extensions this document does not have a slot for.
		SupportedNIPs: []int{1},
		Software:      "nostr-sync-relay",
		Limitation: &nip11.RelayLimitationDocument{
			MaxFilters:       n.cfg.MaxFilters,
			MaxSubscriptions: n.cfg.MaxSubsPerConnection,
		},
	}
}
