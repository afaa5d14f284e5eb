// SPDX-License-Identifier: ice License 1.0

package ws

import (
	"context"
	"io"
	"log"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/hashicorp/go-multierror"
	"github.com/nbd-wtf/go-nostr"

	"github.com/ChristianChiarulli/nostr-sync-relay/model"
	"github.com/ChristianChiarulli/nostr-sync-relay/server/ws/internal"
	"github.com/ChristianChiarulli/nostr-sync-relay/server/ws/internal/adapters"
)

type (
	IngestFunc  func(context.Context, *model.Event) (*model.IngestResult, error)
	QueryFunc   func(context.Context, model.Filters) ([]*model.Event, error)
	ChangesFunc func(context.Context, int64, model.ChangesOptions) ([]model.Change, int64, error)
	LastSeqFunc func(context.Context) (int64, error)
)

var (
	ingestListener  IngestFunc
	queryListener   QueryFunc
	changesListener ChangesFunc
	lastSeqListener LastSeqFunc
)

// RegisterWSEventListener wires the Ingest Pipeline into every connection
// handler's EVENT processing.
func RegisterWSEventListener(listen IngestFunc) { ingestListener = listen }

// RegisterWSQueryListener wires the Store's query path into REQ handling.
func RegisterWSQueryListener(listen QueryFunc) { queryListener = listen }

// RegisterWSChangesListener wires the Store's change-feed read path into
// CHANGES/CHANGES_SUB replay.
func RegisterWSChangesListener(listen ChangesFunc) { changesListener = listen }

// RegisterWSLastSeqListener wires the Store's global sequence counter
// into LASTSEQ.
func RegisterWSLastSeqListener(listen LastSeqFunc) { lastSeqListener = listen }

var hdl *handler

func NewHandler() internal.WSHandler {
	hdl = &handler{
		subs:       make(map[Writer]map[string]*model.Subscription),
		changeSubs: make(map[Writer]map[string]*model.ChangeFeedSubscription),
	}

	return hdl
}

func New(cfg *Config, routes internal.RegisterRoutes) internal.Server {
	return internal.NewWSServer(routes, cfg)
}

// WithWS mounts the connection handler at a gin route; everything that
// isn't a websocket upgrade falls through to fallback (the capability
// document).
func WithWS(wsHandler internal.WSHandler, cfg *Config, fallback http.Handler) gin.HandlerFunc {
	return internal.WithWS(wsHandler, cfg, fallback)
}

func (h *handler) Read(ctx context.Context, stream internal.WS) {
	for {
		t, msgBytes, err := stream.ReadMessage()
		if err != nil {
			closed := new(wsutil.ClosedError)
			if errors.As(err, closed) {
				if closed.Code != ws.StatusNormalClosure &&
					closed.Code != ws.StatusGoingAway &&
					closed.Code != ws.StatusAbnormalClosure &&
					closed.Code != ws.StatusNoStatusRcvd {
					log.Printf("WARN: unexpected close code %v", closed.Code)
				}
			} else if !errors.Is(err, io.EOF) {
				log.Printf("WARN: read failed: %v", err)
			}
			break
		}
		if len(msgBytes) > 0 && ws.OpCode(t) == ws.OpText {
			h.Handle(ctx, stream, msgBytes)
		}
	}
	h.closeConnection(stream)
}

func (h *handler) Handle(ctx context.Context, respWriter adapters.WSWriter, msgBytes []byte) {
	input, err := model.ParseMessage(msgBytes)
	if err != nil {
		notice := nostr.NoticeEnvelope(err.Error())
		log.Printf("ERROR:%v", multierror.Append(err, h.writeResponse(respWriter, &notice)).ErrorOrNil())

		return
	}

	switch e := input.(type) {
	case *nostr.EventEnvelope:
		h.handleEvent(ctx, respWriter, &model.Event{Event: e.Event})

		return
	case *model.ReqEnvelope:
		err = h.handleReq(ctx, respWriter, e)
	case *nostr.CloseEnvelope:
		subID := string(*e)
		h.cancelSubscription(respWriter, &subID)
	case *model.ChangesEnvelope:
		err = h.handleChanges(ctx, respWriter, e.ChangesOptions)
	case *model.LastSeqEnvelope:
		err = h.handleLastSeq(ctx, respWriter)
	case *model.ChangesSubEnvelope:
		err = h.handleChangesSub(ctx, respWriter, e)
	case *model.ChangesUnsubEnvelope:
		h.cancelChangeSubscription(respWriter, e.SubscriptionID)
	default:
		err = errors.Errorf("unknown message type %v", input.Label())
	}

	if err != nil {
		err = errors.Wrapf(err, "error: failed to handle %v %+v", input.Label(), input)
		notice := nostr.NoticeEnvelope(err.Error())
		log.Printf("ERROR:%v", multierror.Append(err, h.writeResponse(respWriter, &notice)).ErrorOrNil())
	}
}

func (h *handler) writeResponse(respWriter adapters.WSWriter, envelope model.Envelope) error {
	b, err := envelope.MarshalJSON()
	if err != nil {
		return errors.Wrapf(err, "failed to serialize %+v into json", envelope)
	}

	return respWriter.WriteMessage(int(ws.OpText), b)
}
