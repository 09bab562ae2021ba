// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ardanlabs/ethdelta/business/core/delta"
	"github.com/ardanlabs/ethdelta/business/web/errs"
	"github.com/ardanlabs/ethdelta/foundation/blockchain/genesis"
	"github.com/ardanlabs/ethdelta/foundation/events"
	"github.com/ardanlabs/ethdelta/foundation/stream/topic"
	"github.com/ardanlabs/ethdelta/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of delta query endpoints.
type Handlers struct {
	Log     *zap.SugaredLogger
	Topics  topic.Log
	Genesis genesis.Genesis
	WS      websocket.Upgrader
	Evts    *events.Events
}

// Premine returns the premine balances credited at genesis.
func (h Handlers) Premine(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	addrs := h.Genesis.Addresses()

	resp := premine{
		ChainID:  h.Genesis.ChainID,
		Total:    new(big.Int),
		Balances: make([]premineBalance, len(addrs)),
	}
	for i, addr := range addrs {
		balance := h.Genesis.Balance(addr)
		resp.Balances[i] = premineBalance{
			Address: addr,
			Balance: balance,
		}
		resp.Total.Add(resp.Total, balance)
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Deltas returns every event published on a delta stream for a height in
// publication order.
func (h Handlers) Deltas(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	name := web.Param(r, "stream")
	topicName, exists := delta.Streams[name]
	if !exists {
		return errs.NotFound(fmt.Errorf("unknown stream %q", name))
	}

	height, err := strconv.ParseUint(web.Param(r, "height"), 10, 64)
	if err != nil {
		return errs.BadRequest(fmt.Errorf("invalid height: %w", err))
	}

	pubs, err := delta.QueryByHeight(h.Topics, topicName, height)
	if err != nil {
		return fmt.Errorf("query stream[%s] height[%d]: %w", name, height, err)
	}

	if len(pubs) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	resp := deltaEvents{
		Stream: name,
		Height: height,
		Events: pubs,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Events handles a web socket to provide processing events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	h.Log.Infow("events", "traceid", v.TraceID, "status", "acquired", "subscribers", h.Evts.Len())
	defer func() {
		dropped, _ := h.Evts.Release(v.TraceID)
		h.Log.Infow("events", "traceid", v.TraceID, "status", "released", "dropped", dropped, "subscribers", h.Evts.Len())
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				return nil
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}
