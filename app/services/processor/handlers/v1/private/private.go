// Package private maintains the group of handlers for the chain indexer that
// feeds the processor with canonical records.
package private

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ardanlabs/ethdelta/business/core/delta"
	"github.com/ardanlabs/ethdelta/business/web/errs"
	"github.com/ardanlabs/ethdelta/foundation/stream"
	"github.com/ardanlabs/ethdelta/foundation/stream/topic"
	"github.com/ardanlabs/ethdelta/foundation/validate"
	"github.com/ardanlabs/ethdelta/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of canonical record endpoints.
type Handlers struct {
	Log    *zap.SugaredLogger
	Topics topic.Log
}

// SubmitBlock publishes the canonical block and author for a height.
func (h Handlers) SubmitBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var nb NewBlock
	if err := web.Decode(r, &nb); err != nil {
		return errs.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
	}

	if err := validate.Check(nb); err != nil {
		return err
	}

	h.Log.Infow("submit block", "traceid", v.TraceID, "height", nb.Number, "hash", nb.Hash, "author", nb.Author)

	msg, err := delta.PublishBlockHeader(h.Topics, toBlockHeader(nb))
	if err != nil {
		return h.publishErr(err)
	}

	return web.Respond(ctx, w, toPublished(msg), http.StatusAccepted)
}

// RetractBlock publishes a tombstone for the block at a height.
func (h Handlers) RetractBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	height, err := h.height(ctx, r, "retract block")
	if err != nil {
		return err
	}

	msg, err := delta.RetractBlockHeader(h.Topics, height, time.Now().UTC())
	if err != nil {
		return h.publishErr(err)
	}

	return web.Respond(ctx, w, toPublished(msg), http.StatusAccepted)
}

// SubmitFees publishes the canonical transaction fees for a height.
func (h Handlers) SubmitFees(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var nfl NewFeeList
	if err := web.Decode(r, &nfl); err != nil {
		return errs.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
	}

	if err := validate.Check(nfl); err != nil {
		return err
	}

	fl, err := toFeeList(nfl)
	if err != nil {
		return errs.BadRequest(err)
	}

	h.Log.Infow("submit fees", "traceid", v.TraceID, "height", fl.Number, "hash", fl.Hash, "fees", len(fl.Fees))

	msg, err := delta.PublishFeeList(h.Topics, fl)
	if err != nil {
		return h.publishErr(err)
	}

	return web.Respond(ctx, w, toPublished(msg), http.StatusAccepted)
}

// RetractFees publishes a tombstone for the fee list at a height.
func (h Handlers) RetractFees(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	height, err := h.height(ctx, r, "retract fees")
	if err != nil {
		return err
	}

	msg, err := delta.RetractFeeList(h.Topics, height, time.Now().UTC())
	if err != nil {
		return h.publishErr(err)
	}

	return web.Respond(ctx, w, toPublished(msg), http.StatusAccepted)
}

// =============================================================================

func (h Handlers) height(ctx context.Context, r *http.Request, action string) (uint64, error) {
	height, err := strconv.ParseUint(web.Param(r, "height"), 10, 64)
	if err != nil {
		return 0, errs.BadRequest(fmt.Errorf("invalid height: %w", err))
	}

	h.Log.Infow(action, "traceid", web.GetTraceID(ctx), "height", height)

	return height, nil
}

func (h Handlers) publishErr(err error) error {
	if errors.Is(err, topic.ErrClosed) {
		return errs.Unavailable(err)
	}
	return err
}

func toPublished(msg stream.Message) published {
	return published{
		Topic:     msg.Topic,
		Height:    msg.Key,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Tombstone: msg.Tombstone,
	}
}
