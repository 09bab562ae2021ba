// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/ardanlabs/ethdelta/app/services/processor/handlers/v1/private"
	"github.com/ardanlabs/ethdelta/app/services/processor/handlers/v1/public"
	"github.com/ardanlabs/ethdelta/foundation/blockchain/genesis"
	"github.com/ardanlabs/ethdelta/foundation/events"
	"github.com/ardanlabs/ethdelta/foundation/stream/topic"
	"github.com/ardanlabs/ethdelta/foundation/web"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log     *zap.SugaredLogger
	Topics  topic.Log
	Genesis genesis.Genesis
	Evts    *events.Events
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:     cfg.Log,
		Topics:  cfg.Topics,
		Genesis: cfg.Genesis,
		Evts:    cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/genesis/premine", pbl.Premine)
	app.Handle(http.MethodGet, version, "/deltas/:stream/:height", pbl.Deltas)
}

// PrivateRoutes binds all the version 1 private routes.
func PrivateRoutes(app *web.App, cfg Config) {
	prv := private.Handlers{
		Log:    cfg.Log,
		Topics: cfg.Topics,
	}

	app.Handle(http.MethodPost, version, "/canonical/blocks", prv.SubmitBlock)
	app.Handle(http.MethodDelete, version, "/canonical/blocks/:height", prv.RetractBlock)
	app.Handle(http.MethodPost, version, "/canonical/fees", prv.SubmitFees)
	app.Handle(http.MethodDelete, version, "/canonical/fees/:height", prv.RetractFees)
}
