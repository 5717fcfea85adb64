package private

import (
	"net/http"

	"github.com/xorcoin/node/foundation/blockchain/state"
	"github.com/xorcoin/node/foundation/web"
	"go.uber.org/zap"
)

// Config contains all the mandatory systems required by the private routes.
type Config struct {
	Log   *zap.SugaredLogger
	State *state.State
}

// Routes binds all the admin routes.
func Routes(app *web.App, cfg Config) {
	prv := Handlers{
		Log:   cfg.Log,
		State: cfg.State,
	}

	const version = "v1"

	app.Handle(http.MethodGet, version, "/node/status", prv.Status)
	app.Handle(http.MethodGet, version, "/node/block/list/:from/:to", prv.BlocksByNumber)
	app.Handle(http.MethodGet, version, "/node/tx/list", prv.Mempool)
}
