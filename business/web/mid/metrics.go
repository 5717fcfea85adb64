package mid

import (
	"context"
	"expvar"
	"net/http"

	"github.com/xorcoin/node/foundation/web"
)

var metrics = struct {
	req *expvar.Int
	err *expvar.Int
}{
	req: expvar.NewInt("requests"),
	err: expvar.NewInt("errors"),
}

// Metrics maintains request/error counters visible on /debug/vars.
func Metrics() web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			err := handler(ctx, w, r)

			metrics.req.Add(1)
			if err != nil {
				metrics.err.Add(1)
			}

			return err
		}
		return h
	}
	return m
}
