package mid

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/xorcoin/node/foundation/web"
)

// Panics recovers from a panic in the handler chain and converts it into an
// error so Errors can respond and log it instead of crashing the process.
func Panics() web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = fmt.Errorf("PANIC: %v TRACE:\n%s", rec, string(debug.Stack()))
				}
			}()

			return handler(ctx, w, r)
		}
		return h
	}
	return m
}
