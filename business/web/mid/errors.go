package mid

import (
	"context"
	"net/http"

	"github.com/xorcoin/node/business/web/errs"
	"github.com/xorcoin/node/foundation/validate"
	"github.com/xorcoin/node/foundation/web"
	"go.uber.org/zap"
)

// Errors is the last line of defense for a handler that returns an error:
// it logs it, picks a status code, and writes a JSON error response.
func Errors(log *zap.SugaredLogger) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			err := handler(ctx, w, r)
			if err == nil {
				return nil
			}

			traceID := "unknown"
			if v, verr := web.GetValues(ctx); verr == nil {
				traceID = v.TraceID
			}
			log.Errorw("ERROR", "traceid", traceID, "ERROR", err)

			var resp errs.Response
			var status int

			switch {
			case errs.IsTrusted(err):
				trusted := errs.GetTrusted(err)
				resp = errs.Response{Error: trusted.Err.Error()}
				status = trusted.Status

			default:
				if fe, ok := err.(validate.FieldErrors); ok {
					resp = errs.Response{Error: "data validation error", Fields: fe.Fields()}
					status = http.StatusBadRequest
				} else {
					resp = errs.Response{Error: http.StatusText(http.StatusInternalServerError)}
					status = http.StatusInternalServerError
				}
			}

			if err := web.Respond(ctx, w, resp, status); err != nil {
				return err
			}

			if web.IsShutdown(err) {
				return err
			}

			return nil
		}
		return h
	}
	return m
}
