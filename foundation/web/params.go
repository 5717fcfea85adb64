package web

import (
	"net/http"

	"github.com/dimfeld/httptreemux/v5"
)

func paramsFromContext(r *http.Request) map[string]string {
	return httptreemux.ContextParams(r.Context())
}
