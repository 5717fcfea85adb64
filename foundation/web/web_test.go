package web_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/xorcoin/node/foundation/web"
)

func Test_HandleRoutesRequest(t *testing.T) {
	shutdown := make(chan os.Signal, 1)
	app := web.NewApp(shutdown)

	h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return web.Respond(ctx, w, map[string]string{"status": "ok"}, http.StatusOK)
	}
	app.Handle(http.MethodGet, "v1", "/ping", h)

	req := httptest.NewRequest(http.MethodGet, "/v1/ping", nil)
	rr := httptest.NewRecorder()
	app.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Should respond 200, got %d.", rr.Code)
	}
	if rr.Body.String() != `{"status":"ok"}` {
		t.Fatalf("Should respond with the handler's JSON, got %q.", rr.Body.String())
	}
}

func Test_MiddlewareRunsAroundHandler(t *testing.T) {
	shutdown := make(chan os.Signal, 1)

	var order []string
	mw := func(handler web.Handler) web.Handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			order = append(order, "before")
			err := handler(ctx, w, r)
			order = append(order, "after")
			return err
		}
	}

	app := web.NewApp(shutdown, mw)
	h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		order = append(order, "handler")
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
	app.Handle(http.MethodGet, "", "/ping", h)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rr := httptest.NewRecorder()
	app.ServeHTTP(rr, req)

	want := []string{"before", "handler", "after"}
	if len(order) != len(want) {
		t.Fatalf("Should run middleware around the handler, got %v.", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("Should run in order %v, got %v.", want, order)
		}
	}
}

func Test_HandlerErrorSignalsShutdown(t *testing.T) {
	shutdown := make(chan os.Signal, 1)
	app := web.NewApp(shutdown)

	h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return web.NewShutdownError("wedged")
	}
	app.Handle(http.MethodGet, "", "/ping", h)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rr := httptest.NewRecorder()
	app.ServeHTTP(rr, req)

	select {
	case <-shutdown:
	default:
		t.Fatalf("Should signal shutdown when the handler returns a shutdown error.")
	}
}

func Test_ParamReturnsPathValue(t *testing.T) {
	shutdown := make(chan os.Signal, 1)
	app := web.NewApp(shutdown)

	var got string
	h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		got = web.Param(r, "address")
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
	app.Handle(http.MethodGet, "v1", "/balances/list/:address", h)

	req := httptest.NewRequest(http.MethodGet, "/v1/balances/list/abc123", nil)
	rr := httptest.NewRecorder()
	app.ServeHTTP(rr, req)

	if got != "abc123" {
		t.Fatalf("Should extract the path parameter, got %q.", got)
	}
}

func Test_RespondNoContentWritesNoBody(t *testing.T) {
	rr := httptest.NewRecorder()
	if err := web.Respond(context.Background(), rr, map[string]string{"x": "y"}, http.StatusNoContent); err != nil {
		t.Fatalf("Should not error: %s", err)
	}

	if rr.Code != http.StatusNoContent {
		t.Fatalf("Should respond 204, got %d.", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Fatalf("Should write no body for 204, got %q.", rr.Body.String())
	}
}
