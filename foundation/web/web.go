// Package web provides a thin wrapper around httptreemux for the node and
// wallet HTTP surfaces: consistent middleware chaining, request-scoped
// trace IDs, and JSON request/response helpers.
package web

import (
	"context"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/dimfeld/httptreemux/v5"
	"github.com/google/uuid"
)

// Handler is the signature every application handler and middleware must
// implement.
type Handler func(ctx context.Context, w http.ResponseWriter, r *http.Request) error

// Middleware wraps a Handler with cross-cutting behavior.
type Middleware func(Handler) Handler

// App wraps an httptreemux router with application-wide middleware and a
// shutdown channel handlers can use to request a graceful stop.
type App struct {
	mux      *httptreemux.ContextMux
	shutdown chan os.Signal
	mw       []Middleware
}

// NewApp constructs an App with the given shutdown channel and middleware
// applied to every route in the order given.
func NewApp(shutdown chan os.Signal, mw ...Middleware) *App {
	return &App{
		mux:      httptreemux.NewContextMux(),
		shutdown: shutdown,
		mw:       mw,
	}
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

// SignalShutdown asks the application to shut down gracefully, the same as
// receiving SIGTERM from the OS.
func (a *App) SignalShutdown() {
	a.shutdown <- syscall.SIGTERM
}

// Handle registers a handler under the given method/version/path, wrapped
// first by handler-specific middleware and then by the app's own.
func (a *App) Handle(method string, version string, path string, handler Handler, mw ...Middleware) {
	handler = wrapMiddleware(mw, handler)
	handler = wrapMiddleware(a.mw, handler)

	h := func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), ctxKey, &Values{
			TraceID: uuid.NewString(),
			Now:     time.Now(),
		})

		if err := handler(ctx, w, r); err != nil {
			if IsShutdown(err) {
				a.SignalShutdown()
			}
		}
	}

	finalPath := path
	if version != "" {
		finalPath = "/" + version + path
	}

	a.mux.Handle(method, finalPath, h)
}

func wrapMiddleware(mw []Middleware, handler Handler) Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		if mw[i] != nil {
			handler = mw[i](handler)
		}
	}
	return handler
}
