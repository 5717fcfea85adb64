package web

import (
	"context"
	"errors"
	"time"
)

type key int

const ctxKey key = 1

// Values carries request-scoped state through a handler chain.
type Values struct {
	TraceID    string
	Now        time.Time
	StatusCode int
}

// GetValues extracts the Values placed on ctx by App.Handle.
func GetValues(ctx context.Context) (*Values, error) {
	v, ok := ctx.Value(ctxKey).(*Values)
	if !ok {
		return nil, errors.New("web value missing from context")
	}
	return v, nil
}

func setStatusCode(ctx context.Context, statusCode int) {
	if v, ok := ctx.Value(ctxKey).(*Values); ok {
		v.StatusCode = statusCode
	}
}
