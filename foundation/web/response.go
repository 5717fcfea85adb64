package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/xorcoin/node/foundation/validate"
)

// Respond marshals data as JSON and writes it with the given status code.
// A StatusNoContent status writes no body.
func Respond(ctx context.Context, w http.ResponseWriter, data any, statusCode int) error {
	setStatusCode(ctx, statusCode)

	if statusCode == http.StatusNoContent {
		w.WriteHeader(statusCode)
		return nil
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, err = w.Write(jsonData)
	return err
}

// Decode reads the request body as JSON into val and, if val implements
// validate-able struct tags, runs them.
func Decode(r *http.Request, val any) error {
	if err := json.NewDecoder(r.Body).Decode(val); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	if err := validate.Check(val); err != nil {
		return err
	}

	return nil
}

// Param returns the named path parameter matched by the router.
func Param(r *http.Request, key string) string {
	return paramsFromContext(r)[key]
}
