// Package checkgrp implements the readiness/liveness endpoints polled by an
// operator or orchestrator to decide whether this node is healthy.
package checkgrp

import (
	"encoding/json"
	"net/http"
	"os"

	"go.uber.org/zap"
)

// Handlers holds the state needed to answer health checks.
type Handlers struct {
	Build string
	Log   *zap.SugaredLogger
}

// Readiness reports whether the node is ready to accept work. Since node
// startup is synchronous (chain and mempool load before the debug mux
// starts listening), reachability alone is sufficient.
func (h Handlers) Readiness(w http.ResponseWriter, r *http.Request) {
	status := struct {
		Status string `json:"status"`
	}{
		Status: "OK",
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		h.Log.Errorw("readiness", "ERROR", err)
	}
}

// Liveness reports process identity information used to distinguish nodes
// in aggregated logs and dashboards.
func (h Handlers) Liveness(w http.ResponseWriter, r *http.Request) {
	host, err := os.Hostname()
	if err != nil {
		host = "unavailable"
	}

	info := struct {
		Status string `json:"status"`
		Build  string `json:"build"`
		Host   string `json:"host"`
	}{
		Status: "up",
		Build:  h.Build,
		Host:   host,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(info); err != nil {
		h.Log.Errorw("liveness", "ERROR", err)
	}
}
