// Package httpapi exposes the producer host's status and metrics over
// HTTP, using gorilla/mux for the router (as ep-eaglepoint's crm-engine
// and task-board services do for their own control surfaces).
package httpapi

import (
	"encoding/json"
	"net/http"

	"depthfeed/internal/model"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusSource is whatever can report the producer host's current state;
// producer.Host satisfies it.
type StatusSource interface {
	Status() model.ConnectionStatus
}

type statusResponse struct {
	Status string `json:"status"`
}

// NewRouter builds the /status and /metrics routes. metricsHandler is
// typically promhttp.Handler() wired to the telemetry registry.
func NewRouter(source StatusSource, metricsHandler http.Handler) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/status", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(statusResponse{Status: source.Status().String()})
	}).Methods(http.MethodGet)

	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)

	return r
}
