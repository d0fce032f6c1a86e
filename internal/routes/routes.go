package routes

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/halvely/push-relay-agent/internal/model"
	"github.com/halvely/push-relay-agent/pkg/metrics"
)

// StatusSource exposes the engine's derived status to the HTTP surface.
type StatusSource interface {
	Status() model.PushStatus
	State() *model.RegistrationState
}

// NewRouter wires lightweight health/metrics/status endpoints so the agent
// can be monitored.
func NewRouter(metrics *metrics.Metrics, source StatusSource, started time.Time) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"message": "push relay agent healthy",
			"meta": map[string]interface{}{
				"uptime_seconds": int(time.Since(started).Seconds()),
				"timestamp":      time.Now().UTC(),
			},
		})
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		status := source.Status()
		state := source.State()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    status,
			"usable":    status.Usable(),
			"air_gaped": state.AirGaped,
			"endpoint":  state.Endpoint != "",
			"relay_url": state.Relay.URL,
			"device_id": deviceID(state),
		})
	})
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func deviceID(state *model.RegistrationState) int {
	if state.Device == nil {
		return 0
	}
	return state.Device.DeviceID
}
